package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTenantContext(target string, header string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if header != "" {
		req.Header.Set("X-Tenant-ID", header)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestExtractTenantID(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		jwt    string
		want   string
	}{
		{"header", "/", "clinic_a", "", "clinic_a"},
		{"query", "/?tenant_id=clinic_q", "", "", "clinic_q"},
		{"jwt wins", "/?tenant_id=q", "h", "from_jwt", "from_jwt"},
		{"header over query", "/?tenant_id=q", "h", "", "h"},
		{"empty jwt falls through", "/", "h", "", "h"},
		{"default", "/", "", "", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTenantContext(tt.target, tt.header)
			c.Set("jwt_tenant_id", tt.jwt)
			if got := extractTenantID(c, "default"); got != tt.want {
				t.Errorf("extractTenantID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidTenantID(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"abc", true},
		{"clinic_1", true},
		{"A1B2", true},
		{"a-b", false},
		{"a.b", false},
		{"a b", false},
		{"", false},
		{"drop;table", false},
	}
	for _, tt := range tests {
		if got := ValidTenantID(tt.input); got != tt.valid {
			t.Errorf("ValidTenantID(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestSchemaName(t *testing.T) {
	if got := SchemaName("north"); got != "clinic_north" {
		t.Errorf("SchemaName() = %q", got)
	}
}

func TestCreateTenantSchema_InvalidID(t *testing.T) {
	for _, id := range []string{"with-dash", "dot.ted", "sp ace", "drop;table"} {
		if err := CreateTenantSchema(context.Background(), nil, id); err == nil {
			t.Errorf("expected error for invalid tenant ID %q", id)
		}
	}
}

func TestContextAccessors_Empty(t *testing.T) {
	ctx := context.Background()
	if ConnFromContext(ctx) != nil {
		t.Error("expected nil conn")
	}
	if TxFromContext(ctx) != nil {
		t.Error("expected nil tx")
	}
	if TenantFromContext(ctx) != "" {
		t.Error("expected empty tenant")
	}
}

func TestContextAccessors_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBConnKey, "not-a-conn")
	ctx = context.WithValue(ctx, DBTxKey, "not-a-tx")
	ctx = context.WithValue(ctx, TenantIDKey, 42)

	if ConnFromContext(ctx) != nil {
		t.Error("expected nil conn for wrong type")
	}
	if TxFromContext(ctx) != nil {
		t.Error("expected nil tx for wrong type")
	}
	if TenantFromContext(ctx) != "" {
		t.Error("expected empty tenant for wrong type")
	}
}

func TestNoTx_PassesContextThrough(t *testing.T) {
	ctx := context.WithValue(context.Background(), TenantIDKey, "t1")
	called := false
	err := NoTx{}.InTx(ctx, func(inner context.Context) error {
		called = true
		if TenantFromContext(inner) != "t1" {
			t.Error("expected tenant to survive InTx")
		}
		return nil
	})
	if err != nil || !called {
		t.Fatalf("InTx: called=%v err=%v", called, err)
	}
}

func TestWithTenantConn_RejectsInvalidID(t *testing.T) {
	if _, _, err := WithTenantConn(context.Background(), nil, "bad;id"); err == nil {
		t.Error("expected an error for an unsafe tenant id")
	}
}
