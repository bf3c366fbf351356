package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithUser(context.Background(), "u1", roles))
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		has      []string
		required []string
		allowed  bool
	}{
		{"matching role", []string{RoleAccountant}, []string{RoleAccountant, RoleReceptionist}, true},
		{"admin bypass", []string{RoleAdmin}, []string{RoleDoctor}, true},
		{"wrong role", []string{RoleDoctor}, []string{RoleAccountant}, false},
		{"no roles", nil, []string{RoleDoctor}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := contextWithRoles(tt.has...)
			err := RequireRole(tt.required...)(okHandler)(c)
			if tt.allowed && err != nil {
				t.Fatalf("expected access, got %v", err)
			}
			if !tt.allowed {
				expectStatus(t, err, http.StatusForbidden)
			}
		})
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleAdmin, RoleDoctor, RoleReceptionist, RoleAccountant} {
		if !ValidRole(r) {
			t.Errorf("expected %q to be valid", r)
		}
	}
	if ValidRole("janitor") {
		t.Error("expected unknown role to be invalid")
	}
}

func TestUserIDFromContext(t *testing.T) {
	if UserIDFromContext(context.Background()) != "" {
		t.Error("expected empty user id")
	}
	ctx := WithUser(context.Background(), "abc", []string{RoleDoctor})
	if UserIDFromContext(ctx) != "abc" {
		t.Error("expected abc")
	}
}
