package main

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/middleware"
)

func TestResolveSigningKey_Configured(t *testing.T) {
	key, generated, err := resolveSigningKey("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if generated || string(key) != "0123456789abcdef0123456789abcdef" {
		t.Errorf("expected the configured key, got %q (generated=%v)", key, generated)
	}
}

func TestResolveSigningKey_Generated(t *testing.T) {
	a, generated, err := resolveSigningKey("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !generated || len(a) != 32 {
		t.Fatalf("expected a generated 32-byte key, got %d bytes (generated=%v)", len(a), generated)
	}
	b, _, _ := resolveSigningKey("")
	if string(a) == string(b) {
		t.Error("expected distinct random keys")
	}
}

func TestSessionStores_Memory(t *testing.T) {
	stores, err := newSessionStores("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := stores.idempotency.(*middleware.MemoryIdempotencyStore); !ok {
		t.Errorf("expected memory idempotency store, got %T", stores.idempotency)
	}
	if _, ok := stores.revocations.(*auth.MemoryRevocationStore); !ok {
		t.Errorf("expected memory revocation store, got %T", stores.revocations)
	}
	if err := stores.close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestSessionStores_Redis(t *testing.T) {
	stores, err := newSessionStores("redis://localhost:6379/0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = stores.close() }()
	if _, ok := stores.idempotency.(*middleware.RedisIdempotencyStore); !ok {
		t.Errorf("expected redis idempotency store, got %T", stores.idempotency)
	}
	if _, ok := stores.revocations.(*auth.RedisRevocationStore); !ok {
		t.Errorf("expected redis revocation store, got %T", stores.revocations)
	}
}

func TestSessionStores_BadURL(t *testing.T) {
	if _, err := newSessionStores("not a url"); err == nil {
		t.Error("expected an error for a malformed REDIS_URL")
	}
}

func TestSubcommands(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		want []string
	}{
		{migrateCmd(), []string{"down", "status", "up"}},
		{tenantCmd(), []string{"create"}},
		{userCmd(), []string{"create"}},
	}
	for _, tt := range tests {
		var got []string
		for _, c := range tt.cmd.Commands() {
			got = append(got, c.Name())
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("%s: expected %v, got %v", tt.cmd.Name(), tt.want, got)
		}
	}
}
