// Package storetest holds a conformance suite shared by every store.Backend.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/versini-org/auth-client/store"
)

// Run exercises the Backend contract against b. b must start empty.
func Run(t *testing.T, b store.Backend) {
	t.Helper()
	ctx := context.Background()

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := b.Set(ctx, "k1", "v1"); err != nil {
		t.Fatalf("set k1: %v", err)
	}
	if err := b.Set(ctx, "k1", "v1b"); err != nil {
		t.Fatalf("overwrite k1: %v", err)
	}
	got, err := b.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get k1: %v", err)
	}
	if got != "v1b" {
		t.Fatalf("expected v1b, got %q", got)
	}

	if batch, ok := b.(store.BatchBackend); ok {
		if err := batch.SetMany(ctx, map[string]string{"k2": "v2", "k3": "v3"}); err != nil {
			t.Fatalf("set many: %v", err)
		}
	} else {
		if err := b.Set(ctx, "k2", "v2"); err != nil {
			t.Fatalf("set k2: %v", err)
		}
		if err := b.Set(ctx, "k3", "v3"); err != nil {
			t.Fatalf("set k3: %v", err)
		}
	}
	for k, want := range map[string]string{"k2": "v2", "k3": "v3"} {
		v, err := b.Get(ctx, k)
		if err != nil {
			t.Fatalf("get %s: %v", k, err)
		}
		if v != want {
			t.Fatalf("expected %s=%q, got %q", k, want, v)
		}
	}

	if err := b.Delete(ctx, "k1", "k2", "k3", "never-set"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := b.Delete(ctx, "k1"); err != nil {
		t.Fatalf("second delete must be idempotent: %v", err)
	}
	for _, k := range []string{"k1", "k2", "k3"} {
		if _, err := b.Get(ctx, k); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected %s deleted, got %v", k, err)
		}
	}
}
