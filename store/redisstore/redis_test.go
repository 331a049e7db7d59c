package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/versini-org/auth-client/store"
	"github.com/versini-org/auth-client/store/storetest"
)

func newRedisBackendTest(t *testing.T, ttl time.Duration) (*Backend, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, ttl), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestRedisBackendConformance(t *testing.T) {
	b, _, done := newRedisBackendTest(t, 0)
	defer done()
	storetest.Run(t, b)
}

func TestRedisBackendTTLExpiresSlots(t *testing.T) {
	b, mr, done := newRedisBackendTest(t, time.Minute)
	defer done()
	ctx := context.Background()

	if err := b.SetMany(ctx, map[string]string{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("set many: %v", err)
	}
	if ttl := mr.TTL("a"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := b.Get(ctx, "a"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected expired slot, got %v", err)
	}
}

func TestRedisBackendTokenStoreClear(t *testing.T) {
	b, mr, done := newRedisBackendTest(t, 0)
	defer done()
	ctx := context.Background()

	ts, err := store.New(b, "", "web")
	if err != nil {
		t.Fatalf("new token store: %v", err)
	}
	if err := ts.SetTriple(ctx, store.Triple{IDToken: "I", AccessToken: "A", RefreshToken: "R"}); err != nil {
		t.Fatalf("set triple: %v", err)
	}
	if err := ts.Set(ctx, store.FieldNonce, "n"); err != nil {
		t.Fatalf("set nonce: %v", err)
	}
	if got := len(mr.Keys()); got != 4 {
		t.Fatalf("expected 4 keys, got %d", got)
	}
	if err := ts.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := len(mr.Keys()); got != 0 {
		t.Fatalf("expected no keys after clear, got %d", got)
	}
}

func TestRedisBackendUnavailable(t *testing.T) {
	b, mr, done := newRedisBackendTest(t, 0)
	defer done()
	mr.Close()

	ctx := context.Background()
	if _, err := b.Get(ctx, "k"); !errors.Is(err, store.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable on get, got %v", err)
	}
	if err := b.SetMany(ctx, map[string]string{"k": "v"}); !errors.Is(err, store.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable on set many, got %v", err)
	}
	if _, err := b.Ping(ctx); !errors.Is(err, store.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable on ping, got %v", err)
	}
}
