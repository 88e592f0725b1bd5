package service

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/leadrelay/keygate/internal/model"
	"github.com/leadrelay/keygate/internal/store"
)

func TestClampKeyCacheTTL(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, DefaultKeyCacheTTL},
		{-time.Second, DefaultKeyCacheTTL},
		{10 * time.Second, 10 * time.Second},
		{MaxKeyCacheTTL, MaxKeyCacheTTL},
		{time.Hour, MaxKeyCacheTTL},
	}
	for _, tt := range tests {
		if got := ClampKeyCacheTTL(tt.in); got != tt.want {
			t.Errorf("ClampKeyCacheTTL(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestRedisKeyCache runs against a real server when KEYGATE_TEST_REDIS_ADDR
// is set, e.g. KEYGATE_TEST_REDIS_ADDR=localhost:6379.
func TestRedisKeyCache(t *testing.T) {
	addr := os.Getenv("KEYGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KEYGATE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	cache := NewRedisKeyCache(client, 2*time.Second)
	hash := HashSecret("lr_live_redis_test_" + time.Now().String())
	t.Cleanup(func() { cache.Delete(ctx, hash) })

	if _, ok, err := cache.Get(ctx, hash); err != nil || ok {
		t.Fatalf("Get on empty cache = %v, %v", ok, err)
	}

	want := &store.KeyCredential{
		Key: model.KeyRecord{
			ID: 5, AccountID: 2, Name: "cached", KeyPrefix: "lr_live_abcd",
			Permissions: []string{"contacts:read"}, RateLimit: 100, IsActive: true,
		},
		AccountName:   "Acme",
		AccountActive: true,
	}
	if err := cache.Set(ctx, hash, want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := cache.Get(ctx, hash)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if got.Key.ID != want.Key.ID || got.AccountName != want.AccountName || got.Key.Permissions[0] != "contacts:read" {
		t.Errorf("round trip = %+v", got)
	}

	if ttl := client.TTL(ctx, "keygate:key:"+hash).Val(); ttl <= 0 || ttl > 2*time.Second {
		t.Errorf("entry TTL = %v, want within (0, 2s]", ttl)
	}

	if err := cache.Delete(ctx, hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, hash); ok {
		t.Error("entry survived Delete")
	}
}
