package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/leadrelay/keygate/internal/model"
	"github.com/leadrelay/keygate/internal/store"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestLogger() (*logrus.Logger, *test.Hook) {
	return test.NewNullLogger()
}

func seedAccount(t *testing.T, s *store.Store) *model.Account {
	t.Helper()
	acct := &model.Account{Name: "Acme", IsActive: true}
	if err := s.CreateAccount(context.Background(), acct); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return acct
}

// seedKeys stores n keys for a fresh account and returns their ids, for
// tests that need rows the window and usage tables can reference.
func seedKeys(t *testing.T, s *store.Store, n int) []int64 {
	t.Helper()
	acct := seedAccount(t, s)
	ids := make([]int64, 0, n)
	for i := range n {
		secret, err := GenerateSecret()
		if err != nil {
			t.Fatalf("GenerateSecret: %v", err)
		}
		rec, err := s.CreateAPIKey(context.Background(), store.NewKey{
			AccountID:   acct.ID,
			Name:        fmt.Sprintf("key-%d", i),
			KeyHash:     secret.Hash,
			KeyPrefix:   secret.Prefix,
			Permissions: []string{"contacts:read"},
			RateLimit:   DefaultRateLimit,
		})
		if err != nil {
			t.Fatalf("CreateAPIKey: %v", err)
		}
		ids = append(ids, rec.ID)
	}
	return ids
}

// memCache is an in-process KeyCache with TTL semantics driven by a fake
// clock, standing in for Redis in tests.
type memCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   Clock
	items map[string]memItem
	gets  int
}

type memItem struct {
	cred    store.KeyCredential
	expires time.Time
}

func newMemCache(ttl time.Duration, now Clock) *memCache {
	return &memCache{ttl: ttl, now: now, items: make(map[string]memItem)}
}

func (c *memCache) Get(_ context.Context, hash string) (*store.KeyCredential, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	it, ok := c.items[hash]
	if !ok || !c.now().Before(it.expires) {
		return nil, false, nil
	}
	cred := it.cred
	return &cred, true, nil
}

func (c *memCache) Set(_ context.Context, hash string, cred *store.KeyCredential) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[hash] = memItem{cred: *cred, expires: c.now().Add(c.ttl)}
	return nil
}

func (c *memCache) Delete(_ context.Context, hashes ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range hashes {
		delete(c.items, h)
	}
	return nil
}
