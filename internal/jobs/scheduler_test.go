package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type countingCleaner struct {
	windows   atomic.Int64
	usage     atomic.Int64
	mu        sync.Mutex
	retention []int
	err       error
}

func (c *countingCleaner) CleanupOldUsageLogs(_ context.Context, days int) (int64, error) {
	c.usage.Add(1)
	c.mu.Lock()
	c.retention = append(c.retention, days)
	c.mu.Unlock()
	return 3, c.err
}

func (c *countingCleaner) CleanupOldRateLimitWindows(context.Context) (int64, error) {
	c.windows.Add(1)
	return 2, c.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()
	for _, cfg := range []Config{
		{WindowInterval: 0, UsageInterval: time.Hour, RetentionDays: 90},
		{WindowInterval: time.Hour, UsageInterval: -time.Second, RetentionDays: 90},
		{WindowInterval: time.Hour, UsageInterval: time.Hour, RetentionDays: 0},
	} {
		if _, err := New(&countingCleaner{}, cfg, logger); err == nil {
			t.Errorf("New(%+v) succeeded, want error", cfg)
		}
	}
}

func TestRunSchedulesBothJobs(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cleaner := &countingCleaner{}
	s, err := New(cleaner, Config{
		WindowInterval: 20 * time.Millisecond,
		UsageInterval:  time.Hour,
		RetentionDays:  30,
	}, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Both start immediately; the short interval repeats.
	waitFor(t, func() bool { return cleaner.windows.Load() >= 3 && cleaner.usage.Load() >= 1 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	cleaner.mu.Lock()
	defer cleaner.mu.Unlock()
	if cleaner.usage.Load() != 1 || cleaner.retention[0] != 30 {
		t.Errorf("usage cleanup ran %d times with %v, want once with 30", cleaner.usage.Load(), cleaner.retention)
	}
}

func TestRunLogsFailures(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cleaner := &countingCleaner{err: errors.New("database is locked")}
	s, err := New(cleaner, Config{WindowInterval: time.Hour, UsageInterval: time.Hour, RetentionDays: 90}, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, func() bool {
		n := 0
		for _, e := range hook.AllEntries() {
			if e.Level == logrus.ErrorLevel && e.Message == "maintenance job failed" {
				n++
			}
		}
		return n == 2
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunOnce(t *testing.T) {
	cleaner := &countingCleaner{}
	windows, usage, err := RunOnce(context.Background(), cleaner, 7)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if windows != 2 || usage != 3 {
		t.Errorf("RunOnce = %d, %d; want 2, 3", windows, usage)
	}
	if cleaner.retention[0] != 7 {
		t.Errorf("retention = %v, want 7", cleaner.retention)
	}

	cleaner.err = errors.New("boom")
	if _, _, err := RunOnce(context.Background(), cleaner, 7); err == nil {
		t.Error("expected error")
	}
}
