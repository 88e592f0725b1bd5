package service

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Window is the length of one fixed rate-limit window.
const Window = time.Hour

// Decision is the outcome of gating one request.
type Decision struct {
	Allowed    bool
	Count      int64 // post-increment count in the current window
	Limit      int
	Remaining  int
	ResetAt    time.Time // next window boundary
	RetryAfter int       // whole seconds until ResetAt, at least 1
}

// RateLimiter enforces a fixed hourly request quota per key. Counters live
// in the store; the limiter itself holds no state.
//
// Being a fixed window, a client can spend its quota at the end of one hour
// and again at the start of the next.
type RateLimiter struct {
	store WindowStore
	now   Clock
}

// NewRateLimiter creates a RateLimiter. A nil clock uses SystemClock.
func NewRateLimiter(s WindowStore, now Clock) *RateLimiter {
	if now == nil {
		now = SystemClock
	}
	return &RateLimiter{store: s, now: now}
}

// WindowStart truncates t to the start of its hour in UTC.
func WindowStart(t time.Time) time.Time {
	return t.UTC().Truncate(Window)
}

// CheckAndIncrement counts the request against its window and reports
// whether it is within the limit. The count is taken after the increment,
// so the request that reaches the limit exactly is still admitted.
func (r *RateLimiter) CheckAndIncrement(ctx context.Context, keyID int64, limit int) (Decision, error) {
	now := r.now()
	start := WindowStart(now)

	count, err := r.store.IncrementWindow(ctx, keyID, start)
	if err != nil {
		return Decision{}, fmt.Errorf("check rate limit: %w", err)
	}
	return decide(now, start, count, limit), nil
}

// Remaining returns the unused quota in the current window without
// counting a request.
func (r *RateLimiter) Remaining(ctx context.Context, keyID int64, limit int) (int, error) {
	count, err := r.store.WindowCount(ctx, keyID, WindowStart(r.now()))
	if err != nil {
		return 0, fmt.Errorf("read rate limit: %w", err)
	}
	return remaining(limit, count), nil
}

func decide(now, start time.Time, count int64, limit int) Decision {
	reset := start.Add(Window)
	retry := int(math.Ceil(reset.Sub(now).Seconds()))
	if retry < 1 {
		retry = 1
	}
	return Decision{
		Allowed:    count <= int64(limit),
		Count:      count,
		Limit:      limit,
		Remaining:  remaining(limit, count),
		ResetAt:    reset,
		RetryAfter: retry,
	}
}

func remaining(limit int, count int64) int {
	left := int64(limit) - count
	if left < 0 {
		return 0
	}
	return int(left)
}
