package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leadrelay/keygate/internal/model"
)

const (
	DefaultUsageWriteTimeout = 5 * time.Second
	DefaultStatsDays         = 30
	MaxStatsDays             = 365
	statsEndpointLimit       = 50
)

// UsageRecorder writes usage entries off the request path. Each Record call
// runs in its own goroutine with its own recover boundary; failures are
// logged and never reach the client.
type UsageRecorder struct {
	store   UsageStore
	logger  *logrus.Logger
	timeout time.Duration
	now     Clock

	wg sync.WaitGroup
}

// NewUsageRecorder creates a recorder. A zero timeout selects
// DefaultUsageWriteTimeout.
func NewUsageRecorder(s UsageStore, logger *logrus.Logger, timeout time.Duration, now Clock) *UsageRecorder {
	if timeout <= 0 {
		timeout = DefaultUsageWriteTimeout
	}
	if now == nil {
		now = SystemClock
	}
	return &UsageRecorder{store: s, logger: logger, timeout: timeout, now: now}
}

// Record schedules one usage entry and returns immediately. The write is
// detached from ctx's cancellation so a client disconnect cannot drop it.
func (u *UsageRecorder) Record(ctx context.Context, e model.UsageLogEntry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = u.now()
	}
	detached := context.WithoutCancel(ctx)

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				u.logger.WithFields(logrus.Fields{
					"key_id": e.APIKeyID,
					"panic":  rec,
				}).Error("usage recorder panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(detached, u.timeout)
		defer cancel()

		if err := u.store.InsertUsage(ctx, &e); err != nil {
			u.logger.WithError(err).WithFields(logrus.Fields{
				"key_id":   e.APIKeyID,
				"endpoint": e.Endpoint,
				"status":   e.StatusCode,
			}).Warn("failed to write usage log")
		}
	}()
}

// Wait blocks until every scheduled write has finished.
func (u *UsageRecorder) Wait() {
	u.wg.Wait()
}

// Shutdown waits for in-flight writes or for ctx to expire, whichever comes
// first.
func (u *UsageRecorder) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("usage recorder shutdown: %w", ctx.Err())
	}
}

// Stats reports a key's usage over the last days days (1..365, default 30).
// Ownership of the key must be checked by the caller.
func (u *UsageRecorder) Stats(ctx context.Context, keyID int64, days int) (*model.UsageStats, error) {
	days = ClampStatsDays(days)
	since := u.now().AddDate(0, 0, -days)

	daily, err := u.store.DailyUsage(ctx, keyID, since)
	if err != nil {
		return nil, err
	}
	endpoints, err := u.store.EndpointUsage(ctx, keyID, since, statsEndpointLimit)
	if err != nil {
		return nil, err
	}
	if daily == nil {
		daily = []model.DailyUsage{}
	}
	if endpoints == nil {
		endpoints = []model.EndpointUsage{}
	}
	return &model.UsageStats{
		KeyID:     keyID,
		Days:      days,
		Since:     since,
		Daily:     daily,
		Endpoints: endpoints,
	}, nil
}

// ClampStatsDays applies the default and bounds to a requested range.
func ClampStatsDays(days int) int {
	switch {
	case days <= 0:
		return DefaultStatsDays
	case days > MaxStatsDays:
		return MaxStatsDays
	default:
		return days
	}
}
