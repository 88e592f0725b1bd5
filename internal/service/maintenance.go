package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultUsageRetentionDays = 90
	// WindowRetention is how long closed rate-limit windows are kept. Any
	// window older than this ended long before the current one started.
	WindowRetention = 24 * time.Hour
)

// Maintenance prunes data the request path no longer needs. Both operations
// are single idempotent DELETEs over closed ranges, so they are safe to run
// alongside live traffic and against each other.
type Maintenance struct {
	windows WindowStore
	usage   UsageStore
	now     Clock
	logger  *logrus.Logger
}

// NewMaintenance creates the maintenance operations. A nil clock uses
// SystemClock.
func NewMaintenance(windows WindowStore, usage UsageStore, logger *logrus.Logger, now Clock) *Maintenance {
	if now == nil {
		now = SystemClock
	}
	return &Maintenance{windows: windows, usage: usage, now: now, logger: logger}
}

// CleanupOldUsageLogs deletes usage entries older than retentionDays. A
// non-positive value selects DefaultUsageRetentionDays.
func (m *Maintenance) CleanupOldUsageLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultUsageRetentionDays
	}
	cutoff := m.now().AddDate(0, 0, -retentionDays)
	n, err := m.usage.DeleteUsageBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup usage logs: %w", err)
	}
	m.logger.WithFields(logrus.Fields{
		"deleted":        n,
		"retention_days": retentionDays,
	}).Info("cleaned up old usage logs")
	return n, nil
}

// CleanupOldRateLimitWindows deletes windows that started more than
// WindowRetention ago.
func (m *Maintenance) CleanupOldRateLimitWindows(ctx context.Context) (int64, error) {
	cutoff := m.now().Add(-WindowRetention)
	n, err := m.windows.DeleteWindowsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limit windows: %w", err)
	}
	m.logger.WithField("deleted", n).Info("cleaned up old rate limit windows")
	return n, nil
}
