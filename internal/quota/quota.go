// Package quota enforces per-user monthly generation budgets.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/trendcurator/internal/model"
	"github.com/deusflow/trendcurator/internal/store"
)

type counterStore interface {
	GetCounter(ctx context.Context, userID string) (model.UsageCounter, error)
	ResetCounter(ctx context.Context, userID string, limit int, now time.Time) error
	IncrementUsage(ctx context.Context, userID string) (bool, error)
}

// Quota gates expensive generation work behind a monthly allowance.
type Quota struct {
	store counterStore
	limit int
	now   func() time.Time
}

func New(store counterStore, limit int) *Quota {
	if limit <= 0 {
		limit = 100
	}
	return &Quota{store: store, limit: limit, now: time.Now}
}

// ResetIfNewPeriod starts a fresh budget when the calendar month of the
// last reset differs from the current one. A missing counter is created
// with a full budget. Calling it twice in the same month is a no-op.
func (q *Quota) ResetIfNewPeriod(ctx context.Context, userID string) error {
	now := q.now()

	c, err := q.store.GetCounter(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return q.store.ResetCounter(ctx, userID, q.limit, now)
	}
	if err != nil {
		return fmt.Errorf("failed to load counter for %s: %w", userID, err)
	}

	if sameMonth(c.LastResetDate, now) {
		return nil
	}
	return q.store.ResetCounter(ctx, userID, q.limit, now)
}

// Increment spends one unit of the user's budget. Returns false when
// the budget is exhausted; nothing is mutated in that case. Callers run
// ResetIfNewPeriod first so a stale counter never blocks a new month.
func (q *Quota) Increment(ctx context.Context, userID string) (bool, error) {
	return q.store.IncrementUsage(ctx, userID)
}

// Remaining reports the units left this month, zero for a missing
// counter.
func (q *Quota) Remaining(ctx context.Context, userID string) (int, error) {
	c, err := q.store.GetCounter(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c.RemainingUsage, nil
}

// sameMonth compares calendar month and year. The year matters: the
// same month a year apart is a new period.
func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}
