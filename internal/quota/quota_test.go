package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/trendcurator/internal/store"
)

func newQuota(t *testing.T, limit int, now time.Time) (*Quota, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	q := New(s, limit)
	q.now = func() time.Time { return now }
	return q, s
}

func TestResetIfNewPeriodCreatesMissingCounter(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	q, s := newQuota(t, 100, now)
	ctx := context.Background()

	require.NoError(t, q.ResetIfNewPeriod(ctx, "u1"))

	c, err := s.GetCounter(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.MonthlyUsage)
	assert.Equal(t, 100, c.RemainingUsage)
	assert.Equal(t, now, c.LastResetDate)
}

func TestResetIfNewPeriodIsIdempotentWithinMonth(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	q, s := newQuota(t, 100, now)
	ctx := context.Background()

	require.NoError(t, q.ResetIfNewPeriod(ctx, "u1"))
	ok, err := q.Increment(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)

	// Second call in the same month must not refill the budget.
	require.NoError(t, q.ResetIfNewPeriod(ctx, "u1"))

	c, err := s.GetCounter(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.MonthlyUsage)
	assert.Equal(t, 99, c.RemainingUsage)
}

func TestResetIfNewPeriodRefillsOnMonthChange(t *testing.T) {
	june := time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC)
	q, s := newQuota(t, 2, june)
	ctx := context.Background()

	require.NoError(t, q.ResetIfNewPeriod(ctx, "u1"))
	for i := 0; i < 2; i++ {
		ok, err := q.Increment(ctx, "u1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := q.Increment(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	july := time.Date(2025, 7, 1, 0, 30, 0, 0, time.UTC)
	q.now = func() time.Time { return july }
	require.NoError(t, q.ResetIfNewPeriod(ctx, "u1"))

	c, err := s.GetCounter(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.MonthlyUsage)
	assert.Equal(t, 2, c.RemainingUsage)
	assert.Equal(t, july, c.LastResetDate)
}

func TestResetIfNewPeriodTreatsSameMonthNextYearAsNew(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	q, s := newQuota(t, 5, now)
	ctx := context.Background()

	require.NoError(t, s.ResetCounter(ctx, "u1", 5, now.AddDate(-1, 0, 0)))
	_, err := q.Increment(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, q.ResetIfNewPeriod(ctx, "u1"))
	c, err := s.GetCounter(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.MonthlyUsage)
	assert.Equal(t, now, c.LastResetDate)
}

func TestRemaining(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	q, _ := newQuota(t, 3, now)
	ctx := context.Background()

	left, err := q.Remaining(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, left)

	require.NoError(t, q.ResetIfNewPeriod(ctx, "u1"))
	left, err = q.Remaining(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, left)
}
