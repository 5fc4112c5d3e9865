package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/deusflow/trendcurator/internal/model"
)

// GetCounter returns the user's usage counter or ErrNotFound.
func (s *Store) GetCounter(ctx context.Context, userID string) (model.UsageCounter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, monthly_usage, remaining_usage, last_reset_date
		FROM usage_counters WHERE user_id = ?`, userID)

	var c model.UsageCounter
	var reset int64
	err := row.Scan(&c.UserID, &c.MonthlyUsage, &c.RemainingUsage, &reset)
	if err == sql.ErrNoRows {
		return model.UsageCounter{}, ErrNotFound
	}
	if err != nil {
		return model.UsageCounter{}, fmt.Errorf("failed to get counter for %s: %w", userID, err)
	}
	c.LastResetDate = time.Unix(reset, 0).UTC()
	return c, nil
}

// ResetCounter sets the user's counter to a fresh monthly budget,
// creating the row if it does not exist.
func (s *Store) ResetCounter(ctx context.Context, userID string, limit int, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO usage_counters (user_id, monthly_usage, remaining_usage, last_reset_date)
		VALUES (?, 0, ?, ?)`, userID, limit, now.Unix())
	if err != nil {
		return fmt.Errorf("failed to reset counter for %s: %w", userID, err)
	}
	return nil
}

// IncrementUsage consumes one unit of the user's budget. The guard in
// the UPDATE makes check-and-decrement a single atomic statement, so
// two concurrent cycles cannot both spend the last unit. Returns false
// when the budget is already exhausted or the counter does not exist;
// in that case nothing is mutated.
func (s *Store) IncrementUsage(ctx context.Context, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE usage_counters
		SET monthly_usage = monthly_usage + 1, remaining_usage = remaining_usage - 1
		WHERE user_id = ? AND remaining_usage > 0`, userID)
	if err != nil {
		return false, fmt.Errorf("failed to increment usage for %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
