package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/deusflow/trendcurator/internal/model"
)

// GetTopic returns the per-user topic state or ErrNotFound.
func (s *Store) GetTopic(ctx context.Context, userID string) (model.Topic, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, raw_topic, topic, language_code, region_code, exclude_keywords, exclude_queries
		FROM topics WHERE user_id = ?`, userID)

	var t model.Topic
	var kw, q string
	err := row.Scan(&t.UserID, &t.RawTopic, &t.Topic, &t.LanguageCode, &t.RegionCode, &kw, &q)
	if err == sql.ErrNoRows {
		return model.Topic{}, ErrNotFound
	}
	if err != nil {
		return model.Topic{}, fmt.Errorf("failed to get topic for %s: %w", userID, err)
	}
	if t.ExcludeKeywords, err = decodeStrings(kw); err != nil {
		return model.Topic{}, err
	}
	if t.ExcludeQueries, err = decodeStrings(q); err != nil {
		return model.Topic{}, err
	}
	return t, nil
}

// SaveTopic upserts the per-user topic state.
func (s *Store) SaveTopic(ctx context.Context, t model.Topic) error {
	kw, err := encodeStrings(t.ExcludeKeywords)
	if err != nil {
		return err
	}
	q, err := encodeStrings(t.ExcludeQueries)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO topics
			(user_id, raw_topic, topic, language_code, region_code, exclude_keywords, exclude_queries)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.RawTopic, t.Topic, t.LanguageCode, t.RegionCode, kw, q)
	if err != nil {
		return fmt.Errorf("failed to save topic for %s: %w", t.UserID, err)
	}
	return nil
}

// AppendExclusions merges new keywords and queries into the user's
// exclude lists inside one transaction, keeping entries unique and
// preserving insertion order.
func (s *Store) AppendExclusions(ctx context.Context, userID string, keywords, queries []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var rawKw, rawQ string
	err = tx.QueryRowContext(ctx,
		`SELECT exclude_keywords, exclude_queries FROM topics WHERE user_id = ?`, userID).
		Scan(&rawKw, &rawQ)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read exclusions for %s: %w", userID, err)
	}

	existingKw, err := decodeStrings(rawKw)
	if err != nil {
		return err
	}
	existingQ, err := decodeStrings(rawQ)
	if err != nil {
		return err
	}

	mergedKw, err := encodeStrings(mergeUnique(existingKw, keywords))
	if err != nil {
		return err
	}
	mergedQ, err := encodeStrings(mergeUnique(existingQ, queries))
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE topics SET exclude_keywords = ?, exclude_queries = ? WHERE user_id = ?`,
		mergedKw, mergedQ, userID)
	if err != nil {
		return fmt.Errorf("failed to write exclusions for %s: %w", userID, err)
	}
	return tx.Commit()
}

func mergeUnique(existing, additions []string) []string {
	seen := make(map[string]bool, len(existing)+len(additions))
	merged := make([]string, 0, len(existing)+len(additions))
	for _, lists := range [][]string{existing, additions} {
		for _, v := range lists {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			merged = append(merged, v)
		}
	}
	return merged
}
