package store

import (
	"context"
	"fmt"
	"time"

	"github.com/deusflow/trendcurator/internal/model"
)

// SaveNews appends a generated news record. News is append-only, so a
// duplicate id is an error rather than an upsert.
func (s *Store) SaveNews(ctx context.Context, n model.News) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO news (id, user_id, content, sample_question, keyword, language_code, published)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Content, n.SampleQuestion, n.Keyword, n.LanguageCode, n.Published.Unix())
	if err != nil {
		return fmt.Errorf("failed to save news %s: %w", n.ID, err)
	}
	return nil
}

// RecentKeywords returns the keywords of news published at or after the
// cutoff in the given language, newest first. Empty keywords are
// dropped.
func (s *Store) RecentKeywords(ctx context.Context, since time.Time, languageCode string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT keyword FROM news
		WHERE published >= ? AND language_code = ? AND keyword != ''
		ORDER BY published DESC`, since.Unix(), languageCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent keywords: %w", err)
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}
