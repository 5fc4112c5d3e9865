package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/deusflow/trendcurator/internal/model"
)

// updatableArticleColumns whitelists what a partial update may touch.
// The id is the identity and never changes.
var updatableArticleColumns = map[string]bool{
	"source":    true,
	"title":     true,
	"summary":   true,
	"body":      true,
	"keyword":   true,
	"url":       true,
	"published": true,
	"embedding": true,
}

// SaveArticle inserts the article, replacing any existing record with
// the same id.
func (s *Store) SaveArticle(ctx context.Context, a model.Article) error {
	emb, err := encodeVector(a.Embedding)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO articles
			(id, source, title, summary, body, keyword, url, published, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Source, a.Title, a.Summary, a.Body, a.Keyword, a.URL, a.Published.Unix(), emb)
	if err != nil {
		return fmt.Errorf("failed to save article %s: %w", a.ID, err)
	}
	return nil
}

// GetArticle returns the article with the given id or ErrNotFound.
func (s *Store) GetArticle(ctx context.Context, id string) (model.Article, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, title, summary, body, keyword, url, published, embedding
		FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return model.Article{}, ErrNotFound
	}
	return a, err
}

// ArticleExists reports whether an article with the id is stored.
func (s *Store) ArticleExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM articles WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check article %s: %w", id, err)
	}
	return true, nil
}

// UpdateArticle writes only the given fields, leaving every other
// column untouched. Unknown field names are rejected.
func (s *Store) UpdateArticle(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	set := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for col, val := range fields {
		if !updatableArticleColumns[col] {
			return fmt.Errorf("article column %q is not updatable", col)
		}
		switch v := val.(type) {
		case []float32:
			emb, err := encodeVector(v)
			if err != nil {
				return err
			}
			val = emb
		case time.Time:
			val = v.Unix()
		}
		set = append(set, col+" = ?")
		args = append(args, val)
	}
	args = append(args, id)

	query := "UPDATE articles SET "
	for i, clause := range set {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE id = ?"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update article %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ArticlesSince returns articles published at or after the cutoff,
// newest first.
func (s *Store) ArticlesSince(ctx context.Context, since time.Time) ([]model.Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, title, summary, body, keyword, url, published, embedding
		FROM articles WHERE published >= ? ORDER BY published DESC`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// ArticlesWithEmptyBody returns articles whose body was never filled,
// typically because scraping or cleaning failed on first contact.
func (s *Store) ArticlesWithEmptyBody(ctx context.Context) ([]model.Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, title, summary, body, keyword, url, published, embedding
		FROM articles WHERE body = ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query empty-body articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// ArticlesMissingEmbedding returns articles that have a body but no
// vector yet.
func (s *Store) ArticlesMissingEmbedding(ctx context.Context) ([]model.Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, title, summary, body, keyword, url, published, embedding
		FROM articles WHERE embedding = '' AND body != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unvectorized articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// NearestArticles returns the k stored articles closest to the query
// vector by Euclidean distance, nearest first. Articles without an
// embedding are skipped.
func (s *Store) NearestArticles(ctx context.Context, vec []float32, k int) ([]model.Article, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source, title, summary, body, keyword, url, published, embedding
		FROM articles WHERE embedding != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectorized articles: %w", err)
	}
	defer rows.Close()

	articles, err := scanArticles(rows)
	if err != nil {
		return nil, err
	}

	type scored struct {
		article  model.Article
		distance float64
	}
	candidates := make([]scored, 0, len(articles))
	for _, a := range articles {
		if len(a.Embedding) != len(vec) {
			continue
		}
		candidates = append(candidates, scored{a, euclidean(vec, a.Embedding)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	nearest := make([]model.Article, 0, k)
	for _, c := range candidates[:k] {
		nearest = append(nearest, c.article)
	}
	return nearest, nil
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (model.Article, error) {
	var a model.Article
	var published int64
	var emb string
	err := row.Scan(&a.ID, &a.Source, &a.Title, &a.Summary, &a.Body, &a.Keyword, &a.URL, &published, &emb)
	if err != nil {
		return model.Article{}, err
	}
	a.Published = time.Unix(published, 0).UTC()
	a.Embedding, err = decodeVector(emb)
	if err != nil {
		return model.Article{}, err
	}
	return a, nil
}

func scanArticles(rows *sql.Rows) ([]model.Article, error) {
	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}
