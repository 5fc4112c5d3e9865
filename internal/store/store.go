// Package store persists articles, news, topics and usage counters in
// SQLite. All conversion between typed records and raw rows happens
// here; nothing above this package sees column names or JSON blobs.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id              TEXT PRIMARY KEY,
	source          TEXT NOT NULL DEFAULT '',
	title           TEXT NOT NULL DEFAULT '',
	summary         TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	keyword         TEXT NOT NULL DEFAULT '',
	url             TEXT NOT NULL DEFAULT '',
	published       INTEGER NOT NULL DEFAULT 0,
	embedding       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published);

CREATE TABLE IF NOT EXISTS news (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	content         TEXT NOT NULL,
	sample_question TEXT NOT NULL DEFAULT '',
	keyword         TEXT NOT NULL DEFAULT '',
	language_code   TEXT NOT NULL DEFAULT '',
	published       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_news_published ON news(published);

CREATE TABLE IF NOT EXISTS topics (
	user_id          TEXT PRIMARY KEY,
	raw_topic        TEXT NOT NULL DEFAULT '',
	topic            TEXT NOT NULL DEFAULT '',
	language_code    TEXT NOT NULL DEFAULT '',
	region_code      TEXT NOT NULL DEFAULT '',
	exclude_keywords TEXT NOT NULL DEFAULT '[]',
	exclude_queries  TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS usage_counters (
	user_id         TEXT PRIMARY KEY,
	monthly_usage   INTEGER NOT NULL DEFAULT 0,
	remaining_usage INTEGER NOT NULL,
	last_reset_date INTEGER NOT NULL
);
`

// Store is the single handle to the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes writes per connection; a single
	// connection avoids SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func encodeVector(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("failed to encode embedding: %w", err)
	}
	return string(raw), nil
}

func decodeVector(raw string) ([]float32, error) {
	if raw == "" {
		return nil, nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	return vec, nil
}

func encodeStrings(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode string list: %w", err)
	}
	return string(raw), nil
}

func decodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("failed to decode string list: %w", err)
	}
	return list, nil
}
