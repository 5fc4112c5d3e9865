// Package model holds the typed records shared across the pipeline.
// Raw storage maps are converted to and from these types at the store
// boundary only.
package model

import (
	"strings"
	"time"
)

// Article is an ingested piece of content. Body, Keyword and Embedding
// are backfilled asynchronously after the initial save, so partial
// updates against the store must never clobber sibling fields.
type Article struct {
	ID        string
	Source    string
	Title     string
	Summary   string
	Body      string
	Keyword   string
	URL       string
	Published time.Time
	Embedding []float32 // nil until vectorized
}

// News is the persisted artifact of one successful selection and
// generation cycle. Append-only: records are never mutated after
// creation and form the exclusion history for future cycles.
type News struct {
	ID             string
	UserID         string
	Content        string
	SampleQuestion string
	Keyword        string
	LanguageCode   string
	Published      time.Time
}

// Topic is the per-user working state of the selection loop. The
// exclude lists accumulate across cycles so the same subject is not
// reselected in the near term.
type Topic struct {
	UserID          string
	RawTopic        string
	Topic           string
	LanguageCode    string
	RegionCode      string
	ExcludeKeywords []string
	ExcludeQueries  []string
}

// Locale returns the BCP-47 style locale string for the topic.
func (t Topic) Locale() string {
	if t.RegionCode == "" {
		return t.LanguageCode
	}
	return t.LanguageCode + "-" + t.RegionCode
}

// UsageCounter tracks per-user monthly generation budget. Mutated only
// through the quota subsystem.
type UsageCounter struct {
	UserID         string
	MonthlyUsage   int
	RemainingUsage int
	LastResetDate  time.Time
}

// CleanURL strips the query string so that tracking parameters do not
// produce distinct ids for the same page.
func CleanURL(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	return url
}

// ArticleID derives a document id from a URL. It is a pure function:
// the same URL always yields the same id, which is what makes ingestion
// idempotent. Scheme and query string are dropped, every byte outside
// [a-zA-Z0-9-] becomes an underscore.
func ArticleID(url string) string {
	url = CleanURL(url)
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimSuffix(url, "/")

	var b strings.Builder
	b.Grow(len(url))
	for _, r := range url {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
