// Package trend selects a fresh trending topic per user and turns it
// into a short news manuscript, avoiding recently covered subjects.
package trend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"

	"github.com/deusflow/trendcurator/internal/cleaner"
	"github.com/deusflow/trendcurator/internal/metrics"
	"github.com/deusflow/trendcurator/internal/model"
	"github.com/deusflow/trendcurator/internal/search"
)

// ErrNoTopic means the cycle found nothing selectable: the candidate
// pool was empty after filtering, or the model picked an excluded
// subject. No news is written.
var ErrNoTopic = errors.New("no eligible topic")

// ErrQuotaExhausted means the user's monthly budget is spent.
var ErrQuotaExhausted = errors.New("monthly usage quota exhausted")

type generator interface {
	GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) ([]byte, error)
}

type searcher interface {
	Search(ctx context.Context, query string, num int) ([]search.Result, error)
}

type pageFetcher interface {
	Fetch(ctx context.Context, url string) string
}

type trendStore interface {
	GetTopic(ctx context.Context, userID string) (model.Topic, error)
	SaveNews(ctx context.Context, n model.News) error
	AppendExclusions(ctx context.Context, userID string, keywords, queries []string) error
	RecentKeywords(ctx context.Context, since time.Time, languageCode string) ([]string, error)
}

type quotaGate interface {
	ResetIfNewPeriod(ctx context.Context, userID string) error
	Increment(ctx context.Context, userID string) (bool, error)
}

// Options bound the work of one update cycle.
type Options struct {
	RelatedKeywords     int // extra queries derived from the seed
	SearchResults       int // hits requested per query
	EvidenceLimit       int // related URLs fetched for grounding
	EvidenceCharBudget  int // characters kept per evidence article
	ManuscriptMaxChars  int
	ExclusionWindowDays int
}

func (o *Options) applyDefaults() {
	if o.RelatedKeywords <= 0 {
		o.RelatedKeywords = 3
	}
	if o.SearchResults <= 0 {
		o.SearchResults = 10
	}
	if o.EvidenceLimit <= 0 {
		o.EvidenceLimit = 3
	}
	if o.EvidenceCharBudget <= 0 {
		o.EvidenceCharBudget = 3000
	}
	if o.ManuscriptMaxChars <= 0 {
		o.ManuscriptMaxChars = 250
	}
	if o.ExclusionWindowDays <= 0 {
		o.ExclusionWindowDays = 7
	}
}

// Updater runs the per-user selection cycle.
type Updater struct {
	llm     generator
	search  searcher
	fetcher pageFetcher
	store   trendStore
	quota   quotaGate
	window  *ExclusionWindow
	opts    Options
	now     func() time.Time
}

func NewUpdater(llm generator, search searcher, fetcher pageFetcher, store trendStore, quota quotaGate, opts Options) *Updater {
	opts.applyDefaults()
	return &Updater{
		llm:     llm,
		search:  search,
		fetcher: fetcher,
		store:   store,
		quota:   quota,
		window:  NewExclusionWindow(store, opts.ExclusionWindowDays),
		opts:    opts,
		now:     time.Now,
	}
}

// Update runs one full cycle for the user: quota gate, keyword
// expansion, multi-query search, filtered selection, evidence
// gathering, manuscript generation, persistence. Either a News record
// and its exclusion feedback are both written, or nothing is.
func (u *Updater) Update(ctx context.Context, userID string) (model.News, error) {
	start := u.now()

	topic, err := u.store.GetTopic(ctx, userID)
	if err != nil {
		return model.News{}, fmt.Errorf("load topic for %s: %w", userID, err)
	}
	seed := topic.Topic
	if seed == "" {
		seed = topic.RawTopic
	}
	if seed == "" {
		return model.News{}, fmt.Errorf("user %s has no topic configured", userID)
	}

	if err := u.quota.ResetIfNewPeriod(ctx, userID); err != nil {
		return model.News{}, err
	}
	ok, err := u.quota.Increment(ctx, userID)
	if err != nil {
		return model.News{}, err
	}
	if !ok {
		metrics.Global.IncrementQuotaRejections()
		return model.News{}, fmt.Errorf("user %s: %w", userID, ErrQuotaExhausted)
	}

	// Exclusions come from two places: the trailing news window and
	// the keywords fed back by earlier selections.
	recent, err := u.window.Keywords(ctx, topic.LanguageCode)
	if err != nil {
		return model.News{}, err
	}
	excluded := mergeExclusions(recent, topic.ExcludeKeywords)

	related, err := relatedKeywords(ctx, u.llm, seed, topic.ExcludeQueries, u.opts.RelatedKeywords, topic.LanguageCode)
	if err != nil {
		return model.News{}, fmt.Errorf("expand keywords for %s: %w", userID, err)
	}
	queries := append([]string{seed}, related...)

	pool := u.gatherCandidates(ctx, queries)
	candidates := filterCandidates(pool, excluded)
	if len(candidates) == 0 {
		metrics.Global.IncrementSelectionFailures()
		return model.News{}, fmt.Errorf("user %s: empty candidate pool: %w", userID, ErrNoTopic)
	}

	sel, err := selectTopic(ctx, u.llm, candidates, seed, excluded, topic.LanguageCode)
	if err != nil {
		if errors.Is(err, ErrNoTopic) {
			metrics.Global.IncrementSelectionFailures()
		}
		return model.News{}, err
	}
	metrics.Global.IncrementTopicsSelected()

	evidence := u.gatherEvidence(ctx, sel.RelatedURLs)
	content, err := generateManuscript(ctx, u.llm, sel.SelectedTopic, evidence, u.opts.ManuscriptMaxChars, topic.LanguageCode)
	if err != nil {
		return model.News{}, fmt.Errorf("generate manuscript for %s: %w", userID, err)
	}

	news := model.News{
		ID:           uuid.NewString(),
		UserID:       userID,
		Content:      content,
		Keyword:      sel.SelectedTopic,
		LanguageCode: topic.LanguageCode,
		Published:    u.now(),
	}
	if err := u.store.SaveNews(ctx, news); err != nil {
		return model.News{}, err
	}
	metrics.Global.IncrementNewsGenerated()

	feedback := append([]string{sel.SelectedTopic}, sel.Keywords...)
	if err := u.store.AppendExclusions(ctx, userID, feedback, queries); err != nil {
		// The news is already saved; the next window query still
		// covers the selected keyword, so log and keep the record.
		log.Printf("trend: failed to append exclusions for %s: %v", userID, err)
	}

	metrics.Global.RecordProcessingTime(u.now().Sub(start))
	metrics.Global.SetLastRun()
	return news, nil
}

// gatherCandidates unions the hits of every query, deduplicated by
// URL. A failing query is logged and skipped.
func (u *Updater) gatherCandidates(ctx context.Context, queries []string) []search.Result {
	seen := make(map[string]bool)
	var pool []search.Result
	for _, q := range queries {
		results, err := u.search.Search(ctx, q, u.opts.SearchResults)
		if err != nil {
			log.Printf("trend: search %q failed: %v", q, err)
			continue
		}
		for _, r := range results {
			if seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			pool = append(pool, r)
		}
	}
	return pool
}

// gatherEvidence fetches up to EvidenceLimit of the selected URLs and
// concatenates their cleaned text. The character budget applies per
// article, cut on a rune boundary.
func (u *Updater) gatherEvidence(ctx context.Context, urls []string) string {
	var parts []string
	for _, url := range urls {
		if len(parts) >= u.opts.EvidenceLimit {
			break
		}
		raw := u.fetcher.Fetch(ctx, url)
		if raw == "" {
			continue
		}
		text := cleaner.CleanText(raw)
		if utf8.RuneCountInString(text) > u.opts.EvidenceCharBudget {
			text = string([]rune(text)[:u.opts.EvidenceCharBudget])
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

func mergeExclusions(lists ...[]string) []string {
	seen := make(map[string]bool)
	var merged []string
	for _, list := range lists {
		for _, v := range list {
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			merged = append(merged, v)
		}
	}
	return merged
}
