// Package search queries Google Programmable Search for recent pages.
package search

import (
	"context"
	"fmt"
	"log"

	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/deusflow/trendcurator/internal/ratelimit"
)

const providerName = "search"

// dateRestrict limits results to the last two weeks. Older pages are
// useless for trend detection.
const dateRestrict = "w2"

// bulkModifiers fan one query out into angles that surface different
// kinds of pages for the same subject.
var bulkModifiers = []string{"", "release", "announcement", "site:github.com", "site:dev.to"}

// Result is one search hit.
type Result struct {
	Title string
	URL   string
}

type Client struct {
	svc     *customsearch.Service
	cseID   string
	limiter *ratelimit.Limiter
}

func NewClient(ctx context.Context, apiKey, cseID string, limiter *ratelimit.Limiter) (*Client, error) {
	svc, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create search client: %w", err)
	}
	return &Client{svc: svc, cseID: cseID, limiter: limiter}, nil
}

// Search runs one query restricted to recent pages and returns up to
// num results.
func (c *Client) Search(ctx context.Context, query string, num int) ([]Result, error) {
	if c.limiter != nil {
		if err := c.limiter.Use(providerName); err != nil {
			return nil, err
		}
	}
	if num <= 0 || num > 10 {
		num = 10
	}

	res, err := c.svc.Cse.List().Context(ctx).
		Q(query).
		Cx(c.cseID).
		DateRestrict(dateRestrict).
		Num(int64(num)).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to search %q: %w", query, err)
	}

	results := make([]Result, 0, len(res.Items))
	for _, item := range res.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, Result{Title: item.Title, URL: item.Link})
	}
	return results, nil
}

// BulkSearch runs the query through every modifier and returns the
// union of hits, deduplicated by URL. A failing variant is logged and
// skipped so one quota error does not empty the whole candidate pool.
func (c *Client) BulkSearch(ctx context.Context, query string, perQuery int) ([]Result, error) {
	seen := make(map[string]bool)
	var all []Result

	for _, mod := range bulkModifiers {
		q := query
		if mod != "" {
			q = query + " " + mod
		}
		results, err := c.Search(ctx, q, perQuery)
		if err != nil {
			log.Printf("search: variant %q failed: %v", q, err)
			continue
		}
		for _, r := range results {
			if seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			all = append(all, r)
		}
	}

	if len(all) == 0 {
		return nil, fmt.Errorf("no search results for %q", query)
	}
	return all, nil
}
