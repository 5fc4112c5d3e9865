// Package fetcher downloads a page and extracts its readable text.
package fetcher

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/deusflow/trendcurator/internal/cache"
	"github.com/deusflow/trendcurator/internal/metrics"
)

// Some hosts reject default Go user agents outright.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

const maxBodyBytes = 2 << 20 // 2 MiB cap on downloaded HTML

type Fetcher struct {
	client   *http.Client
	delay    time.Duration
	cache    *cache.Cache
	cacheTTL time.Duration
}

// New creates a fetcher with a fixed per-request timeout. delay is the
// courtesy pause applied after each network fetch, so loops hitting
// many URLs spread their requests out. pages may be nil to disable
// caching.
func New(timeout, delay time.Duration, pages *cache.Cache, cacheTTL time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		delay:    delay,
		cache:    pages,
		cacheTTL: cacheTTL,
	}
}

// Fetch returns the visible text of the page at rawURL. Any failure,
// whether a network error, a non-2xx status or unparseable HTML, yields
// an empty string. Callers must treat "" as "content unavailable", not
// as an error to propagate.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if f.cache != nil {
		if text, ok := f.cache.Get(rawURL); ok {
			return text
		}
	}

	text := f.fetch(ctx, rawURL)
	if text == "" {
		metrics.Global.IncrementFetchFailures()
	} else if f.cache != nil {
		f.cache.Set(rawURL, text, f.cacheTTL)
	}

	if f.delay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(f.delay):
		}
	}
	return text
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		log.Printf("fetch: bad URL %s: %v", rawURL, err)
		return ""
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		log.Printf("fetch: request failed for %s: %v", rawURL, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("fetch: HTTP %d for %s", resp.StatusCode, rawURL)
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		log.Printf("fetch: read failed for %s: %v", rawURL, err)
		return ""
	}

	pageURL, _ := url.Parse(rawURL)
	if text := extractReadable(body, pageURL); text != "" {
		return text
	}
	return extractParagraphs(body)
}

// extractReadable runs the readability extractor, which handles most
// article layouts.
func extractReadable(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(strings.NewReader(string(body)), pageURL)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.TextContent)
}

// extractParagraphs is the fallback for pages readability gives up on:
// join the text of every <p> node, same as the generic selector walk.
func extractParagraphs(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}

	var paragraphs []string
	doc.Find("p").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) > 10 {
			paragraphs = append(paragraphs, text)
		}
	})
	return strings.Join(paragraphs, "\n\n")
}
