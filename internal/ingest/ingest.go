// Package ingest uploads feed articles into the store, interleaving
// sources round-robin so no single feed dominates the front of the
// dataset.
package ingest

import (
	"context"
	"log"

	"github.com/deusflow/trendcurator/internal/cleaner"
	"github.com/deusflow/trendcurator/internal/metrics"
	"github.com/deusflow/trendcurator/internal/model"
	"github.com/deusflow/trendcurator/internal/rss"
)

type articleStore interface {
	ArticleExists(ctx context.Context, id string) (bool, error)
	SaveArticle(ctx context.Context, a model.Article) error
	UpdateArticle(ctx context.Context, id string, fields map[string]any) error
	ArticlesWithEmptyBody(ctx context.Context) ([]model.Article, error)
	ArticlesMissingEmbedding(ctx context.Context) ([]model.Article, error)
}

type pageFetcher interface {
	Fetch(ctx context.Context, url string) string
}

type textCleaner interface {
	LLMCleanText(ctx context.Context, raw, title string) (cleaner.Result, error)
	Summarize(ctx context.Context, title, content string) (string, error)
}

type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type feedReader interface {
	FetchAll(sources []rss.Source) map[string][]model.Article
}

// Uploader drives the ingest cycle.
type Uploader struct {
	feeds    feedReader
	sources  []rss.Source
	store    articleStore
	fetcher  pageFetcher
	cleaner  textCleaner
	embedder embedder
}

func NewUploader(feeds feedReader, sources []rss.Source, store articleStore, fetcher pageFetcher, cleaner textCleaner, embedder embedder) *Uploader {
	return &Uploader{
		feeds:    feeds,
		sources:  sources,
		store:    store,
		fetcher:  fetcher,
		cleaner:  cleaner,
		embedder: embedder,
	}
}

// BulkUpload fetches every configured feed and uploads new articles,
// taking one article per source per round. Within a source articles
// keep feed order; across sources they interleave. A round in which
// every source was exhausted or duplicated ends the loop. Returns the
// number of new uploads.
func (u *Uploader) BulkUpload(ctx context.Context) (int, error) {
	bySource := u.feeds.FetchAll(u.sources)

	cursors := make(map[string]int, len(u.sources))
	uploaded := 0

	for {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}

		progressed := false
		for _, src := range u.sources {
			articles := bySource[src.Name]
			// Advance this source to its next unseen article.
			for cursors[src.Name] < len(articles) {
				a := articles[cursors[src.Name]]
				cursors[src.Name]++

				exists, err := u.store.ArticleExists(ctx, a.ID)
				if err != nil {
					log.Printf("ingest: exists check failed for %s: %v", a.ID, err)
					continue
				}
				if exists {
					metrics.Global.IncrementDuplicatesSkipped()
					continue
				}

				if err := u.uploadOne(ctx, a); err != nil {
					log.Printf("ingest: failed to upload %s (%s): %v", a.ID, a.URL, err)
					continue
				}
				uploaded++
				progressed = true
				break
			}
		}
		if !progressed {
			return uploaded, nil
		}
	}
}

// uploadOne scrapes, cleans and saves a single article. A body that
// cannot be scraped or cleaned is stored empty so the backfill pass can
// retry later; the save itself still counts as an upload.
func (u *Uploader) uploadOne(ctx context.Context, a model.Article) error {
	raw := u.fetcher.Fetch(ctx, a.URL)
	if raw != "" {
		res, err := u.cleaner.LLMCleanText(ctx, raw, a.Title)
		if err != nil {
			metrics.Global.IncrementCleanFailures()
			log.Printf("ingest: clean failed for %s: %v", a.URL, err)
		} else {
			a.Body = res.CleanText
			a.Keyword = res.Keyword
		}
	}

	if a.Body != "" && u.embedder != nil {
		vec, err := u.embedder.Embed(ctx, a.Title+"\n"+a.Body)
		if err != nil {
			log.Printf("ingest: embed failed for %s: %v", a.ID, err)
		} else {
			a.Embedding = vec
			metrics.Global.IncrementEmbeddingsComputed()
		}
	}

	if err := u.store.SaveArticle(ctx, a); err != nil {
		return err
	}
	metrics.Global.IncrementArticlesIngested()
	return nil
}

// BackfillEmpty retries scraping for articles saved with an empty body
// and computes embeddings for articles that have a body but no vector.
// Only the repaired fields are written.
func (u *Uploader) BackfillEmpty(ctx context.Context) error {
	empty, err := u.store.ArticlesWithEmptyBody(ctx)
	if err != nil {
		return err
	}
	for _, a := range empty {
		raw := u.fetcher.Fetch(ctx, a.URL)
		if raw == "" {
			continue
		}
		res, err := u.cleaner.LLMCleanText(ctx, raw, a.Title)
		if err != nil {
			metrics.Global.IncrementCleanFailures()
			log.Printf("ingest: backfill clean failed for %s: %v", a.URL, err)
			continue
		}
		fields := map[string]any{"body": res.CleanText, "keyword": res.Keyword}
		if a.Summary == "" {
			if sum, err := u.cleaner.Summarize(ctx, a.Title, res.CleanText); err == nil {
				fields["summary"] = sum
			} else {
				log.Printf("ingest: backfill summary failed for %s: %v", a.ID, err)
			}
		}
		if err := u.store.UpdateArticle(ctx, a.ID, fields); err != nil {
			log.Printf("ingest: backfill update failed for %s: %v", a.ID, err)
		}
	}

	if u.embedder == nil {
		return nil
	}
	missing, err := u.store.ArticlesMissingEmbedding(ctx)
	if err != nil {
		return err
	}
	for _, a := range missing {
		vec, err := u.embedder.Embed(ctx, a.Title+"\n"+a.Body)
		if err != nil {
			log.Printf("ingest: backfill embed failed for %s: %v", a.ID, err)
			continue
		}
		if err := u.store.UpdateArticle(ctx, a.ID, map[string]any{"embedding": vec}); err != nil {
			log.Printf("ingest: backfill update failed for %s: %v", a.ID, err)
			continue
		}
		metrics.Global.IncrementEmbeddingsComputed()
	}

	metrics.Global.SetLastRun()
	return nil
}
