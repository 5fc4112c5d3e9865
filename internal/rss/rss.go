// Package rss parses configured feeds into candidate articles.
package rss

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/trendcurator/internal/model"
)

// Source is one configured feed.
type Source struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// SourcesConfig is the YAML config structure
// sources:
//   - name: ...
//     url: https://...
type SourcesConfig struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the feed list from a YAML file.
func LoadSources(path string) ([]Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg SourcesConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return cfg.Sources, nil
}

// Ingester turns feeds into bounded article lists.
type Ingester struct {
	parser     *gofeed.Parser
	maxEntries int
}

func NewIngester(maxEntries int) *Ingester {
	if maxEntries <= 0 {
		maxEntries = 10
	}
	return &Ingester{parser: gofeed.NewParser(), maxEntries: maxEntries}
}

// FetchArticles parses one feed and returns at most maxEntries
// candidate articles in feed order. Bodies and keywords are left empty
// here; the uploader backfills them.
func (i *Ingester) FetchArticles(feedURL, source string) ([]model.Article, error) {
	feed, err := i.parser.ParseURL(feedURL)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	articles := make([]model.Article, 0, i.maxEntries)
	for _, item := range feed.Items {
		if len(articles) >= i.maxEntries {
			break
		}
		if item.Link == "" {
			continue
		}

		published := time.Now()
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}

		articles = append(articles, model.Article{
			ID:        model.ArticleID(item.Link),
			Source:    source,
			Title:     item.Title,
			Summary:   item.Description,
			URL:       item.Link,
			Published: published,
		})
	}
	return articles, nil
}

// FetchAll parses every source, isolating failures: a feed that cannot
// be parsed is logged and contributes zero articles for this run.
func (i *Ingester) FetchAll(sources []Source) map[string][]model.Article {
	bySource := make(map[string][]model.Article, len(sources))
	for _, src := range sources {
		articles, err := i.FetchArticles(src.URL, src.Name)
		if err != nil {
			log.Printf("rss: failed to fetch articles for source %q: %v", src.Name, err)
			continue
		}
		bySource[src.Name] = articles
		log.Printf("rss: loaded %d articles from %q", len(articles), src.Name)
	}
	return bySource
}
