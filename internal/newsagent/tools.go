package newsagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/deusflow/trendcurator/internal/cleaner"
	"github.com/deusflow/trendcurator/internal/model"
	"github.com/deusflow/trendcurator/internal/search"
)

const (
	toolVectorSearch  = "vector_db_article_search"
	toolTitleURLList  = "get_article_title_url_list"
	toolFetchArticle  = "get_article_from_title_url"
	vectorSearchLimit = 5
	webSearchPerQuery = 5
)

type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type articleStore interface {
	NearestArticles(ctx context.Context, vec []float32, k int) ([]model.Article, error)
	ArticleExists(ctx context.Context, id string) (bool, error)
	SaveArticle(ctx context.Context, a model.Article) error
	GetArticle(ctx context.Context, id string) (model.Article, error)
	ArticlesSince(ctx context.Context, since time.Time) ([]model.Article, error)
}

type bulkSearcher interface {
	BulkSearch(ctx context.Context, query string, perQuery int) ([]search.Result, error)
}

type pageFetcher interface {
	Fetch(ctx context.Context, url string) string
}

type textCleaner interface {
	LLMCleanText(ctx context.Context, raw, title string) (cleaner.Result, error)
}

// Toolbox owns the research tools exposed to the model.
type Toolbox struct {
	embedder embedder
	articles articleStore
	searcher bulkSearcher
	fetcher  pageFetcher
	cleaner  textCleaner
	now      func() time.Time
}

func NewToolbox(embedder embedder, articles articleStore, searcher bulkSearcher, fetcher pageFetcher, cleaner textCleaner) *Toolbox {
	return &Toolbox{
		embedder: embedder,
		articles: articles,
		searcher: searcher,
		fetcher:  fetcher,
		cleaner:  cleaner,
		now:      time.Now,
	}
}

// RecentLeads lists the titles of recently ingested articles, newest
// first. The agent offers them to the model as starting points so runs
// on quiet news days still have something concrete to research.
func (t *Toolbox) RecentLeads(ctx context.Context, days, limit int) ([]string, error) {
	articles, err := t.articles.ArticlesSince(ctx, t.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	leads := make([]string, 0, len(articles))
	for _, a := range articles {
		leads = append(leads, a.Title)
	}
	return leads, nil
}

func (t *Toolbox) handlers() map[string]toolHandler {
	return map[string]toolHandler{
		toolVectorSearch: t.vectorSearch,
		toolTitleURLList: t.titleURLList,
		toolFetchArticle: t.fetchArticle,
	}
}

func (t *Toolbox) definitions() []openai.Tool {
	return []openai.Tool{
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolVectorSearch,
				Description: "Search stored articles by meaning. Returns the closest articles with the full text of the best match.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "What to look for, as a sentence or keyword",
						},
					},
					"required": []string{"query"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolTitleURLList,
				Description: "Search the web for recent pages about a keyword. Returns title and URL pairs.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"keyword": map[string]any{
							"type":        "string",
							"description": "Search keyword",
						},
					},
					"required": []string{"keyword"},
				},
			},
		},
		{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        toolFetchArticle,
				Description: "Fetch one web page, clean it into article text and store it. Returns the cleaned text.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title": map[string]any{"type": "string"},
						"url":   map[string]any{"type": "string"},
					},
					"required": []string{"title", "url"},
				},
			},
		},
	}
}

// vectorSearch embeds the query and returns the nearest stored
// articles: title and summary for each, full body for the best match.
func (t *Toolbox) vectorSearch(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.Query == "" {
		return "", fmt.Errorf("invalid arguments for %s: %v", toolVectorSearch, err)
	}

	vec, err := t.embedder.Embed(ctx, params.Query)
	if err != nil {
		return "", err
	}
	articles, err := t.articles.NearestArticles(ctx, vec, vectorSearchLimit)
	if err != nil {
		return "", err
	}
	if len(articles) == 0 {
		return "no stored articles matched", nil
	}

	var b strings.Builder
	for i, a := range articles {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, a.Title, a.URL)
		if a.Summary != "" {
			b.WriteString("   " + a.Summary + "\n")
		}
	}
	b.WriteString("\n[best match full text]\n" + articles[0].Body)
	return b.String(), nil
}

// titleURLList runs a bulk web search and lists the hits.
func (t *Toolbox) titleURLList(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Keyword string `json:"keyword"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.Keyword == "" {
		return "", fmt.Errorf("invalid arguments for %s: %v", toolTitleURLList, err)
	}

	results, err := t.searcher.BulkSearch(ctx, params.Keyword, webSearchPerQuery)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, r := range results {
		b.WriteString(r.Title + " | " + r.URL + "\n")
	}
	return b.String(), nil
}

// fetchArticle scrapes and cleans one page, stores it as an article if
// it is new, and returns the cleaned text. A stored copy is reused so
// the model asking twice costs one scrape.
func (t *Toolbox) fetchArticle(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := json.Unmarshal(args, &params); err != nil || params.URL == "" {
		return "", fmt.Errorf("invalid arguments for %s: %v", toolFetchArticle, err)
	}

	id := model.ArticleID(params.URL)
	exists, err := t.articles.ArticleExists(ctx, id)
	if err != nil {
		return "", err
	}
	if exists {
		stored, err := t.articles.GetArticle(ctx, id)
		if err == nil && stored.Body != "" {
			return stored.Body, nil
		}
	}

	raw := t.fetcher.Fetch(ctx, params.URL)
	if raw == "" {
		return "", fmt.Errorf("could not fetch %s", params.URL)
	}
	res, err := t.cleaner.LLMCleanText(ctx, raw, params.Title)
	if err != nil {
		return "", err
	}

	a := model.Article{
		ID:        id,
		Source:    "newsagent",
		Title:     params.Title,
		Body:      res.CleanText,
		Keyword:   res.Keyword,
		URL:       params.URL,
		Published: t.now(),
	}
	if t.embedder != nil {
		if vec, err := t.embedder.Embed(ctx, a.Title+"\n"+a.Body); err == nil {
			a.Embedding = vec
		}
	}
	if err := t.articles.SaveArticle(ctx, a); err != nil {
		return "", err
	}
	return res.CleanText, nil
}
