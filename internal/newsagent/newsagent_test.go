package newsagent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/trendcurator/internal/cleaner"
	"github.com/deusflow/trendcurator/internal/model"
	"github.com/deusflow/trendcurator/internal/search"
)

type scriptedClient struct {
	responses []openai.ChatCompletionResponse
	requests  []openai.ChatCompletionRequest
}

func (c *scriptedClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return openai.ChatCompletionResponse{}, nil
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

func assistantText(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
	}}}
}

func assistantToolCall(name, args string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{
		Message: openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{{
				ID:       "call-1",
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: name, Arguments: args},
			}},
		},
	}}}
}

type memNewsStore struct {
	recent []string
	saved  []model.News
}

func (m *memNewsStore) SaveNews(_ context.Context, n model.News) error {
	m.saved = append(m.saved, n)
	return nil
}

func (m *memNewsStore) RecentKeywords(_ context.Context, _ time.Time, _ string) ([]string, error) {
	return m.recent, nil
}

type memArticles struct {
	articles map[string]model.Article
}

func newMemArticles() *memArticles {
	return &memArticles{articles: map[string]model.Article{}}
}

func (m *memArticles) NearestArticles(_ context.Context, _ []float32, k int) ([]model.Article, error) {
	var out []model.Article
	for _, a := range m.articles {
		if len(a.Embedding) == 0 {
			continue
		}
		out = append(out, a)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (m *memArticles) ArticleExists(_ context.Context, id string) (bool, error) {
	_, ok := m.articles[id]
	return ok, nil
}

func (m *memArticles) SaveArticle(_ context.Context, a model.Article) error {
	m.articles[a.ID] = a
	return nil
}

func (m *memArticles) GetArticle(_ context.Context, id string) (model.Article, error) {
	return m.articles[id], nil
}

func (m *memArticles) ArticlesSince(_ context.Context, since time.Time) ([]model.Article, error) {
	var out []model.Article
	for _, a := range m.articles {
		if !a.Published.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fixedSearcher struct{}

func (fixedSearcher) BulkSearch(_ context.Context, _ string, _ int) ([]search.Result, error) {
	return []search.Result{{Title: "Widget 2.0 released", URL: "https://e.test/widget"}}, nil
}

type fixedFetcher struct{}

func (fixedFetcher) Fetch(_ context.Context, _ string) string {
	return "raw page text"
}

type fixedCleaner struct{}

func (fixedCleaner) LLMCleanText(_ context.Context, raw, _ string) (cleaner.Result, error) {
	return cleaner.Result{CleanText: "clean: " + raw, Keyword: "Widget"}, nil
}

func testToolbox() *Toolbox {
	return NewToolbox(fixedEmbedder{}, newMemArticles(), fixedSearcher{}, fixedFetcher{}, fixedCleaner{})
}

func TestRunCompletesThroughToolRound(t *testing.T) {
	client := &scriptedClient{responses: []openai.ChatCompletionResponse{
		assistantToolCall(toolTitleURLList, `{"keyword":"widget"}`),
		assistantText(`{"news_content":"Widget 2.0 is out.","sample_question":"What changed in Widget 2.0?","keyword":"Widget"}`),
	}}
	store := &memNewsStore{recent: []string{"Copilot"}}

	agent := New(client, "gpt-test", store, testToolbox(), "en")
	news, err := agent.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Widget 2.0 is out.", news.Content)
	assert.Equal(t, "What changed in Widget 2.0?", news.SampleQuestion)
	assert.Equal(t, "Widget", news.Keyword)
	assert.Equal(t, "en", news.LanguageCode)
	assert.NotEmpty(t, news.ID)
	require.Len(t, store.saved, 1)

	// Second request must carry the tool result back to the model.
	require.Len(t, client.requests, 2)
	last := client.requests[1].Messages[len(client.requests[1].Messages)-1]
	assert.Equal(t, openai.ChatMessageRoleTool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
	assert.Contains(t, last.Content, "Widget 2.0 released | https://e.test/widget")

	// The system prompt names the excluded keyword.
	assert.Contains(t, client.requests[0].Messages[0].Content, "Copilot")
}

func TestRunOffersRecentLeads(t *testing.T) {
	articles := newMemArticles()
	articles.articles["a1"] = model.Article{ID: "a1", Title: "Widget 2.0 released", Published: time.Now()}
	tb := NewToolbox(fixedEmbedder{}, articles, fixedSearcher{}, fixedFetcher{}, fixedCleaner{})

	client := &scriptedClient{responses: []openai.ChatCompletionResponse{
		assistantText(`{"news_content":"x","sample_question":"y","keyword":"Widget"}`),
	}}
	agent := New(client, "gpt-test", &memNewsStore{}, tb, "en")
	_, err := agent.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, client.requests[0].Messages[1].Content, "Widget 2.0 released")
}

func TestRunFailsWhenModelNeverConverges(t *testing.T) {
	var responses []openai.ChatCompletionResponse
	for i := 0; i < 20; i++ {
		responses = append(responses, assistantToolCall(toolTitleURLList, `{"keyword":"widget"}`))
	}
	client := &scriptedClient{responses: responses}
	store := &memNewsStore{}

	agent := New(client, "gpt-test", store, testToolbox(), "en", WithMaxRounds(6))
	_, err := agent.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Empty(t, store.saved)
}

func TestRunFailsOnUnusableFinalAnswer(t *testing.T) {
	client := &scriptedClient{responses: []openai.ChatCompletionResponse{
		assistantText("sorry, here is some prose instead of JSON"),
	}}
	store := &memNewsStore{}

	agent := New(client, "gpt-test", store, testToolbox(), "en")
	_, err := agent.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Empty(t, store.saved)
}

func TestDispatchUnknownTool(t *testing.T) {
	agent := New(&scriptedClient{}, "gpt-test", &memNewsStore{}, testToolbox(), "en")
	got := agent.dispatch(context.Background(), openai.ToolCall{
		Function: openai.FunctionCall{Name: "no_such_tool", Arguments: "{}"},
	})
	assert.Contains(t, got, "unknown tool")
}

func TestFetchArticleToolStoresAndReuses(t *testing.T) {
	articles := newMemArticles()
	tb := NewToolbox(fixedEmbedder{}, articles, fixedSearcher{}, fixedFetcher{}, fixedCleaner{})
	ctx := context.Background()

	args, _ := json.Marshal(map[string]string{"title": "Widget 2.0", "url": "https://e.test/widget?utm=x"})
	got, err := tb.fetchArticle(ctx, args)
	require.NoError(t, err)
	assert.Equal(t, "clean: raw page text", got)

	id := model.ArticleID("https://e.test/widget")
	stored, ok := articles.articles[id]
	require.True(t, ok)
	assert.Equal(t, "Widget", stored.Keyword)
	assert.Equal(t, []float32{1, 0}, stored.Embedding)

	// A second call hits the stored copy.
	again, err := tb.fetchArticle(ctx, args)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestVectorSearchToolFormatsResults(t *testing.T) {
	articles := newMemArticles()
	articles.articles["a1"] = model.Article{
		ID: "a1", Title: "Widget 2.0 released", URL: "https://e.test/widget",
		Summary: "Scheduler rewrite.", Body: "Full body.", Embedding: []float32{1, 0},
	}
	tb := NewToolbox(fixedEmbedder{}, articles, fixedSearcher{}, fixedFetcher{}, fixedCleaner{})

	got, err := tb.vectorSearch(context.Background(), json.RawMessage(`{"query":"widget"}`))
	require.NoError(t, err)
	assert.Contains(t, got, "Widget 2.0 released")
	assert.Contains(t, got, "Scheduler rewrite.")
	assert.Contains(t, got, "Full body.")
}
