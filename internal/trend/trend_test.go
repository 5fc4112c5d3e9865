package trend

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/trendcurator/internal/model"
	"github.com/deusflow/trendcurator/internal/search"
)

type fakeLLM struct {
	responses map[*genai.Schema]string
	prompts   []string
}

func (f *fakeLLM) GenerateJSON(_ context.Context, prompt string, schema *genai.Schema) ([]byte, error) {
	f.prompts = append(f.prompts, prompt)
	return []byte(f.responses[schema]), nil
}

type fakeSearcher struct {
	results map[string][]search.Result
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, _ int) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	return f.results[query], nil
}

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) string {
	return f.pages[url]
}

type fakeStore struct {
	topic      model.Topic
	recent     []string
	savedNews  []model.News
	appendedKw []string
	appendedQ  []string
}

func (f *fakeStore) GetTopic(_ context.Context, _ string) (model.Topic, error) {
	return f.topic, nil
}

func (f *fakeStore) SaveNews(_ context.Context, n model.News) error {
	f.savedNews = append(f.savedNews, n)
	return nil
}

func (f *fakeStore) AppendExclusions(_ context.Context, _ string, keywords, queries []string) error {
	f.appendedKw = append(f.appendedKw, keywords...)
	f.appendedQ = append(f.appendedQ, queries...)
	return nil
}

func (f *fakeStore) RecentKeywords(_ context.Context, _ time.Time, _ string) ([]string, error) {
	return f.recent, nil
}

type fakeQuota struct {
	allow      bool
	increments int
}

func (f *fakeQuota) ResetIfNewPeriod(_ context.Context, _ string) error {
	return nil
}

func (f *fakeQuota) Increment(_ context.Context, _ string) (bool, error) {
	f.increments++
	return f.allow, nil
}

func TestFilterCandidatesDropsExcludedTitles(t *testing.T) {
	results := []search.Result{
		{Title: "Copilot Workspace enters GA", URL: "u1"},
		{Title: "New scheduler lands in Kubernetes 1.33", URL: "u2"},
		{Title: "COPILOT pricing changes", URL: "u3"},
		{Title: "LlamaIndex 0.12 released", URL: "u4"},
	}

	kept := filterCandidates(results, []string{"Copilot", " kubernetes "})
	require.Len(t, kept, 1)
	assert.Equal(t, "u4", kept[0].URL)
}

func TestFilterCandidatesNoExclusions(t *testing.T) {
	results := []search.Result{{Title: "Anything", URL: "u1"}}
	assert.Equal(t, results, filterCandidates(results, nil))
}

func TestSelectTopicRejectsExcludedSelection(t *testing.T) {
	llm := &fakeLLM{responses: map[*genai.Schema]string{
		trendTopicSchema: `{"selected_topic":"  CoPilot ","related_urls":[],"keywords":[]}`,
	}}
	_, err := selectTopic(context.Background(), llm, []search.Result{{Title: "x", URL: "u"}}, "ai tools", []string{"copilot"}, "en")
	assert.ErrorIs(t, err, ErrNoTopic)
}

func newTestUpdater(llm *fakeLLM, s *fakeSearcher, st *fakeStore, q *fakeQuota) *Updater {
	u := NewUpdater(llm, s, &fakeFetcher{pages: map[string]string{
		"https://e.test/1": "Widget 2.0 ships a rewritten scheduler core.",
	}}, st, q, Options{})
	u.now = func() time.Time { return time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC) }
	return u
}

func TestUpdateHappyPath(t *testing.T) {
	llm := &fakeLLM{responses: map[*genai.Schema]string{
		relatedKeywordsSchema: `{"keywords":["Widget scheduler","Widget 2.0 release","Widget benchmarks"]}`,
		trendTopicSchema:      `{"selected_topic":"Widget 2.0","related_urls":["https://e.test/1"],"keywords":["Widget"]}`,
		manuscriptSchema:      `{"content":"Widget 2.0 is out with a rewritten scheduler core that cuts tail latency."}`,
	}}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"widget": {{Title: "Widget 2.0 released", URL: "https://e.test/1"}},
	}}
	st := &fakeStore{topic: model.Topic{UserID: "u1", Topic: "widget", LanguageCode: "en"}}
	q := &fakeQuota{allow: true}

	news, err := newTestUpdater(llm, searcher, st, q).Update(context.Background(), "u1")
	require.NoError(t, err)

	assert.NotEmpty(t, news.ID)
	assert.Equal(t, "u1", news.UserID)
	assert.Equal(t, "Widget 2.0", news.Keyword)
	assert.Equal(t, "en", news.LanguageCode)
	assert.LessOrEqual(t, len([]rune(news.Content)), 250)

	require.Len(t, st.savedNews, 1)
	assert.Contains(t, st.appendedKw, "Widget 2.0")
	assert.Contains(t, st.appendedKw, "Widget")
	assert.Contains(t, st.appendedQ, "widget")
	assert.Contains(t, st.appendedQ, "Widget scheduler")
	assert.Equal(t, 1, q.increments)

	// The seed and all three related keywords were searched.
	assert.Len(t, searcher.queries, 4)
}

func TestUpdatePromptsCarryLanguageCode(t *testing.T) {
	llm := &fakeLLM{responses: map[*genai.Schema]string{
		relatedKeywordsSchema: `{"keywords":["Widget スケジューラ","Widget 2.0 リリース","Widget ベンチマーク"]}`,
		trendTopicSchema:      `{"selected_topic":"Widget 2.0","related_urls":["https://e.test/1"],"keywords":["Widget"]}`,
		manuscriptSchema:      `{"content":"Widget 2.0が公開されました。"}`,
	}}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"widget": {{Title: "Widget 2.0 released", URL: "https://e.test/1"}},
	}}
	st := &fakeStore{topic: model.Topic{UserID: "u1", Topic: "widget", LanguageCode: "ja"}}

	_, err := newTestUpdater(llm, searcher, st, &fakeQuota{allow: true}).Update(context.Background(), "u1")
	require.NoError(t, err)

	// Keyword expansion, topic selection and the manuscript all state
	// the user's language.
	require.Len(t, llm.prompts, 3)
	for i, prompt := range llm.prompts {
		assert.Contains(t, prompt, "'ja'", "prompt %d lacks the language code", i)
	}
}

func TestGatherEvidenceBudgetIsPerArticle(t *testing.T) {
	long := strings.Repeat("あ", 60)
	u := NewUpdater(&fakeLLM{}, &fakeSearcher{}, &fakeFetcher{pages: map[string]string{
		"https://e.test/1": long,
		"https://e.test/2": long,
	}}, &fakeStore{}, &fakeQuota{}, Options{EvidenceLimit: 2, EvidenceCharBudget: 50})

	got := u.gatherEvidence(context.Background(), []string{"https://e.test/1", "https://e.test/2"})

	parts := strings.Split(got, "\n\n")
	require.Len(t, parts, 2)
	for _, part := range parts {
		assert.Equal(t, 50, len([]rune(part)))
	}
	assert.True(t, utf8.ValidString(got))
}

func TestUpdateQuotaExhausted(t *testing.T) {
	llm := &fakeLLM{responses: map[*genai.Schema]string{}}
	st := &fakeStore{topic: model.Topic{UserID: "u1", Topic: "widget", LanguageCode: "en"}}

	_, err := newTestUpdater(llm, &fakeSearcher{}, st, &fakeQuota{allow: false}).Update(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrQuotaExhausted)
	assert.Empty(t, st.savedNews)
	assert.Empty(t, llm.prompts)
}

func TestUpdateNoCandidatesAfterFiltering(t *testing.T) {
	llm := &fakeLLM{responses: map[*genai.Schema]string{
		relatedKeywordsSchema: `{"keywords":["a","b","c"]}`,
	}}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"widget": {{Title: "Everything about Copilot", URL: "u1"}},
	}}
	st := &fakeStore{
		topic:  model.Topic{UserID: "u1", Topic: "widget", LanguageCode: "en"},
		recent: []string{"Copilot"},
	}

	_, err := newTestUpdater(llm, searcher, st, &fakeQuota{allow: true}).Update(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNoTopic)
	assert.Empty(t, st.savedNews)
}

func TestClampManuscript(t *testing.T) {
	long := "First sentence. Second sentence."
	for len([]rune(long)) < 300 {
		long += " Filler sentence here."
	}
	got := clampManuscript(long, 250)
	assert.LessOrEqual(t, len([]rune(got)), 250)
	assert.True(t, got[len(got)-1] == '.')

	short := "Fits fine."
	assert.Equal(t, short, clampManuscript(short, 250))
}

func TestCorrectTopic(t *testing.T) {
	llm := &fakeLLM{responses: map[*genai.Schema]string{
		correctionSchema: `{"corrected":"Kubernetes"}`,
	}}
	got, err := CorrectTopic(context.Background(), llm, "ku bernetes")
	require.NoError(t, err)
	assert.Equal(t, "Kubernetes", got)
}

func TestExclusionWindowUsesTrailingDays(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	var gotSince time.Time
	w := NewExclusionWindow(recentFunc(func(_ context.Context, since time.Time, _ string) ([]string, error) {
		gotSince = since
		return []string{"Copilot"}, nil
	}), 7)
	w.now = func() time.Time { return now }

	kws, err := w.Keywords(context.Background(), "en")
	require.NoError(t, err)
	assert.Equal(t, []string{"Copilot"}, kws)
	assert.Equal(t, now.AddDate(0, 0, -7), gotSince)
}

type recentFunc func(ctx context.Context, since time.Time, languageCode string) ([]string, error)

func (f recentFunc) RecentKeywords(ctx context.Context, since time.Time, lang string) ([]string, error) {
	return f(ctx, since, lang)
}
