package trend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/deusflow/trendcurator/internal/gemini"
	"github.com/deusflow/trendcurator/internal/search"
)

const maxRelatedURLs = 5

var trendTopicSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"selected_topic": {Type: genai.TypeString},
		"related_urls": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
		"keywords": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"selected_topic", "related_urls", "keywords"},
}

// Selection is the outcome of one topic extraction call.
type Selection struct {
	SelectedTopic string   `json:"selected_topic"`
	RelatedURLs   []string `json:"related_urls"`
	Keywords      []string `json:"keywords"`
}

// filterCandidates drops every search hit whose title contains an
// excluded keyword. The comparison is case-insensitive. This runs
// before the model ever sees the pool, so an instruction-ignoring model
// cannot resurface an excluded subject.
func filterCandidates(results []search.Result, excluded []string) []search.Result {
	if len(excluded) == 0 {
		return results
	}
	lowered := make([]string, 0, len(excluded))
	for _, kw := range excluded {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}

	kept := make([]search.Result, 0, len(results))
	for _, r := range results {
		title := strings.ToLower(r.Title)
		blocked := false
		for _, kw := range lowered {
			if strings.Contains(title, kw) {
				blocked = true
				break
			}
		}
		if !blocked {
			kept = append(kept, r)
		}
	}
	return kept
}

// selectTopic asks the model to pick the single most noteworthy topic
// from the candidate pool. The returned topic is re-checked against the
// exclusion set; a model that picked an excluded subject anyway yields
// ErrNoTopic.
func selectTopic(ctx context.Context, llm generator, candidates []search.Result, seed string, excluded []string, language string) (Selection, error) {
	var pool strings.Builder
	for _, r := range candidates {
		pool.WriteString("- " + r.Title + " | " + r.URL + "\n")
	}

	lines := []string{
		"From the candidate pages below, select the single most noteworthy current topic related to the seed keyword.",
		"- Prefer topics named by a proper noun (a specific tool, product, release or event)",
		"- Prefer topics that appear across multiple sources",
		"- Exclude tutorials, how-to guides and listicles",
		"- Return up to 5 related_urls: the candidate URLs covering the selected topic",
		"- Return keywords: the proper nouns that identify the selected topic",
	}
	if language != "" {
		lines = append(lines, fmt.Sprintf("- The output language is '%s'; keep proper nouns in their official spelling", language))
	}
	if len(excluded) > 0 {
		lines = append(lines,
			"- You must not select any of these excluded topics or anything synonymous with them:",
			"  "+strings.Join(excluded, ", "))
	}
	lines = append(lines, "", "[seed]\n"+seed, "[candidates]\n"+pool.String())

	out, err := llm.GenerateJSON(ctx, strings.Join(lines, "\n"), trendTopicSchema)
	if err != nil {
		return Selection{}, err
	}

	var sel Selection
	if err := json.Unmarshal(out, &sel); err != nil {
		return Selection{}, fmt.Errorf("parse topic selection: %w: %v", gemini.ErrUnparsable, err)
	}
	if sel.SelectedTopic == "" {
		return Selection{}, fmt.Errorf("parse topic selection: empty selected_topic: %w", gemini.ErrUnparsable)
	}
	if len(sel.RelatedURLs) > maxRelatedURLs {
		sel.RelatedURLs = sel.RelatedURLs[:maxRelatedURLs]
	}

	chosen := normalizeTopic(sel.SelectedTopic)
	for _, kw := range excluded {
		if normalizeTopic(kw) == chosen {
			return Selection{}, fmt.Errorf("model selected excluded topic %q: %w", sel.SelectedTopic, ErrNoTopic)
		}
	}
	return sel, nil
}

func normalizeTopic(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
