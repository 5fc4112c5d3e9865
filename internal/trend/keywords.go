package trend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/deusflow/trendcurator/internal/gemini"
)

var relatedKeywordsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"keywords": {
			Type:  genai.TypeArray,
			Items: &genai.Schema{Type: genai.TypeString},
		},
	},
	Required: []string{"keywords"},
}

// relatedKeywords expands the seed into n more specific search
// keywords, steering clear of queries already used in earlier cycles.
func relatedKeywords(ctx context.Context, llm generator, seed string, priorQueries []string, n int, language string) ([]string, error) {
	lines := []string{
		fmt.Sprintf("Generate exactly %d search keywords related to the seed keyword below.", n),
		"- Each keyword must be more specific than the seed, naming a concrete tool, product or event",
		"- Keywords must be suitable for finding pages about current developments",
		"- Do not repeat the seed itself",
	}
	if language != "" {
		lines = append(lines, fmt.Sprintf("- Write the keywords in the '%s' language; keep proper nouns in their official spelling", language))
	}
	if len(priorQueries) > 0 {
		lines = append(lines,
			"- Avoid these already used queries:",
			"  "+strings.Join(priorQueries, ", "))
	}
	lines = append(lines, "", "[seed]\n"+seed)

	out, err := llm.GenerateJSON(ctx, strings.Join(lines, "\n"), relatedKeywordsSchema)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse related keywords: %w: %v", gemini.ErrUnparsable, err)
	}
	if len(parsed.Keywords) == 0 {
		return nil, fmt.Errorf("parse related keywords: empty list: %w", gemini.ErrUnparsable)
	}
	if len(parsed.Keywords) > n {
		parsed.Keywords = parsed.Keywords[:n]
	}
	return parsed.Keywords, nil
}
