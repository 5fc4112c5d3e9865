package trend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"

	"github.com/deusflow/trendcurator/internal/gemini"
)

var manuscriptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"content": {Type: genai.TypeString},
	},
	Required: []string{"content"},
}

// generateManuscript turns a topic plus supporting evidence into a
// short manuscript meant to be read aloud. The length ceiling is
// enforced after generation; a model that overruns is trimmed on a
// sentence boundary where possible.
func generateManuscript(ctx context.Context, llm generator, topic, evidence string, maxChars int, language string) (string, error) {
	lines := []string{
		fmt.Sprintf("Write a news manuscript about the topic below in at most %d characters.", maxChars),
		"- The text is read aloud: no URLs, no code, no parentheses or brackets",
		"- Lead with what happened, then one or two concrete specifics from the evidence",
		"- Use names of tools, versions and companies exactly as they appear in the evidence",
		"- Plain declarative sentences only",
	}
	if language != "" {
		lines = append(lines, fmt.Sprintf("- Write the manuscript in the '%s' language", language))
	}
	lines = append(lines,
		"",
		"[topic]\n"+topic,
		"[evidence]\n"+evidence,
	)
	prompt := strings.Join(lines, "\n")

	out, err := llm.GenerateJSON(ctx, prompt, manuscriptSchema)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return "", fmt.Errorf("parse manuscript: %w: %v", gemini.ErrUnparsable, err)
	}
	content := strings.TrimSpace(parsed.Content)
	if content == "" {
		return "", fmt.Errorf("parse manuscript: empty content: %w", gemini.ErrUnparsable)
	}
	return clampManuscript(content, maxChars), nil
}

func clampManuscript(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	trimmed := string(runes[:maxChars])
	for _, end := range []string{"。", ". ", "! ", "? "} {
		if idx := strings.LastIndex(trimmed, end); idx > 0 {
			return strings.TrimSpace(trimmed[:idx+len(end)])
		}
	}
	return trimmed
}
