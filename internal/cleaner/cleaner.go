// Package cleaner normalizes scraped article text, deterministically or
// with LLM help.
package cleaner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/generative-ai-go/genai"

	"github.com/deusflow/trendcurator/internal/gemini"
)

var cleanTextSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"clean_text": {Type: genai.TypeString},
		"keyword":    {Type: genai.TypeString},
	},
	Required: []string{"clean_text", "keyword"},
}

var summarySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary": {Type: genai.TypeString},
	},
	Required: []string{"summary"},
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Result is the outcome of an LLM cleaning pass: the article body with
// boilerplate removed plus its single most central proper-noun keyword.
type Result struct {
	CleanText string `json:"clean_text"`
	Keyword   string `json:"keyword"`
}

type generator interface {
	GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) ([]byte, error)
}

type Cleaner struct {
	llm      generator
	maxInput int // rune budget for raw text sent to the model
}

func New(llm generator, maxInput int) *Cleaner {
	if maxInput <= 0 {
		maxInput = 3000
	}
	return &Cleaner{llm: llm, maxInput: maxInput}
}

// CleanText strips markup when the input looks like HTML, collapses
// whitespace runs and trims. Deterministic, no network.
func CleanText(raw string) string {
	if strings.Contains(raw, "<") && strings.Contains(raw, ">") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw)); err == nil {
			raw = doc.Text()
		}
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(raw, " "))
}

// LLMCleanText asks the model to remove navigation, ads and other
// scraping junk from raw text and to extract the single most central
// proper-noun keyword. Output that fails the schema is reported as an
// error wrapping gemini.ErrUnparsable so callers can skip the item.
func (c *Cleaner) LLMCleanText(ctx context.Context, raw, title string) (Result, error) {
	raw = truncateRunes(CleanText(raw), c.maxInput)

	prompt := strings.Join([]string{
		"Clean up the following scraped article text.",
		"- Remove leftover HTML, scripts, ad copy and page navigation",
		"- Drop anything unrelated to the title, keep only the article body",
		"- Remove line breaks and redundant spaces",
		"- Extract exactly one keyword: the most central proper noun (a tool or feature name)",
		"  - Good examples: 'Copilot GitHub', 'Cline VSCode', 'LlamaIndex'",
		"  - Bad examples: 'test automation', 'API integration', 'generative AI'",
		"- Return only the cleaned body, without repeating the title",
		"",
		"[title]\n" + title,
		"[raw_text]\n" + raw,
	}, "\n")

	out, err := c.llm.GenerateJSON(ctx, prompt, cleanTextSchema)
	if err != nil {
		return Result{}, err
	}

	var result Result
	if err := json.Unmarshal(out, &result); err != nil {
		return Result{}, fmt.Errorf("parse clean text response: %w: %v", gemini.ErrUnparsable, err)
	}
	if result.CleanText == "" {
		return Result{}, fmt.Errorf("parse clean text response: empty clean_text: %w", gemini.ErrUnparsable)
	}
	return result, nil
}

// Summarize produces a ~300 character summary of the article that keeps
// concrete names of tools, companies and terms.
func (c *Cleaner) Summarize(ctx context.Context, title, content string) (string, error) {
	content = truncateRunes(content, c.maxInput)

	prompt := strings.Join([]string{
		"Summarize the article below from its title and body.",
		"- Keep concrete details: tool names, company names, technical terms",
		"- Stay around 300 characters",
		"",
		"[title]\n" + title,
		"[content]\n" + content,
	}, "\n")

	out, err := c.llm.GenerateJSON(ctx, prompt, summarySchema)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return "", fmt.Errorf("parse summary response: %w: %v", gemini.ErrUnparsable, err)
	}
	return parsed.Summary, nil
}

// truncateRunes cuts on a rune boundary and tries to end at a sentence
// so the model does not see a word chopped in half.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	trimmed := string(runes[:max])
	if idx := strings.LastIndex(trimmed, ". "); idx > max/3 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed
}
