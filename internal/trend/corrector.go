package trend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/deusflow/trendcurator/internal/gemini"
)

var correctionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"corrected": {Type: genai.TypeString},
	},
	Required: []string{"corrected"},
}

// CorrectTopic canonicalizes noisy user input, usually voice
// transcription, into the standard spelling of a technical term.
// "ku bernetes" becomes "Kubernetes". Input that is already clean comes
// back unchanged.
func CorrectTopic(ctx context.Context, llm generator, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty topic input")
	}

	prompt := strings.Join([]string{
		"The input below is a technical topic transcribed from speech and may be misspelled or oddly segmented.",
		"- Return the standard spelling of the intended term",
		"- Keep official casing, for example Kubernetes, GitHub, LlamaIndex",
		"- If the input is already correct, return it unchanged",
		"",
		"[input]\n" + raw,
	}, "\n")

	out, err := llm.GenerateJSON(ctx, prompt, correctionSchema)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Corrected string `json:"corrected"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		return "", fmt.Errorf("parse topic correction: %w: %v", gemini.ErrUnparsable, err)
	}
	corrected := strings.TrimSpace(parsed.Corrected)
	if corrected == "" {
		return "", fmt.Errorf("parse topic correction: empty corrected: %w", gemini.ErrUnparsable)
	}
	return corrected, nil
}
