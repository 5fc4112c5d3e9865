// Package gemini wraps the Gemini API behind two narrow operations:
// schema-constrained JSON generation and text embedding.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/trendcurator/internal/ratelimit"
	"github.com/deusflow/trendcurator/internal/retry"
)

// ErrUnparsable marks model output that violated the requested schema.
// Callers catch it at the unit-of-work boundary: skip the one article or
// abort the one cycle, never the whole batch.
var ErrUnparsable = errors.New("model output does not match schema")

const providerName = "gemini"

type Client struct {
	client         *genai.Client
	model          string
	embeddingModel string
	limiter        *ratelimit.Limiter
	retryCfg       retry.Config
}

func NewClient(ctx context.Context, apiKey, model, embeddingModel string, limiter *ratelimit.Limiter, retryCfg retry.Config) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		limiter:        limiter,
		retryCfg:       retryCfg,
	}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// GenerateJSON sends the prompt with a strict JSON response schema and
// returns the raw JSON bytes of the first candidate. Schema violations
// are the caller's concern; this layer only guarantees a non-empty
// response body.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Use(providerName); err != nil {
			return nil, err
		}
	}

	model := c.client.GenerativeModel(c.model)
	model.GenerationConfig.ResponseMIMEType = "application/json"
	model.GenerationConfig.ResponseSchema = schema

	var out []byte
	err := retry.Do(ctx, c.retryCfg, func() error {
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return fmt.Errorf("failed to generate content: %w", err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return fmt.Errorf("no response from Gemini")
		}
		text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
		if !ok || text == "" {
			return fmt.Errorf("non-text response from Gemini")
		}
		out = []byte(text)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Embed computes the fixed-dimension embedding vector for the text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Use(providerName); err != nil {
			return nil, err
		}
	}

	em := c.client.EmbeddingModel(c.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding from Gemini")
	}
	return res.Embedding.Values, nil
}
