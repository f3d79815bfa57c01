// Package classifier grades abstracts with an OpenAI chat model.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/okian/leadrank/internal/adapters/ratelimit"
	"github.com/okian/leadrank/internal/domain/enrichment"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o-mini"

// DefaultPrompt asks for a single-word verdict.
const DefaultPrompt = `You are an expert in drug discovery and toxicology.

Classify whether the following scientific abstract is relevant to:
- 3D in-vitro models
- organ-on-chip systems
- preclinical safety assessment or toxicology

Respond with ONLY one word:
HIGH
MEDIUM
LOW`

// ErrMissingAPIKey is returned by NewOpenAI without credentials.
var ErrMissingAPIKey = errors.New("classifier: missing OpenAI API key")

// Config configures the OpenAI classifier.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Prompt     string
	HTTPClient *http.Client
}

// OpenAI implements enrichment.Classifier. Retries are left to the caller's
// rate-limited client, so the SDK's own retries are disabled.
type OpenAI struct {
	client openai.Client
	model  string
	prompt string
}

// NewOpenAI builds the classifier.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	return &OpenAI{client: openai.NewClient(opts...), model: cfg.Model, prompt: cfg.Prompt}, nil
}

// Classify returns the model's verdict for text. Answers other than the three
// levels come back as enrichment.Unrecognized without error.
func (c *OpenAI) Classify(ctx context.Context, text string) (enrichment.Relevance, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(c.prompt),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return enrichment.Unrecognized, classifyError(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return enrichment.Unrecognized, nil
	}
	return enrichment.ParseRelevance(resp.Choices[0].Message.Content), nil
}

func classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		wrapped := fmt.Errorf("classifier: status %d: %w", code, err)
		if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500 {
			return ratelimit.Transient(wrapped)
		}
		return wrapped
	}
	return ratelimit.Transient(fmt.Errorf("classifier: %w", err))
}
