package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/FinanGammell/pare/pkg/apperr"
	"github.com/FinanGammell/pare/pkg/httputil"
	"github.com/FinanGammell/pare/pkg/resilience"
)

const DefaultModel = "gpt-4o-mini"

// Client is a thin wrapper over the OpenAI chat API guarded by a circuit breaker.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	cb          *gobreaker.CircuitBreaker
}

type ClientConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	// BaseURL overrides the API endpoint (proxies, tests).
	BaseURL string
	// Workers sizes the connection pool to the classifier's concurrency.
	Workers int
}

func NewClient(cfg ClientConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = httputil.NewClient(httputil.OpenAIClientConfig(cfg.Workers))

	breaker := resilience.DefaultBreakerConfig("openai")
	breaker.IsSuccessful = func(err error) bool {
		// caller cancellations say nothing about the API's health
		return err == nil || errors.Is(err, context.Canceled)
	}

	return &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       model,
		maxTokens:   maxTokens,
		temperature: float32(temperature),
		cb:          resilience.NewBreaker(breaker),
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Completion is one JSON chat completion with its token usage.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// CompleteJSON asks the model for a JSON object response.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	resp, err := resilience.Execute(c.cb, func() (openai.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			MaxTokens:   c.maxTokens,
			Temperature: c.temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		})
	})
	if err != nil {
		return nil, wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, apperr.TransportError("openai", errors.New("response has no choices"))
	}

	return &Completion{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func wrapError(err error) error {
	if resilience.IsOpen(err) {
		return apperr.TransportError("openai", fmt.Errorf("circuit open: %w", err))
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apperr.TransportError("openai", fmt.Errorf("status %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
	}
	return apperr.TransportError("openai", err)
}
