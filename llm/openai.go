package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	maxAttempts    = 3
	baseRetryDelay = 2 * time.Second
)

// OpenAIClient implements Client over any OpenAI-compatible chat
// endpoint. All calls pass through the injected token bucket first.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAI creates the default client. The limiter may be shared
// across clients; pass nil to build one from the config rate limit.
func NewOpenAI(cfg Config, limiter *rate.Limiter) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	if limiter == nil {
		limiter = NewLimiter(cfg.RequestsPerMinute)
	}
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		limiter: limiter,
	}
}

// Complete performs one chat completion, retrying rate-limit and
// transient network errors with jittered exponential backoff.
func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
	}
	if req.Schema != nil {
		body.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt)
			slog.Warn("llm: retrying request",
				"model", c.model, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.client.CreateChatCompletion(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !retryable(err) {
				return nil, fmt.Errorf("llm request: %w", err)
			}
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no choices in response")
			continue
		}

		out := &CompletionResponse{
			Text:             resp.Choices[0].Message.Content,
			Model:            resp.Model,
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
		if req.Schema != nil {
			if obj, jerr := ExtractJSON(out.Text); jerr == nil {
				out.JSON = obj
			}
		}
		return out, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// backoffDelay returns the exponential delay for an attempt with jitter.
func backoffDelay(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<(attempt-1))
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	return delay + jitter
}

// retryable reports whether an error is a rate-limit or transient
// server failure worth another attempt. Non-API errors are treated as
// network-level and retried.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return true
}
