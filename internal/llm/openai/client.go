// Package openai implements the ingest.LLM capability against the OpenAI
// chat completions API. Calls are rate- and concurrency-limited here,
// independently of job concurrency, because generation is costly.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"golang.org/x/time/rate"

	"github.com/newsloom/ingestd/internal/ingest"
)

// Config controls the provider client.
type Config struct {
	APIKey            string
	Model             string
	RequestsPerMinute float64
	MaxConcurrent     int
}

// Client implements ingest.LLM.
type Client struct {
	client  openai.Client
	model   string
	limiter *rate.Limiter
	sem     chan struct{}
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60)
	}
	var sem chan struct{}
	if cfg.MaxConcurrent > 0 {
		sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return &Client{
		client:  openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:   cfg.Model,
		limiter: rate.NewLimiter(limit, 1),
		sem:     sem,
	}
}

// Complete sends a single-shot prompt and returns the text response.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, "", prompt)
}

// GenerateStructured asks for a JSON-only response and unmarshals it into
// out. A response that is not valid JSON is a generation failure, which
// callers may retry with a corrective turn.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, out any) error {
	content, err := c.complete(ctx,
		"You are a structured-data generator. Respond with a single JSON object and nothing else: no prose, no code fences.",
		prompt)
	if err != nil {
		return err
	}
	cleaned := stripFences(content)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return ingest.Errorf(ingest.KindGenerationFailure, "parse structured response: %v", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	defer c.release()

	// Waiting behind the limiter counts toward the caller's deadline.
	if err := c.limiter.Wait(ctx); err != nil {
		return "", ingest.Wrap(ingest.KindTransient, err)
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", ingest.Errorf(ingest.KindTransient, "provider returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) acquire(ctx context.Context) error {
	if c.sem == nil {
		return nil
	}
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ingest.Wrap(ingest.KindTransient, ctx.Err())
	}
}

func (c *Client) release() {
	if c.sem == nil {
		return
	}
	<-c.sem
}

// classify distinguishes provider rate limiting from other failures so the
// health tracker can apply the longer forced backoff.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return ingest.Wrap(ingest.KindRateLimited, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return ingest.Wrap(ingest.KindPermanentAccessDenied, err)
		}
	}
	return ingest.Wrap(ingest.KindTransient, err)
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
