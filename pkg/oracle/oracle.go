// Package oracle abstracts the language model behind a single generate call.
// The rest of the pipeline never sees transport details; it hands over a
// prompt and gets text back.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyResponse is returned when the model replies with no content.
var ErrEmptyResponse = errors.New("oracle returned no content")

// Oracle produces text for a prompt. Implementations must be safe for
// sequential reuse across units.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const systemPrompt = "You are an expert systems programmer translating C and C++ " +
	"code to idiomatic, safe Rust. Answer with exactly the requested format and " +
	"nothing else."

// Config selects the model endpoint.
type Config struct {
	APIKey  string
	BaseURL string // empty means the default OpenAI endpoint
	Model   string
}

// Client is the OpenAI-backed Oracle.
type Client struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// NewClient creates an Oracle client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("oracle API key not configured")
	}

	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}

	return &Client{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logger,
	}, nil
}

// Generate sends one prompt and returns the model's reply.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	c.logger.Debug("invoking oracle", "model", c.model, "prompt_bytes", len(prompt))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("oracle call failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateWithRetry calls Generate up to attempts times, backing off between
// failures. Context cancellation stops the retry loop immediately.
func GenerateWithRetry(ctx context.Context, o Oracle, prompt string, attempts int, logger *slog.Logger) (string, error) {
	if attempts < 1 {
		attempts = 1
	}

	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := o.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}

		lastErr = err
		logger.Warn("oracle attempt failed", "attempt", attempt, "of", attempts, "error", err)

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}

	return "", fmt.Errorf("oracle failed after %d attempts: %w", attempts, lastErr)
}
