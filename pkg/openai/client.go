// Package openai wraps the chat completion API with a bounded retry policy.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"

	"github.com/forsocials/replyriser-backend/pkg/config"
	"github.com/forsocials/replyriser-backend/pkg/logger"
	"github.com/forsocials/replyriser-backend/pkg/metrics"
)

const defaultModel = "gpt-4o-mini"

// Completion is a successful provider response. Raw holds the provider's
// response body byte for byte.
type Completion struct {
	ID       string
	Model    string
	Raw      json.RawMessage
	Attempts int
}

type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req sdk.ChatCompletionRequest) (sdk.ChatCompletionResponse, error)
}

// Client issues chat completions for reply generation.
type Client struct {
	api          chatAPI
	model        string
	systemPrompt string
	policy       RetryPolicy
	metrics      *metrics.ProviderMetrics
	logg         *logger.Logger
}

// NewClient builds a provider client from configuration.
func NewClient(cfg config.OpenAIConfig, providerMetrics *metrics.ProviderMetrics, logg *logger.Logger) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}

	sdkCfg := sdk.DefaultConfig(key)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		sdkCfg.BaseURL = strings.TrimRight(base, "/")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	sdkCfg.HTTPClient = &http.Client{Timeout: timeout, Transport: captureTransport{next: http.DefaultTransport}}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	prompt := strings.TrimSpace(cfg.SystemPrompt)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}

	return &Client{
		api:          sdk.NewClientWithConfig(sdkCfg),
		model:        model,
		systemPrompt: prompt,
		policy:       DefaultRetryPolicy(cfg.MaxAttempts, cfg.RetryBaseDelay),
		metrics:      providerMetrics,
		logg:         logg,
	}, nil
}

// WithRetryPolicy returns a copy of the client using policy.
func (c *Client) WithRetryPolicy(policy RetryPolicy) *Client {
	clone := *c
	clone.policy = policy
	return &clone
}

// Complete sends the blocks to the provider, retrying per the client policy.
// Non-retryable failures are returned after the first attempt.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	chatReq, err := c.chatRequest(req)
	if err != nil {
		return nil, err
	}

	var (
		resp     sdk.ChatCompletionResponse
		raw      []byte
		attempts int
		wait     time.Duration
	)
	err = retry.Do(ctx, c.policy.backoff(&wait), func(ctx context.Context) error {
		attempts++
		slot := &rawBody{}
		out, callErr := c.api.CreateChatCompletion(withRawBody(ctx, slot), chatReq)
		if callErr == nil {
			c.metrics.IncAttempt("success")
			resp = out
			raw = slot.data
			return nil
		}
		if c.policy.retryable(callErr) {
			c.metrics.IncAttempt("rate_limited")
			fields := map[string]any{"attempt": attempts, "max_attempts": c.policy.attempts()}
			if attempts < c.policy.attempts() {
				wait = c.policy.delayAfter(attempts)
				fields["delay_ms"] = wait.Milliseconds()
			}
			c.logg.Warn(c.logg.WithFields(ctx, fields), "ai.provider.retryable_failure")
			return retry.RetryableError(callErr)
		}
		c.metrics.IncAttempt("error")
		return callErr
	})
	if err != nil {
		if IsRateLimited(err) {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRateLimited, attempts, err)
		}
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	// Transports other than captureTransport leave the slot empty.
	if len(raw) == 0 {
		if raw, err = json.Marshal(resp); err != nil {
			return nil, fmt.Errorf("encode completion: %w", err)
		}
	}
	return &Completion{ID: resp.ID, Model: resp.Model, Raw: raw, Attempts: attempts}, nil
}
