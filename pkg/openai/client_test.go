package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	sdk "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forsocials/replyriser-backend/pkg/config"
	"github.com/forsocials/replyriser-backend/pkg/logger"
)

type scriptedAPI struct {
	errs     []error
	calls    int
	requests []sdk.ChatCompletionRequest
}

func (s *scriptedAPI) CreateChatCompletion(_ context.Context, req sdk.ChatCompletionRequest) (sdk.ChatCompletionResponse, error) {
	s.calls++
	s.requests = append(s.requests, req)
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return sdk.ChatCompletionResponse{}, s.errs[s.calls-1]
	}
	return sdk.ChatCompletionResponse{ID: "chatcmpl-1", Model: "gpt-4o-mini"}, nil
}

func rateLimited() error {
	return &sdk.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}
}

func newScriptedClient(api chatAPI, policy RetryPolicy) *Client {
	return &Client{
		api:          api,
		model:        defaultModel,
		systemPrompt: DefaultSystemPrompt,
		policy:       policy,
		logg:         logger.Nop(),
	}
}

var textOnly = CompletionRequest{Blocks: []Block{{Type: BlockTypeText, Text: "great post"}}}

func TestCompleteRetriesRateLimitsWithLinearDelay(t *testing.T) {
	api := &scriptedAPI{errs: []error{rateLimited(), rateLimited()}}
	var delays []time.Duration
	policy := RetryPolicy{
		MaxAttempts: 3,
		Delay: func(attempt int) time.Duration {
			d := LinearDelay(2 * time.Second)(attempt)
			delays = append(delays, d)
			return time.Millisecond
		},
		Retryable: IsRateLimited,
	}

	out, err := newScriptedClient(api, policy).Complete(context.Background(), textOnly)
	require.NoError(t, err)

	assert.Equal(t, 3, api.calls)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, delays)
	assert.Equal(t, "chatcmpl-1", out.ID)
	assert.True(t, json.Valid(out.Raw))
}

func TestCompleteGivesUpAfterMaxAttempts(t *testing.T) {
	api := &scriptedAPI{errs: []error{rateLimited(), rateLimited(), rateLimited(), rateLimited()}}
	policy := DefaultRetryPolicy(3, time.Millisecond)

	_, err := newScriptedClient(api, policy).Complete(context.Background(), textOnly)
	require.Error(t, err)

	assert.Equal(t, 3, api.calls)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.True(t, IsRateLimited(err))
}

func TestCompleteDoesNotRetryOtherFailures(t *testing.T) {
	boom := &sdk.APIError{HTTPStatusCode: http.StatusInternalServerError, Message: "boom"}
	api := &scriptedAPI{errs: []error{boom}}

	_, err := newScriptedClient(api, DefaultRetryPolicy(3, time.Millisecond)).Complete(context.Background(), textOnly)
	require.Error(t, err)

	assert.Equal(t, 1, api.calls)
	assert.NotErrorIs(t, err, ErrRateLimited)
	var apiErr *sdk.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestCompleteStopsWhenContextCanceled(t *testing.T) {
	api := &scriptedAPI{errs: []error{rateLimited(), rateLimited(), rateLimited()}}
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{
		MaxAttempts: 3,
		Delay: func(int) time.Duration {
			cancel()
			return time.Hour
		},
	}

	_, err := newScriptedClient(api, policy).Complete(ctx, textOnly)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, api.calls)
}

func TestCompleteBuildsMultiPartMessage(t *testing.T) {
	api := &scriptedAPI{}
	req := CompletionRequest{
		Blocks: []Block{
			{Type: BlockTypeText, Text: "look at this"},
			{Type: BlockTypeImageURL, URL: "https://img.example/a.png"},
			{Type: BlockTypeImageURL, ImageURL: &ImageRef{URL: "https://img.example/b.png"}},
		},
		User: "user-1",
	}

	_, err := newScriptedClient(api, DefaultRetryPolicy(1, 0)).Complete(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, api.requests, 1)
	sent := api.requests[0]
	assert.Equal(t, defaultModel, sent.Model)
	assert.Equal(t, "user-1", sent.User)
	require.Len(t, sent.Messages, 2)
	assert.Equal(t, sdk.ChatMessageRoleSystem, sent.Messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, sent.Messages[0].Content)

	parts := sent.Messages[1].MultiContent
	require.Len(t, parts, 3)
	assert.Equal(t, "look at this", parts[0].Text)
	assert.Equal(t, "https://img.example/a.png", parts[1].ImageURL.URL)
	assert.Equal(t, "https://img.example/b.png", parts[2].ImageURL.URL)
}

func TestCompleteRejectsInvalidBlocksWithoutCalling(t *testing.T) {
	api := &scriptedAPI{}
	client := newScriptedClient(api, DefaultRetryPolicy(3, 0))

	_, err := client.Complete(context.Background(), CompletionRequest{})
	assert.Error(t, err)
	_, err = client.Complete(context.Background(), CompletionRequest{Blocks: []Block{{Type: "video", URL: "x"}}})
	assert.Error(t, err)
	_, err = client.Complete(context.Background(), CompletionRequest{Blocks: []Block{{Type: BlockTypeImageURL}}})
	assert.Error(t, err)
	assert.Zero(t, api.calls)
}

func TestClientAgainstHTTPProvider(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"chatcmpl-xyz","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"Nice one"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	}))
	defer srv.Close()

	client, err := NewClient(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", MaxAttempts: 3}, nil, logger.Nop())
	require.NoError(t, err)
	client = client.WithRetryPolicy(DefaultRetryPolicy(3, time.Millisecond))

	out, err := client.Complete(context.Background(), textOnly)
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
	assert.Equal(t, "chatcmpl-xyz", out.ID)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Raw, &decoded))
	assert.Equal(t, "chatcmpl-xyz", decoded["id"])
	assert.NotEmpty(t, decoded["choices"])
}

func TestCompleteReturnsProviderBodyUnchanged(t *testing.T) {
	body := `{
		"id": "chatcmpl-raw",
		"object": "chat.completion",
		"created": 1718000000,
		"model": "gpt-4o-mini-2024-07-18",
		"service_tier": "default",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "Love this take", "refusal": null, "annotations": []},
			"logprobs": null,
			"finish_reason": "stop"
		}],
		"usage": {
			"prompt_tokens": 12,
			"completion_tokens": 4,
			"total_tokens": 16,
			"prompt_tokens_details": {"cached_tokens": 0, "audio_tokens": 0}
		}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client, err := NewClient(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, nil, logger.Nop())
	require.NoError(t, err)

	out, err := client.Complete(context.Background(), textOnly)
	require.NoError(t, err)

	require.JSONEq(t, body, string(out.Raw))
	assert.Equal(t, "chatcmpl-raw", out.ID)
	assert.Equal(t, "gpt-4o-mini-2024-07-18", out.Model)
}

func TestCaptureTransportLeavesErrorsAndUntaggedRequestsAlone(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()
	httpClient := &http.Client{Transport: captureTransport{}}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := httpClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	slot := &rawBody{}
	status = http.StatusTooManyRequests
	req, err = http.NewRequestWithContext(withRawBody(context.Background(), slot), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err = httpClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Empty(t, slot.data)

	status = http.StatusOK
	req, err = http.NewRequestWithContext(withRawBody(context.Background(), slot), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err = httpClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.JSONEq(t, `{"ok":true}`, string(slot.data))

	var decoded map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.True(t, decoded["ok"], "body must stay readable after capture")
}

func TestCompleteLogsRetryDelay(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: buf, Format: "json"})
	api := &scriptedAPI{errs: []error{rateLimited(), rateLimited(), rateLimited()}}
	policy := RetryPolicy{
		MaxAttempts: 3,
		Delay: func(attempt int) time.Duration {
			return time.Duration(attempt) * time.Millisecond
		},
		Retryable: IsRateLimited,
	}
	client := newScriptedClient(api, policy)
	client.logg = logg

	_, err := client.Complete(context.Background(), textOnly)
	require.Error(t, err)

	var delays []float64
	var lastHasDelay bool
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["message"] != "ai.provider.retryable_failure" {
			continue
		}
		d, ok := entry["delay_ms"].(float64)
		lastHasDelay = ok
		if ok {
			delays = append(delays, d)
		}
	}
	assert.Equal(t, []float64{1, 2}, delays)
	assert.False(t, lastHasDelay, "the final attempt is not followed by a wait")
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(config.OpenAIConfig{}, nil, logger.Nop())
	assert.Error(t, err)
}
