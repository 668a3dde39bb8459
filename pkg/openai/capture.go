package openai

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

type rawBodyKey struct{}

// rawBody receives the undecoded body of a successful provider response.
type rawBody struct {
	data []byte
}

func withRawBody(ctx context.Context, slot *rawBody) context.Context {
	return context.WithValue(ctx, rawBodyKey{}, slot)
}

// captureTransport copies 2xx response bodies into the rawBody slot found on
// the request context, then hands the SDK an identical reader.
type captureTransport struct {
	next http.RoundTripper
}

func (t captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	resp, err := next.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	slot, ok := req.Context().Value(rawBodyKey{}).(*rawBody)
	if !ok || slot == nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}

	data, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, readErr
	}
	slot.data = data
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}
