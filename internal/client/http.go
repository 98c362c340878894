package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// maxErrorBody limits how much of an error response is read into the error text.
const maxErrorBody = 4 << 10

// restClient performs JSON requests against one downstream base URL.
type restClient struct {
	baseURL string
	http    *http.Client
	exec    *Executor
}

// newRestClient creates a restClient. A nil transport uses http.DefaultTransport.
// Outgoing requests carry New Relic distributed tracing headers when the
// request context holds a transaction.
func newRestClient(baseURL string, exec *Executor, transport http.RoundTripper) *restClient {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &restClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: newrelic.NewRoundTripper(transport)},
		exec:    exec,
	}
}

// do sends a request through the executor and decodes a JSON answer into out.
func (c *restClient) do(ctx context.Context, retryable bool, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	return c.exec.Do(ctx, retryable, func(ctx context.Context) error {
		return c.send(ctx, method, path, payload, out)
	})
}

func (c *restClient) send(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrServiceUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s returned %d", ErrServiceUnavailable, method, path, resp.StatusCode)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s", ErrNotFound, text)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", ErrServiceUnavailable, method, path, err)
	}
	return nil
}
