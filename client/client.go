package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AnswerDotAI/ai-jup/core"
)

// Options configures a Client.
type Options struct {
	// HTTPClient issues the request. Defaults to a client with no overall
	// timeout, since a prompt stream is long-lived.
	HTTPClient *http.Client
	// Token is sent as a bearer credential when non-empty.
	Token string
}

// Client submits prompt requests to a running server and pumps the response
// stream through a Consumer.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, optFns ...func(o *Options)) *Client {
	opts := Options{
		HTTPClient: &http.Client{Timeout: 0},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: opts.HTTPClient,
		token:      opts.Token,
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) func(o *Options) {
	return func(o *Options) { o.Token = token }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) func(o *Options) {
	return func(o *Options) { o.HTTPClient = hc }
}

// Prompt submits req and streams the response into renderer. It blocks until
// the stream terminates, the server closes the connection, or ctx is done.
// Cancelling ctx aborts the read cleanly and is not reported as an error.
// Pre-stream rejections are returned as *core.Error.
func (c *Client) Prompt(ctx context.Context, req core.PromptRequest, renderer Renderer) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/prompt", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("submit prompt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeErrorResponse(resp)
	}

	consumer := NewConsumer(renderer)
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 && consumer.Feed(buf[:n]) {
			return nil
		}
		if err != nil {
			consumer.Close()
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
	}
}

// Health reports whether the server answers its health probe.
func (c *Client) Health(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/api/v1/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health probe: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe: status %d", resp.StatusCode)
	}
	return nil
}

func decodeErrorResponse(resp *http.Response) error {
	var payload struct {
		Error *core.Error `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != nil {
		return payload.Error
	}
	return fmt.Errorf("prompt rejected: status %d", resp.StatusCode)
}
