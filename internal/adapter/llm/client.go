// Package llm provides an HTTP client for OpenAI-compatible chat
// completion endpoints, used by LLM-backed critics.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/eleanor-project/eleanor/internal/resilience"
)

// Message is one chat message in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the request body for a chat completion.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client talks to an OpenAI-compatible chat completions API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a new completions client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Complete sends a chat completion request and returns the first choice's
// message content. Transient failures (network errors, 5xx) are retried
// with Fibonacci backoff; 4xx responses fail immediately.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	var result string
	call := func() error {
		b := retry.NewFibonacci(200 * time.Millisecond)
		return retry.Do(ctx, retry.WithMaxRetries(2, b), func(ctx context.Context) error {
			data, err := c.doRequest(ctx, body)
			if err != nil {
				return err
			}

			var resp completionResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				return fmt.Errorf("unmarshal completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			result = resp.Choices[0].Message.Content
			return nil
		})
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return "", err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return "", err
	}
	return result, nil
}

func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("http request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 500 {
		return nil, retry.RetryableError(fmt.Errorf("completions API error %d: %s", resp.StatusCode, string(data)))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("completions API error %d: %s", resp.StatusCode, string(data))
	}

	return data, nil
}
