package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Generation defaults for advice prompts.
const (
	DefaultMaxTokens   = 512
	DefaultTemperature = 0.2
	DefaultTopP        = 0.9
	DefaultTimeout     = 60 * time.Second
)

// ErrNotConfigured is returned by Complete when no endpoint is set.
var ErrNotConfigured = errors.New("llm endpoint not configured")

// CompletionRequest is the body posted to the completion endpoint.
type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop,omitempty"`
}

// CompletionResponse is the subset of an OpenAI-style completion response
// the client reads.
type CompletionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// LLMClient is the interface for all AI-assisted operations.
// Implementations are optional; scans complete without one.
//
// The LLM must never:
//   - Control program flow
//   - Make AWS SDK calls
//   - See raw resource identifiers
//
// It only writes remediation advice for findings that already exist.
type LLMClient interface {
	// Complete returns the generated text for prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// Model is the model name recorded on stored advice.
	Model() string

	// IsAvailable returns true when the LLM backend is configured.
	// Use this to gate LLM calls and provide graceful degradation.
	IsAvailable(ctx context.Context) bool
}

// HTTPClient talks to a llama.cpp or OpenAI compatible /v1/completions
// endpoint.
type HTTPClient struct {
	endpoint  string
	model     string
	maxTokens int
	http      *http.Client
}

var _ LLMClient = (*HTTPClient)(nil)

// NewHTTPClient returns a client posting to endpoint. A zero timeout uses
// DefaultTimeout.
func NewHTTPClient(endpoint, model string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		endpoint:  strings.TrimSpace(endpoint),
		model:     model,
		maxTokens: DefaultMaxTokens,
		http:      &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model name.
func (c *HTTPClient) Model() string { return c.model }

// IsAvailable reports whether an endpoint is configured. It does not probe
// the backend; a dead backend surfaces as a Complete error.
func (c *HTTPClient) IsAvailable(context.Context) bool {
	return c != nil && c.endpoint != ""
}

// Complete posts prompt and returns the first choice's text, trimmed.
func (c *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	if !c.IsAvailable(ctx) {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(CompletionRequest{
		Model:       c.model,
		Prompt:      prompt,
		MaxTokens:   c.maxTokens,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		Stop:        []string{"</s>"},
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("call completion endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return strings.TrimSpace(out.Choices[0].Text), nil
}
