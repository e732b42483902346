package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"postforge/internal/core"
	"postforge/internal/logger"
)

// RelayClient talks to the local text-relay service. The relay keeps its own
// browser session upstream, so besides generation it exposes a health probe
// and a context-rotation endpoint that resets the upstream conversation.
type RelayClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryWait  time.Duration
}

// RelayOption customizes a RelayClient.
type RelayOption func(*RelayClient)

// WithRelayRetries overrides the internal retry attempt count and wait.
func WithRelayRetries(attempts int, wait time.Duration) RelayOption {
	return func(c *RelayClient) {
		c.maxRetries = attempts
		c.retryWait = wait
	}
}

// WithRelayHTTPClient swaps the underlying HTTP client (used in tests).
func WithRelayHTTPClient(hc *http.Client) RelayOption {
	return func(c *RelayClient) { c.httpClient = hc }
}

// NewRelayClient creates a relay-backed generation client.
func NewRelayClient(baseURL string, timeout time.Duration, opts ...RelayOption) *RelayClient {
	c := &RelayClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: 3,
		retryWait:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies this backend in logs and errors.
func (c *RelayClient) Name() string { return "relay" }

type relayRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"systemPrompt,omitempty"`
	MaxTokens    int     `json:"maxTokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

type relayResponse struct {
	Response string `json:"response"`
	Answer   string `json:"answer"`
}

// Generate sends the prompt to the relay and returns the raw text. Transport
// failures are retried internally with a fixed wait; the last failure is
// returned wrapped as a TransportError.
func (c *RelayClient) Generate(ctx context.Context, req core.GenerationRequest) (string, error) {
	log := logger.With("relay")

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		text, err := c.ask(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		log.Warn().Int("attempt", attempt).Err(err).Msg("relay request failed")

		if attempt < c.maxRetries {
			select {
			case <-time.After(c.retryWait):
			case <-ctx.Done():
				return "", &TransportError{Backend: c.Name(), Err: ctx.Err()}
			}
		}
	}
	return "", &TransportError{Backend: c.Name(), Err: lastErr}
}

func (c *RelayClient) ask(ctx context.Context, req core.GenerationRequest) (string, error) {
	payload, err := json.Marshal(relayRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncateForLog(string(body)))
	}

	var parsed relayResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	// Older relay builds use "answer" instead of "response".
	text := parsed.Response
	if text == "" {
		text = parsed.Answer
	}
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// HealthCheck probes the relay's /health endpoint with a short deadline.
func (c *RelayClient) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// RotateContext asks the relay to reset its upstream conversation so the
// next prompt starts from a clean context window.
func (c *RelayClient) RotateContext(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rotate", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rotate request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rotate returned status %d", resp.StatusCode)
	}
	return nil
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
