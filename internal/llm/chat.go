package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"postforge/internal/core"
	"postforge/internal/logger"
)

// ChatClient is an OpenAI-compatible chat-completions backend with key
// rotation. Auth and rate-limit rejections rotate to the next key with
// exponential backoff; other failures are returned immediately.
type ChatClient struct {
	baseURL    string
	model      string
	keys       *KeyStore
	httpClient *http.Client
	sleep      func(context.Context, time.Duration) error
}

// ChatOption customizes a ChatClient.
type ChatOption func(*ChatClient)

// WithChatHTTPClient swaps the underlying HTTP client (used in tests).
func WithChatHTTPClient(hc *http.Client) ChatOption {
	return func(c *ChatClient) { c.httpClient = hc }
}

// WithChatSleep replaces the backoff sleep (used in tests).
func WithChatSleep(fn func(context.Context, time.Duration) error) ChatOption {
	return func(c *ChatClient) { c.sleep = fn }
}

// NewChatClient creates a chat-completions client over the given key store.
func NewChatClient(baseURL, model string, keys *KeyStore, timeout time.Duration, opts ...ChatOption) *ChatClient {
	c := &ChatClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		keys:       keys,
		httpClient: &http.Client{Timeout: timeout},
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies this backend in logs and errors.
func (c *ChatClient) Name() string { return "chat" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Message struct {
		Content   string `json:"content"`
		Reasoning string `json:"reasoning"`
	} `json:"message"`
	Delta struct {
		Content   string `json:"content"`
		Reasoning string `json:"reasoning"`
	} `json:"delta"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Generate runs one chat completion, rotating keys on auth or rate-limit
// rejections. A rejected key stays out of rotation for the lifetime of the
// client, so later requests go straight to a key that still works. The
// attempt budget is twice the number of configured keys.
func (c *ChatClient) Generate(ctx context.Context, req core.GenerationRequest) (string, error) {
	log := logger.With("chat")

	maxAttempts := c.keys.Len() * 2
	for attempt := 0; attempt < maxAttempts; attempt++ {
		text, err := c.complete(ctx, req)
		if err == nil {
			return text, nil
		}

		if !isAuthRejection(err) {
			return "", err
		}

		log.Warn().Int("attempt", attempt+1).Err(err).Msg("key rejected, rotating")
		if !c.keys.MarkFailed() {
			return "", &AuthError{Backend: c.Name(), Err: fmt.Errorf("all %d keys failed", c.keys.Len())}
		}

		wait := rotationBackoff(attempt+1, c.keys.Len())
		if err := c.sleep(ctx, wait); err != nil {
			return "", &TransportError{Backend: c.Name(), Err: err}
		}
	}
	return "", &AuthError{Backend: c.Name(), Err: fmt.Errorf("all %d keys exhausted after %d attempts", c.keys.Len(), maxAttempts)}
}

func (c *ChatClient) complete(ctx context.Context, req core.GenerationRequest) (string, error) {
	model := c.model
	if req.ModelHint != "" {
		model = req.ModelHint
	}

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.keys.Current())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransportError{Backend: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &AuthError{Backend: c.Name(), Status: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(body)))}
	case http.StatusOK:
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &TransportError{Backend: c.Name(), Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncateForLog(string(body)))}
	}

	if req.Stream {
		return c.collectStream(resp.Body)
	}
	return c.parseComplete(resp.Body)
}

func (c *ChatClient) parseComplete(body io.Reader) (string, error) {
	var parsed chatResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return "", &TransportError{Backend: c.Name(), Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	msg := parsed.Choices[0].Message
	text := msg.Content
	if strings.TrimSpace(text) == "" {
		// Some models put the entire answer in the reasoning field and
		// leave content blank.
		text = msg.Reasoning
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// collectStream accumulates SSE "data:" chunks into the final text.
func (c *ChatClient) collectStream(body io.Reader) (string, error) {
	var content, reasoning strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content.WriteString(chunk.Choices[0].Delta.Content)
		reasoning.WriteString(chunk.Choices[0].Delta.Reasoning)
	}
	if err := scanner.Err(); err != nil {
		return "", &TransportError{Backend: c.Name(), Err: fmt.Errorf("reading stream: %w", err)}
	}

	text := content.String()
	if strings.TrimSpace(text) == "" {
		text = reasoning.String()
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// isAuthRejection reports whether an error should trigger key rotation.
func isAuthRejection(err error) bool {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"too_many_requests", "unauthorized", "forbidden", "rate limit"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// rotationBackoff grows once per full pass through the key ring, capped
// at 30 seconds.
func rotationBackoff(attempts, keyCount int) time.Duration {
	if keyCount < 1 {
		keyCount = 1
	}
	secs := math.Min(math.Pow(2, float64(attempts/keyCount)), 30)
	return time.Duration(secs * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
