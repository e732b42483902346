package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"postforge/internal/core"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestChatClient(t *testing.T, srvURL, keys string) *ChatClient {
	t.Helper()
	ks, err := LoadKeyStore(writeKeysFile(t, keys), "")
	if err != nil {
		t.Fatal(err)
	}
	return NewChatClient(srvURL, "gpt-oss-120b", ks, 5*time.Second, WithChatSleep(noSleep))
}

func completionBody(content, reasoning string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content, "reasoning": reasoning}},
		},
	}
}

func TestChatGenerateRotatesOnUnauthorized(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		auth := r.Header.Get("Authorization")
		if n == 1 {
			if auth != "Bearer bad-key" {
				t.Errorf("first call auth = %q", auth)
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if auth != "Bearer good-key" {
			t.Errorf("second call auth = %q", auth)
		}
		json.NewEncoder(w).Encode(completionBody("rotated fine", ""))
	}))
	defer srv.Close()

	c := newTestChatClient(t, srv.URL, "bad-key\ngood-key\n")
	got, err := c.Generate(context.Background(), core.GenerationRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "rotated fine" {
		t.Errorf("got %q", got)
	}
}

func TestChatGenerateExhaustsKeys(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestChatClient(t, srv.URL, "a\nb\n")
	_, err := c.Generate(context.Background(), core.GenerationRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	var auth *AuthError
	if !errors.As(err, &auth) {
		t.Fatalf("error type = %T, want AuthError", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("calls = %d, each key gets exactly one try before exhaustion", n)
	}
}

func TestChatGenerateFailedKeysStayOut(t *testing.T) {
	var calls int32
	var badKeyCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if auth := r.Header.Get("Authorization"); auth != "Bearer k3" {
			atomic.AddInt32(&badKeyCalls, 1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(completionBody("ok", ""))
	}))
	defer srv.Close()

	c := newTestChatClient(t, srv.URL, "k1\nk2\nk3\n")

	// First request burns k1 and k2 before k3 answers.
	if _, err := c.Generate(context.Background(), core.GenerationRequest{Prompt: "x"}); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if n := atomic.LoadInt32(&badKeyCalls); n != 2 {
		t.Fatalf("bad-key calls after first request = %d, want 2", n)
	}

	// Later requests must go straight to k3; the rejected keys stay out
	// of rotation for the lifetime of the client.
	atomic.StoreInt32(&calls, 0)
	if _, err := c.Generate(context.Background(), core.GenerationRequest{Prompt: "x"}); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("second request made %d calls, want 1", n)
	}
	if n := atomic.LoadInt32(&badKeyCalls); n != 2 {
		t.Errorf("known-bad keys were retried, bad-key calls = %d, want 2", n)
	}
}

func TestChatGenerateNonAuthErrorImmediate(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestChatClient(t, srv.URL, "a\nb\n")
	_, err := c.Generate(context.Background(), core.GenerationRequest{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("error type = %T, want TransportError", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("calls = %d, server errors must not burn the key ring", n)
	}
}

func TestChatGenerateReasoningFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionBody("", "the whole answer lives here"))
	}))
	defer srv.Close()

	c := newTestChatClient(t, srv.URL, "a\n")
	got, err := c.Generate(context.Background(), core.GenerationRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "the whole answer lives here" {
		t.Errorf("got %q", got)
	}
}

func TestChatGenerateEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionBody("", ""))
	}))
	defer srv.Close()

	c := newTestChatClient(t, srv.URL, "a\n")
	_, err := c.Generate(context.Background(), core.GenerationRequest{Prompt: "x"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("error = %v, want ErrEmptyResponse", err)
	}
}

func TestChatGenerateStreamAccumulatesChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != true {
			t.Error("expected stream request")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"Hello", ", ", "world"} {
			chunk := map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": piece}}},
			}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestChatClient(t, srv.URL, "a\n")
	got, err := c.Generate(context.Background(), core.GenerationRequest{Prompt: "x", Stream: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Hello, world" {
		t.Errorf("got %q", got)
	}
}

func TestChatGenerateModelHintOverrides(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "other-model" {
			t.Errorf("model = %v, want override", req["model"])
		}
		json.NewEncoder(w).Encode(completionBody("ok", ""))
	}))
	defer srv.Close()

	c := newTestChatClient(t, srv.URL, "a\n")
	if _, err := c.Generate(context.Background(), core.GenerationRequest{Prompt: "x", ModelHint: "other-model"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRotationBackoffCaps(t *testing.T) {
	if got := rotationBackoff(1, 5); got != time.Second {
		t.Errorf("first pass backoff = %v, want 1s", got)
	}
	if got := rotationBackoff(100, 5); got != 30*time.Second {
		t.Errorf("late backoff = %v, want capped 30s", got)
	}
}
