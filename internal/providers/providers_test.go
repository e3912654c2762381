package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestGemini_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Error("missing API key in x-goog-api-key header")
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "system text" {
			t.Error("system instruction not forwarded")
		}

		resp := geminiResponse{
			Candidates: []geminiCandidate{
				{Content: geminiContent{Parts: []geminiPart{{Text: "generated text"}}}},
			},
			UsageMetadata: geminiUsage{TotalTokenCount: 75},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	g := &Gemini{
		apiKey:  "test-key",
		model:   "gemini-2.0-flash",
		baseURL: server.URL,
		client:  server.Client(),
	}

	resp, err := g.Generate(context.Background(), Request{
		System:    "system text",
		Prompt:    "user text",
		MaxTokens: 10,
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Content != "generated text" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.TokensUsed != 75 {
		t.Errorf("TokensUsed = %d, want 75", resp.TokensUsed)
	}
}

func TestGemini_AuthErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer server.Close()

	g := &Gemini{apiKey: "bad", model: "m", baseURL: server.URL, client: server.Client()}

	_, err := g.Generate(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsAuthError(err) {
		t.Errorf("expected auth error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("auth errors must not be retried, got %d calls", calls.Load())
	}
}

func TestGemini_RateLimitRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		resp := geminiResponse{
			Candidates: []geminiCandidate{
				{Content: geminiContent{Parts: []geminiPart{{Text: "ok"}}}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	g := &Gemini{apiKey: "k", model: "m", baseURL: server.URL, client: server.Client()}

	resp, err := g.Generate(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q", resp.Content)
	}
	if calls.Load() != 2 {
		t.Errorf("got %d calls, want 2", calls.Load())
	}
}

func TestOllama_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openaiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "local answer"}},
			},
			"usage": map[string]int{"total_tokens": 42},
		})
	}))
	defer server.Close()

	o := &Ollama{
		model:   "llama3",
		baseURL: server.URL,
		client:  server.Client(),
	}

	resp, err := o.Generate(context.Background(), Request{System: "sys", Prompt: "hello"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Content != "local answer" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("TokensUsed = %d, want 42", resp.TokensUsed)
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New("frontier", "model-x")
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retryWithBackoff(ctx, 3, func() error {
		return &rateLimitError{}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	start := time.Now()
	sentinel := errors.New("boom")
	err := retryWithBackoff(context.Background(), 3, func() error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("non-retryable errors should fail fast")
	}
}
