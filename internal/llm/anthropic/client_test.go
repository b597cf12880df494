package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CouncilChain/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func TestInvokeJoinsContentBlocks(t *testing.T) {
	var capturedKey, capturedVersion string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedKey = r.Header.Get("x-api-key")
		capturedVersion = r.Header.Get("anthropic-version")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": `{"verdict": "yes", `},
				{"type": "text", "text": `"reasoning": "发布内容属实"}`},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	resp, err := client.Invoke(context.Background(), llm.Request{SystemPrompt: "rules", UserPrompt: "review"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Verdict != "yes" {
		t.Fatalf("unexpected verdict: %v", resp.Verdict)
	}
	if capturedKey != "test" {
		t.Fatalf("x-api-key header missing")
	}
	if capturedVersion == "" {
		t.Fatalf("anthropic-version header missing")
	}
}

func TestInvokeEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"content": []map[string]any{}})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	if _, err := client.Invoke(context.Background(), llm.Request{UserPrompt: "review"}); err == nil {
		t.Fatalf("expected error for empty content")
	}
}
