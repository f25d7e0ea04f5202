package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicJudge_JudgeRelevance_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Expected path /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("Expected x-api-key test-key, got %s", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("Expected anthropic-version header")
		}

		var apiReq anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&apiReq); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if apiReq.System == "" {
			t.Error("Expected system prompt")
		}

		resp := anthropicResponse{
			ID:    "msg_123",
			Type:  "message",
			Role:  "assistant",
			Model: "claude-3-5-haiku-20241022",
			Content: []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}{
				{Type: "text", Text: `{"supported": true, "confidence": 0.9, "reasoning": "The quote entails the claim."}`},
			},
		}
		resp.Usage.InputTokens = 80
		resp.Usage.OutputTokens = 20
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	judge, err := NewAnthropicJudge(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create judge: %v", err)
	}

	resp, err := judge.JudgeRelevance(context.Background(), JudgeRequest{
		Claim: "Duplicate recording is prohibited.",
		Quote: "Ein und derselbe Geschäftsvorfall darf nicht mehrfach aufgezeichnet werden.",
	})
	if err != nil {
		t.Fatalf("JudgeRelevance failed: %v", err)
	}

	if !resp.Supported {
		t.Error("Expected supported verdict")
	}
	if resp.TokensUsed != 100 {
		t.Errorf("Expected 100 tokens, got %d", resp.TokensUsed)
	}
	if resp.Model != "claude-3-5-haiku-20241022" {
		t.Errorf("Unexpected model: %s", resp.Model)
	}
}

func TestAnthropicJudge_JudgeRelevance_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "Rate limit exceeded"}}`))
	}))
	defer server.Close()

	judge, err := NewAnthropicJudge(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create judge: %v", err)
	}

	_, err = judge.JudgeRelevance(context.Background(), JudgeRequest{Claim: "x", Quote: "y"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestAnthropicJudge_RequiresAPIKey(t *testing.T) {
	_, err := NewAnthropicJudge(Config{})
	if err == nil {
		t.Fatal("Expected error for missing API key")
	}
}
