package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestOpenAIJudge_JudgeRelevance_Success(t *testing.T) {
	// Mock server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify request
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var chatReq openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&chatReq); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if chatReq.Temperature != 0.0 {
			t.Errorf("Expected temperature 0.0, got %f", chatReq.Temperature)
		}

		// Return success response
		resp := openai.ChatCompletionResponse{
			ID:      "chatcmpl-123",
			Object:  "chat.completion",
			Created: 1677652288,
			Model:   "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Index: 0,
					Message: openai.ChatCompletionMessage{
						Role:    "assistant",
						Content: `{"supported": true, "confidence": 0.95, "reasoning": "The quote states the claim directly."}`,
					},
					FinishReason: "stop",
				},
			},
			Usage: openai.Usage{
				TotalTokens: 100,
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	config := Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
		Timeout: 5,
	}
	judge, err := NewOpenAIJudge(config)
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
	if resp.Confidence != 0.95 {
		t.Errorf("Unexpected confidence: %f", resp.Confidence)
	}
	if resp.TokensUsed != 100 {
		t.Errorf("Unexpected token count: %d", resp.TokensUsed)
	}
	if resp.Model != "gpt-4o-mini" {
		t.Errorf("Unexpected model: %s", resp.Model)
	}
}

func TestOpenAIJudge_JudgeRelevance_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "Internal Server Error", "type": "server_error"}}`))
	}))
	defer server.Close()

	config := Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5,
	}
	judge, err := NewOpenAIJudge(config)
	if err != nil {
		t.Fatalf("Failed to create judge: %v", err)
	}

	_, err = judge.JudgeRelevance(context.Background(), JudgeRequest{Claim: "x", Quote: "y"})
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestOpenAIJudge_JudgeRelevance_NonJSONAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openai.ChatCompletionResponse{
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Message: openai.ChatCompletionMessage{
						Role:    "assistant",
						Content: "I think the quote probably supports the claim.",
					},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	config := Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5,
	}
	judge, err := NewOpenAIJudge(config)
	if err != nil {
		t.Fatalf("Failed to create judge: %v", err)
	}

	_, err = judge.JudgeRelevance(context.Background(), JudgeRequest{Claim: "x", Quote: "y"})
	if err == nil {
		t.Fatal("Expected error for non-JSON verdict, got nil")
	}
}

func TestOpenAIJudge_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIJudge(Config{})
	if err == nil {
		t.Fatal("Expected error for missing API key")
	}
}

func TestOpenAIJudge_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"data": [{"id": "gpt-4o-mini"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	config := Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}
	judge, err := NewOpenAIJudge(config)
	if err != nil {
		t.Fatalf("Failed to create judge: %v", err)
	}

	if !judge.IsAvailable(context.Background()) {
		t.Error("Expected available to be true")
	}

	// Test failure
	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if judge.IsAvailable(context.Background()) {
		t.Error("Expected available to be false on error")
	}
}
