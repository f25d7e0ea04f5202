package llm

import (
	"testing"

	"github.com/ppiankov/attest/internal/model"
)

func TestNewJudge(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantName string
		wantNil  bool
		wantErr  bool
	}{
		{"openai", Config{Provider: "openai", APIKey: "k"}, "openai", false, false},
		{"anthropic", Config{Provider: "anthropic", APIKey: "k"}, "anthropic", false, false},
		{"claude alias", Config{Provider: "claude", APIKey: "k"}, "anthropic", false, false},
		{"ollama", Config{Provider: "ollama"}, "ollama", false, false},
		{"case insensitive", Config{Provider: "OpenAI", APIKey: "k"}, "openai", false, false},
		{"disabled", Config{Provider: ""}, "", true, false},
		{"unknown", Config{Provider: "grok"}, "", false, true},
		{"openai missing key", Config{Provider: "openai"}, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge, err := NewJudge(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewJudge failed: %v", err)
			}
			if tt.wantNil {
				if judge != nil {
					t.Fatalf("expected nil judge, got %s", judge.Name())
				}
				return
			}
			if judge.Name() != tt.wantName {
				t.Errorf("expected provider %s, got %s", tt.wantName, judge.Name())
			}
		})
	}
}

func TestConfigFromModel(t *testing.T) {
	mc := model.LLMConfig{
		Provider:  "ollama",
		Model:     "llama3.2",
		BaseURL:   "http://localhost:11434",
		Timeout:   60,
		MaxTokens: 300,
	}
	c := ConfigFromModel(mc)
	if c.Provider != "ollama" || c.Model != "llama3.2" || c.Timeout != 60 || c.MaxTokens != 300 {
		t.Errorf("conversion lost fields: %+v", c)
	}
}
