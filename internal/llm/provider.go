package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Judge defines the interface for relevance-judging backends. The
// judge answers one narrow question: does the located source text
// actually substantiate the claim? It never decides whether the quote
// is present — that is the lexical matcher's job.
type Judge interface {
	// Name returns the provider name
	Name() string

	// JudgeRelevance decides whether the quoted text supports the claim
	JudgeRelevance(ctx context.Context, req JudgeRequest) (*JudgeResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// JudgeRequest contains the input for a relevance judgment
type JudgeRequest struct {
	// Claim is the assertion the citation is meant to support
	Claim string

	// Quote is the text located in the source (matched window or
	// verbatim quote)
	Quote string

	// Context is surrounding source text, when available
	Context string

	// Model overrides the configured model (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// JudgeResponse contains the judge's verdict
type JudgeResponse struct {
	// Supported is true when the quote substantiates the claim
	Supported bool

	// Confidence is the judge's self-reported confidence (0..1)
	Confidence float64

	// Reasoning is a short human-readable justification
	Reasoning string

	// Model is the model that produced the verdict
	Model string

	// TokensUsed tracks token consumption for job accounting
	TokensUsed int
}

// Config holds judge backend configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests, seconds
	Timeout int

	// MaxTokens for response generation
	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   30,
		MaxTokens: 500,
	}
}

// BuildJudgePrompt constructs the prompt for a relevance judgment. The
// judge must answer in strict JSON so the verdict can be parsed
// without heuristics.
func BuildJudgePrompt(req JudgeRequest) string {
	prompt := fmt.Sprintf(`You are verifying a citation. A citation pairs a CLAIM with a QUOTE from a source document. Your only task is to judge whether the quote substantiates the claim.

RULES:
1. Judge SUPPORT, not truth. A quote supports a claim if a careful reader would accept the claim on the strength of that text alone.
2. A quote that is on-topic but does not state or entail the claim does NOT support it.
3. Do not use outside knowledge about the subject.
4. Answer with a single JSON object, nothing else:
   {"supported": true|false, "confidence": 0.0-1.0, "reasoning": "one or two sentences"}

CLAIM:
%s

QUOTE:
%s
`, req.Claim, req.Quote)

	if req.Context != "" {
		prompt += fmt.Sprintf("\nSURROUNDING CONTEXT:\n%s\n", req.Context)
	}

	return prompt
}

const judgeSystemPrompt = "You are a citation verification assistant. You judge whether quoted source text substantiates a claim, and you answer only in strict JSON."

// parseVerdict extracts the JSON verdict from model output, tolerating
// markdown code fences and surrounding prose.
func parseVerdict(text string) (*JudgeResponse, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in judge response: %q", truncate(text, 200))
	}

	var verdict struct {
		Supported  bool    `json:"supported"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &verdict); err != nil {
		return nil, fmt.Errorf("unmarshal judge verdict: %w", err)
	}

	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}

	return &JudgeResponse{
		Supported:  verdict.Supported,
		Confidence: verdict.Confidence,
		Reasoning:  strings.TrimSpace(verdict.Reasoning),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
