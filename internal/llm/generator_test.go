package llm

import (
	"testing"

	"github.com/michael7nightingale/ai-girls/internal/config"
)

func TestResolvePriority(t *testing.T) {
	cases := []struct {
		name       string
		explicit   string
		configured string
		want       Backend
	}{
		{"explicit wins", "claude", "openai", BackendClaude},
		{"configured default", "", "openai", BackendOpenAI},
		{"hard-coded fallback", "", "", BackendOllama},
		{"explicit case folded", "OpenAI", "ollama", BackendOpenAI},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.explicit, tc.configured)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != tc.want {
				t.Fatalf("resolved %q, want %q", got, tc.want)
			}
		})
	}

	if _, err := Resolve("mistral-cloud", ""); err == nil {
		t.Fatalf("expected error for unknown explicit backend")
	}
	if _, err := Resolve("", "nope"); err == nil {
		t.Fatalf("expected error for unknown configured backend")
	}
}

func TestHostedConstructorsFailFast(t *testing.T) {
	if _, err := NewOpenAI(config.BackendConfig{Model: "gpt-4"}); err == nil {
		t.Fatalf("expected error for missing openai api key")
	}
	if _, err := NewClaude(config.BackendConfig{Model: "claude-3-sonnet-20240229"}); err == nil {
		t.Fatalf("expected error for missing claude api key")
	}
	if _, err := NewOpenAI(config.BackendConfig{APIKey: "k"}); err == nil {
		t.Fatalf("expected error for missing openai model")
	}
}

func TestCountTokens(t *testing.T) {
	if got := CountTokens("привет как дела"); got != 3 {
		t.Fatalf("count = %d, want 3", got)
	}
	if got := CountTokens("   "); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}
}
