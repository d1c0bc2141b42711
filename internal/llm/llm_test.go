package llm

import (
	"errors"
	"strings"
	"testing"
)

func TestNewClient_KnownProviders(t *testing.T) {
	for _, provider := range []string{"gemini", "openai", "anthropic"} {
		t.Run(provider, func(t *testing.T) {
			client, err := NewClient(provider, "test-key", "test-model")
			if err != nil {
				t.Fatalf("NewClient(%s) failed: %v", provider, err)
			}
			if client == nil {
				t.Fatalf("NewClient(%s) returned nil client", provider)
			}
		})
	}
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient("cohere", "key", "model")
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "unknown LLM provider") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewClient_GeminiRequiresKey(t *testing.T) {
	_, err := NewClient("gemini", "", "test-model")
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
}
