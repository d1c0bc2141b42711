package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConvertGeminiMessages(t *testing.T) {
	contents := convertGeminiMessages([]Message{
		{Role: "user", Content: "hello"},
		{Role: "model", Content: "hi there"},
		{Role: "user", Content: "what are the fees"},
	})

	if len(contents) != 3 {
		t.Fatalf("expected 3 conversation messages, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[0].Parts[0].Text != "hello" {
		t.Fatalf("unexpected first message: %#v", contents[0])
	}
	if contents[1].Role != "model" || contents[1].Parts[0].Text != "hi there" {
		t.Fatalf("unexpected second message: %#v", contents[1])
	}
	if contents[2].Role != "user" || contents[2].Parts[0].Text != "what are the fees" {
		t.Fatalf("unexpected third message: %#v", contents[2])
	}
}

func geminiTestServer(t *testing.T, payload map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
}

func TestGemini_Generate_EmptyResult(t *testing.T) {
	server := geminiTestServer(t, map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"parts": []map[string]any{{"text": ""}},
					"role":  "model",
				},
				"finishReason": "STOP",
			},
		},
	})
	defer server.Close()

	client, err := newGeminiClient("test-key", "gemini-test", &clientOptions{baseURL: server.URL})
	if err != nil {
		t.Fatalf("newGeminiClient failed: %v", err)
	}

	_, err = client.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if err == nil {
		t.Fatal("expected error for empty result, got nil")
	}
	if !strings.Contains(err.Error(), "empty response") {
		t.Fatalf("expected 'empty response' in error, got %q", err.Error())
	}
}

func TestGemini_Generate_GroundingCitations(t *testing.T) {
	server := geminiTestServer(t, map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"parts": []map[string]any{{"text": "Applications open in May."}},
					"role":  "model",
				},
				"finishReason": "STOP",
				"groundingMetadata": map[string]any{
					"groundingChunks": []map[string]any{
						{"web": map[string]any{"uri": "https://college.edu/admissions", "title": "Admissions"}},
						{"web": map[string]any{"uri": "https://college.edu/dates"}},
					},
				},
			},
		},
	})
	defer server.Close()

	client, err := newGeminiClient("test-key", "gemini-test", &clientOptions{baseURL: server.URL})
	if err != nil {
		t.Fatalf("newGeminiClient failed: %v", err)
	}

	resp, err := client.Generate(context.Background(), Request{
		Messages:  []Message{{Role: "user", Content: "when do applications open"}},
		WebSearch: true,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Text != "Applications open in May." {
		t.Errorf("unexpected text %q", resp.Text)
	}
	if len(resp.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(resp.Citations))
	}
	if resp.Citations[0].Title != "Admissions" || resp.Citations[0].URL != "https://college.edu/admissions" {
		t.Errorf("unexpected first citation: %+v", resp.Citations[0])
	}
	// A chunk without a title falls back to its URI.
	if resp.Citations[1].Title != "https://college.edu/dates" {
		t.Errorf("expected URI fallback title, got %q", resp.Citations[1].Title)
	}
}

func TestGemini_Generate_NoUserMessage(t *testing.T) {
	client, err := newGeminiClient("test-key", "gemini-test", &clientOptions{})
	if err != nil {
		t.Fatalf("newGeminiClient failed: %v", err)
	}

	_, err = client.Generate(context.Background(), Request{System: "rules only"})
	if err == nil || !strings.Contains(err.Error(), "no user message") {
		t.Fatalf("expected no-user-message error, got %v", err)
	}
}

func TestHandle_ResetDropsClient(t *testing.T) {
	server := geminiTestServer(t, map[string]any{})
	defer server.Close()

	handle, err := NewHandle("test-key")
	if err != nil {
		t.Fatalf("NewHandle failed: %v", err)
	}
	handle.baseURL = server.URL

	first, err := handle.Client(context.Background())
	if err != nil {
		t.Fatalf("Client failed: %v", err)
	}

	again, err := handle.Client(context.Background())
	if err != nil {
		t.Fatalf("Client failed: %v", err)
	}
	if first != again {
		t.Error("expected the same client before reset")
	}

	handle.Reset()
	fresh, err := handle.Client(context.Background())
	if err != nil {
		t.Fatalf("Client after reset failed: %v", err)
	}
	if fresh == first {
		t.Error("expected a recreated client after reset")
	}
}

func TestNewHandle_MissingKey(t *testing.T) {
	if _, err := NewHandle("  "); err == nil {
		t.Fatal("expected error for blank API key")
	}
}
