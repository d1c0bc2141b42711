package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// ErrNoAPIKey is the configuration failure surfaced before any network call.
var ErrNoAPIKey = errors.New("gemini API key is not configured")

// Handle owns the authenticated genai client. It is created lazily and can
// be Reset when a connection is suspected stuck; the next use recreates it.
// Injected explicitly wherever a Gemini call is made, never a package global.
type Handle struct {
	apiKey  string
	baseURL string

	mu     sync.Mutex
	client *genai.Client
}

func NewHandle(apiKey string) (*Handle, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	return &Handle{apiKey: apiKey}, nil
}

func (h *Handle) Client(ctx context.Context) (*genai.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil {
		return h.client, nil
	}

	config := &genai.ClientConfig{APIKey: h.apiKey, Backend: genai.BackendGeminiAPI}
	if h.baseURL != "" {
		config.HTTPOptions.BaseURL = h.baseURL
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	h.client = client
	return client, nil
}

// Reset drops the current client so the next call builds a fresh one.
func (h *Handle) Reset() {
	h.mu.Lock()
	h.client = nil
	h.mu.Unlock()
}

type geminiClient struct {
	handle *Handle
	model  string
}

func newGeminiClient(apiKey, model string, opts *clientOptions) (*geminiClient, error) {
	handle, err := NewHandle(apiKey)
	if err != nil {
		return nil, err
	}
	handle.baseURL = opts.baseURL
	return &geminiClient{handle: handle, model: model}, nil
}

// NewGeminiClient builds a gemini client around an existing handle, so the
// orchestrator's retry wrapper can share the handle's Reset.
func NewGeminiClient(handle *Handle, model string) *geminiClient {
	return &geminiClient{handle: handle, model: model}
}

// Handle exposes the underlying client handle for reset-on-network-error.
func (c *geminiClient) Handle() *Handle {
	return c.handle
}

func convertGeminiMessages(messages []Message) []*genai.Content {
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case "user":
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		case "assistant", "model":
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	return contents
}

func (c *geminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	client, err := c.handle.Client(ctx)
	if err != nil {
		return Response{}, err
	}

	contents := convertGeminiMessages(req.Messages)
	if len(contents) == 0 {
		return Response{}, fmt.Errorf("gemini: no user message provided")
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.WebSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	result, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return Response{}, fmt.Errorf("gemini generation: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return Response{}, fmt.Errorf("gemini: empty response text")
	}

	return Response{Text: text, Citations: groundingCitations(result)}, nil
}

func groundingCitations(result *genai.GenerateContentResponse) []Citation {
	var citations []Citation
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			title := chunk.Web.Title
			if title == "" {
				title = chunk.Web.URI
			}
			citations = append(citations, Citation{Title: title, URL: chunk.Web.URI})
		}
	}
	return citations
}

// Transcribe sends inline audio for a one-shot transcription.
func (c *geminiClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	client, err := c.handle.Client(ctx)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{Data: audio, MIMEType: mimeType}},
			{Text: "Transcribe this audio recording verbatim. Return only the spoken words."},
		},
	}}

	result, err := client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("gemini transcription: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: empty transcription")
	}
	return text, nil
}

// LiveConfig shapes a duplex audio session.
type LiveConfig struct {
	Model     string
	System    string
	VoiceName string
}

// ConnectLive opens a persistent bidirectional audio session. The caller
// owns the returned session and must Close it.
func (h *Handle) ConnectLive(ctx context.Context, cfg LiveConfig) (*genai.Session, error) {
	client, err := h.Client(ctx)
	if err != nil {
		return nil, err
	}

	connectConfig := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if cfg.System != "" {
		connectConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.System}}}
	}
	if cfg.VoiceName != "" {
		connectConfig.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.VoiceName},
			},
		}
	}

	session, err := client.Live.Connect(ctx, cfg.Model, connectConfig)
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", err)
	}
	return session, nil
}
