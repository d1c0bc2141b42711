package llm

import (
	"context"
	"fmt"
)

type Message struct {
	Role    string
	Content string
}

// Citation is a grounding reference returned by a provider that performed a
// web search alongside generation. Only the gemini provider produces these.
type Citation struct {
	Title string
	URL   string
}

// Request is one generation call. System carries the assembled system
// instruction; Messages is the trimmed conversation ending with the user
// query. WebSearch asks the provider to ground the answer against live web
// results where supported.
type Request struct {
	System    string
	Messages  []Message
	WebSearch bool
}

type Response struct {
	Text      string
	Citations []Citation
}

type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL string
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are gemini, openai, anthropic", provider)
	}
}
