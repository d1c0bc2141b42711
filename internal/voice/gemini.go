package voice

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/nmurthy/campus-aide/internal/llm"
)

const inboundMIMEType = "audio/pcm;rate=16000"

// GeminiDialer opens live answer streams against the Gemini Live API.
type GeminiDialer struct {
	handle  *llm.Handle
	cfg     llm.LiveConfig
	context func() string
}

func NewGeminiDialer(handle *llm.Handle, cfg llm.LiveConfig) *GeminiDialer {
	return &GeminiDialer{handle: handle, cfg: cfg}
}

// SystemContext registers a callback that supplies extra reference material
// for the system instruction, re-evaluated on every dial so new sessions see
// current documents.
func (d *GeminiDialer) SystemContext(fn func() string) { d.context = fn }

func (d *GeminiDialer) Dial(ctx context.Context) (LiveStream, error) {
	cfg := d.cfg
	if d.context != nil {
		if extra := d.context(); extra != "" {
			cfg.System += "\n\n" + extra
		}
	}

	sess, err := d.handle.ConnectLive(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", err)
	}
	return &geminiStream{sess: sess}, nil
}

// geminiStream adapts a genai live session to the LiveStream interface.
type geminiStream struct {
	sess *genai.Session
}

func (g *geminiStream) SendAudio(_ context.Context, pcm []byte) error {
	return g.sess.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: pcm, MIMEType: inboundMIMEType},
	})
}

func (g *geminiStream) Receive() (ServerEvent, error) {
	msg, err := g.sess.Receive()
	if err != nil {
		return ServerEvent{}, err
	}

	var event ServerEvent
	content := msg.ServerContent
	if content == nil {
		return event, nil
	}

	event.Interrupted = content.Interrupted
	event.TurnComplete = content.TurnComplete
	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part.InlineData != nil {
				event.Audio = append(event.Audio, part.InlineData.Data...)
			}
			if part.Text != "" {
				event.Transcript += part.Text
			}
		}
	}
	return event, nil
}

func (g *geminiStream) Close() error {
	return g.sess.Close()
}
