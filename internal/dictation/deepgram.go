package dictation

import (
	"context"
	"fmt"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/nmurthy/campus-aide/internal/audio"
)

// NewDeepgramConnector dials Deepgram's live transcription websocket. An
// empty apiKey falls back to the DEEPGRAM_API_KEY environment variable.
func NewDeepgramConnector(apiKey string) Connector {
	return func(ctx context.Context, cb api.LiveMessageCallback) (Live, error) {
		cOptions := &interfaces.ClientOptions{EnableKeepAlive: true}
		tOptions := &interfaces.LiveTranscriptionOptions{
			Model:       "nova-2",
			Language:    "en-US",
			Diarize:     true,
			Punctuate:   true,
			SmartFormat: true,
			Encoding:    "linear16",
			SampleRate:  audio.CaptureSampleRate,
			Channels:    1,
		}

		dg, err := client.NewWSUsingCallback(ctx, apiKey, cOptions, tOptions, cb)
		if err != nil {
			return nil, fmt.Errorf("create transcription client: %w", err)
		}
		return dg, nil
	}
}
