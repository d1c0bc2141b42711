package server

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventSerialization(t *testing.T) {
	events := []any{
		AskProgressEvent{Event: newEvent("ask_progress", time.Unix(1, 0)), ThreadID: "t1", Stage: "generating"},
		DictationInterimEvent{Event: newEvent("dictation_interim", time.Unix(1, 0)), Text: "what are"},
		DictationSegmentEvent{Event: newEvent("dictation_segment", time.Unix(1, 0)), Speaker: 0, Text: "hello", StartTime: 0.1, EndTime: 1.2},
		DictationEndedEvent{Event: newEvent("dictation_ended", time.Unix(1, 0)), Transcript: "done"},
		VoiceStateEvent{Event: newEvent("voice_state", time.Unix(1, 0)), State: "listening"},
		VoiceTranscriptEvent{Event: newEvent("voice_transcript", time.Unix(1, 0)), Text: "hi"},
		ConnectionEvent{Event: newEvent("connection", time.Unix(1, 0)), Connected: true},
	}

	for _, event := range events {
		b, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}

		var payload map[string]any
		if err := json.Unmarshal(b, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}

		if payload["type"] == nil {
			t.Fatalf("missing type in payload: %s", string(b))
		}
		if payload["version"] == nil {
			t.Fatalf("missing version in payload: %s", string(b))
		}
		if payload["timestamp"] == nil {
			t.Fatalf("missing timestamp in payload: %s", string(b))
		}
	}
}
