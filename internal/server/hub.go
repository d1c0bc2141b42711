package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/nmurthy/campus-aide/internal/transcribe"
	"github.com/nmurthy/campus-aide/internal/voice"
)

type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastAskProgress(threadID, stage string) {
	h.broadcastEvent(AskProgressEvent{
		Event:    newEvent("ask_progress", time.Now().UTC()),
		ThreadID: threadID,
		Stage:    stage,
	})
}

func (h *Hub) BroadcastDictationInterim(text string) {
	h.broadcastEvent(DictationInterimEvent{
		Event: newEvent("dictation_interim", time.Now().UTC()),
		Text:  text,
	})
}

func (h *Hub) BroadcastDictationSegment(seg transcribe.Segment) {
	h.broadcastEvent(DictationSegmentEvent{
		Event:     newEvent("dictation_segment", seg.Timestamp),
		Speaker:   seg.Speaker,
		Text:      seg.Text,
		StartTime: seg.StartTime,
		EndTime:   seg.EndTime,
	})
}

func (h *Hub) BroadcastDictationEnded(transcript string) {
	h.broadcastEvent(DictationEndedEvent{
		Event:      newEvent("dictation_ended", time.Now().UTC()),
		Transcript: transcript,
	})
}

func (h *Hub) BroadcastVoiceState(state voice.State) {
	h.broadcastEvent(VoiceStateEvent{
		Event: newEvent("voice_state", time.Now().UTC()),
		State: string(state),
	})
}

func (h *Hub) BroadcastVoiceTranscript(text string) {
	h.broadcastEvent(VoiceTranscriptEvent{
		Event: newEvent("voice_transcript", time.Now().UTC()),
		Text:  text,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
