package server

import "time"

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type AskProgressEvent struct {
	Event
	ThreadID string `json:"thread_id"`
	Stage    string `json:"stage"`
}

type DictationInterimEvent struct {
	Event
	Text string `json:"text"`
}

type DictationSegmentEvent struct {
	Event
	Speaker   int     `json:"speaker"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

type DictationEndedEvent struct {
	Event
	Transcript string `json:"transcript"`
}

type VoiceStateEvent struct {
	Event
	State string `json:"state"`
}

type VoiceTranscriptEvent struct {
	Event
	Text string `json:"text"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
