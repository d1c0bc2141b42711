package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nmurthy/campus-aide/internal/dictation"
	"github.com/nmurthy/campus-aide/internal/voice"
)

type voiceStub struct {
	mu     sync.Mutex
	active bool
	muted  bool
	id     string
}

func (v *voiceStub) Start(context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active {
		return "", voice.ErrSessionActive
	}
	v.active = true
	v.id = "sess-1"
	return v.id, nil
}

func (v *voiceStub) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active {
		return voice.ErrNoSession
	}
	v.active = false
	v.id = ""
	return nil
}

func (v *voiceStub) Mute(on bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active {
		return voice.ErrNoSession
	}
	v.muted = on
	return nil
}

func (v *voiceStub) Status() (string, voice.State, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active {
		return "", voice.StateIdle, false
	}
	return v.id, voice.StateListening, v.muted
}

type dictationStub struct {
	mu         sync.Mutex
	active     bool
	transcript string
}

func (d *dictationStub) Start(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return dictation.ErrActive
	}
	d.active = true
	return nil
}

func (d *dictationStub) Stop() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.active {
		return "", dictation.ErrNotActive
	}
	d.active = false
	return d.transcript, nil
}

func (d *dictationStub) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func TestVoiceRoutes(t *testing.T) {
	stub := &voiceStub{}
	h := testHandler(t, Deps{Store: newStoreStub(), Voice: stub})

	rr := doJSON(t, h, http.MethodPost, "/api/voice/start", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("start status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var started map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &started); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if started["session_id"] == "" {
		t.Fatal("expected session id")
	}

	if rr := doJSON(t, h, http.MethodPost, "/api/voice/start", "", nil); rr.Code != http.StatusConflict {
		t.Fatalf("double start status = %d, want 409", rr.Code)
	}

	if rr := doJSON(t, h, http.MethodPost, "/api/voice/mute", "", map[string]bool{"muted": true}); rr.Code != http.StatusNoContent {
		t.Fatalf("mute status = %d, want 204", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/voice/status", "", nil)
	var status map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal status failed: %v", err)
	}
	if status["state"] != string(voice.StateListening) || status["muted"] != true {
		t.Fatalf("status = %v", status)
	}

	if rr := doJSON(t, h, http.MethodPost, "/api/voice/stop", "", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("stop status = %d, want 204", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodPost, "/api/voice/stop", "", nil); rr.Code != http.StatusConflict {
		t.Fatalf("stop without session status = %d, want 409", rr.Code)
	}
}

// Quiet duplex fakes, enough to keep a real manager's session running
// without audio hardware or a live connection.
type idleStream struct {
	done chan struct{}
	once sync.Once
}

func (s *idleStream) SendAudio(context.Context, []byte) error { return nil }

func (s *idleStream) Receive() (voice.ServerEvent, error) {
	<-s.done
	return voice.ServerEvent{}, io.EOF
}

func (s *idleStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

type idleDialer struct{}

func (idleDialer) Dial(context.Context) (voice.LiveStream, error) {
	return &idleStream{done: make(chan struct{})}, nil
}

type idleMic struct {
	stopped chan struct{}
	once    sync.Once
}

func (m *idleMic) Start() error { return nil }

func (m *idleMic) Stop() error {
	m.once.Do(func() { close(m.stopped) })
	return nil
}

func (m *idleMic) Stream(io.Writer) error {
	<-m.stopped
	return nil
}

func (m *idleMic) Close() error { return nil }

type idleSpeaker struct{}

func (idleSpeaker) Play([]byte) error { return nil }

func (idleSpeaker) Interrupt() {}

func (idleSpeaker) Close() error { return nil }

// The start handler's request context dies the moment the response is
// written; the session it started has to keep running regardless.
func TestVoiceStartOutlivesItsRequest(t *testing.T) {
	mgr := voice.NewManager(context.Background(), idleDialer{}, voice.Devices{
		OpenCapture:  func() (voice.Capture, error) { return &idleMic{stopped: make(chan struct{})}, nil },
		OpenPlayback: func() (voice.Playback, error) { return idleSpeaker{}, nil },
	}, nil, nil, voice.Config{})

	srv := httptest.NewServer(testHandler(t, Deps{Store: newStoreStub(), Voice: mgr}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/voice/start", "application/json", nil)
	if err != nil {
		t.Fatalf("start request failed: %v", err)
	}
	var started map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || started["session_id"] == "" {
		t.Fatalf("start status = %d, body = %v", resp.StatusCode, started)
	}

	time.Sleep(100 * time.Millisecond)
	id, state, _ := mgr.Status()
	if id != started["session_id"] || state != voice.StateListening {
		t.Fatalf("session after request ended = (%q, %s), want (%q, %s)",
			id, state, started["session_id"], voice.StateListening)
	}

	if err := mgr.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestVoiceRoutesUnconfigured(t *testing.T) {
	h := testHandler(t, Deps{Store: newStoreStub()})
	if rr := doJSON(t, h, http.MethodPost, "/api/voice/start", "", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("start status = %d, want 503", rr.Code)
	}
	rr := doJSON(t, h, http.MethodGet, "/api/voice/status", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status route status = %d, want 200", rr.Code)
	}
	var status map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if status["state"] != string(voice.StateIdle) {
		t.Fatalf("state = %v, want idle", status["state"])
	}
}

func TestDictationRoutes(t *testing.T) {
	stub := &dictationStub{transcript: "what are the exam dates"}
	h := testHandler(t, Deps{Store: newStoreStub(), Dictation: stub})

	if rr := doJSON(t, h, http.MethodPost, "/api/dictation/start", "", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("start status = %d, want 204", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodPost, "/api/dictation/start", "", nil); rr.Code != http.StatusConflict {
		t.Fatalf("double start status = %d, want 409", rr.Code)
	}

	rr := doJSON(t, h, http.MethodPost, "/api/dictation/stop", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stop status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload["transcript"] != "what are the exam dates" {
		t.Fatalf("transcript = %q", payload["transcript"])
	}

	if rr := doJSON(t, h, http.MethodPost, "/api/dictation/stop", "", nil); rr.Code != http.StatusConflict {
		t.Fatalf("stop without dictation status = %d, want 409", rr.Code)
	}
}
