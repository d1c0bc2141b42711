package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nmurthy/campus-aide/internal/dictation"
	"github.com/nmurthy/campus-aide/internal/voice"
)

func registerVoiceRoutes(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("POST /api/voice/start", func(w http.ResponseWriter, r *http.Request) {
		if deps.Voice == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "voice sessions are not configured")
			return
		}
		id, err := deps.Voice.Start(r.Context())
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, voice.ErrSessionActive) {
				status = http.StatusConflict
			}
			writeJSONError(w, status, fmt.Sprintf("start voice session: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
	})

	mux.HandleFunc("POST /api/voice/stop", func(w http.ResponseWriter, r *http.Request) {
		if deps.Voice == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "voice sessions are not configured")
			return
		}
		if err := deps.Voice.Stop(); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, voice.ErrNoSession) {
				status = http.StatusConflict
			}
			writeJSONError(w, status, fmt.Sprintf("stop voice session: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/voice/mute", func(w http.ResponseWriter, r *http.Request) {
		if deps.Voice == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "voice sessions are not configured")
			return
		}
		var req struct {
			Muted bool `json:"muted"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode mute request: %v", err))
			return
		}
		if err := deps.Voice.Mute(req.Muted); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, voice.ErrNoSession) {
				status = http.StatusConflict
			}
			writeJSONError(w, status, fmt.Sprintf("mute voice session: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/voice/status", func(w http.ResponseWriter, r *http.Request) {
		id, state, muted := "", voice.StateIdle, false
		if deps.Voice != nil {
			id, state, muted = deps.Voice.Status()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": id,
			"state":      string(state),
			"muted":      muted,
		})
	})
}

func registerDictationRoutes(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("POST /api/dictation/start", func(w http.ResponseWriter, r *http.Request) {
		if deps.Dictation == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "dictation is not configured")
			return
		}
		if err := deps.Dictation.Start(r.Context()); err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, dictation.ErrActive) {
				status = http.StatusConflict
			}
			writeJSONError(w, status, fmt.Sprintf("start dictation: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/dictation/stop", func(w http.ResponseWriter, r *http.Request) {
		if deps.Dictation == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "dictation is not configured")
			return
		}
		transcript, err := deps.Dictation.Stop()
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, dictation.ErrNotActive) {
				status = http.StatusConflict
			}
			writeJSONError(w, status, fmt.Sprintf("stop dictation: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"transcript": transcript})
	})
}

func voiceStateOrIdle(v VoiceControl) voice.State {
	if v == nil {
		return voice.StateIdle
	}
	_, state, _ := v.Status()
	return state
}
