package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nmurthy/campus-aide/internal/storage"
)

const maxUploadBytes = 10 << 20

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func registerDocumentRoutes(mux *http.ServeMux, store Store) {
	mux.HandleFunc("GET /api/documents", func(w http.ResponseWriter, r *http.Request) {
		docs, err := store.GetAllDocuments()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list documents: %v", err))
			return
		}
		docs = storage.FilterForRole(docs, roleFromRequest(r))
		if docs == nil {
			docs = []storage.Document{}
		}
		writeJSON(w, http.StatusOK, docs)
	})

	mux.HandleFunc("GET /api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !validID(id) {
			writeJSONError(w, http.StatusForbidden, "invalid document id")
			return
		}

		doc, err := store.GetDocument(id)
		if err != nil {
			writeJSONError(w, storeErrorStatus(err), fmt.Sprintf("get document: %v", err))
			return
		}
		if doc.Restricted && roleFromRequest(r) != storage.RoleAdmin {
			writeJSONError(w, http.StatusForbidden, "document is restricted")
			return
		}
		writeJSON(w, http.StatusOK, doc)
	})

	mux.HandleFunc("POST /api/documents", func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(w, r) {
			return
		}

		var doc storage.Document
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&doc); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode document: %v", err))
			return
		}
		if strings.TrimSpace(doc.Title) == "" || strings.TrimSpace(doc.Content) == "" {
			writeJSONError(w, http.StatusBadRequest, "title and content are required")
			return
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		} else if !validID(doc.ID) {
			writeJSONError(w, http.StatusBadRequest, "invalid document id")
			return
		}
		doc.UploadedAt = time.Now().UTC()

		if err := store.SaveDocument(doc); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("save document: %v", err))
			return
		}
		writeJSON(w, http.StatusCreated, doc)
	})

	mux.HandleFunc("DELETE /api/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(w, r) {
			return
		}
		id := r.PathValue("id")
		if !validID(id) {
			writeJSONError(w, http.StatusForbidden, "invalid document id")
			return
		}
		if err := store.DeleteDocument(id); err != nil {
			writeJSONError(w, storeErrorStatus(err), fmt.Sprintf("delete document: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func registerThreadRoutes(mux *http.ServeMux, store Store) {
	mux.HandleFunc("GET /api/threads", func(w http.ResponseWriter, r *http.Request) {
		threads, err := store.ListThreads()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list threads: %v", err))
			return
		}
		if threads == nil {
			threads = []storage.Thread{}
		}
		writeJSON(w, http.StatusOK, threads)
	})

	mux.HandleFunc("GET /api/threads/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !validID(id) {
			writeJSONError(w, http.StatusForbidden, "invalid thread id")
			return
		}
		thread, err := store.GetThread(id)
		if err != nil {
			writeJSONError(w, storeErrorStatus(err), fmt.Sprintf("get thread: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, thread)
	})

	mux.HandleFunc("DELETE /api/threads/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !validID(id) {
			writeJSONError(w, http.StatusForbidden, "invalid thread id")
			return
		}
		if err := store.DeleteThread(id); err != nil {
			writeJSONError(w, storeErrorStatus(err), fmt.Sprintf("delete thread: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func registerTranscribeRoute(mux *http.ServeMux, transcriber Transcriber) {
	mux.HandleFunc("POST /api/transcribe", func(w http.ResponseWriter, r *http.Request) {
		if transcriber == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "transcription is not configured")
			return
		}

		mimeType := r.Header.Get("Content-Type")
		if mimeType == "" || strings.HasPrefix(mimeType, "application/") {
			mimeType = "audio/wav"
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("read audio: %v", err))
			return
		}
		if len(payload) == 0 {
			writeJSONError(w, http.StatusBadRequest, "empty audio payload")
			return
		}

		text, err := transcriber.Transcribe(r.Context(), payload, mimeType)
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("transcribe audio: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"text": text})
	})
}

func registerStatusRoute(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		var warnings []string
		if deps.Warnings != nil {
			warnings = deps.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}

		voiceState := string(voiceStateOrIdle(deps.Voice))
		dictating := deps.Dictation != nil && deps.Dictation.Active()

		writeJSON(w, http.StatusOK, map[string]any{
			"warnings":    warnings,
			"voice_state": voiceState,
			"dictating":   dictating,
		})
	})
}

func roleFromRequest(r *http.Request) string {
	if r.Header.Get("X-Role") == storage.RoleAdmin {
		return storage.RoleAdmin
	}
	return storage.RoleStudent
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if roleFromRequest(r) != storage.RoleAdmin {
		writeJSONError(w, http.StatusForbidden, "admin role required")
		return false
	}
	return true
}

func validID(id string) bool {
	return idPattern.MatchString(id)
}

func storeErrorStatus(err error) int {
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, os.ErrNotExist) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
