package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nmurthy/campus-aide/internal/answer"
	"github.com/nmurthy/campus-aide/internal/metrics"
	"github.com/nmurthy/campus-aide/internal/storage"
)

const threadTitleLimit = 60

type askRequest struct {
	Question  string `json:"question"`
	ThreadID  string `json:"thread_id,omitempty"`
	WebSearch bool   `json:"web_search,omitempty"`
}

type askResponse struct {
	ThreadID         string             `json:"thread_id"`
	Text             string             `json:"text"`
	Citations        []storage.Citation `json:"citations,omitempty"`
	NeedsWebApproval bool               `json:"needs_web_approval,omitempty"`
}

func registerAskRoute(mux *http.ServeMux, deps Deps) {
	mux.HandleFunc("POST /api/ask", func(w http.ResponseWriter, r *http.Request) {
		if deps.Answerer == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "answering is not configured")
			return
		}
		if deps.AskLimiter != nil && !deps.AskLimiter.Allow(clientIP(r)) {
			writeJSONError(w, http.StatusTooManyRequests, "too many questions, slow down")
			return
		}

		var req askRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode question: %v", err))
			return
		}
		req.Question = strings.TrimSpace(req.Question)
		if req.Question == "" {
			writeJSONError(w, http.StatusBadRequest, "question is required")
			return
		}
		if req.ThreadID != "" && !validID(req.ThreadID) {
			writeJSONError(w, http.StatusBadRequest, "invalid thread id")
			return
		}

		thread, err := loadOrCreateThread(deps.Store, req)
		if err != nil {
			writeJSONError(w, storeErrorStatus(err), fmt.Sprintf("load thread: %v", err))
			return
		}

		onProgress := func(string) {}
		if deps.Hub != nil {
			onProgress = func(stage string) { deps.Hub.BroadcastAskProgress(thread.ID, stage) }
		}

		started := time.Now()
		result := deps.Answerer.Answer(r.Context(), answer.Query{
			Text:      req.Question,
			History:   thread.Messages,
			Role:      roleFromRequest(r),
			WebSearch: req.WebSearch,
		}, onProgress)
		metrics.ObserveAnswer(answerStatus(result), time.Since(started))

		now := time.Now().UTC()
		thread.Messages = append(thread.Messages,
			storage.Message{
				ID:        uuid.NewString(),
				Role:      "user",
				Content:   req.Question,
				CreatedAt: now,
			},
			storage.Message{
				ID:        uuid.NewString(),
				Role:      "model",
				Content:   result.Text,
				Citations: result.Citations,
				CreatedAt: now,
			},
		)
		thread.UpdatedAt = now
		if err := deps.Store.SaveThread(thread); err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("save thread: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, askResponse{
			ThreadID:         thread.ID,
			Text:             result.Text,
			Citations:        result.Citations,
			NeedsWebApproval: result.NeedsWebApproval,
		})
	})
}

func loadOrCreateThread(store Store, req askRequest) (storage.Thread, error) {
	if req.ThreadID != "" {
		return store.GetThread(req.ThreadID)
	}

	title := answer.Truncate(req.Question, threadTitleLimit)
	return storage.Thread{ID: uuid.NewString(), Title: title}, nil
}

func answerStatus(a answer.Answer) string {
	if a.NeedsWebApproval {
		return "needs_web_approval"
	}
	return "ok"
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
