package server

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nmurthy/campus-aide/internal/answer"
	"github.com/nmurthy/campus-aide/internal/metrics"
	"github.com/nmurthy/campus-aide/internal/storage"
	"github.com/nmurthy/campus-aide/internal/voice"
)

// Store is the persistence surface the HTTP layer needs.
type Store interface {
	SaveDocument(doc storage.Document) error
	GetDocument(id string) (storage.Document, error)
	GetAllDocuments() ([]storage.Document, error)
	DeleteDocument(id string) error
	SaveThread(thread storage.Thread) error
	GetThread(id string) (storage.Thread, error)
	ListThreads() ([]storage.Thread, error)
	DeleteThread(id string) error
}

// Answerer produces one answer per question.
type Answerer interface {
	Answer(ctx context.Context, q answer.Query, onProgress func(string)) answer.Answer
}

// Transcriber converts an uploaded audio clip to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// VoiceControl drives the single live voice session slot.
type VoiceControl interface {
	Start(ctx context.Context) (string, error)
	Stop() error
	Mute(on bool) error
	Status() (id string, state voice.State, muted bool)
}

// DictationControl drives the question dictation slot.
type DictationControl interface {
	Start(ctx context.Context) error
	Stop() (string, error)
	Active() bool
}

// Deps carries everything the handler tree needs. Nil fields disable
// their routes with 503s rather than panicking.
type Deps struct {
	Hub        *Hub
	Store      Store
	Answerer   Answerer
	Transcribe Transcriber
	Voice      VoiceControl
	Dictation  DictationControl
	Warnings   func() []string
	AskLimiter *IPRateLimiter
}

func Handler(staticFS fs.FS, deps Deps) (http.Handler, error) {
	mux := http.NewServeMux()

	registerWSRoute(mux, deps.Hub)
	registerAskRoute(mux, deps)
	registerDocumentRoutes(mux, deps.Store)
	registerThreadRoutes(mux, deps.Store)
	registerTranscribeRoute(mux, deps.Transcribe)
	registerVoiceRoutes(mux, deps)
	registerDictationRoutes(mux, deps)
	registerStatusRoute(mux, deps)

	mux.Handle("GET /metrics", promhttp.Handler())

	fileServer := http.FileServer(http.FS(staticFS))
	mux.HandleFunc("/", serveSPA(fileServer))

	return withRequestMetrics(mux), nil
}

func Serve(addr string, staticFS fs.FS, deps Deps) error {
	h, err := Handler(staticFS, deps)
	if err != nil {
		return err
	}

	log.Printf("web UI at http://%s", addr)
	return http.ListenAndServe(addr, h)
}

func withRequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &metrics.HttpStatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if strings.HasPrefix(r.URL.Path, "/api/") {
			metrics.HttpRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(rec.Status)).Inc()
		}
	})
}

func serveSPA(fileServer http.Handler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" || r.URL.Path == "/metrics" {
			http.NotFound(w, r)
			return
		}

		if r.URL.Path == "/manifest.json" || r.URL.Path == "/manifest.webmanifest" {
			w.Header().Set("Content-Type", "application/manifest+json")
		}

		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if cleanPath == "." || cleanPath == "" {
			r.URL.Path = "/"
		} else if !strings.Contains(cleanPath, ".") {
			r.URL.Path = "/index.html"
		} else {
			r.URL.Path = "/" + cleanPath
		}

		fileServer.ServeHTTP(w, r)
	}
}
