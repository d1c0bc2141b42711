package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"
	"golang.org/x/time/rate"

	"github.com/nmurthy/campus-aide/internal/answer"
	"github.com/nmurthy/campus-aide/internal/audio"
	"github.com/nmurthy/campus-aide/internal/backup"
	"github.com/nmurthy/campus-aide/internal/config"
	"github.com/nmurthy/campus-aide/internal/dictation"
	"github.com/nmurthy/campus-aide/internal/llm"
	"github.com/nmurthy/campus-aide/internal/scrape"
	"github.com/nmurthy/campus-aide/internal/server"
	"github.com/nmurthy/campus-aide/internal/storage"
	"github.com/nmurthy/campus-aide/internal/voice"
)

//go:embed static/*
var staticFiles embed.FS

const (
	micFramesPerBuffer   = 512
	backupInterval       = 5 * time.Minute
	voiceContextDocs     = 5
	voiceContextDocLimit = 1500
)

const voiceSystemPrompt = `You are a spoken academic assistant for a college. Answer questions about admissions, fees, examinations, facilities, and campus life. Keep answers short and conversational, as they will be read aloud. If you do not know something, say so plainly.`

func main() {
	log.Println("campus-aide: starting")
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	configPath := os.Getenv(config.EnvPrefix + "CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	if n, err := store.SeedIfEmpty(time.Now().UTC()); err != nil {
		log.Printf("warning: seed documents failed: %v", err)
	} else if n > 0 {
		log.Printf("seeded %d starter documents", n)
	}

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("static assets init failed: %v", err)
	}

	hub := server.NewHub()
	scraper := scrape.New(cfg.ScrapeRelays, cfg.ParsedScrapeTTL())

	var geminiHandle *llm.Handle
	if cfg.GeminiAPIKey != "" {
		geminiHandle, err = llm.NewHandle(cfg.GeminiAPIKey)
		if err != nil {
			log.Printf("warning: gemini handle init failed: %v", err)
		}
	}

	answerer, transcriber := buildAnswerer(cfg, store, scraper, geminiHandle, &warnings)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	audioReady := false
	if err := portaudio.Initialize(); err != nil {
		warnings = append(warnings, "Audio hardware unavailable — live voice and dictation are disabled.")
		log.Printf("warning: portaudio init failed: %v", err)
	} else {
		audioReady = true
		defer func() { _ = portaudio.Terminate() }()
	}

	openMic := func() (*audio.Mic, error) {
		return audio.NewMic(audio.CaptureSampleRate, micFramesPerBuffer)
	}

	var voiceManager *voice.Manager
	if audioReady && geminiHandle != nil {
		dialer := voice.NewGeminiDialer(geminiHandle, llm.LiveConfig{
			Model:     cfg.VoiceModel,
			System:    voiceSystemPrompt,
			VoiceName: cfg.VoiceName,
		})
		dialer.SystemContext(voiceDocContext(store))
		devices := voice.Devices{
			OpenCapture:  func() (voice.Capture, error) { return openMic() },
			OpenPlayback: func() (voice.Playback, error) { return audio.NewSpeaker(audio.PlaybackSampleRate) },
		}
		voiceManager = voice.NewManager(ctx, dialer, devices, audio.NewRecorder(cfg.AudioDir), slog.Default(), voice.Config{
			MaxRetries: cfg.RetryAttempts,
			RetryBase:  cfg.ParsedRetryBaseDelay(),
			Record:     cfg.VoiceRecord,
		})
		voiceManager.OnState(hub.BroadcastVoiceState)
		voiceManager.OnTranscript(hub.BroadcastVoiceTranscript)
	}

	var dictationSvc *dictation.Service
	if audioReady && cfg.DeepgramAPIKey != "" {
		dictationSvc = dictation.NewService(
			ctx,
			dictation.NewDeepgramConnector(cfg.DeepgramAPIKey),
			func() (dictation.Capture, error) { return openMic() },
			hub,
			slog.Default(),
			dictation.Config{},
		)
	}

	deps := server.Deps{
		Hub:        hub,
		Store:      store,
		Answerer:   answerer,
		Transcribe: transcriber,
		Warnings:   func() []string { return warnings },
		AskLimiter: server.NewIPRateLimiter(rate.Limit(cfg.AskRatePerSecond), cfg.AskRateBurst),
	}
	if voiceManager != nil {
		deps.Voice = voiceManager
	}
	if dictationSvc != nil {
		deps.Dictation = dictationSvc
	}

	handler, err := server.Handler(assets, deps)
	if err != nil {
		log.Fatalf("build http handler failed: %v", err)
	}

	httpServer := &http.Server{Addr: cfg.Addr, Handler: handler}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	if cfg.GDriveFolderID != "" {
		startBackups(ctx, cfg)
	}

	log.Printf("campus-aide: web UI on http://127.0.0.1%s", cfg.Addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("campus-aide: shutting down")
	cancel()

	if voiceManager != nil {
		if err := voiceManager.Stop(); err != nil && !errors.Is(err, voice.ErrNoSession) {
			log.Printf("warning: stop voice session failed: %v", err)
		}
	}
	if dictationSvc != nil {
		if _, err := dictationSvc.Stop(); err != nil && !errors.Is(err, dictation.ErrNotActive) {
			log.Printf("warning: stop dictation failed: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

// buildAnswerer wires the generation client for the configured provider.
// The transcriber rides on the Gemini handle regardless of which provider
// answers text questions, since only Gemini takes inline audio.
func buildAnswerer(cfg config.Config, store *storage.SQLiteStore, scraper *scrape.Scraper, geminiHandle *llm.Handle, warnings *[]string) (server.Answerer, server.Transcriber) {
	provider, modelName, err := config.SplitModel(cfg.Model)
	if err != nil {
		return nil, nil
	}

	var client llm.Client
	var reset func()
	switch {
	case provider == "gemini" && geminiHandle != nil:
		client = llm.NewGeminiClient(geminiHandle, modelName)
		reset = geminiHandle.Reset
	case provider == "gemini":
		*warnings = append(*warnings, "Gemini selected as answer provider but no API key is set — answers are disabled.")
		return nil, buildTranscriber(geminiHandle, "")
	default:
		client, err = llm.NewClient(provider, apiKeyFor(provider, cfg), modelName)
		if err != nil {
			*warnings = append(*warnings, "Answer provider init failed: "+err.Error())
			return nil, buildTranscriber(geminiHandle, "")
		}
	}

	svc := answer.New(store, scraper, client, reset, answer.Config{
		HistoryWindow: cfg.HistoryWindow,
		Timeout:       cfg.ParsedAnswerTimeout(),
		RetryAttempts: cfg.RetryAttempts,
		RetryBase:     cfg.ParsedRetryBaseDelay(),
		Routes:        answer.DefaultRoutes(cfg.CollegeBaseURL),
	})

	transcribeModel := ""
	if provider == "gemini" {
		transcribeModel = modelName
	}
	return svc, buildTranscriber(geminiHandle, transcribeModel)
}

func buildTranscriber(handle *llm.Handle, model string) server.Transcriber {
	if handle == nil {
		return nil
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return llm.NewGeminiClient(handle, model)
}

// voiceDocContext folds a handful of student-visible documents into the live
// session's system instruction, re-read on every dial.
func voiceDocContext(store *storage.SQLiteStore) func() string {
	return func() string {
		docs, err := store.GetAllDocuments()
		if err != nil {
			return ""
		}
		docs = storage.FilterForRole(docs, storage.RoleStudent)
		if len(docs) == 0 {
			return ""
		}
		if len(docs) > voiceContextDocs {
			docs = docs[:voiceContextDocs]
		}

		var b strings.Builder
		b.WriteString("College reference documents:\n")
		for _, doc := range docs {
			content := answer.Truncate(doc.Content, voiceContextDocLimit)
			fmt.Fprintf(&b, "\n## %s\n%s\n", doc.Title, content)
		}
		return b.String()
	}
}

func apiKeyFor(provider string, cfg config.Config) string {
	switch provider {
	case "gemini":
		return cfg.GeminiAPIKey
	case "openai":
		return cfg.OpenAIAPIKey
	case "anthropic":
		return cfg.AnthropicAPIKey
	default:
		return ""
	}
}

func startBackups(ctx context.Context, cfg config.Config) {
	syncer, err := backup.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
	if err != nil {
		log.Printf("warning: drive backup disabled: %v", err)
		return
	}

	go func() {
		ticker := time.NewTicker(backupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				date := time.Now().UTC().Format("2006-01-02")
				if err := syncer.Sync(cfg.DBPath, date); err != nil {
					log.Printf("drive backup error: %v", err)
				}
			}
		}
	}()
}
