package dictation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"

	"github.com/nmurthy/campus-aide/internal/transcribe"
)

var (
	ErrActive    = errors.New("a dictation is already in progress")
	ErrNotActive = errors.New("no dictation in progress")
)

// Live is a streaming transcription connection. Audio goes in through
// Write, results come back on the registered callback. The Deepgram
// websocket client satisfies it.
type Live interface {
	io.Writer
	Connect() bool
	Stop()
}

// Connector opens a transcription connection with cb registered for
// results.
type Connector func(ctx context.Context, cb api.LiveMessageCallback) (Live, error)

// Capture is the microphone side of a dictation.
type Capture interface {
	Start() error
	Stop() error
	Stream(w io.Writer) error
	Close() error
}

// Broadcaster pushes dictation progress to connected browsers.
type Broadcaster interface {
	BroadcastDictationInterim(text string)
	BroadcastDictationSegment(seg transcribe.Segment)
	BroadcastDictationEnded(transcript string)
}

type Config struct {
	MaxDuration    time.Duration // hard cap on one dictation, default 60s
	SilenceTimeout time.Duration // quiet time before auto-stop, default 8s
}

// Service runs one dictation at a time: mic audio streams to the
// transcription service, finalized utterances accumulate, and Stop (or
// silence, or the time cap) returns the assembled question text.
type Service struct {
	base     context.Context
	connect  Connector
	openMic  func() (Capture, error)
	hub      Broadcaster
	logger   *slog.Logger
	detector *Detector
	maxDur   time.Duration

	mu       sync.Mutex
	active   bool
	mic      Capture
	live     Live
	buffer   *transcribe.UtteranceBuffer
	segments []transcribe.Segment
	capTimer *time.Timer
}

// NewService builds a dictation service whose transcription streams live
// on ctx: the process lifetime, not any one HTTP request.
func NewService(ctx context.Context, connect Connector, openMic func() (Capture, error), hub Broadcaster, logger *slog.Logger, cfg Config) *Service {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		base:     ctx,
		connect:  connect,
		openMic:  openMic,
		hub:      hub,
		logger:   logger,
		detector: NewDetector(cfg.SilenceTimeout),
		maxDur:   cfg.MaxDuration,
		buffer:   transcribe.NewUtteranceBuffer(),
	}
	s.detector.OnExpire(func() { s.autoEnd("silence") })
	return s
}

func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Start claims the dictation slot, opens the mic, and begins streaming.
// ctx bounds only the setup; the transcription stream itself runs on the
// service's base context so it survives the caller's request.
func (s *Service) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrActive
	}
	s.active = true
	s.buffer = transcribe.NewUtteranceBuffer()
	s.segments = nil
	s.mu.Unlock()

	mic, err := s.openMic()
	if err != nil {
		s.abort()
		return fmt.Errorf("open microphone: %w", err)
	}
	live, err := s.connect(s.base, callback{svc: s})
	if err != nil {
		_ = mic.Close()
		s.abort()
		return fmt.Errorf("open transcription stream: %w", err)
	}
	if ok := live.Connect(); !ok {
		_ = mic.Close()
		s.abort()
		return errors.New("connect to transcription service")
	}
	if err := mic.Start(); err != nil {
		live.Stop()
		_ = mic.Close()
		s.abort()
		return fmt.Errorf("start microphone: %w", err)
	}

	s.mu.Lock()
	s.mic = mic
	s.live = live
	s.capTimer = time.AfterFunc(s.maxDur, func() { s.autoEnd("time limit") })
	s.mu.Unlock()

	go func() {
		if err := mic.Stream(live); err != nil {
			s.logger.Debug("dictation: mic stream ended", "error", err)
		}
	}()

	return nil
}

// Stop ends the dictation and returns the assembled question text.
func (s *Service) Stop() (string, error) {
	return s.end()
}

func (s *Service) abort() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

func (s *Service) end() (string, error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return "", ErrNotActive
	}
	s.active = false
	mic, live, capTimer := s.mic, s.live, s.capTimer
	s.mic, s.live, s.capTimer = nil, nil, nil
	s.mu.Unlock()

	s.detector.Cancel()
	if capTimer != nil {
		capTimer.Stop()
	}
	if mic != nil {
		if err := mic.Stop(); err != nil {
			s.logger.Warn("dictation: stop microphone", "error", err)
		}
		if err := mic.Close(); err != nil {
			s.logger.Warn("dictation: close microphone", "error", err)
		}
	}
	if live != nil {
		live.Stop()
	}

	s.flush()

	s.mu.Lock()
	segments := s.segments
	s.segments = nil
	s.mu.Unlock()

	return transcribe.Transcript(segments), nil
}

func (s *Service) autoEnd(reason string) {
	transcript, err := s.end()
	if err != nil {
		return
	}
	s.logger.Info("dictation: auto-stopped", "reason", reason)
	if s.hub != nil {
		s.hub.BroadcastDictationEnded(transcript)
	}
}

func (s *Service) handleMessage(mr *api.MessageResponse) error {
	if !s.Active() {
		return nil
	}
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}

	sentence := strings.TrimSpace(mr.Channel.Alternatives[0].Transcript)
	if sentence == "" {
		return nil
	}

	words := make([]transcribe.Word, 0, len(mr.Channel.Alternatives[0].Words))
	for _, word := range mr.Channel.Alternatives[0].Words {
		words = append(words, transcribe.Word{
			Speaker:        word.Speaker,
			PunctuatedWord: word.PunctuatedWord,
			Start:          word.Start,
			End:            word.End,
		})
	}

	// Interim result, broadcast for the faded live display.
	if !mr.IsFinal {
		if s.hub != nil {
			s.hub.BroadcastDictationInterim(sentence)
		}
		return nil
	}

	s.mu.Lock()
	s.buffer.AddWords(words)
	s.mu.Unlock()
	s.detector.OnSpeech()

	if mr.SpeechFinal {
		s.flush()
	}
	return nil
}

func (s *Service) handleUtteranceEnd() error {
	if !s.Active() {
		return nil
	}
	s.flush()
	s.detector.OnUtteranceEnd()
	return nil
}

func (s *Service) flush() {
	s.mu.Lock()
	words := s.buffer.Flush()
	s.mu.Unlock()
	if len(words) == 0 {
		return
	}

	segments := transcribe.GroupWordsBySpeaker(words)
	for i := range segments {
		segments[i].Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	s.segments = append(s.segments, segments...)
	s.mu.Unlock()

	if s.hub != nil {
		for _, seg := range segments {
			s.hub.BroadcastDictationSegment(seg)
		}
	}
}

// callback adapts the Deepgram event interface onto the service.
type callback struct {
	svc *Service
}

func (c callback) Message(mr *api.MessageResponse) error { return c.svc.handleMessage(mr) }

func (c callback) Open(*api.OpenResponse) error {
	c.svc.logger.Info("dictation: connected to transcription service")
	return nil
}

func (c callback) Metadata(*api.MetadataResponse) error { return nil }

func (c callback) SpeechStarted(*api.SpeechStartedResponse) error { return nil }

func (c callback) UtteranceEnd(*api.UtteranceEndResponse) error { return c.svc.handleUtteranceEnd() }

func (c callback) Close(*api.CloseResponse) error {
	c.svc.logger.Info("dictation: disconnected from transcription service")
	return nil
}

func (c callback) Error(er *api.ErrorResponse) error {
	c.svc.logger.Error("dictation: transcription error", "code", er.ErrCode, "description", er.Description)
	return nil
}

func (c callback) UnhandledEvent([]byte) error { return nil }
