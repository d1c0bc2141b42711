package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nmurthy/campus-aide/internal/audio"
)

// frameQueue bounds how far capture may run ahead of the uplink before
// frames are dropped. Dropping beats stalling the audio callback.
const frameQueue = 32

// LiveStream is a connected duplex answer stream.
type LiveStream interface {
	SendAudio(ctx context.Context, pcm []byte) error
	// Receive blocks for the next server event. It returns io.EOF when the
	// server closes the stream cleanly.
	Receive() (ServerEvent, error)
	Close() error
}

// ServerEvent is one message from the live answer service.
type ServerEvent struct {
	Audio        []byte
	Transcript   string
	Interrupted  bool
	TurnComplete bool
}

// Capture is the input device side of a session.
type Capture interface {
	Start() error
	Stop() error
	Stream(w io.Writer) error
	Close() error
}

// Session owns one live voice conversation: mic frames go up the stream,
// model audio comes down into the playback queue. It ends when the stream
// ends, errors, or Close is called.
type Session struct {
	id      string
	stream  LiveStream
	capture Capture
	queue   *playQueue
	states  *machine
	logger  *slog.Logger

	muted      atomic.Bool
	turnEnding atomic.Bool
	frames     chan []byte
	tap        io.Writer

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
	err       error

	onTranscript func(string)
}

type sessionConfig struct {
	id           string
	stream       LiveStream
	capture      Capture
	playback     Playback
	states       *machine
	logger       *slog.Logger
	onTranscript func(string)
	sampleRate   int
	tap          io.Writer
}

func newSession(cfg sessionConfig) *Session {
	if cfg.sampleRate <= 0 {
		cfg.sampleRate = audio.PlaybackSampleRate
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	return &Session{
		id:           cfg.id,
		stream:       cfg.stream,
		capture:      cfg.capture,
		queue:        newPlayQueue(cfg.playback, cfg.sampleRate),
		states:       cfg.states,
		logger:       cfg.logger,
		frames:       make(chan []byte, frameQueue),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		onTranscript: cfg.onTranscript,
		tap:          cfg.tap,
	}
}

// run starts the capture, uplink, and downlink goroutines and blocks until
// the session ends. The returned error is nil on a clean close.
func (s *Session) run(ctx context.Context) error {
	if err := s.capture.Start(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	s.queue.callbacks(
		func(err error) {
			if !s.isClosing() {
				select {
				case errCh <- err:
				default:
				}
			}
		},
		s.finishTurn,
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := s.capture.Stream(s.captureWriter()); err != nil && !s.isClosing() {
			errCh <- err
		}
	}()
	go func() {
		defer wg.Done()
		s.sendLoop(ctx, errCh)
	}()
	go func() {
		defer wg.Done()
		s.receiveLoop(errCh)
	}()

	select {
	case err := <-errCh:
		s.err = err
	case <-s.closing:
	case <-ctx.Done():
		s.err = ctx.Err()
	}

	s.teardown()
	wg.Wait()
	close(s.done)
	return s.err
}

// Mute controls whether captured frames reach the uplink. Muted frames are
// dropped at the source so the model hears silence, not buffered speech.
func (s *Session) Mute(on bool) {
	s.muted.Store(on)
}

func (s *Session) Muted() bool { return s.muted.Load() }

// Close ends the session. Safe to call more than once and from any
// goroutine; it returns after the session has fully stopped.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
	<-s.done
}

func (s *Session) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// teardown stops every half of the pipeline independently, so a failure
// in one device never strands the others.
func (s *Session) teardown() {
	s.closeOnce.Do(func() { close(s.closing) })

	if err := s.capture.Stop(); err != nil {
		s.logger.Warn("voice: stop capture", "session", s.id, "error", err)
	}
	if err := s.capture.Close(); err != nil {
		s.logger.Warn("voice: close capture", "session", s.id, "error", err)
	}
	if err := s.stream.Close(); err != nil {
		s.logger.Warn("voice: close live stream", "session", s.id, "error", err)
	}
	s.queue.Close()
	if err := s.queue.sink.Close(); err != nil {
		s.logger.Warn("voice: close playback", "session", s.id, "error", err)
	}
}

func (s *Session) captureWriter() io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		if s.isClosing() {
			return 0, io.ErrClosedPipe
		}
		if s.muted.Load() {
			return len(p), nil
		}
		if s.tap != nil {
			_, _ = s.tap.Write(p)
		}
		frame := make([]byte, len(p))
		copy(frame, p)
		select {
		case s.frames <- frame:
		default:
			// Uplink is behind, drop the frame.
		}
		return len(p), nil
	})
}

func (s *Session) sendLoop(ctx context.Context, errCh chan<- error) {
	for {
		select {
		case <-s.closing:
			return
		case frame := <-s.frames:
			if err := s.stream.SendAudio(ctx, frame); err != nil {
				if !s.isClosing() {
					errCh <- err
				}
				return
			}
		}
	}
}

func (s *Session) receiveLoop(errCh chan<- error) {
	for {
		event, err := s.stream.Receive()
		if err != nil {
			if !s.isClosing() {
				if errors.Is(err, io.EOF) {
					// Server closed the stream cleanly.
					s.closeOnce.Do(func() { close(s.closing) })
				} else {
					errCh <- err
				}
			}
			return
		}

		switch {
		case event.Interrupted:
			// The student spoke over the model. Cut playback right where it
			// is, queued and in flight alike.
			s.turnEnding.Store(false)
			s.queue.Clear()
			if err := s.states.to(StateListening); err != nil {
				s.logger.Warn("voice: state change", "session", s.id, "error", err)
			}
		case event.TurnComplete:
			// Queued audio for this turn may still be playing; hold the
			// speaking state until the queue reports it has drained.
			s.turnEnding.Store(true)
			if s.queue.Idle() {
				s.finishTurn()
			}
		case len(event.Audio) > 0:
			s.turnEnding.Store(false)
			if err := s.states.to(StateSpeaking); err != nil {
				s.logger.Warn("voice: state change", "session", s.id, "error", err)
			}
			s.queue.Enqueue(event.Audio)
		}

		if event.Transcript != "" && s.onTranscript != nil {
			s.onTranscript(event.Transcript)
		}
	}
}

// finishTurn moves the session back to listening once a completed turn has
// fully played out. Called from both the receive loop and the play queue,
// whichever notices the drain last.
func (s *Session) finishTurn() {
	if !s.turnEnding.CompareAndSwap(true, false) {
		return
	}
	if err := s.states.to(StateListening); err != nil {
		s.logger.Warn("voice: state change", "session", s.id, "error", err)
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
