package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nmurthy/campus-aide/internal/audio"
	"github.com/nmurthy/campus-aide/internal/metrics"
)

var (
	ErrSessionActive = errors.New("a voice session is already active")
	ErrNoSession     = errors.New("no active voice session")
)

// Dialer opens a fresh live answer stream.
type Dialer interface {
	Dial(ctx context.Context) (LiveStream, error)
}

// Devices opens the audio hardware for a session. Injected so tests can
// run the whole pipeline without PortAudio.
type Devices struct {
	OpenCapture  func() (Capture, error)
	OpenPlayback func() (Playback, error)
}

// Config tunes the manager. Zero values fall back to defaults.
type Config struct {
	MaxRetries int           // connection attempts per outage, default 3
	RetryBase  time.Duration // first backoff delay, doubled per attempt, default 1s
	Record     bool          // archive the student's mic audio per session
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	return c
}

// Manager owns the single voice session slot. Starting a session while one
// is active fails; a session that dies mid-conversation is redialed a
// bounded number of times before the slot is released with an error state.
type Manager struct {
	base         context.Context
	dialer       Dialer
	devices      Devices
	recorder     *audio.Recorder
	logger       *slog.Logger
	onState      func(State)
	onTranscript func(string)
	cfg          Config
	sleep        func(time.Duration)

	mu       sync.Mutex
	sess     *Session
	states   *machine
	id       string
	stopReq  *atomic.Bool
	finished chan struct{}
}

// NewManager builds a manager whose sessions live on ctx: the process
// lifetime, not any one HTTP request. Cancelling ctx ends the active
// session and stops redialing.
func NewManager(ctx context.Context, dialer Dialer, devices Devices, recorder *audio.Recorder, logger *slog.Logger, cfg Config) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		base:     ctx,
		dialer:   dialer,
		devices:  devices,
		recorder: recorder,
		logger:   logger,
		cfg:      cfg.withDefaults(),
		sleep:    time.Sleep,
	}
}

// OnState registers a callback for session state changes. Must be set
// before Start.
func (m *Manager) OnState(fn func(State)) { m.onState = fn }

// OnTranscript registers a callback for model speech transcripts.
func (m *Manager) OnTranscript(fn func(string)) { m.onTranscript = fn }

// Start claims the session slot and connects, retrying with exponential
// backoff before giving up. It returns the new session's ID. ctx bounds
// only the connect phase; once connected the session runs on the
// manager's base context until Stop or a fatal error.
func (m *Manager) Start(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.sess != nil {
		m.mu.Unlock()
		return "", ErrSessionActive
	}
	id := uuid.NewString()
	states := newMachine(m.onState)
	stopReq := &atomic.Bool{}
	finished := make(chan struct{})
	m.id = id
	m.states = states
	m.stopReq = stopReq
	m.finished = finished
	m.mu.Unlock()

	if err := states.to(StateInitializing); err != nil {
		m.release()
		close(finished)
		return "", err
	}

	sess, err := m.connectWithRetry(ctx, id, states, false)
	if err != nil {
		_ = states.to(StateError)
		m.release()
		close(finished)
		return "", err
	}

	m.mu.Lock()
	m.sess = sess
	m.mu.Unlock()

	if m.cfg.Record && m.recorder != nil {
		if err := m.recorder.StartSession(id, audio.CaptureSampleRate); err != nil {
			m.logger.Warn("voice: start recording", "session", id, "error", err)
		}
	}

	metrics.VoiceSessionStarted()
	go m.supervise(m.base, sess, id, states, stopReq, finished)
	return id, nil
}

// Stop ends the active session and blocks until the slot is free.
func (m *Manager) Stop() error {
	m.mu.Lock()
	sess := m.sess
	stopReq := m.stopReq
	finished := m.finished
	m.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	stopReq.Store(true)
	sess.Close()
	<-finished
	return nil
}

// Mute toggles the active session's mic.
func (m *Manager) Mute(on bool) error {
	m.mu.Lock()
	sess := m.sess
	m.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}
	sess.Mute(on)
	return nil
}

// Status reports the current slot. With no active session the state is
// idle and the ID empty.
func (m *Manager) Status() (id string, state State, muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil || m.states == nil {
		return "", StateIdle, false
	}
	return m.id, m.states.state(), m.sess.Muted()
}

func (m *Manager) release() {
	m.mu.Lock()
	m.sess = nil
	m.states = nil
	m.id = ""
	m.mu.Unlock()
}

func (m *Manager) supervise(ctx context.Context, sess *Session, id string, states *machine, stopReq *atomic.Bool, finished chan struct{}) {
	defer close(finished)
	defer metrics.VoiceSessionEnded()
	for {
		err := sess.run(ctx)
		if err == nil || stopReq.Load() || ctx.Err() != nil {
			_ = states.to(StateClosed)
			m.endRecording(id)
			m.release()
			return
		}

		m.logger.Warn("voice: session dropped", "session", id, "error", err)
		metrics.CountVoiceReconnect()
		next, redialErr := m.connectWithRetry(ctx, id, states, true)
		if redialErr != nil {
			m.logger.Error("voice: giving up on session", "session", id, "error", redialErr)
			_ = states.to(StateError)
			m.endRecording(id)
			m.release()
			return
		}

		if stopReq.Load() {
			// Stop came in while redialing.
			next.teardown()
			_ = states.to(StateClosed)
			m.endRecording(id)
			m.release()
			return
		}

		m.mu.Lock()
		m.sess = next
		m.mu.Unlock()
		sess = next
	}
}

// connectWithRetry makes up to MaxRetries full connection attempts. Every
// failed attempt tears down whatever it managed to open before backing off.
func (m *Manager) connectWithRetry(ctx context.Context, id string, states *machine, redial bool) (*Session, error) {
	var lastErr error
	for attempt := 0; attempt < m.cfg.MaxRetries; attempt++ {
		if attempt > 0 || redial {
			if err := states.to(StateReconnecting); err != nil {
				return nil, err
			}
			delay := m.cfg.RetryBase << uint(attempt)
			if !redial {
				delay = m.cfg.RetryBase << uint(attempt-1)
			}
			m.sleep(delay)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := states.to(StateConnecting); err != nil {
			return nil, err
		}

		sess, err := m.connect(id, states)
		if err == nil {
			if err := states.to(StateListening); err != nil {
				sess.teardown()
				return nil, err
			}
			return sess, nil
		}
		lastErr = err
		m.logger.Warn("voice: connect attempt failed", "session", id, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("connect after %d attempts: %w", m.cfg.MaxRetries, lastErr)
}

// connect opens devices and the live stream, unwinding partial progress on
// failure so nothing leaks between attempts. The dial runs on the base
// context: the stream must outlive whatever request asked for it.
func (m *Manager) connect(id string, states *machine) (*Session, error) {
	capture, err := m.devices.OpenCapture()
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	playback, err := m.devices.OpenPlayback()
	if err != nil {
		_ = capture.Close()
		return nil, fmt.Errorf("open playback: %w", err)
	}
	stream, err := m.dialer.Dial(m.base)
	if err != nil {
		_ = capture.Close()
		_ = playback.Close()
		return nil, fmt.Errorf("dial live stream: %w", err)
	}

	var tap io.Writer
	if m.cfg.Record && m.recorder != nil {
		tap = m.recorder.Writer(io.Discard)
	}

	return newSession(sessionConfig{
		id:           id,
		stream:       stream,
		capture:      capture,
		playback:     playback,
		states:       states,
		logger:       m.logger,
		onTranscript: m.onTranscript,
		sampleRate:   audio.PlaybackSampleRate,
		tap:          tap,
	}), nil
}

func (m *Manager) endRecording(id string) {
	if !m.cfg.Record || m.recorder == nil {
		return
	}
	path, err := m.recorder.EndSession()
	if err != nil {
		m.logger.Warn("voice: finalize recording", "session", id, "error", err)
		return
	}
	if path != "" {
		m.logger.Info("voice: recording saved", "session", id, "path", path)
	}
}
