package voice

import (
	"sync"
	"time"

	"github.com/nmurthy/campus-aide/internal/audio"
)

// Playback is the output device side of a session. Interrupt cuts off the
// buffer currently being written to the device; it must be safe to call
// concurrently with Play.
type Playback interface {
	Play(pcm []byte) error
	Interrupt()
	Close() error
}

// playQueue plays PCM16 buffers strictly in arrival order. Each buffer's
// start time is the later of now and the previous buffer's computed end
// time, so consecutive buffers never overlap and back-to-back buffers
// play gaplessly.
type playQueue struct {
	sink       Playback
	sampleRate int
	now        func() time.Time
	sleep      func(time.Duration)

	mu        sync.Mutex
	items     [][]byte
	nextStart time.Time
	closed    bool
	busy      bool
	gen       uint64
	onError   func(error)
	onIdle    func()
	notify    chan struct{}
	drained   chan struct{}
}

func newPlayQueue(sink Playback, sampleRate int) *playQueue {
	return newPlayQueueClock(sink, sampleRate, time.Now, time.Sleep)
}

func newPlayQueueClock(sink Playback, sampleRate int, now func() time.Time, sleep func(time.Duration)) *playQueue {
	q := &playQueue{
		sink:       sink,
		sampleRate: sampleRate,
		now:        now,
		sleep:      sleep,
		notify:     make(chan struct{}, 1),
		drained:    make(chan struct{}),
	}
	go q.run()
	return q
}

// callbacks installs the error and idle hooks. onError receives device
// write failures; onIdle fires whenever the queue finishes a buffer with
// nothing left to play.
func (q *playQueue) callbacks(onError func(error), onIdle func()) {
	q.mu.Lock()
	q.onError = onError
	q.onIdle = onIdle
	q.mu.Unlock()
}

func (q *playQueue) Enqueue(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, pcm)
	q.mu.Unlock()
	q.wake()
}

// Clear drops all pending buffers, cuts off the buffer currently on the
// device, and forgets the playback schedule so the next enqueued buffer
// starts right away.
func (q *playQueue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.nextStart = time.Time{}
	q.gen++
	q.mu.Unlock()
	q.sink.Interrupt()
}

// Pending reports how many buffers wait to be played.
func (q *playQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Idle reports whether nothing is queued and nothing is on the device.
func (q *playQueue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0 && !q.busy
}

// Close stops the player goroutine after the current buffer, dropping the
// rest, and waits for it to exit.
func (q *playQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.drained
		return
	}
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	q.wake()
	<-q.drained
}

func (q *playQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *playQueue) run() {
	defer close(q.drained)
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			<-q.notify
			continue
		}
		buf := q.items[0]
		q.items = q.items[1:]
		startAt := q.nextStart
		gen := q.gen
		q.busy = true
		q.mu.Unlock()

		now := q.now()
		if startAt.Before(now) {
			startAt = now
		}
		if wait := startAt.Sub(now); wait > 0 {
			q.sleep(wait)
		}

		var playErr error
		q.mu.Lock()
		stale := q.gen != gen
		q.mu.Unlock()
		if !stale {
			playErr = q.sink.Play(buf)
		}

		q.mu.Lock()
		q.busy = false
		if q.gen == gen {
			q.nextStart = startAt.Add(audio.PCM16Duration(len(buf), q.sampleRate))
		}
		idle := len(q.items) == 0 && !q.closed
		onError := q.onError
		onIdle := q.onIdle
		q.mu.Unlock()

		if playErr != nil && onError != nil {
			onError(playErr)
		}
		if idle && onIdle != nil {
			onIdle()
		}
	}
}
