package voice

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nmurthy/campus-aide/internal/audio"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type playRecord struct {
	tag byte
	len int
	at  time.Time
}

type fakePlayback struct {
	now   func() time.Time
	gate  chan struct{}
	abort chan struct{} // buffered; Interrupt releases a gated Play through it

	mu         sync.Mutex
	plays      []playRecord
	interrupts int
	closed     bool
	closeErr   error
	playErr    error
	notify     chan playRecord
}

// Play records the buffer and signals notify before waiting on gate, so
// tests can act while a buffer is mid-play. Interrupt releases the wait
// the way a real device write is cut off between frames.
func (p *fakePlayback) Play(pcm []byte) error {
	at := time.Time{}
	if p.now != nil {
		at = p.now()
	}
	rec := playRecord{tag: pcm[0], len: len(pcm), at: at}
	p.mu.Lock()
	p.plays = append(p.plays, rec)
	err := p.playErr
	p.mu.Unlock()
	if p.notify != nil {
		p.notify <- rec
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-p.abort:
		}
	}
	return err
}

func (p *fakePlayback) Interrupt() {
	p.mu.Lock()
	p.interrupts++
	p.mu.Unlock()
	if p.abort != nil {
		select {
		case p.abort <- struct{}{}:
		default:
		}
	}
}

func (p *fakePlayback) interrupted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupts
}

func (p *fakePlayback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *fakePlayback) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func collectPlays(t *testing.T, ch <-chan playRecord, n int) []playRecord {
	t.Helper()
	out := make([]playRecord, 0, n)
	for len(out) < n {
		select {
		case rec := <-ch:
			out = append(out, rec)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for play %d of %d", len(out)+1, n)
		}
	}
	return out
}

func TestPlayQueuePlaysInOrderWithoutOverlap(t *testing.T) {
	clock := newFakeClock()
	notify := make(chan playRecord, 8)
	sink := &fakePlayback{now: clock.Now, notify: notify}
	q := newPlayQueueClock(sink, audio.PlaybackSampleRate, clock.Now, clock.Sleep)
	defer q.Close()

	// 100ms, 50ms, and 100ms of 24kHz mono PCM16.
	bufA := bytes.Repeat([]byte{1}, 4800)
	bufB := bytes.Repeat([]byte{2}, 2400)
	bufC := bytes.Repeat([]byte{3}, 4800)
	q.Enqueue(bufA)
	q.Enqueue(bufB)
	q.Enqueue(bufC)

	plays := collectPlays(t, notify, 3)
	for i, want := range []byte{1, 2, 3} {
		if plays[i].tag != want {
			t.Fatalf("play %d has tag %d, want %d", i, plays[i].tag, want)
		}
	}

	for i := 1; i < len(plays); i++ {
		prevEnd := plays[i-1].at.Add(audio.PCM16Duration(plays[i-1].len, audio.PlaybackSampleRate))
		if plays[i].at.Before(prevEnd) {
			t.Fatalf("play %d started at %v, before previous buffer ended at %v", i, plays[i].at, prevEnd)
		}
	}

	// Back-to-back buffers start exactly at each other's end.
	wantB := plays[0].at.Add(100 * time.Millisecond)
	if !plays[1].at.Equal(wantB) {
		t.Fatalf("second buffer started at %v, want %v", plays[1].at, wantB)
	}
	wantC := plays[1].at.Add(50 * time.Millisecond)
	if !plays[2].at.Equal(wantC) {
		t.Fatalf("third buffer started at %v, want %v", plays[2].at, wantC)
	}
}

func TestPlayQueueClearDropsPendingBuffers(t *testing.T) {
	gate := make(chan struct{})
	notify := make(chan playRecord, 8)
	sink := &fakePlayback{gate: gate, notify: notify}
	clock := newFakeClock()
	q := newPlayQueueClock(sink, audio.PlaybackSampleRate, clock.Now, clock.Sleep)

	q.Enqueue([]byte{1, 0})
	q.Enqueue([]byte{2, 0})
	q.Enqueue([]byte{3, 0})

	// Wait for the first buffer to reach the sink, then clear while it is
	// still mid-play.
	first := <-notify
	if first.tag != 1 {
		t.Fatalf("first play has tag %d, want 1", first.tag)
	}
	q.Clear()
	if got := q.Pending(); got != 0 {
		t.Fatalf("pending after clear = %d, want 0", got)
	}

	// New audio after the clear still plays.
	close(gate)
	q.Enqueue([]byte{4, 0})
	next := <-notify
	if next.tag != 4 {
		t.Fatalf("play after clear has tag %d, want 4", next.tag)
	}
	q.Close()

	sink.mu.Lock()
	total := len(sink.plays)
	sink.mu.Unlock()
	if total != 2 {
		t.Fatalf("sink saw %d plays, want 2", total)
	}
}

func TestPlayQueueClearCutsInFlightBuffer(t *testing.T) {
	gate := make(chan struct{})
	notify := make(chan playRecord, 8)
	clock := newFakeClock()
	sink := &fakePlayback{now: clock.Now, gate: gate, abort: make(chan struct{}, 1), notify: notify}
	q := newPlayQueueClock(sink, audio.PlaybackSampleRate, clock.Now, clock.Sleep)
	defer q.Close()
	defer close(gate)

	q.Enqueue(bytes.Repeat([]byte{1}, 4800))
	first := <-notify
	if first.tag != 1 {
		t.Fatalf("first play has tag %d, want 1", first.tag)
	}

	// The buffer is on the device. Clear must cut it off, not let it run
	// its remaining duration.
	q.Clear()
	if got := sink.interrupted(); got != 1 {
		t.Fatalf("clear interrupted the sink %d times, want 1", got)
	}

	// The cut buffer must not reserve schedule time: the next buffer plays
	// immediately instead of waiting out the old end time.
	start := clock.Now()
	q.Enqueue([]byte{2, 0})
	next := <-notify
	if next.tag != 2 {
		t.Fatalf("play after clear has tag %d, want 2", next.tag)
	}
	if next.at.After(start) {
		t.Fatalf("buffer after clear delayed until %v, want immediate at %v", next.at, start)
	}
}

func TestPlayQueueReportsDeviceErrors(t *testing.T) {
	sink := &fakePlayback{playErr: errors.New("device gone")}
	clock := newFakeClock()
	q := newPlayQueueClock(sink, audio.PlaybackSampleRate, clock.Now, clock.Sleep)
	defer q.Close()

	errCh := make(chan error, 1)
	q.callbacks(func(err error) { errCh <- err }, nil)

	q.Enqueue([]byte{1, 0})
	select {
	case err := <-errCh:
		if err == nil || err.Error() != "device gone" {
			t.Fatalf("got error %v, want device gone", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("device error never reached the callback")
	}
}

func TestPlayQueueSignalsIdleAfterDrain(t *testing.T) {
	notify := make(chan playRecord, 8)
	sink := &fakePlayback{notify: notify}
	clock := newFakeClock()
	q := newPlayQueueClock(sink, audio.PlaybackSampleRate, clock.Now, clock.Sleep)
	defer q.Close()

	idle := make(chan struct{}, 4)
	q.callbacks(nil, func() { idle <- struct{}{} })

	q.Enqueue([]byte{1, 0})
	q.Enqueue([]byte{2, 0})
	collectPlays(t, notify, 2)

	select {
	case <-idle:
	case <-time.After(2 * time.Second):
		t.Fatal("queue never signalled idle after draining")
	}
	if !q.Idle() {
		t.Fatal("queue reports busy after draining")
	}
}

func TestPlayQueueCloseStopsRunner(t *testing.T) {
	sink := &fakePlayback{}
	clock := newFakeClock()
	q := newPlayQueueClock(sink, audio.PlaybackSampleRate, clock.Now, clock.Sleep)
	q.Close()
	q.Enqueue([]byte{1, 0})
	if got := q.Pending(); got != 0 {
		t.Fatalf("enqueue after close kept %d buffers", got)
	}
	// Second close must not block or panic.
	q.Close()
}
