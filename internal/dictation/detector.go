package dictation

import (
	"sync"
	"time"
)

// Detector ends a dictation after the student stays quiet for the
// configured timeout. The timer arms on utterance end and disarms when
// speech resumes.
type Detector struct {
	timeout  time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	onExpire func()
}

func NewDetector(timeout time.Duration) *Detector {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Detector{timeout: timeout}
}

func (d *Detector) OnExpire(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onExpire = callback
}

func (d *Detector) OnSpeech() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Detector) OnUtteranceEnd() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.timeout, func() {
		d.mu.Lock()
		callback := d.onExpire
		d.timer = nil
		d.mu.Unlock()

		if callback != nil {
			callback()
		}
	})
}

// Cancel disarms any pending timer.
func (d *Detector) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
