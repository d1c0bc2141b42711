package audio

import (
	"fmt"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

const speakerFrames = 1024

// Speaker wraps a PortAudio output stream and plays PCM16-LE mono audio.
// Play blocks until the payload has been handed to the device, so callers
// that play buffers back to back get gapless output for free.
type Speaker struct {
	stream    *portaudio.Stream
	buf       []int16
	interrupt atomic.Bool
}

// NewSpeaker opens a PortAudio playback stream on the default output device.
func NewSpeaker(sampleRate int) (*Speaker, error) {
	buf := make([]int16, speakerFrames)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), speakerFrames, buf)
	if err != nil {
		return nil, fmt.Errorf("open playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start playback stream: %w", err)
	}
	return &Speaker{stream: stream, buf: buf}, nil
}

// Play writes the PCM16-LE payload to the output device, padding the final
// partial frame with silence. Interrupt cuts the write off between frames,
// so at most one device frame (speakerFrames samples) plays after the call.
func (s *Speaker) Play(pcm []byte) error {
	s.interrupt.Store(false)
	samples := PCM16ToInt16(pcm)
	for off := 0; off < len(samples); off += speakerFrames {
		if s.interrupt.Load() {
			return nil
		}
		end := off + speakerFrames
		if end > len(samples) {
			end = len(samples)
		}
		n := copy(s.buf, samples[off:end])
		for i := n; i < speakerFrames; i++ {
			s.buf[i] = 0
		}
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("write playback frame: %w", err)
		}
	}
	return nil
}

// Interrupt aborts an in-flight Play at the next frame boundary. Safe to
// call from any goroutine, including when no Play is running.
func (s *Speaker) Interrupt() {
	s.interrupt.Store(true)
}

func (s *Speaker) Close() error {
	if err := s.stream.Stop(); err != nil {
		_ = s.stream.Close()
		return err
	}
	return s.stream.Close()
}
