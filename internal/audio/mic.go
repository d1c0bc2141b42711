package audio

import (
	"io"

	"github.com/gordonklaus/portaudio"
)

// Mic wraps a PortAudio capture stream. It reads 32-bit float frames from
// the default input device and emits PCM16-LE bytes.
type Mic struct {
	stream *portaudio.Stream
	buf    []float32
}

// NewMic opens a PortAudio capture stream with the given sample rate and
// buffer size (in frames).
func NewMic(sampleRate, framesPerBuffer int) (*Mic, error) {
	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, err
	}
	return &Mic{stream: stream, buf: buf}, nil
}

func (m *Mic) Start() error { return m.stream.Start() }
func (m *Mic) Stop() error  { return m.stream.Stop() }
func (m *Mic) Close() error { return m.stream.Close() }

// Stream reads from the mic and writes PCM16-LE to w until an error or stop.
func (m *Mic) Stream(w io.Writer) error {
	for {
		if err := m.stream.Read(); err != nil {
			return err
		}
		if _, err := w.Write(Float32ToPCM16(m.buf)); err != nil {
			return err
		}
	}
}
