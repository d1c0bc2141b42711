package audio

import (
	"encoding/binary"
	"time"
)

const (
	// CaptureSampleRate is the rate the mic captures at and the rate the
	// live answer service expects for inbound audio.
	CaptureSampleRate = 16000

	// PlaybackSampleRate is the rate of PCM16 audio the live answer
	// service sends back.
	PlaybackSampleRate = 24000

	bytesPerSample = 2
)

// Float32ToPCM16 converts 32-bit float samples in [-1, 1] to PCM16-LE bytes.
// Out-of-range samples are clamped.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(v))
	}
	return out
}

// PCM16ToInt16 decodes PCM16-LE bytes into int16 samples. A trailing odd
// byte is dropped.
func PCM16ToInt16(data []byte) []int16 {
	n := len(data) / bytesPerSample
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:]))
	}
	return out
}

// Int16ToPCM16 encodes int16 samples as PCM16-LE bytes.
func Int16ToPCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(s))
	}
	return out
}

// PCM16Duration reports how long the given PCM16 mono payload plays for at
// the given sample rate.
func PCM16Duration(byteLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := byteLen / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
