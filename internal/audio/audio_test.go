package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFloat32ToPCM16ClampsAndScales(t *testing.T) {
	got := Float32ToPCM16([]float32{0, 1, -1, 2, -2, 0.5})
	samples := PCM16ToInt16(got)

	want := []int16{0, 32767, -32767, 32767, -32767, 16383}
	if len(samples) != len(want) {
		t.Fatalf("sample count mismatch: got %d want %d", len(samples), len(want))
	}
	for i, w := range want {
		if diff := int(samples[i]) - int(w); diff > 1 || diff < -1 {
			t.Errorf("sample %d: got %d want %d", i, samples[i], w)
		}
	}
}

func TestPCM16RoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, math.MaxInt16, math.MinInt16, 12345}
	out := PCM16ToInt16(Int16ToPCM16(in))
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestPCM16ToInt16DropsOddTrailingByte(t *testing.T) {
	if got := PCM16ToInt16([]byte{1, 0, 7}); len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
}

func TestPCM16Duration(t *testing.T) {
	// One second of mono PCM16 at 24kHz is 48000 bytes.
	if got := PCM16Duration(48000, PlaybackSampleRate); got != time.Second {
		t.Fatalf("duration = %v, want 1s", got)
	}
	if got := PCM16Duration(1600, CaptureSampleRate); got != 50*time.Millisecond {
		t.Fatalf("duration = %v, want 50ms", got)
	}
	if got := PCM16Duration(100, 0); got != 0 {
		t.Fatalf("duration with zero rate = %v, want 0", got)
	}
}

func TestRecorderProducesOutputFile(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(dir)

	recorder.encode = func(rawPath, sessionID string, sampleRate int) (string, error) {
		data, err := os.ReadFile(rawPath)
		if err != nil {
			return "", err
		}
		out := filepath.Join(dir, sessionID+".mp3")
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return "", err
		}
		return out, nil
	}

	if err := recorder.StartSession("abc123", CaptureSampleRate); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	writer := recorder.Writer(bytes.NewBuffer(nil))
	if _, err := writer.Write([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	path, err := recorder.EndSession()
	if err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if path == "" {
		t.Fatal("expected output path")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat output file failed: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("expected non-empty output file")
	}
}

func TestRecorderEndWithoutSessionIsNoop(t *testing.T) {
	recorder := NewRecorder(t.TempDir())
	path, err := recorder.EndSession()
	if err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if path != "" {
		t.Fatalf("expected empty path, got %q", path)
	}
}

func TestTeeWriterWritesToBothDestinations(t *testing.T) {
	dir := t.TempDir()
	recorder := NewRecorder(dir)
	recorder.encode = func(rawPath, sessionID string, sampleRate int) (string, error) {
		return filepath.Join(dir, sessionID+".wav"), os.WriteFile(filepath.Join(dir, sessionID+".wav"), []byte("ok"), 0o644)
	}

	if err := recorder.StartSession("tee", CaptureSampleRate); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	var downstream bytes.Buffer
	writer := recorder.Writer(&downstream)
	payload := []byte("hello-world")
	if _, err := writer.Write(payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if got := downstream.Bytes(); !bytes.Equal(got, payload) {
		t.Fatalf("downstream payload mismatch, got %q", string(got))
	}

	if _, err := recorder.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	rawBytes, err := os.ReadFile(filepath.Join(dir, "tee.pcm"))
	if err == nil && len(rawBytes) > 0 {
		t.Fatalf("expected raw pcm temp file cleanup, file still exists with %d bytes", len(rawBytes))
	}
}

func TestWavHeaderLayout(t *testing.T) {
	header := wavHeader(1000, CaptureSampleRate)
	if len(header) != wavHeaderSize {
		t.Fatalf("header length = %d, want %d", len(header), wavHeaderSize)
	}
	if string(header[:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		t.Fatalf("unexpected header magic: %q %q", header[:4], header[8:12])
	}
	if got := binary.LittleEndian.Uint32(header[24:28]); got != CaptureSampleRate {
		t.Fatalf("sample rate field = %d, want %d", got, CaptureSampleRate)
	}
	if got := binary.LittleEndian.Uint32(header[40:44]); got != 1000 {
		t.Fatalf("data size field = %d, want 1000", got)
	}
}
