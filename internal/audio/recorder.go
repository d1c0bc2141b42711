package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
)

const (
	pcmChannels = 1
	pcmBitDepth = 16

	wavHeaderSize = 44
)

// Recorder archives the student's side of a voice session. Raw PCM16 is
// appended while the session runs and encoded to a single file when it ends.
type Recorder struct {
	audioDir string

	mu         sync.Mutex
	sessionID  string
	rawPath    string
	rawFile    *os.File
	sampleRate int

	encode func(rawPath, sessionID string, sampleRate int) (string, error)
}

func NewRecorder(audioDir string) *Recorder {
	if audioDir == "" {
		audioDir = filepath.Join("data", "audio")
	}
	return &Recorder{
		audioDir:   audioDir,
		sampleRate: CaptureSampleRate,
		encode:     encodeArchive,
	}
}

// Writer tees PCM16 bytes to dst and to the active session archive.
// When no session is active, writes pass through untouched.
func (r *Recorder) Writer(dst io.Writer) io.Writer {
	return &teeWriter{recorder: r, dst: dst}
}

func (r *Recorder) StartSession(sessionID string, sampleRate int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.audioDir, 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}
	if r.rawFile != nil {
		_ = r.rawFile.Close()
	}

	rawPath := filepath.Join(r.audioDir, sessionID+".pcm")
	rawFile, err := os.Create(rawPath)
	if err != nil {
		return fmt.Errorf("open raw pcm file: %w", err)
	}

	r.sessionID = sessionID
	r.rawPath = rawPath
	r.rawFile = rawFile
	if sampleRate > 0 {
		r.sampleRate = sampleRate
	}
	return nil
}

// EndSession closes the raw capture, encodes it, and returns the path of
// the encoded file. Returns an empty path when no session was recording.
func (r *Recorder) EndSession() (string, error) {
	r.mu.Lock()
	sessionID, rawPath, rawFile, sampleRate := r.sessionID, r.rawPath, r.rawFile, r.sampleRate
	r.sessionID = ""
	r.rawPath = ""
	r.rawFile = nil
	r.mu.Unlock()

	if sessionID == "" || rawFile == nil {
		return "", nil
	}
	if err := rawFile.Close(); err != nil {
		return "", fmt.Errorf("close raw pcm file: %w", err)
	}

	audioPath, err := r.encode(rawPath, sessionID, sampleRate)
	if err != nil {
		return "", err
	}

	_ = os.Remove(rawPath)
	return audioPath, nil
}

func (r *Recorder) writePCM(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rawFile == nil {
		return nil
	}
	if _, err := r.rawFile.Write(data); err != nil {
		return fmt.Errorf("write raw pcm bytes: %w", err)
	}
	return nil
}

// encodeArchive prefers mp3 via ffmpeg and falls back to wrapping the PCM in
// a wav container when no encoder is on the host.
func encodeArchive(rawPath, sessionID string, sampleRate int) (string, error) {
	if sampleRate <= 0 {
		sampleRate = CaptureSampleRate
	}
	dir := filepath.Dir(rawPath)

	mp3Path := filepath.Join(dir, sessionID+".mp3")
	if err := runFFmpeg(rawPath, mp3Path, sampleRate); err == nil {
		return mp3Path, nil
	}

	wavPath := filepath.Join(dir, sessionID+".wav")
	if err := pcmToWav(rawPath, wavPath, sampleRate); err != nil {
		return "", fmt.Errorf("encode wav fallback: %w", err)
	}
	return wavPath, nil
}

func runFFmpeg(rawPath, outputPath string, sampleRate int) error {
	cmd := exec.Command(
		"ffmpeg",
		"-y",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(pcmChannels),
		"-i", rawPath,
		outputPath,
	)
	return cmd.Run()
}

func pcmToWav(rawPath, wavPath string, sampleRate int) error {
	in, err := os.Open(rawPath)
	if err != nil {
		return fmt.Errorf("open raw pcm data: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat raw pcm data: %w", err)
	}

	out, err := os.Create(wavPath)
	if err != nil {
		return fmt.Errorf("open wav output: %w", err)
	}
	defer out.Close()

	if _, err := out.Write(wavHeader(int(info.Size()), sampleRate)); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("write wav payload: %w", err)
	}
	return nil
}

// wavHeader builds a canonical 44-byte PCM wav header.
func wavHeader(dataSize, sampleRate int) []byte {
	byteRate := sampleRate * pcmChannels * pcmBitDepth / 8
	blockAlign := pcmChannels * pcmBitDepth / 8

	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataSize))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(h[22:24], pcmChannels)
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], pcmBitDepth)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataSize))
	return h
}

type teeWriter struct {
	recorder *Recorder
	dst      io.Writer
}

func (w *teeWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.recorder.writePCM(p[:n]); err != nil {
		return n, err
	}
	return n, nil
}
