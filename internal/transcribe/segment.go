// Package transcribe shapes streaming speech-to-text output into
// speaker-attributed segments and plain question text.
package transcribe

import (
	"fmt"
	"strings"
	"time"
)

// Word is one recognized word. Speaker is nil when diarization produced no
// attribution for it.
type Word struct {
	Speaker        *int
	PunctuatedWord string
	Start          float64
	End            float64
}

type Segment struct {
	Speaker   int       `json:"speaker"`
	Text      string    `json:"text"`
	StartTime float64   `json:"start_time"`
	EndTime   float64   `json:"end_time"`
	Timestamp time.Time `json:"timestamp"`
}

// GroupWordsBySpeaker folds a word stream into per-speaker segments. A
// dictated question is usually a single speaker, but study groups share a
// mic, so speaker turns are preserved. Unattributed words get speaker -1.
func GroupWordsBySpeaker(words []Word) []Segment {
	var segments []Segment
	for _, w := range words {
		speaker := -1
		if w.Speaker != nil {
			speaker = *w.Speaker
		}

		if n := len(segments); n > 0 && segments[n-1].Speaker == speaker {
			last := &segments[n-1]
			last.Text += " " + w.PunctuatedWord
			last.EndTime = w.End
			continue
		}

		segments = append(segments, Segment{
			Speaker:   speaker,
			Text:      w.PunctuatedWord,
			StartTime: w.Start,
			EndTime:   w.End,
			Timestamp: time.Now(),
		})
	}
	return segments
}

// Transcript joins segment texts into the question text sent to the
// answer service.
func Transcript(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func (s Segment) FormatLine() string {
	if s.Speaker < 0 {
		return strings.TrimSpace(s.Text)
	}
	return fmt.Sprintf("Speaker %d: %s", s.Speaker, strings.TrimSpace(s.Text))
}
