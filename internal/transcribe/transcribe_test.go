package transcribe

import "testing"

func intPtr(v int) *int { return &v }

func TestGroupWordsBySpeaker(t *testing.T) {
	words := []Word{
		{Speaker: intPtr(0), PunctuatedWord: "What", Start: 0.0, End: 0.2},
		{Speaker: intPtr(0), PunctuatedWord: "are", Start: 0.2, End: 0.4},
		{Speaker: intPtr(0), PunctuatedWord: "the", Start: 0.4, End: 0.5},
		{Speaker: intPtr(0), PunctuatedWord: "exam", Start: 0.5, End: 0.8},
		{Speaker: intPtr(0), PunctuatedWord: "dates?", Start: 0.8, End: 1.1},
		{Speaker: intPtr(1), PunctuatedWord: "And", Start: 1.5, End: 1.7},
		{Speaker: intPtr(1), PunctuatedWord: "the", Start: 1.7, End: 1.8},
		{Speaker: intPtr(1), PunctuatedWord: "fees?", Start: 1.8, End: 2.1},
	}

	segments := GroupWordsBySpeaker(words)
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Speaker != 0 || segments[0].Text != "What are the exam dates?" {
		t.Errorf("segment 0 = %+v", segments[0])
	}
	if segments[1].Speaker != 1 || segments[1].Text != "And the fees?" {
		t.Errorf("segment 1 = %+v", segments[1])
	}
	if segments[0].StartTime != 0.0 || segments[0].EndTime != 1.1 {
		t.Errorf("segment 0 span = [%v, %v]", segments[0].StartTime, segments[0].EndTime)
	}
}

func TestGroupWordsBySpeakerNilSpeaker(t *testing.T) {
	words := []Word{
		{PunctuatedWord: "Hello", Start: 0, End: 0.3},
		{PunctuatedWord: "there.", Start: 0.3, End: 0.6},
	}
	segments := GroupWordsBySpeaker(words)
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Speaker != -1 {
		t.Errorf("speaker = %d, want -1 for undiarized words", segments[0].Speaker)
	}
}

func TestGroupWordsBySpeakerEmpty(t *testing.T) {
	if got := GroupWordsBySpeaker(nil); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestTranscriptJoinsSegments(t *testing.T) {
	segments := []Segment{
		{Text: "What are the exam dates?"},
		{Text: "  "},
		{Text: "And the fees?"},
	}
	got := Transcript(segments)
	want := "What are the exam dates? And the fees?"
	if got != want {
		t.Fatalf("Transcript = %q, want %q", got, want)
	}
}

func TestUtteranceBuffer(t *testing.T) {
	b := NewUtteranceBuffer()
	if got := b.Flush(); got != nil {
		t.Fatalf("flush of empty buffer = %v, want nil", got)
	}

	b.AddWords([]Word{{PunctuatedWord: "hello"}})
	b.AddWords([]Word{{PunctuatedWord: "world"}})
	if b.Len() != 2 {
		t.Fatalf("len = %d, want 2", b.Len())
	}

	words := b.Flush()
	if len(words) != 2 {
		t.Fatalf("flushed %d words, want 2", len(words))
	}
	if b.Len() != 0 {
		t.Fatalf("buffer not reset, len = %d", b.Len())
	}
}

func TestSegmentFormatLine(t *testing.T) {
	seg := Segment{Speaker: 2, Text: " hello "}
	if got := seg.FormatLine(); got != "Speaker 2: hello" {
		t.Fatalf("FormatLine = %q", got)
	}
	anon := Segment{Speaker: -1, Text: "hello"}
	if got := anon.FormatLine(); got != "hello" {
		t.Fatalf("FormatLine = %q", got)
	}
}
