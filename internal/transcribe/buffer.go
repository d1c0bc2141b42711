package transcribe

// UtteranceBuffer collects words across the recognizer's is_final messages
// until a speech_final or utterance-end event closes the utterance.
type UtteranceBuffer struct {
	pending []Word
}

func NewUtteranceBuffer() *UtteranceBuffer {
	return &UtteranceBuffer{}
}

func (b *UtteranceBuffer) AddWords(words []Word) {
	b.pending = append(b.pending, words...)
}

// Flush hands back everything collected so far and empties the buffer; nil
// when nothing accumulated.
func (b *UtteranceBuffer) Flush() []Word {
	if len(b.pending) == 0 {
		return nil
	}
	words := b.pending
	b.pending = nil
	return words
}

func (b *UtteranceBuffer) Len() int {
	return len(b.pending)
}
