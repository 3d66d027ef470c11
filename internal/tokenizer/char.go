package tokenizer

// Char is the degraded-mode fallback: each rune maps to its codepoint modulo
// the vocabulary size. The ids carry no vocabulary meaning; the variant
// exists only so the pipeline stays operable when no SentencePiece model can
// be loaded.
type Char struct {
	vocabSize int64
}

// NewChar returns a character tokenizer over a vocabulary of n ids.
// Non-positive n falls back to 256.
func NewChar(n int) *Char {
	if n <= 0 {
		n = 256
	}

	return &Char{vocabSize: int64(n)}
}

func (t *Char) Encode(text string) []int64 {
	out := make([]int64, 0, len(text))
	for _, r := range text {
		out = append(out, int64(r)%t.vocabSize)
	}

	return out
}
