package tokenizer

import (
	"errors"
	"fmt"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
)

// ErrVocabulary is wrapped around vocabulary-loading failures. Callers fall
// back to the character tokenizer when they see it.
var ErrVocabulary = errors.New("vocabulary tokenizer unavailable")

// SentencePiece is the vocabulary-based tokenizer. Whitespace pre-segmentation
// and subword lookup happen inside the SentencePiece processor; spans with no
// vocabulary entry map to its designated unknown-token id.
type SentencePiece struct {
	proc gosp.Sentencepiece
}

// NewSentencePiece loads a SentencePiece model file. An unreadable or
// incompatible file yields ErrVocabulary rather than a degraded tokenizer.
func NewSentencePiece(modelPath string) (*SentencePiece, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("%w: empty model path", ErrVocabulary)
	}

	proc, err := gosp.NewSentencepieceFromFile(modelPath, false)
	if err != nil {
		return nil, fmt.Errorf("%w: load %q: %v", ErrVocabulary, modelPath, err)
	}

	return &SentencePiece{proc: proc}, nil
}

func (t *SentencePiece) Encode(text string) []int64 {
	if text == "" {
		return []int64{}
	}

	ids := t.proc.TokenizeToIDs(text)

	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}

	return out
}
