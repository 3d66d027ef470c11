// Package tokenizer maps text to model token ids. The vocabulary-based
// SentencePiece variant is used whenever its model file loads; the character
// fallback keeps the pipeline operable when it does not.
package tokenizer

// Tokenizer encodes text into token ids. Implementations are pure functions
// of the input and their fixed vocabulary, and never fail: every input,
// including the empty string, produces a (possibly empty) id sequence.
type Tokenizer interface {
	Encode(text string) []int64
}
