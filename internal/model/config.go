package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the subset of the model's config document the pipeline needs.
type Config struct {
	SampleRate        int   // output waveform rate, Hz
	NumCodebooks      int   // parallel code sequences per step
	CodebookSize      int   // valid codes per codebook, [0, CodebookSize)
	CodeVocabSize     int   // decoder output width: codes plus the EOS id
	EOSCode           int64 // decoder stop code
	HiddenSize        int
	TextVocabSize     int
	LatentDim         int
	HopLength         int // samples per generated step
	MaxSupportedSteps int // hard cap on generation length
}

type configDoc struct {
	Decoder struct {
		NumCodebooks          int   `json:"num_codebooks"`
		HiddenSize            int   `json:"hidden_size"`
		VocabSize             int   `json:"vocab_size"`
		EOSTokenID            int64 `json:"eos_token_id"`
		MaxPositionEmbeddings int   `json:"max_position_embeddings"`
	} `json:"decoder"`
	TextEncoder struct {
		VocabSize int `json:"vocab_size"`
	} `json:"text_encoder"`
	AudioEncoder struct {
		SamplingRate int `json:"sampling_rate"`
		CodebookSize int `json:"codebook_size"`
		CodebookDim  int `json:"codebook_dim"`
		HopLength    int `json:"hop_length"`
	} `json:"audio_encoder"`
}

// ParseConfig decodes and validates a model config document.
func ParseConfig(data []byte) (Config, error) {
	var doc configDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("%w: parse config: %v", ErrLoad, err)
	}

	cfg := Config{
		SampleRate:        doc.AudioEncoder.SamplingRate,
		NumCodebooks:      doc.Decoder.NumCodebooks,
		CodebookSize:      doc.AudioEncoder.CodebookSize,
		CodeVocabSize:     doc.Decoder.VocabSize,
		EOSCode:           doc.Decoder.EOSTokenID,
		HiddenSize:        doc.Decoder.HiddenSize,
		TextVocabSize:     doc.TextEncoder.VocabSize,
		LatentDim:         doc.AudioEncoder.CodebookDim,
		HopLength:         doc.AudioEncoder.HopLength,
		MaxSupportedSteps: doc.Decoder.MaxPositionEmbeddings,
	}

	return cfg, cfg.validate()
}

// ReadConfig loads and parses a config document from disk.
func ReadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: read config %s: %v", ErrLoad, path, err)
	}

	return ParseConfig(data)
}

func (c Config) validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: config: sampling rate %d", ErrLoad, c.SampleRate)
	case c.NumCodebooks <= 0:
		return fmt.Errorf("%w: config: num codebooks %d", ErrLoad, c.NumCodebooks)
	case c.CodebookSize <= 0:
		return fmt.Errorf("%w: config: codebook size %d", ErrLoad, c.CodebookSize)
	case c.CodeVocabSize <= c.CodebookSize:
		return fmt.Errorf("%w: config: decoder vocab %d must exceed codebook size %d",
			ErrLoad, c.CodeVocabSize, c.CodebookSize)
	case c.EOSCode < int64(c.CodebookSize) || c.EOSCode >= int64(c.CodeVocabSize):
		return fmt.Errorf("%w: config: eos code %d outside [%d,%d)",
			ErrLoad, c.EOSCode, c.CodebookSize, c.CodeVocabSize)
	case c.HiddenSize <= 0:
		return fmt.Errorf("%w: config: hidden size %d", ErrLoad, c.HiddenSize)
	case c.TextVocabSize <= 0:
		return fmt.Errorf("%w: config: text vocab size %d", ErrLoad, c.TextVocabSize)
	case c.LatentDim <= 0:
		return fmt.Errorf("%w: config: codebook dim %d", ErrLoad, c.LatentDim)
	case c.HopLength <= 0:
		return fmt.Errorf("%w: config: hop length %d", ErrLoad, c.HopLength)
	case c.MaxSupportedSteps <= 0:
		return fmt.Errorf("%w: config: max position embeddings %d", ErrLoad, c.MaxSupportedSteps)
	}

	return nil
}
