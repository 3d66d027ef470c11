// Package model builds and owns the process-wide model bundle: parsed
// configuration, tokenizer, and the decoder and codec loaded from weights.
// A bundle is created once at startup, never mutated, and shared by
// reference across all concurrent requests.
package model

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/go-parler-tts/internal/native"
	"github.com/example/go-parler-tts/internal/safetensors"
	"github.com/example/go-parler-tts/internal/tokenizer"
)

// ErrLoad is wrapped around every bundle construction failure. It is fatal:
// the process must not serve traffic with a partially initialized bundle.
var ErrLoad = errors.New("model load failed")

// Bundle is the immutable, process-wide model state.
type Bundle struct {
	Config    Config
	Tokenizer tokenizer.Tokenizer
	Decoder   *native.Decoder
	Codec     *native.AudioCodec
}

// LoadOptions names the local artifacts a bundle is built from. The artifact
// store (internal/hub) resolves these paths from a model identifier.
type LoadOptions struct {
	ConfigPath    string
	TokenizerPath string
	WeightPaths   []string
}

// Load builds the bundle from resolved artifact paths. Weight shards are
// merged into a single store. If the tokenizer model cannot be loaded, the
// character fallback is selected instead of failing, so only weight or
// config problems abort startup.
func Load(opts LoadOptions) (*Bundle, error) {
	cfg, err := ReadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	store, err := safetensors.OpenShards(opts.WeightPaths)
	if err != nil {
		return nil, fmt.Errorf("%w: open weights: %v", ErrLoad, err)
	}

	tok := selectTokenizer(opts.TokenizerPath, cfg.TextVocabSize)

	return FromStore(cfg, store, tok)
}

// FromStore assembles a bundle over an already-open weight store. Tests use
// this with in-memory stores.
func FromStore(cfg Config, store *safetensors.Store, tok tokenizer.Tokenizer) (*Bundle, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if tok == nil {
		tok = tokenizer.NewChar(cfg.TextVocabSize)
	}

	vb := native.NewVarBuilder(store)

	dec, err := native.LoadDecoder(vb, native.DecoderConfig{
		HiddenSize:    cfg.HiddenSize,
		TextVocabSize: cfg.TextVocabSize,
		NumCodebooks:  cfg.NumCodebooks,
		CodeVocabSize: cfg.CodeVocabSize,
		EOSCode:       cfg.EOSCode,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	codec, err := native.LoadAudioCodec(vb, native.CodecConfig{
		NumCodebooks: cfg.NumCodebooks,
		CodebookSize: cfg.CodebookSize,
		LatentDim:    cfg.LatentDim,
		HopLength:    cfg.HopLength,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	return &Bundle{
		Config:    cfg,
		Tokenizer: tok,
		Decoder:   dec,
		Codec:     codec,
	}, nil
}

// selectTokenizer picks the vocabulary tokenizer when its model file loads
// and the character fallback otherwise. The choice is made once here, never
// per request.
func selectTokenizer(path string, vocabSize int) tokenizer.Tokenizer {
	sp, err := tokenizer.NewSentencePiece(path)
	if err != nil {
		slog.Warn("vocabulary tokenizer unavailable, using character fallback",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return tokenizer.NewChar(vocabSize)
	}

	return sp
}
