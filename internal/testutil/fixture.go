// Package testutil provides test fixtures and WAV assertions shared across
// package tests. The fixture bundle is a miniature model with deterministic
// weights, small enough that the full pipeline runs hermetically in unit
// tests.
package testutil

import (
	"fmt"
	"math"
	"testing"

	"github.com/example/go-parler-tts/internal/model"
	"github.com/example/go-parler-tts/internal/safetensors"
	"github.com/example/go-parler-tts/internal/tokenizer"
)

// FixtureSampleRate is the sample rate declared by the fixture model config.
const FixtureSampleRate = 24000

// FixtureConfig returns the miniature model configuration used by the
// fixture bundle.
func FixtureConfig() model.Config {
	return model.Config{
		SampleRate:        FixtureSampleRate,
		NumCodebooks:      2,
		CodebookSize:      6,
		CodeVocabSize:     7,
		EOSCode:           6,
		HiddenSize:        8,
		TextVocabSize:     64,
		LatentDim:         4,
		HopLength:         10,
		MaxSupportedSteps: 64,
	}
}

// FixtureBundle builds an in-memory model bundle with deterministic weights
// and the character tokenizer.
func FixtureBundle(tb testing.TB) *model.Bundle {
	tb.Helper()

	cfg := FixtureConfig()

	data, err := safetensors.Encode(FixtureTensors(cfg))
	if err != nil {
		tb.Fatalf("encode fixture tensors: %v", err)
	}

	store, err := safetensors.OpenBytes(data)
	if err != nil {
		tb.Fatalf("open fixture store: %v", err)
	}

	bundle, err := model.FromStore(cfg, store, tokenizer.NewChar(cfg.TextVocabSize))
	if err != nil {
		tb.Fatalf("build fixture bundle: %v", err)
	}

	return bundle
}

// FixtureTensors generates the full weight set for cfg. Every value is a
// fixed function of its position, so repeated calls produce identical
// bundles. The EOS row of each lm head is all zeros while the first two code
// rows are sign-opposed, which keeps greedy sampling from ever selecting the
// stop code: generation length is then governed purely by the step budget.
func FixtureTensors(cfg model.Config) []safetensors.Tensor {
	tensors := []safetensors.Tensor{
		{
			Name:  "text_encoder.embed_tokens.weight",
			Shape: []int64{int64(cfg.TextVocabSize), int64(cfg.HiddenSize)},
			Data:  fill(1, cfg.TextVocabSize*cfg.HiddenSize, 1.0),
		},
		{
			Name:  "decoder.embed_prompts.weight",
			Shape: []int64{int64(cfg.TextVocabSize), int64(cfg.HiddenSize)},
			Data:  fill(2, cfg.TextVocabSize*cfg.HiddenSize, 1.0),
		},
		{
			Name:  "decoder.in_norm.weight",
			Shape: []int64{int64(cfg.HiddenSize)},
			Data:  ones(cfg.HiddenSize),
		},
		{
			Name:  "decoder.in_norm.bias",
			Shape: []int64{int64(cfg.HiddenSize)},
			Data:  fill(3, cfg.HiddenSize, 0.1),
		},
		{
			Name:  "decoder.step_proj.weight",
			Shape: []int64{int64(cfg.HiddenSize), int64(cfg.HiddenSize)},
			Data:  fill(4, cfg.HiddenSize*cfg.HiddenSize, 0.3),
		},
		{
			Name:  "decoder.step_proj.bias",
			Shape: []int64{int64(cfg.HiddenSize)},
			Data:  fill(5, cfg.HiddenSize, 0.1),
		},
		{
			Name:  "audio_encoder.synth.weight",
			Shape: []int64{int64(cfg.HopLength), int64(cfg.LatentDim)},
			Data:  fill(6, cfg.HopLength*cfg.LatentDim, 0.5),
		},
	}

	for k := 0; k < cfg.NumCodebooks; k++ {
		tensors = append(tensors,
			safetensors.Tensor{
				Name:  fmt.Sprintf("decoder.embed_codes.%d.weight", k),
				Shape: []int64{int64(cfg.CodeVocabSize), int64(cfg.HiddenSize)},
				Data:  fill(10+k, cfg.CodeVocabSize*cfg.HiddenSize, 0.5),
			},
			safetensors.Tensor{
				Name:  fmt.Sprintf("decoder.lm_heads.%d.weight", k),
				Shape: []int64{int64(cfg.CodeVocabSize), int64(cfg.HiddenSize)},
				Data:  lmHead(20+k, cfg.CodeVocabSize, cfg.HiddenSize, int(cfg.EOSCode)),
			},
			safetensors.Tensor{
				Name:  fmt.Sprintf("audio_encoder.quantizer.%d.codebook.weight", k),
				Shape: []int64{int64(cfg.CodebookSize), int64(cfg.LatentDim)},
				Data:  fill(30+k, cfg.CodebookSize*cfg.LatentDim, 0.5),
			},
		)
	}

	return tensors
}

func fill(seed, n int, scale float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(float64(seed)*1.3+float64(i)*0.7) * scale)
	}

	return out
}

func ones(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 1
	}

	return out
}

// lmHead builds a head matrix whose EOS row is zero and whose first two rows
// are exact negations of each other. For any hidden vector h, max(w0·h, w1·h)
// is at least zero and ties resolve to the lower index, so greedy selection
// never reaches the EOS row.
func lmHead(seed, rows, cols, eosRow int) []float32 {
	out := make([]float32, rows*cols)

	base := fill(seed, cols, 1.0)
	for c := 0; c < cols; c++ {
		out[c] = base[c]
		out[cols+c] = -base[c]
	}

	for r := 2; r < rows; r++ {
		if r == eosRow {
			continue // zero row
		}

		row := fill(seed+100*r, cols, 0.5)
		copy(out[r*cols:(r+1)*cols], row)
	}

	return out
}
