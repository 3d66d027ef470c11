// Package engine runs the autoregressive sampling loop that turns tokenized
// text into a matrix of discrete audio codes.
package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrGeneration is wrapped around every scoring failure inside the loop, so
// the request boundary can classify it without partial output escaping.
var ErrGeneration = errors.New("generation failed")

// Scorer is the opaque model capability the engine drives. Begin allocates
// per-call scratch state conditioned on the two token sequences; the scorer
// itself must be read-only so concurrent generations can share it.
type Scorer interface {
	Codebooks() int
	EOSCode() int64
	Begin(prompt, style []int64) (ScorerState, error)
}

// ScorerState scores one step at a time. Score receives the previously
// sampled column (nil on the first step) and returns next-code logits, one
// slice per codebook.
type ScorerState interface {
	Score(prev []int64) ([][]float32, error)
}

// CodeMatrix holds generated audio codes: one row per codebook, one column
// per generated step. It is produced by Generate and consumed once by the
// audio codec.
type CodeMatrix struct {
	codebooks int
	data      [][]int64 // per step, column of codebook codes
}

func NewCodeMatrix(codebooks int) *CodeMatrix {
	return &CodeMatrix{codebooks: codebooks}
}

func (m *CodeMatrix) Codebooks() int { return m.codebooks }

func (m *CodeMatrix) Steps() int { return len(m.data) }

func (m *CodeMatrix) At(codebook, step int) int64 { return m.data[step][codebook] }

func (m *CodeMatrix) appendColumn(col []int64) {
	m.data = append(m.data, col)
}

// Engine drives autoregressive code generation against a shared scorer.
type Engine struct {
	scorer Scorer
}

func New(scorer Scorer) *Engine {
	return &Engine{scorer: scorer}
}

// Generate runs the sampling loop until the model emits its stop code on
// any codebook or maxSteps columns have been produced, whichever comes
// first. Identical inputs against the same scorer always yield an identical
// matrix. Cancellation is checked between steps.
func (e *Engine) Generate(ctx context.Context, prompt, style []int64, cfg Sampling, maxSteps int) (*CodeMatrix, error) {
	if maxSteps <= 0 {
		return nil, fmt.Errorf("%w: max steps must be positive, got %d", ErrGeneration, maxSteps)
	}

	state, err := e.scorer.Begin(prompt, style)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	sampler := NewSampler(cfg)
	eos := e.scorer.EOSCode()
	codebooks := e.scorer.Codebooks()
	matrix := NewCodeMatrix(codebooks)

	var prev []int64

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		logits, err := state.Score(prev)
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %v", ErrGeneration, step, err)
		}

		if len(logits) != codebooks {
			return nil, fmt.Errorf("%w: step %d produced %d codebooks, want %d", ErrGeneration, step, len(logits), codebooks)
		}

		col := make([]int64, codebooks)
		stop := false

		for k, l := range logits {
			col[k] = sampler.Sample(l)
			if col[k] == eos {
				stop = true
			}
		}

		// The stop code on any codebook ends generation; the column carrying
		// it is not part of the audio.
		if stop {
			break
		}

		matrix.appendColumn(col)
		prev = col
	}

	return matrix, nil
}
