// Package native implements the pure-Go inference paths of the speech model:
// the autoregressive decoder that scores the next audio code for every
// codebook, and the neural codec that turns generated codes back into a
// waveform. All layers are loaded from safetensors weights and are read-only
// after construction, so a single model instance is safe for concurrent use.
package native

import (
	"errors"
	"fmt"
	"strings"

	"github.com/example/go-parler-tts/internal/safetensors"
)

// VarBuilder provides hierarchical tensor lookup over a safetensors store.
type VarBuilder struct {
	store  *safetensors.Store
	prefix string
}

func NewVarBuilder(store *safetensors.Store) *VarBuilder {
	return &VarBuilder{store: store}
}

// Path returns a child builder whose lookups are prefixed with the given
// dot-joined path segments.
func (vb *VarBuilder) Path(parts ...string) *VarBuilder {
	if vb == nil {
		return nil
	}

	prefix := vb.prefix

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if prefix == "" {
			prefix = part
		} else {
			prefix += "." + part
		}
	}

	return &VarBuilder{store: vb.store, prefix: prefix}
}

func (vb *VarBuilder) Has(name string) bool {
	if vb == nil || vb.store == nil {
		return false
	}

	return vb.store.Has(vb.resolve(name))
}

// Matrix loads a rank-2 tensor with the given dimensions.
func (vb *VarBuilder) Matrix(name string, rows, cols int) (*Matrix, error) {
	t, err := vb.tensor(name)
	if err != nil {
		return nil, err
	}

	if len(t.Shape) != 2 || t.Shape[0] != int64(rows) || t.Shape[1] != int64(cols) {
		return nil, fmt.Errorf("native: tensor %q shape %v, want [%d %d]", vb.resolve(name), t.Shape, rows, cols)
	}

	return &Matrix{Rows: rows, Cols: cols, Data: t.Data}, nil
}

// Vector loads a rank-1 tensor with the given length.
func (vb *VarBuilder) Vector(name string, n int) ([]float32, error) {
	t, err := vb.tensor(name)
	if err != nil {
		return nil, err
	}

	if len(t.Shape) != 1 || t.Shape[0] != int64(n) {
		return nil, fmt.Errorf("native: tensor %q shape %v, want [%d]", vb.resolve(name), t.Shape, n)
	}

	return t.Data, nil
}

func (vb *VarBuilder) tensor(name string) (*safetensors.Tensor, error) {
	if vb == nil || vb.store == nil {
		return nil, errors.New("native: varbuilder has no store")
	}

	return vb.store.Tensor(vb.resolve(name))
}

func (vb *VarBuilder) resolve(name string) string {
	name = strings.TrimSpace(name)
	if vb.prefix == "" {
		return name
	}

	if name == "" {
		return vb.prefix
	}

	return vb.prefix + "." + name
}
