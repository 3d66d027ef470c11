package native

import (
	"fmt"
	"math"
)

// Matrix is a row-major rank-2 float32 tensor.
type Matrix struct {
	Rows, Cols int
	Data       []float32
}

// Row returns a view of row i without copying.
func (m *Matrix) Row(i int) []float32 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// Apply computes m·x for a column vector x of length Cols.
func (m *Matrix) Apply(x []float32) []float32 {
	out := make([]float32, m.Rows)

	for r := 0; r < m.Rows; r++ {
		row := m.Row(r)

		var sum float32
		for c, v := range x {
			sum += row[c] * v
		}

		out[r] = sum
	}

	return out
}

// Linear is an affine layer with weight [out, in] and optional bias [out].
type Linear struct {
	Weight *Matrix
	Bias   []float32
}

func loadLinear(vb *VarBuilder, name string, out, in int, withBias bool) (*Linear, error) {
	w, err := vb.Matrix(name+".weight", out, in)
	if err != nil {
		return nil, err
	}

	var b []float32

	if withBias {
		b, err = vb.Vector(name+".bias", out)
		if err != nil {
			return nil, err
		}
	}

	return &Linear{Weight: w, Bias: b}, nil
}

func (l *Linear) Forward(x []float32) ([]float32, error) {
	if len(x) != l.Weight.Cols {
		return nil, fmt.Errorf("native: linear input length %d, want %d", len(x), l.Weight.Cols)
	}

	out := l.Weight.Apply(x)

	if l.Bias != nil {
		for i := range out {
			out[i] += l.Bias[i]
		}
	}

	return out, nil
}

// LayerNorm normalizes a vector to zero mean and unit variance, then applies
// a learned scale and shift.
type LayerNorm struct {
	Weight []float32
	Bias   []float32
	Eps    float32
}

func loadLayerNorm(vb *VarBuilder, name string, dim int) (*LayerNorm, error) {
	w, err := vb.Vector(name+".weight", dim)
	if err != nil {
		return nil, err
	}

	b, err := vb.Vector(name+".bias", dim)
	if err != nil {
		return nil, err
	}

	return &LayerNorm{Weight: w, Bias: b, Eps: 1e-5}, nil
}

func (ln *LayerNorm) Forward(x []float32) []float32 {
	var mean float64
	for _, v := range x {
		mean += float64(v)
	}

	mean /= float64(len(x))

	var variance float64
	for _, v := range x {
		d := float64(v) - mean
		variance += d * d
	}

	variance /= float64(len(x))

	inv := 1.0 / math.Sqrt(variance+float64(ln.Eps))

	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32((float64(v)-mean)*inv)*ln.Weight[i] + ln.Bias[i]
	}

	return out
}

func tanhInPlace(x []float32) {
	for i, v := range x {
		x[i] = float32(math.Tanh(float64(v)))
	}
}
