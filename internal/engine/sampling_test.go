package engine

import (
	"testing"
)

func TestSamplerGreedy(t *testing.T) {
	s := NewSampler(Sampling{Temperature: 0})

	t.Run("picks the largest logit", func(t *testing.T) {
		got := s.Sample([]float32{-1.5, 3.0, 0.2, 2.9})
		if got != 1 {
			t.Errorf("got %d, want 1", got)
		}
	})

	t.Run("tie resolves to the lower index", func(t *testing.T) {
		got := s.Sample([]float32{2.0, 2.0, 2.0})
		if got != 0 {
			t.Errorf("got %d, want 0", got)
		}
	})

	t.Run("single logit", func(t *testing.T) {
		got := s.Sample([]float32{-100})
		if got != 0 {
			t.Errorf("got %d, want 0", got)
		}
	})
}

func TestSamplerSeedDeterminism(t *testing.T) {
	logits := []float32{0.1, 0.5, 0.2, 0.9, 0.3}

	draw := func(seed uint64) []int64 {
		s := NewSampler(Sampling{Temperature: 0.8, Seed: seed})

		out := make([]int64, 32)
		for i := range out {
			out[i] = s.Sample(logits)
		}

		return out
	}

	a := draw(42)
	b := draw(42)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("draw %d differs: %d vs %d", i, a[i], b[i])
		}
	}

	c := draw(43)

	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}

	if same {
		t.Error("seeds 42 and 43 produced identical draw sequences")
	}
}

func TestSamplerTopPRestrictsSupport(t *testing.T) {
	// Index 0 alone carries well over half the probability mass, so a
	// nucleus of 0.5 can never select anything else.
	logits := []float32{10, 0, -10, -10, -10}

	s := NewSampler(Sampling{Temperature: 1.0, TopP: 0.5, Seed: 7})

	for i := 0; i < 200; i++ {
		if got := s.Sample(logits); got != 0 {
			t.Fatalf("draw %d escaped the nucleus: got %d", i, got)
		}
	}
}

func TestSamplerMultinomialStaysInRange(t *testing.T) {
	logits := []float32{0.2, 0.2, 0.2, 0.2}
	s := NewSampler(Sampling{Temperature: 1.5, Seed: 3})

	for i := 0; i < 200; i++ {
		got := s.Sample(logits)
		if got < 0 || got >= int64(len(logits)) {
			t.Fatalf("draw %d out of range: %d", i, got)
		}
	}
}

func TestSoftmaxScaledSumsToOne(t *testing.T) {
	probs := softmaxScaled([]float32{1, 2, 3, -4}, 0.5)

	var sum float64
	for _, p := range probs {
		if p < 0 {
			t.Fatalf("negative probability %g", p)
		}

		sum += p
	}

	if sum < 0.999 || sum > 1.001 {
		t.Errorf("probabilities sum to %g, want 1", sum)
	}
}
