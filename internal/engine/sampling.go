package engine

import (
	"math"
	"math/rand"
	"sort"
)

// Sampling controls how the next code is picked from a logit distribution.
// A zero Temperature selects greedily; TopP of zero disables nucleus
// filtering. Seed fixes the pseudo-random stream so identical inputs yield
// identical outputs.
type Sampling struct {
	Temperature float64
	TopP        float64
	Seed        uint64
}

// Sampler draws codes from logit distributions. One sampler is allocated per
// generation call; its RNG state must never be shared across calls.
type Sampler struct {
	temperature float64
	topP        float64
	rng         *rand.Rand
}

func NewSampler(cfg Sampling) *Sampler {
	return &Sampler{
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		rng:         rand.New(rand.NewSource(int64(cfg.Seed))),
	}
}

// Sample picks one index from logits according to the sampling policy.
func (s *Sampler) Sample(logits []float32) int64 {
	if s.temperature <= 0 {
		return argmax(logits)
	}

	probs := softmaxScaled(logits, 1.0/s.temperature)

	if s.topP > 0 && s.topP < 1 {
		return s.sampleTopP(probs)
	}

	return s.sampleMultinomial(probs)
}

// sampleTopP restricts sampling to the smallest probability-sorted prefix
// whose cumulative mass reaches topP, then samples within it.
func (s *Sampler) sampleTopP(probs []float64) int64 {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}

	sort.Slice(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })

	var cum float64

	cut := len(idx)
	for i, j := range idx {
		cum += probs[j]
		if cum >= s.topP {
			cut = i + 1
			break
		}
	}

	idx = idx[:cut]

	var total float64
	for _, j := range idx {
		total += probs[j]
	}

	target := s.rng.Float64() * total

	var acc float64
	for _, j := range idx {
		acc += probs[j]
		if target < acc {
			return int64(j)
		}
	}

	return int64(idx[len(idx)-1])
}

func (s *Sampler) sampleMultinomial(probs []float64) int64 {
	target := s.rng.Float64()

	var acc float64
	for i, p := range probs {
		acc += p
		if target < acc {
			return int64(i)
		}
	}

	return int64(len(probs) - 1)
}

func argmax(logits []float32) int64 {
	best := 0

	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}

	return int64(best)
}

func softmaxScaled(logits []float32, scale float64) []float64 {
	maxLogit := float64(logits[0]) * scale
	for _, v := range logits[1:] {
		if x := float64(v) * scale; x > maxLogit {
			maxLogit = x
		}
	}

	probs := make([]float64, len(logits))

	var sum float64

	for i, v := range logits {
		p := math.Exp(float64(v)*scale - maxLogit)
		probs[i] = p
		sum += p
	}

	for i := range probs {
		probs[i] /= sum
	}

	return probs
}
