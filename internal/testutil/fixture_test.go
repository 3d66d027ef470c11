package testutil

import (
	"testing"
)

func TestFixtureTensorsDeterministic(t *testing.T) {
	cfg := FixtureConfig()

	a := FixtureTensors(cfg)
	b := FixtureTensors(cfg)

	if len(a) != len(b) {
		t.Fatalf("tensor counts differ: %d vs %d", len(a), len(b))
	}

	for i := range a {
		if a[i].Name != b[i].Name {
			t.Fatalf("tensor %d name differs: %s vs %s", i, a[i].Name, b[i].Name)
		}

		for j := range a[i].Data {
			if a[i].Data[j] != b[i].Data[j] {
				t.Fatalf("tensor %s element %d differs", a[i].Name, j)
			}
		}
	}
}

func TestFixtureBundleBuilds(t *testing.T) {
	bundle := FixtureBundle(t)

	if bundle.Decoder.Codebooks() != FixtureConfig().NumCodebooks {
		t.Errorf("codebooks: got %d, want %d", bundle.Decoder.Codebooks(), FixtureConfig().NumCodebooks)
	}
}

func TestLMHeadEOSRowIsZero(t *testing.T) {
	cfg := FixtureConfig()

	head := lmHead(20, cfg.CodeVocabSize, cfg.HiddenSize, int(cfg.EOSCode))

	eosRow := head[int(cfg.EOSCode)*cfg.HiddenSize : (int(cfg.EOSCode)+1)*cfg.HiddenSize]
	for i, v := range eosRow {
		if v != 0 {
			t.Fatalf("eos row element %d is %g, want 0", i, v)
		}
	}

	// Rows 0 and 1 are exact negations, which pins the greedy maximum at or
	// above zero on every hidden vector.
	for c := 0; c < cfg.HiddenSize; c++ {
		if head[c] != -head[cfg.HiddenSize+c] {
			t.Fatalf("rows 0 and 1 are not negations at column %d", c)
		}
	}
}
