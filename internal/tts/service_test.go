package tts_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/example/go-parler-tts/internal/config"
	"github.com/example/go-parler-tts/internal/testutil"
	"github.com/example/go-parler-tts/internal/tts"
)

func fixtureGeneration() config.GenerationConfig {
	return config.GenerationConfig{
		DefaultDescription: "A calm voice with a moderate pace.",
		Temperature:        0,
		Seed:               0,
		TopP:               0,
		MaxSteps:           16,
	}
}

func newFixtureService(t *testing.T, persist bool) (*tts.Service, string) {
	t.Helper()

	dir := t.TempDir()

	return tts.NewService(testutil.FixtureBundle(t), fixtureGeneration(), dir, persist), dir
}

func TestGenerateRejectsEmptyText(t *testing.T) {
	svc, _ := newFixtureService(t, false)

	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := svc.Generate(context.Background(), tts.Request{Text: text})
		if !errors.Is(err, tts.ErrInvalidRequest) {
			t.Errorf("text %q: got %v, want ErrInvalidRequest", text, err)
		}
	}
}

func TestGenerateProducesWAV(t *testing.T) {
	svc, _ := newFixtureService(t, false)

	result, err := svc.Generate(context.Background(), tts.Request{Text: "hello world"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	testutil.AssertValidWAV(t, result.WAV, testutil.FixtureSampleRate)

	if !strings.HasPrefix(result.Filename, "generated_audio_") || !strings.HasSuffix(result.Filename, ".wav") {
		t.Errorf("unexpected filename %q", result.Filename)
	}

	// Greedy decoding on the fixture never stops early, so the sample count
	// is exactly the step budget times the hop length.
	cfg := testutil.FixtureConfig()
	if got, want := testutil.WAVSampleCount(t, result.WAV), 16*cfg.HopLength; got != want {
		t.Errorf("got %d samples, want %d", got, want)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	svc, _ := newFixtureService(t, false)

	req := tts.Request{Text: "the same text every time"}

	first, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}

	second, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}

	if !bytes.Equal(first.WAV, second.WAV) {
		t.Error("identical requests produced different WAV bytes")
	}
}

func TestGenerateStochasticReproducibility(t *testing.T) {
	svc, _ := newFixtureService(t, false)

	temp := 1.0
	seed := uint64(7)

	a, err := svc.Generate(context.Background(), tts.Request{Text: "hi", Temperature: &temp, Seed: &seed})
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}

	b, err := svc.Generate(context.Background(), tts.Request{Text: "hi", Temperature: &temp, Seed: &seed})
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}

	if !bytes.Equal(a.WAV, b.WAV) {
		t.Error("same seed produced different stochastic output")
	}
}

func TestGenerateDefaultsDescription(t *testing.T) {
	svc, _ := newFixtureService(t, false)

	implicit, err := svc.Generate(context.Background(), tts.Request{Text: "hello"})
	if err != nil {
		t.Fatalf("generate without description: %v", err)
	}

	explicit, err := svc.Generate(context.Background(), tts.Request{
		Text:        "hello",
		Description: fixtureGeneration().DefaultDescription,
	})
	if err != nil {
		t.Fatalf("generate with explicit default: %v", err)
	}

	if !bytes.Equal(implicit.WAV, explicit.WAV) {
		t.Error("omitted description does not match the configured default")
	}

	other, err := svc.Generate(context.Background(), tts.Request{
		Text:        "hello",
		Description: "A deep, whispering voice.",
	})
	if err != nil {
		t.Fatalf("generate with custom description: %v", err)
	}

	if bytes.Equal(implicit.WAV, other.WAV) {
		t.Error("description has no effect on output")
	}
}

func TestGeneratePersistence(t *testing.T) {
	t.Run("persists when enabled", func(t *testing.T) {
		svc, dir := newFixtureService(t, true)

		result, err := svc.Generate(context.Background(), tts.Request{Text: "persist me"})
		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		data, err := os.ReadFile(dir + "/" + result.Filename)
		if err != nil {
			t.Fatalf("read persisted WAV: %v", err)
		}

		if !bytes.Equal(data, result.WAV) {
			t.Error("persisted bytes differ from the response")
		}
	})

	t.Run("skips persistence when disabled", func(t *testing.T) {
		svc, dir := newFixtureService(t, false)

		if _, err := svc.Generate(context.Background(), tts.Request{Text: "do not persist"}); err != nil {
			t.Fatalf("generate: %v", err)
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("read dir: %v", err)
		}

		if len(entries) != 0 {
			t.Errorf("audio dir not empty: %d entries", len(entries))
		}
	})
}

func TestGenerateHonorsCancellation(t *testing.T) {
	svc, _ := newFixtureService(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Generate(ctx, tts.Request{Text: "cancelled"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestGenerateCapsStepBudget(t *testing.T) {
	gen := fixtureGeneration()
	gen.MaxSteps = 100000 // far beyond what the model supports

	svc := tts.NewService(testutil.FixtureBundle(t), gen, t.TempDir(), false)

	result, err := svc.Generate(context.Background(), tts.Request{Text: "bounded"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cfg := testutil.FixtureConfig()

	maxSamples := cfg.MaxSupportedSteps * cfg.HopLength
	if got := testutil.WAVSampleCount(t, result.WAV); got > maxSamples {
		t.Errorf("got %d samples, budget allows at most %d", got, maxSamples)
	}
}

func TestParseForm(t *testing.T) {
	form := func(m map[string]string) func(string) string {
		return func(k string) string { return m[k] }
	}

	t.Run("valid fields", func(t *testing.T) {
		req := tts.ParseForm(form(map[string]string{
			"text":        "hello",
			"description": "a voice",
			"temperature": "0.8",
			"seed":        "42",
			"top_p":       "0.9",
		}))

		if req.Text != "hello" || req.Description != "a voice" {
			t.Errorf("unexpected text fields: %+v", req)
		}

		if req.Temperature == nil || *req.Temperature != 0.8 {
			t.Errorf("temperature not parsed: %v", req.Temperature)
		}

		if req.Seed == nil || *req.Seed != 42 {
			t.Errorf("seed not parsed: %v", req.Seed)
		}

		if req.TopP == nil || *req.TopP != 0.9 {
			t.Errorf("top_p not parsed: %v", req.TopP)
		}
	})

	t.Run("malformed numerics are treated as absent", func(t *testing.T) {
		req := tts.ParseForm(form(map[string]string{
			"text":        "hello",
			"temperature": "warm",
			"seed":        "-1",
			"top_p":       "2.0",
		}))

		if req.Temperature != nil {
			t.Errorf("malformed temperature accepted: %v", *req.Temperature)
		}

		if req.Seed != nil {
			t.Errorf("negative seed accepted: %v", *req.Seed)
		}

		if req.TopP != nil {
			t.Errorf("out-of-range top_p accepted: %v", *req.TopP)
		}
	})

	t.Run("negative temperature is treated as absent", func(t *testing.T) {
		req := tts.ParseForm(form(map[string]string{"temperature": "-0.5"}))
		if req.Temperature != nil {
			t.Errorf("negative temperature accepted: %v", *req.Temperature)
		}
	})

	t.Run("zero temperature is kept", func(t *testing.T) {
		req := tts.ParseForm(form(map[string]string{"temperature": "0"}))
		if req.Temperature == nil || *req.Temperature != 0 {
			t.Errorf("explicit zero temperature dropped: %v", req.Temperature)
		}
	})

	t.Run("missing fields stay nil", func(t *testing.T) {
		req := tts.ParseForm(form(map[string]string{"text": "hi"}))
		if req.Temperature != nil || req.Seed != nil || req.TopP != nil {
			t.Errorf("absent numerics got values: %+v", req)
		}
	})
}
