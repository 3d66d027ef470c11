// Package tts orchestrates one generation request end to end: request
// validation and defaulting, tokenization, autoregressive code generation,
// waveform decoding, loudness normalization, and WAV encoding.
package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/example/go-parler-tts/internal/audio"
	"github.com/example/go-parler-tts/internal/config"
	"github.com/example/go-parler-tts/internal/engine"
	"github.com/example/go-parler-tts/internal/model"
	"github.com/example/go-parler-tts/internal/native"
)

// ErrInvalidRequest marks boundary validation failures. The server maps it to
// a client error; everything else in the pipeline is an internal error.
var ErrInvalidRequest = errors.New("invalid request")

// Request is one inbound generation request, already extracted from form
// fields. Nil numeric fields mean "use the configured default".
type Request struct {
	Text        string
	Description string
	Temperature *float64
	Seed        *uint64
	TopP        *float64
}

// ParseForm builds a Request from a form-field lookup function. Malformed or
// out-of-range numeric values are treated as absent rather than rejected;
// that lenient policy is deliberate and load-bearing for the public API.
func ParseForm(field func(string) string) Request {
	req := Request{
		Text:        field("text"),
		Description: field("description"),
	}

	if v, err := strconv.ParseFloat(field("temperature"), 64); err == nil && v >= 0 {
		req.Temperature = &v
	}

	if v, err := strconv.ParseUint(field("seed"), 10, 64); err == nil {
		req.Seed = &v
	}

	if v, err := strconv.ParseFloat(field("top_p"), 64); err == nil && v > 0 && v <= 1 {
		req.TopP = &v
	}

	return req
}

// Result is the terminal artifact of one request.
type Result struct {
	WAV      []byte
	Filename string
}

// Service runs the generation pipeline against a shared, read-only model
// bundle. It is safe for concurrent use: all per-request state (sampler RNG,
// decoder scratch) is allocated inside Generate.
type Service struct {
	bundle   *model.Bundle
	engine   *engine.Engine
	defaults config.GenerationConfig
	audioDir string
	persist  bool
	log      *slog.Logger
}

func NewService(bundle *model.Bundle, gen config.GenerationConfig, audioDir string, persist bool) *Service {
	return &Service{
		bundle:   bundle,
		engine:   engine.New(bundleScorer{dec: bundle.Decoder}),
		defaults: gen,
		audioDir: audioDir,
		persist:  persist,
		log:      slog.Default(),
	}
}

// Generate runs the full pipeline. Any stage failure short-circuits with no
// partial output. Persisting the WAV to disk is a side effect; its failure is
// logged but does not affect the returned bytes.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: text field is required", ErrInvalidRequest)
	}

	description := req.Description
	if strings.TrimSpace(description) == "" {
		description = s.defaults.DefaultDescription
	}

	sampling := s.sampling(req)
	maxSteps := s.maxSteps()

	prompt := s.bundle.Tokenizer.Encode(req.Text)
	style := s.bundle.Tokenizer.Encode(description)

	start := time.Now()

	codes, err := s.engine.Generate(ctx, prompt, style, sampling, maxSteps)
	if err != nil {
		return nil, err
	}

	pcm, err := s.bundle.Codec.Decode(codes)
	if err != nil {
		return nil, err
	}

	pcm = audio.Normalize(pcm)

	wav, err := audio.EncodeWAV(pcm, s.bundle.Config.SampleRate)
	if err != nil {
		return nil, err
	}

	s.log.Info("generation complete",
		slog.Int("prompt_tokens", len(prompt)),
		slog.Int("style_tokens", len(style)),
		slog.Int("steps", codes.Steps()),
		slog.Int("samples", len(pcm)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	result := &Result{
		WAV:      wav,
		Filename: fmt.Sprintf("generated_audio_%d.wav", time.Now().Unix()),
	}

	if s.persist {
		s.persistWAV(result)
	}

	return result, nil
}

func (s *Service) sampling(req Request) engine.Sampling {
	cfg := engine.Sampling{
		Temperature: s.defaults.Temperature,
		Seed:        s.defaults.Seed,
		TopP:        s.defaults.TopP,
	}

	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}

	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}

	if req.TopP != nil {
		cfg.TopP = *req.TopP
	}

	return cfg
}

// maxSteps caps the configured step budget at what the model supports, so
// the loop bound holds regardless of configuration.
func (s *Service) maxSteps() int {
	steps := s.defaults.MaxSteps
	if steps <= 0 || steps > s.bundle.Config.MaxSupportedSteps {
		steps = s.bundle.Config.MaxSupportedSteps
	}

	return steps
}

func (s *Service) persistWAV(result *Result) {
	if err := os.MkdirAll(s.audioDir, 0o755); err != nil {
		s.log.Error("create audio dir failed", slog.String("dir", s.audioDir), slog.String("error", err.Error()))
		return
	}

	path := filepath.Join(s.audioDir, result.Filename)
	if err := os.WriteFile(path, result.WAV, 0o644); err != nil {
		s.log.Error("persist WAV failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	s.log.Debug("persisted WAV", slog.String("path", path), slog.Int("bytes", len(result.WAV)))
}

// bundleScorer adapts the native decoder to the engine's scorer contract.
type bundleScorer struct {
	dec *native.Decoder
}

func (b bundleScorer) Codebooks() int { return b.dec.Codebooks() }

func (b bundleScorer) EOSCode() int64 { return b.dec.EOSCode() }

func (b bundleScorer) Begin(prompt, style []int64) (engine.ScorerState, error) {
	state, err := b.dec.Begin(prompt, style)
	if err != nil {
		return nil, err
	}

	return state, nil
}
