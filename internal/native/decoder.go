package native

import (
	"errors"
	"fmt"
)

// DecoderConfig carries the dimensions the decoder weights are validated
// against. Values come from the model's config document.
type DecoderConfig struct {
	HiddenSize    int
	TextVocabSize int
	NumCodebooks  int
	CodeVocabSize int // codebook entries plus the EOS code
	EOSCode       int64
}

// Decoder scores the next audio code for every codebook, conditioned on the
// prompt tokens, the style-description tokens, and all previously generated
// codes. It holds only immutable weights; per-request state lives in
// DecoderState.
type Decoder struct {
	cfg DecoderConfig

	styleEmb  *Matrix   // [text_vocab, hidden]
	promptEmb *Matrix   // [text_vocab, hidden]
	codeEmb   []*Matrix // per codebook, [code_vocab, hidden]
	inNorm    *LayerNorm
	stepProj  *Linear
	lmHeads   []*Linear // per codebook, [code_vocab, hidden]
}

// LoadDecoder builds the decoder from safetensors weights.
func LoadDecoder(vb *VarBuilder, cfg DecoderConfig) (*Decoder, error) {
	if cfg.HiddenSize <= 0 || cfg.NumCodebooks <= 0 || cfg.CodeVocabSize <= 0 || cfg.TextVocabSize <= 0 {
		return nil, fmt.Errorf("native: invalid decoder config %+v", cfg)
	}

	styleEmb, err := vb.Matrix("text_encoder.embed_tokens.weight", cfg.TextVocabSize, cfg.HiddenSize)
	if err != nil {
		return nil, fmt.Errorf("native: load style embeddings: %w", err)
	}

	dec := vb.Path("decoder")

	promptEmb, err := dec.Matrix("embed_prompts.weight", cfg.TextVocabSize, cfg.HiddenSize)
	if err != nil {
		return nil, fmt.Errorf("native: load prompt embeddings: %w", err)
	}

	inNorm, err := loadLayerNorm(dec, "in_norm", cfg.HiddenSize)
	if err != nil {
		return nil, fmt.Errorf("native: load in_norm: %w", err)
	}

	stepProj, err := loadLinear(dec, "step_proj", cfg.HiddenSize, cfg.HiddenSize, true)
	if err != nil {
		return nil, fmt.Errorf("native: load step_proj: %w", err)
	}

	codeEmb := make([]*Matrix, cfg.NumCodebooks)
	lmHeads := make([]*Linear, cfg.NumCodebooks)

	for k := 0; k < cfg.NumCodebooks; k++ {
		codeEmb[k], err = dec.Matrix(fmt.Sprintf("embed_codes.%d.weight", k), cfg.CodeVocabSize, cfg.HiddenSize)
		if err != nil {
			return nil, fmt.Errorf("native: load code embeddings %d: %w", k, err)
		}

		lmHeads[k], err = loadLinear(dec, fmt.Sprintf("lm_heads.%d", k), cfg.CodeVocabSize, cfg.HiddenSize, false)
		if err != nil {
			return nil, fmt.Errorf("native: load lm head %d: %w", k, err)
		}
	}

	return &Decoder{
		cfg:       cfg,
		styleEmb:  styleEmb,
		promptEmb: promptEmb,
		codeEmb:   codeEmb,
		inNorm:    inNorm,
		stepProj:  stepProj,
		lmHeads:   lmHeads,
	}, nil
}

func (d *Decoder) Codebooks() int { return d.cfg.NumCodebooks }

func (d *Decoder) EOSCode() int64 { return d.cfg.EOSCode }

// DecoderState is the per-request mutable scratch of one generation call.
// It must never be shared across concurrent calls.
type DecoderState struct {
	dec    *Decoder
	hidden []float32
}

// Begin conditions a fresh state on the prompt and style token sequences.
// Token ids outside the text vocabulary are rejected.
func (d *Decoder) Begin(prompt, style []int64) (*DecoderState, error) {
	cond := make([]float32, d.cfg.HiddenSize)

	if err := accumulateMeanEmbedding(cond, d.promptEmb, prompt); err != nil {
		return nil, fmt.Errorf("native: prompt conditioning: %w", err)
	}

	if err := accumulateMeanEmbedding(cond, d.styleEmb, style); err != nil {
		return nil, fmt.Errorf("native: style conditioning: %w", err)
	}

	return &DecoderState{dec: d, hidden: d.inNorm.Forward(cond)}, nil
}

// Score advances the state by the previously sampled column of codes (nil on
// the first step) and returns next-code logits, one slice per codebook.
func (s *DecoderState) Score(prev []int64) ([][]float32, error) {
	d := s.dec

	if prev != nil {
		if len(prev) != d.cfg.NumCodebooks {
			return nil, fmt.Errorf("native: previous column has %d codes, want %d", len(prev), d.cfg.NumCodebooks)
		}

		x := make([]float32, d.cfg.HiddenSize)
		copy(x, s.hidden)

		for k, code := range prev {
			if code < 0 || code >= int64(d.cfg.CodeVocabSize) {
				return nil, fmt.Errorf("native: code %d out of range [0,%d) in codebook %d", code, d.cfg.CodeVocabSize, k)
			}

			row := d.codeEmb[k].Row(int(code))
			for i, v := range row {
				x[i] += v
			}
		}

		next, err := d.stepProj.Forward(x)
		if err != nil {
			return nil, err
		}

		tanhInPlace(next)
		s.hidden = next
	}

	logits := make([][]float32, d.cfg.NumCodebooks)

	for k := range logits {
		out, err := d.lmHeads[k].Forward(s.hidden)
		if err != nil {
			return nil, err
		}

		logits[k] = out
	}

	return logits, nil
}

func accumulateMeanEmbedding(dst []float32, emb *Matrix, tokens []int64) error {
	if len(tokens) == 0 {
		return errors.New("empty token sequence")
	}

	inv := 1.0 / float32(len(tokens))

	for _, id := range tokens {
		if id < 0 || id >= int64(emb.Rows) {
			return fmt.Errorf("token id %d out of vocabulary range [0,%d)", id, emb.Rows)
		}

		row := emb.Row(int(id))
		for i, v := range row {
			dst[i] += v * inv
		}
	}

	return nil
}
