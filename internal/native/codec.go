package native

import (
	"errors"
	"fmt"
)

// ErrDecode is wrapped around every codec failure so callers can classify a
// malformed or incompatible code matrix.
var ErrDecode = errors.New("audio decode failed")

// CodecConfig carries the dimensions of the neural audio codec.
type CodecConfig struct {
	NumCodebooks int
	CodebookSize int
	LatentDim    int
	HopLength    int // output samples per generated step
}

// AudioCodec turns a matrix of discrete audio codes into a waveform. Decoding
// is a pure function of the codes and the codec weights: each step's codes
// select one embedding per codebook, the embeddings are summed into a frame
// latent, and a learned synthesis basis expands the latent into HopLength
// samples. A soft clip keeps samples in (-1, 1).
type AudioCodec struct {
	cfg   CodecConfig
	books []*Matrix // per codebook, [codebook_size, latent_dim]
	synth *Matrix   // [hop_length, latent_dim]
}

// LoadAudioCodec builds the codec from safetensors weights.
func LoadAudioCodec(vb *VarBuilder, cfg CodecConfig) (*AudioCodec, error) {
	if cfg.NumCodebooks <= 0 || cfg.CodebookSize <= 0 || cfg.LatentDim <= 0 || cfg.HopLength <= 0 {
		return nil, fmt.Errorf("native: invalid codec config %+v", cfg)
	}

	enc := vb.Path("audio_encoder")

	books := make([]*Matrix, cfg.NumCodebooks)

	for k := 0; k < cfg.NumCodebooks; k++ {
		book, err := enc.Matrix(fmt.Sprintf("quantizer.%d.codebook.weight", k), cfg.CodebookSize, cfg.LatentDim)
		if err != nil {
			return nil, fmt.Errorf("native: load codebook %d: %w", k, err)
		}

		books[k] = book
	}

	synth, err := enc.Matrix("synth.weight", cfg.HopLength, cfg.LatentDim)
	if err != nil {
		return nil, fmt.Errorf("native: load synthesis basis: %w", err)
	}

	return &AudioCodec{cfg: cfg, books: books, synth: synth}, nil
}

// Decode converts codes into mono PCM samples. The output length is exactly
// steps × HopLength.
func (c *AudioCodec) Decode(codes Codes) ([]float32, error) {
	if codes.Codebooks() != c.cfg.NumCodebooks {
		return nil, fmt.Errorf("%w: code matrix has %d codebooks, codec expects %d",
			ErrDecode, codes.Codebooks(), c.cfg.NumCodebooks)
	}

	steps := codes.Steps()
	pcm := make([]float32, 0, steps*c.cfg.HopLength)
	latent := make([]float32, c.cfg.LatentDim)

	for t := 0; t < steps; t++ {
		for i := range latent {
			latent[i] = 0
		}

		for k := 0; k < c.cfg.NumCodebooks; k++ {
			code := codes.At(k, t)
			if code < 0 || code >= int64(c.cfg.CodebookSize) {
				return nil, fmt.Errorf("%w: code %d at (%d,%d) out of range [0,%d)",
					ErrDecode, code, k, t, c.cfg.CodebookSize)
			}

			row := c.books[k].Row(int(code))
			for i, v := range row {
				latent[i] += v
			}
		}

		frame := c.synth.Apply(latent)
		tanhInPlace(frame)
		pcm = append(pcm, frame...)
	}

	return pcm, nil
}

// Codes is the read surface the codec needs from a generated code matrix.
// It is satisfied by engine.CodeMatrix.
type Codes interface {
	Codebooks() int
	Steps() int
	At(codebook, step int) int64
}
