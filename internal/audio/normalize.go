// Package audio holds the waveform post-processing stages: loudness
// normalization and WAV container encoding/decoding.
package audio

// TargetPeak is the peak absolute amplitude every non-silent waveform is
// scaled to before encoding. Peak normalization was chosen over integrated
// loudness: it is a pure function of the buffer alone and keeps relative
// dynamics intact.
const TargetPeak = 0.7

// Normalize rescales samples so the peak absolute value equals TargetPeak.
// Silence is returned unchanged. The input slice is not modified.
func Normalize(samples []float32) []float32 {
	return NormalizeTo(samples, TargetPeak)
}

// NormalizeTo rescales samples to the given peak.
func NormalizeTo(samples []float32, target float32) []float32 {
	var peak float32

	for _, s := range samples {
		if s < 0 {
			s = -s
		}

		if s > peak {
			peak = s
		}
	}

	if peak == 0 {
		return samples
	}

	gain := target / peak

	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s * gain
	}

	return out
}
