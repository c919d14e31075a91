package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Quality selects the sample rate conversion algorithm.
type Quality string

const (
	// QualityLinear interpolates linearly between neighbouring samples.
	QualityLinear Quality = "linear"
	// QualitySinc uses a polyphase windowed-sinc resampler. Output trails the
	// input by the filter delay, so it is slightly shorter than N*16000/R.
	QualitySinc Quality = "sinc"
)

// Converter turns captured samples into the canonical mono 16kHz format.
type Converter struct {
	Quality Quality
}

// ToCanonical mixes multi-channel input down to mono by averaging channels,
// then resamples to 16kHz. Canonical input is returned as an identical copy.
func (c Converter) ToCanonical(samples []float32, f Format) ([]float32, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return []float32{}, nil
	}

	mono := Downmix(samples, f.Channels)
	if f.SampleRate == CanonicalRate {
		return mono, nil
	}

	switch c.Quality {
	case QualitySinc:
		return resampleSinc(mono, f.SampleRate, CanonicalRate)
	case QualityLinear, "":
		return ResampleLinear(mono, f.SampleRate, CanonicalRate), nil
	default:
		return nil, fmt.Errorf("audio: unknown resample quality %q", c.Quality)
	}
}

// Downmix averages each interleaved frame into one sample. A trailing
// partial frame is ignored. Mono input is copied.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float64
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += float64(s)
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// ResampleLinear converts mono samples from one rate to another by linear
// interpolation. The output holds ceil(len(mono)*to/from) samples.
func ResampleLinear(mono []float32, from, to int) []float32 {
	n := len(mono)
	if n == 0 || from <= 0 || to <= 0 {
		return []float32{}
	}
	if from == to {
		out := make([]float32, n)
		copy(out, mono)
		return out
	}

	outLen := (n*to + from - 1) / from
	out := make([]float32, outLen)
	for i := range outLen {
		// Source position i*from/to kept as an exact fraction.
		num := i * from
		idx := num / to
		frac := float64(num%to) / float64(to)

		next := idx + 1
		if next >= n {
			next = n - 1
		}
		s1 := float64(mono[idx])
		s2 := float64(mono[next])
		out[i] = float32(s1*(1-frac) + s2*frac)
	}
	return out
}

func resampleSinc(mono []float32, from, to int) ([]float32, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}

	input := make([]float64, len(mono))
	for i, s := range mono {
		input[i] = float64(s)
	}

	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}

	out := make([]float32, len(output))
	for i, s := range output {
		out[i] = float32(s)
	}
	return out, nil
}
