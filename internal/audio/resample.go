package audio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler names accepted by NewResampler
const (
	ResamplerNearest     = "nearest"
	ResamplerHighQuality = "high_quality"
)

// Resampler converts a mono sample sequence from one rate to another.
// Implementations must return exactly OutputLength(len(in), src, dst)
// samples and be deterministic for a fixed input.
type Resampler interface {
	Resample(in []float32, srcRate, dstRate int) ([]float32, error)
}

// NewResampler returns the resampler registered under name
func NewResampler(name string) (Resampler, error) {
	switch name {
	case ResamplerNearest, "":
		return NearestResampler{}, nil
	case ResamplerHighQuality:
		return HighQualityResampler{}, nil
	default:
		return nil, fmt.Errorf("unknown resampler %q", name)
	}
}

// OutputLength returns round(n * dstRate / srcRate)
func OutputLength(n, srcRate, dstRate int) int {
	if srcRate <= 0 || dstRate <= 0 || n <= 0 {
		return 0
	}
	return int(math.Round(float64(n) * float64(dstRate) / float64(srcRate)))
}

func checkRates(srcRate, dstRate int) error {
	if srcRate <= 0 {
		return fmt.Errorf("source sample rate must be positive, got %d", srcRate)
	}
	if dstRate <= 0 {
		return fmt.Errorf("target sample rate must be positive, got %d", dstRate)
	}
	return nil
}

// NearestResampler picks, for output sample i, the input sample at
// floor(i * srcRate/dstRate). No anti-aliasing filter is applied.
type NearestResampler struct{}

// Resample implements Resampler
func (NearestResampler) Resample(in []float32, srcRate, dstRate int) ([]float32, error) {
	if err := checkRates(srcRate, dstRate); err != nil {
		return nil, err
	}
	if srcRate == dstRate {
		out := make([]float32, len(in))
		copy(out, in)
		return out, nil
	}

	ratio := float64(srcRate) / float64(dstRate)
	n := OutputLength(len(in), srcRate, dstRate)
	out := make([]float32, n)
	last := len(in) - 1
	for i := range out {
		idx := int(math.Floor(float64(i) * ratio))
		if idx > last {
			idx = last
		}
		out[i] = in[idx]
	}
	return out, nil
}

// HighQualityResampler runs a band-limited resampler and pads or trims the
// result so its length follows the same contract as NearestResampler.
type HighQualityResampler struct{}

// Resample implements Resampler
func (HighQualityResampler) Resample(in []float32, srcRate, dstRate int) ([]float32, error) {
	if err := checkRates(srcRate, dstRate); err != nil {
		return nil, err
	}
	n := OutputLength(len(in), srcRate, dstRate)
	if srcRate == dstRate || n == 0 {
		return NearestResampler{}.Resample(in, srcRate, dstRate)
	}

	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	input := make([]float64, len(in))
	for i, s := range in {
		input[i] = float64(s)
	}
	output, err := rs.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	out := make([]float32, n)
	for i := 0; i < n && i < len(output); i++ {
		out[i] = float32(clamp(output[i]))
	}
	// Filter latency can leave the tail short; hold the last value.
	if len(output) > 0 && len(output) < n {
		tail := out[len(output)-1]
		for i := len(output); i < n; i++ {
			out[i] = tail
		}
	}
	return out, nil
}
