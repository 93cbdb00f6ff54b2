package audio

import "math"

func clamp(s float64) float64 {
	if s < -1 {
		return -1
	}
	if s > 1 {
		return 1
	}
	return s
}

// QuantizeSample converts one float sample to signed 16-bit PCM. Negative
// values scale by 32768 and non-negative values by 32767 so both ends of
// [-1, 1] map onto the full int16 range.
func QuantizeSample(s float32) int16 {
	v := clamp(float64(s))
	var q float64
	if v < 0 {
		q = math.Round(v * 32768)
	} else {
		q = math.Round(v * 32767)
	}
	if q < math.MinInt16 {
		q = math.MinInt16
	}
	if q > math.MaxInt16 {
		q = math.MaxInt16
	}
	return int16(q)
}

// Quantize converts float samples to 16-bit PCM
func Quantize(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = QuantizeSample(s)
	}
	return out
}

// Dequantize is the inverse of Quantize
func Dequantize(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, v := range samples {
		if v < 0 {
			out[i] = float32(v) / 32768
		} else {
			out[i] = float32(v) / 32767
		}
	}
	return out
}
