package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	// 440Hz sine wave for 0.1 seconds at 16kHz
	sampleRate := 16000
	duration := 0.1
	frequency := 440.0

	numSamples := int(float64(sampleRate) * duration)
	samples := make([]int16, numSamples)

	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		amplitude := 16383.0
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*frequency*t))
	}

	wavData, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := WAVHeaderSize + len(samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if err := ValidateWAV(wavData); err != nil {
		t.Errorf("Generated WAV is invalid: %v", err)
	}

	info, err := GetWAVInfo(wavData)
	if err != nil {
		t.Fatalf("Failed to get WAV info: %v", err)
	}

	if info.SampleRate != uint32(sampleRate) {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, info.SampleRate)
	}

	if info.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", info.Channels)
	}

	if info.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", info.BitsPerSample)
	}

	if info.BlockAlign != 2 {
		t.Errorf("Expected block align 2, got %d", info.BlockAlign)
	}

	if info.ByteRate != uint32(sampleRate*2) {
		t.Errorf("Expected byte rate %d, got %d", sampleRate*2, info.ByteRate)
	}

	expectedDuration := float64(numSamples) / float64(sampleRate)
	if math.Abs(info.Duration-expectedDuration) > 0.001 {
		t.Errorf("Expected duration %.3f, got %.3f", expectedDuration, info.Duration)
	}
}

func TestEncodeWAVDeclaredSizes(t *testing.T) {
	for _, n := range []int{1, 2, 7, 160, 16000} {
		samples := make([]int16, n)
		wavData, err := EncodeWAV(samples, 16000)
		if err != nil {
			t.Fatalf("EncodeWAV(%d samples) failed: %v", n, err)
		}

		if len(wavData) != 44+2*n {
			t.Errorf("n=%d: expected %d bytes, got %d", n, 44+2*n, len(wavData))
		}
		if got := binary.LittleEndian.Uint32(wavData[4:8]); int(got) != len(wavData)-8 {
			t.Errorf("n=%d: RIFF size %d, expected %d", n, got, len(wavData)-8)
		}
		if got := binary.LittleEndian.Uint32(wavData[40:44]); int(got) != 2*n {
			t.Errorf("n=%d: data size %d, expected %d", n, got, 2*n)
		}
	}
}

func TestDecodeWAV(t *testing.T) {
	originalSamples := []int16{100, -200, 300, -400, 500, math.MaxInt16, math.MinInt16}
	sampleRate := 16000

	wavData, err := EncodeWAV(originalSamples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	decodedSamples, decodedSampleRate, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if decodedSampleRate != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, decodedSampleRate)
	}

	if len(decodedSamples) != len(originalSamples) {
		t.Fatalf("Expected %d samples, got %d", len(originalSamples), len(decodedSamples))
	}

	for i, original := range originalSamples {
		if decodedSamples[i] != original {
			t.Errorf("Sample %d: expected %d, got %d", i, original, decodedSamples[i])
		}
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	_, err := EncodeWAV([]int16{}, 16000)
	if err == nil {
		t.Error("Expected error for empty samples")
	}
}

func TestEncodeWAVInvalidSampleRate(t *testing.T) {
	samples := []int16{100, 200, 300}
	if _, err := EncodeWAV(samples, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}

	if _, err := EncodeWAV(samples, -1000); err == nil {
		t.Error("Expected error for negative sample rate")
	}
}

func TestValidateWAV(t *testing.T) {
	if err := ValidateWAV([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for too short WAV data")
	}

	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], []byte("FAKE"))
	if err := ValidateWAV(invalidWAV); err == nil {
		t.Error("Expected error for invalid RIFF header")
	}

	// Truncated payload must be rejected because the declared sizes no
	// longer match
	wavData, err := EncodeWAV([]int16{1, 2, 3, 4}, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if err := ValidateWAV(wavData[:len(wavData)-2]); err == nil {
		t.Error("Expected error for truncated payload")
	}
}

func TestNewEncodedAudio(t *testing.T) {
	samples := make([]int16, 16000)
	enc, err := NewEncodedAudio(samples, 16000)
	if err != nil {
		t.Fatalf("NewEncodedAudio failed: %v", err)
	}

	if enc.NumSamples() != 16000 {
		t.Errorf("Expected 16000 samples, got %d", enc.NumSamples())
	}
	if enc.Len() != 44+2*16000 {
		t.Errorf("Expected %d bytes, got %d", 44+2*16000, enc.Len())
	}
	if enc.Duration().Seconds() != 1 {
		t.Errorf("Expected 1s duration, got %v", enc.Duration())
	}

	b := enc.Bytes()
	b[0] = 'X'
	if err := ValidateWAV(enc.Bytes()); err != nil {
		t.Errorf("Mutating the copy changed the container: %v", err)
	}
}
