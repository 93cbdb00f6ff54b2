package protocol

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"
)

func TestParseControl(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		expected    Control
		expectError bool
		errorMsg    string
	}{
		{
			name:     "start",
			data:     `{"type":"start","sample_rate":48000,"encounter_id":" enc_web_1 "}`,
			expected: Control{Type: TypeStart, SampleRate: 48000, EncounterID: "enc_web_1"},
		},
		{
			name:     "type is case-insensitive",
			data:     `{"type":"PAUSE"}`,
			expected: Control{Type: TypePause},
		},
		{
			name:     "stop with audio",
			data:     `{"type":"stop","return_audio":true}`,
			expected: Control{Type: TypeStop, ReturnAudio: true},
		},
		{
			name:        "start without rate",
			data:        `{"type":"start"}`,
			expectError: true,
			errorMsg:    "sample_rate must be between",
		},
		{
			name:        "start with absurd rate",
			data:        `{"type":"start","sample_rate":1000000}`,
			expectError: true,
			errorMsg:    "sample_rate must be between",
		},
		{
			name:        "unknown type",
			data:        `{"type":"rewind"}`,
			expectError: true,
			errorMsg:    "invalid control type",
		},
		{
			name:        "not json",
			data:        `start`,
			expectError: true,
			errorMsg:    "malformed control message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseControl([]byte(tt.data))
			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error but got none")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain %q, got %q", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if c.Type != tt.expected.Type || c.SampleRate != tt.expected.SampleRate ||
				c.EncounterID != tt.expected.EncounterID || c.ReturnAudio != tt.expected.ReturnAudio {
				t.Errorf("Expected %v, got %v", tt.expected.String(), c.String())
			}
		})
	}
}

func TestWantsUpload(t *testing.T) {
	yes, no := true, false
	if !(&Control{}).WantsUpload(true) {
		t.Error("Expected default true")
	}
	if (&Control{Upload: &no}).WantsUpload(true) {
		t.Error("Expected explicit false to win")
	}
	if !(&Control{Upload: &yes}).WantsUpload(false) {
		t.Error("Expected explicit true to win")
	}
}

func TestAudioFrameRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.25, 1, -1}
	data := EncodeAudioFrame(samples)
	if len(data) != len(samples)*SampleSize {
		t.Fatalf("Expected %d bytes, got %d", len(samples)*SampleSize, len(data))
	}
	if binary.LittleEndian.Uint32(data[4:]) != math.Float32bits(0.5) {
		t.Error("Expected little-endian layout")
	}

	decoded, err := ParseAudioFrame(data)
	if err != nil {
		t.Fatalf("ParseAudioFrame failed: %v", err)
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, samples[i], decoded[i])
		}
	}
}

func TestParseAudioFrameErrors(t *testing.T) {
	if _, err := ParseAudioFrame(nil); err == nil {
		t.Error("Expected error for empty frame")
	}
	if _, err := ParseAudioFrame([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for truncated sample")
	}
	nan := EncodeAudioFrame([]float32{0.1, float32(math.NaN())})
	if _, err := ParseAudioFrame(nan); err == nil {
		t.Error("Expected error for NaN sample")
	}
	inf := EncodeAudioFrame([]float32{float32(math.Inf(1))})
	if _, err := ParseAudioFrame(inf); err == nil {
		t.Error("Expected error for infinite sample")
	}
}
