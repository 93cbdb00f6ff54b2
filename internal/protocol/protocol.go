package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Control message types sent by the client
const (
	TypeStart   = "start"
	TypePause   = "pause"
	TypeResume  = "resume"
	TypeStop    = "stop"
	TypeDiscard = "discard"
)

// Reply message types sent by the server
const (
	TypeState  = "state"
	TypeResult = "result"
	TypeError  = "error"
)

// Error codes carried by error replies
const (
	CodeBadMessage        = "bad_message"
	CodeDeviceUnavailable = "device_unavailable"
	CodePermissionDenied  = "permission_denied"
	CodeInsecureContext   = "insecure_context"
	CodeEmptyCapture      = "empty_capture"
	CodeEncodingFailure   = "encoding_failure"
	CodeInvalidState      = "invalid_state"
	CodeUpstream          = "upstream"
	CodeBusy              = "busy"
)

// Audio frame layout: consecutive little-endian IEEE-754 float32 samples,
// mono, at the rate announced by the start message.
const (
	SampleSize    = 4
	MinSampleRate = 8000
	MaxSampleRate = 192000
)

// Control is a JSON text message from the client
type Control struct {
	Type        string `json:"type"`
	SampleRate  int    `json:"sample_rate,omitempty"`
	EncounterID string `json:"encounter_id,omitempty"`
	Upload      *bool  `json:"upload,omitempty"`
	ReturnAudio bool   `json:"return_audio,omitempty"`
}

// Reply is a JSON text message from the server
type Reply struct {
	Type        string          `json:"type"`
	SessionID   string          `json:"session_id,omitempty"`
	EncounterID string          `json:"encounter_id,omitempty"`
	State       string          `json:"state,omitempty"`
	Code        string          `json:"code,omitempty"`
	Error       string          `json:"error,omitempty"`
	Samples     int             `json:"samples,omitempty"`
	Bytes       int             `json:"bytes,omitempty"`
	DurationMS  int64           `json:"duration_ms,omitempty"`
	Audio       []byte          `json:"audio,omitempty"`
	Transcript  json.RawMessage `json:"transcript,omitempty"`
	StoredWAV   string          `json:"stored_wav,omitempty"`
}

// ParseControl decodes and validates a control message
func ParseControl(data []byte) (*Control, error) {
	var c Control
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("malformed control message: %w", err)
	}
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	c.EncounterID = strings.TrimSpace(c.EncounterID)

	if err := ValidateControl(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateControl validates the control message fields
func ValidateControl(c *Control) error {
	if !IsValidControlType(c.Type) {
		return fmt.Errorf("invalid control type: %q", c.Type)
	}
	if c.Type == TypeStart && (c.SampleRate < MinSampleRate || c.SampleRate > MaxSampleRate) {
		return fmt.Errorf("sample_rate must be between %d and %d, got %d", MinSampleRate, MaxSampleRate, c.SampleRate)
	}
	return nil
}

// IsValidControlType checks if the control type is valid
func IsValidControlType(t string) bool {
	switch t {
	case TypeStart, TypePause, TypeResume, TypeStop, TypeDiscard:
		return true
	}
	return false
}

// WantsUpload reports whether a stop message asks for upload, falling back
// to def when the client did not say.
func (c *Control) WantsUpload(def bool) bool {
	if c.Upload == nil {
		return def
	}
	return *c.Upload
}

// ParseAudioFrame decodes a binary audio frame
func ParseAudioFrame(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("audio frame is empty")
	}
	if len(data)%SampleSize != 0 {
		return nil, fmt.Errorf("audio frame length %d is not a multiple of %d", len(data), SampleSize)
	}

	samples := make([]float32, len(data)/SampleSize)
	for i := range samples {
		v := math.Float32frombits(binary.LittleEndian.Uint32(data[i*SampleSize:]))
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("audio frame sample %d is not finite", i)
		}
		samples[i] = v
	}
	return samples, nil
}

// EncodeAudioFrame is the inverse of ParseAudioFrame
func EncodeAudioFrame(samples []float32) []byte {
	data := make([]byte, len(samples)*SampleSize)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*SampleSize:], math.Float32bits(s))
	}
	return data
}

// String returns a human-readable representation of the control message
func (c *Control) String() string {
	return fmt.Sprintf("Control{Type:%s, SampleRate:%d, EncounterID:%q}", c.Type, c.SampleRate, c.EncounterID)
}
