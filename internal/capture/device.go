package capture

import (
	"context"

	"github.com/Escorpio024/scribe-ia-aurora/internal/audio"
)

// Constraints describes the processing requested from the capture device
type Constraints struct {
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
	AutoGainControl  bool `json:"auto_gain_control"`
	Channels         int  `json:"channels"`
}

// DefaultConstraints returns the constraints used for consultation capture:
// single channel with echo cancellation, noise suppression and auto gain.
func DefaultConstraints() Constraints {
	return Constraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
		Channels:         1,
	}
}

// FrameSink receives frames from a producer. It is called from the
// producer's own goroutine and must not block.
type FrameSink func(audio.Frame)

// Device acquires a capture stream. Acquire should map platform failures
// onto ErrDeviceUnavailable, ErrPermissionDenied or ErrInsecureContext.
type Device interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an acquired capture graph running at the device's native rate.
type Stream interface {
	// SampleRate returns the native sample rate of delivered frames.
	SampleRate() int

	// Start begins asynchronous delivery of frames to sink.
	Start(sink FrameSink) error

	// Suspend stops frame delivery without releasing the device.
	Suspend() error

	// Resume restarts frame delivery after Suspend.
	Resume() error

	// Close disconnects the producer and releases the device. After Close
	// returns no further sink calls happen. Close must be idempotent.
	Close() error
}
