package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/Escorpio024/scribe-ia-aurora/internal/audio"
)

// PushDevice is a Device whose frames are pushed by the caller, for
// producers that live outside the process such as a browser audio worklet
// streaming over a socket.
type PushDevice struct {
	sampleRate int
	stream     *PushStream
	mu         sync.Mutex
}

// NewPushDevice creates a device that reports sampleRate as its native rate
func NewPushDevice(sampleRate int) *PushDevice {
	return &PushDevice{sampleRate: sampleRate}
}

// Acquire implements Device. Each call yields a fresh stream which becomes
// the target of Push.
func (d *PushDevice) Acquire(ctx context.Context, _ Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.sampleRate <= 0 {
		return nil, fmt.Errorf("%w: no sample rate announced", ErrDeviceUnavailable)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stream = &PushStream{sampleRate: d.sampleRate}
	return d.stream, nil
}

// Push delivers samples to the current stream. It reports false when no
// stream is delivering (not acquired, suspended or closed).
func (d *PushDevice) Push(samples []float32) bool {
	d.mu.Lock()
	s := d.stream
	d.mu.Unlock()
	if s == nil {
		return false
	}
	return s.Push(samples)
}

// PushStream is the Stream returned by PushDevice
type PushStream struct {
	sampleRate int
	sink       FrameSink
	suspended  bool
	closed     bool
	mu         sync.Mutex
}

// SampleRate implements Stream
func (s *PushStream) SampleRate() int { return s.sampleRate }

// Start implements Stream
func (s *PushStream) Start(sink FrameSink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream already closed")
	}
	s.sink = sink
	return nil
}

// Suspend implements Stream
func (s *PushStream) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = true
	return nil
}

// Resume implements Stream
func (s *PushStream) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suspended = false
	return nil
}

// Close implements Stream
func (s *PushStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sink = nil
	return nil
}

// Push hands samples to the sink. The sink runs under the stream lock so
// Close cannot return while a delivery is in flight.
func (s *PushStream) Push(samples []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.suspended || s.sink == nil {
		return false
	}
	s.sink(audio.Frame{Samples: samples, SampleRate: s.sampleRate})
	return true
}
