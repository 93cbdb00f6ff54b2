package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Escorpio024/scribe-ia-aurora/internal/audio"
	"github.com/Escorpio024/scribe-ia-aurora/internal/metrics"
)

// DefaultTargetSampleRate is the rate of every encoded container
const DefaultTargetSampleRate = 16000

// State represents the capture state machine position
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateStopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config contains capture controller configuration
type Config struct {
	TargetSampleRate int
	MaxDuration      time.Duration // 0 means unbounded
	Constraints      Constraints
	Resampler        audio.Resampler
}

// Controller drives one capture session at a time through
// idle → recording ⇄ paused → stopped. Control methods are safe to call
// from any goroutine; frames arrive on the producer's goroutine.
type Controller struct {
	device  Device
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	state     State
	stream    Stream
	buffer    *audio.SampleBuffer
	startedAt time.Time

	mu sync.Mutex
}

// Stats is a snapshot of the controller for monitoring
type Stats struct {
	State     string             `json:"state"`
	StartedAt time.Time          `json:"started_at,omitempty"`
	Buffer    *audio.BufferStats `json:"buffer,omitempty"`
}

// NewController creates a controller for device. A nil logger falls back
// to slog.Default and a nil metrics records nothing.
func NewController(device Device, config Config, logger *slog.Logger, m *metrics.Metrics) *Controller {
	if config.TargetSampleRate <= 0 {
		config.TargetSampleRate = DefaultTargetSampleRate
	}
	if config.Constraints.Channels == 0 {
		config.Constraints = DefaultConstraints()
	}
	if config.Resampler == nil {
		config.Resampler = audio.NearestResampler{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		device:  device,
		config:  config,
		logger:  logger,
		metrics: m,
		state:   StateIdle,
	}
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start acquires the device and begins buffering frames. It is valid from
// idle or stopped; on failure the controller stays where it was.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRecording || c.state == StatePaused {
		return fmt.Errorf("%w: start while %s", ErrInvalidState, c.state)
	}

	if c.device == nil {
		c.metrics.RecordCaptureFailure(failureReason(ErrDeviceUnavailable))
		return ErrDeviceUnavailable
	}

	stream, err := c.device.Acquire(ctx, c.config.Constraints)
	if err != nil {
		c.metrics.RecordCaptureFailure(failureReason(err))
		c.logger.Warn("Capture device acquisition failed", slog.String("error", err.Error()))
		return fmt.Errorf("failed to acquire capture device: %w", err)
	}

	rate := stream.SampleRate()
	if rate <= 0 {
		_ = stream.Close()
		c.metrics.RecordCaptureFailure(failureReason(ErrDeviceUnavailable))
		return fmt.Errorf("%w: device reported sample rate %d", ErrDeviceUnavailable, rate)
	}

	buffer := audio.NewSampleBuffer(rate, c.config.MaxDuration)
	if err := stream.Start(c.sink(buffer, rate)); err != nil {
		_ = stream.Close()
		c.metrics.RecordCaptureFailure(failureReason(err))
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	c.stream = stream
	c.buffer = buffer
	c.startedAt = time.Now()
	c.state = StateRecording
	c.metrics.RecordCaptureStarted()

	c.logger.Info("Capture started",
		slog.Int("native_sample_rate", rate),
		slog.Int("target_sample_rate", c.config.TargetSampleRate),
	)
	return nil
}

// sink appends delivered frames to buffer. Producers that leave the rate
// unset are assumed to deliver at the stream's native rate.
func (c *Controller) sink(buffer *audio.SampleBuffer, rate int) FrameSink {
	return func(frame audio.Frame) {
		if frame.SampleRate == 0 {
			frame.SampleRate = rate
		}
		if err := buffer.Append(frame); err != nil {
			c.logger.Warn("Dropping capture frame", slog.String("error", err.Error()))
		}
	}
}

// Pause suspends frame delivery. It is a no-op outside recording.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording {
		return nil
	}
	if err := c.stream.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend capture stream: %w", err)
	}
	c.state = StatePaused
	c.logger.Debug("Capture paused")
	return nil
}

// Resume restarts frame delivery. It is a no-op outside paused.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePaused {
		return nil
	}
	if err := c.stream.Resume(); err != nil {
		return fmt.Errorf("failed to resume capture stream: %w", err)
	}
	c.state = StateRecording
	c.logger.Debug("Capture resumed")
	return nil
}

// Stop releases the device, then resamples, quantizes and frames the
// buffered audio. The device is released and the controller reaches
// stopped whether or not encoding succeeds.
func (c *Controller) Stop() (*audio.EncodedAudio, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording && c.state != StatePaused {
		return nil, fmt.Errorf("%w: stop while %s", ErrInvalidState, c.state)
	}

	buffer := c.buffer
	c.releaseLocked()
	c.state = StateStopped

	defer buffer.Release()

	encoded, err := c.encode(buffer)
	if err != nil {
		c.metrics.RecordCaptureFailure(failureReason(err))
		c.logger.Warn("Capture finished without audio", slog.String("error", err.Error()))
		return nil, err
	}

	c.metrics.RecordCaptureFinished(encoded.Duration().Seconds(), encoded.Len())
	c.logger.Info("Capture encoded",
		slog.Int("samples", encoded.NumSamples()),
		slog.Int("bytes", encoded.Len()),
		slog.Duration("duration", encoded.Duration()),
	)
	return encoded, nil
}

// Discard releases the device and drops buffered frames without encoding.
// It is safe to call in any state, which makes it suitable for teardown.
func (c *Controller) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording && c.state != StatePaused {
		return
	}

	buffer := c.buffer
	c.releaseLocked()
	buffer.Release()
	c.state = StateIdle
	c.logger.Info("Capture discarded")
}

// Close is an alias of Discard for use in deferred teardown
func (c *Controller) Close() error {
	c.Discard()
	return nil
}

// releaseLocked disconnects the producer and seals the buffer. Closing the
// stream first guarantees the buffer is no longer written when read.
func (c *Controller) releaseLocked() {
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			c.logger.Warn("Error releasing capture device", slog.String("error", err.Error()))
		}
	}
	if c.buffer != nil {
		c.buffer.Seal()
		c.metrics.RecordFramesDropped(c.buffer.GetStats().FramesDropped)
	}
	c.metrics.RecordCaptureEnded()
	c.stream = nil
	c.buffer = nil
	c.startedAt = time.Time{}
}

func (c *Controller) encode(buffer *audio.SampleBuffer) (*audio.EncodedAudio, error) {
	if buffer == nil || buffer.Size() == 0 {
		return nil, ErrEmptyCapture
	}

	samples := buffer.Samples()
	target := c.config.TargetSampleRate

	resampled, err := c.config.Resampler.Resample(samples, buffer.SampleRate(), target)
	if err != nil {
		return nil, errors.Join(ErrEncodingFailure, err)
	}

	encoded, err := audio.NewEncodedAudio(audio.Quantize(resampled), target)
	if err != nil {
		return nil, errors.Join(ErrEncodingFailure, err)
	}

	if encoded.NumSamples() != len(resampled) || encoded.Len() != audio.WAVHeaderSize+2*len(resampled) {
		return nil, fmt.Errorf("%w: container holds %d bytes for %d samples", ErrEncodingFailure, encoded.Len(), len(resampled))
	}
	return encoded, nil
}

// GetStats returns a snapshot of the controller
func (c *Controller) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{State: c.state.String(), StartedAt: c.startedAt}
	if c.buffer != nil {
		bs := c.buffer.GetStats()
		stats.Buffer = &bs
	}
	return stats
}
