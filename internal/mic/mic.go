package mic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/Escorpio024/scribe-ia-aurora/internal/audio"
	"github.com/Escorpio024/scribe-ia-aurora/internal/capture"
)

// DefaultFramesPerBuffer matches the block size of a browser audio worklet
const DefaultFramesPerBuffer = 128

// Device captures from the host's default input device through PortAudio
type Device struct {
	framesPerBuffer int
	sampleRate      int // 0 means the device's default rate
	logger          *slog.Logger
}

// New creates a microphone device. sampleRate 0 opens the input at its
// native default rate.
func New(sampleRate, framesPerBuffer int, logger *slog.Logger) *Device {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		framesPerBuffer: framesPerBuffer,
		sampleRate:      sampleRate,
		logger:          logger,
	}
}

// Acquire implements capture.Device. PortAudio offers no echo cancellation
// or gain control, so those constraints are accepted but only Channels is
// honoured.
func (d *Device) Acquire(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
	}

	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", mapError(err), err)
	}

	rate := d.sampleRate
	if rate <= 0 {
		rate = int(info.DefaultSampleRate)
	}

	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}

	s := &stream{sampleRate: rate, channels: channels}
	pa, err := portaudio.OpenDefaultStream(channels, 0, float64(rate), d.framesPerBuffer, s.process)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: open input stream: %v", mapError(err), err)
	}
	s.pa = pa

	d.logger.Info("Microphone acquired",
		slog.String("device", info.Name),
		slog.Int("sample_rate", rate),
		slog.Int("channels", channels),
	)
	return s, nil
}

// mapError classifies PortAudio failures into the capture taxonomy
func mapError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "denied"):
		return capture.ErrPermissionDenied
	default:
		return capture.ErrDeviceUnavailable
	}
}

// paStream is the part of *portaudio.Stream the capture stream drives
type paStream interface {
	Start() error
	Stop() error
	Close() error
}

type stream struct {
	pa         paStream
	sampleRate int
	channels   int

	// ctl serializes stream control. It may be held across pa.Stop,
	// which waits for the callback, so the callback never takes it.
	ctl     sync.Mutex
	running bool
	closed  bool

	mu   sync.Mutex
	sink capture.FrameSink
}

func (s *stream) SampleRate() int { return s.sampleRate }

// process runs on the PortAudio callback thread
func (s *stream) process(in []float32) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return
	}
	sink(audio.Frame{Samples: downmix(in, s.channels), SampleRate: s.sampleRate})
}

// downmix averages interleaved channels into mono
func downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	out := make([]float32, len(in)/channels)
	for i := range out {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += in[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

func (s *stream) Start(sink capture.FrameSink) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	if s.closed {
		return errors.New("microphone stream closed")
	}
	s.setSink(sink)
	return s.resume()
}

func (s *stream) setSink(sink capture.FrameSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *stream) Suspend() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	if !s.running {
		return nil
	}
	if err := s.pa.Stop(); err != nil {
		return err
	}
	s.running = false
	return nil
}

func (s *stream) Resume() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	return s.resume()
}

func (s *stream) resume() error {
	if s.running || s.closed {
		return nil
	}
	if err := s.pa.Start(); err != nil {
		return err
	}
	s.running = true
	return nil
}

// Close stops the callback, which PortAudio waits out, before dropping
// the sink and terminating the library.
func (s *stream) Close() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.running {
		errs = append(errs, s.pa.Stop())
		s.running = false
	}
	errs = append(errs, s.pa.Close())
	s.setSink(nil)

	errs = append(errs, portaudio.Terminate())
	return errors.Join(errs...)
}
