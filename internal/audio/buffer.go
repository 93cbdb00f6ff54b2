package audio

import (
	"fmt"
	"sync"
	"time"
)

// Frame is a fixed-length block of float samples in [-1, 1] delivered by a
// capture producer, tagged with the rate it was captured at.
type Frame struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback duration of the frame
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// SampleBuffer accumulates captured frames in strict arrival order.
// Appends may come from a real-time producer goroutine while the owner
// controls the session; once sealed, late appends are dropped so a reader
// always sees a consistent snapshot.
type SampleBuffer struct {
	sampleRate int

	frames       [][]float32
	totalSamples int
	maxSamples   int // 0 means unbounded

	// Bookkeeping
	framesAccepted uint64
	framesDropped  uint64
	lastUpdate     time.Time
	sealed         bool

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	SampleRate     int     `json:"sample_rate"`
	Frames         int     `json:"frames"`
	Samples        int     `json:"samples"`
	DurationSecs   float64 `json:"duration_seconds"`
	FramesAccepted uint64  `json:"frames_accepted"`
	FramesDropped  uint64  `json:"frames_dropped"`
	Sealed         bool    `json:"sealed"`
}

// NewSampleBuffer creates a buffer for frames captured at sampleRate.
// maxDuration caps the amount of audio retained; zero disables the cap.
func NewSampleBuffer(sampleRate int, maxDuration time.Duration) *SampleBuffer {
	maxSamples := 0
	if maxDuration > 0 {
		maxSamples = int(maxDuration.Seconds() * float64(sampleRate))
	}
	return &SampleBuffer{
		sampleRate: sampleRate,
		frames:     make([][]float32, 0, 64),
		maxSamples: maxSamples,
		lastUpdate: time.Now(),
	}
}

// Append copies a frame into the buffer. Frames at a different sample rate
// than the buffer's are rejected, frames arriving after Seal or past the
// duration cap are counted as dropped.
func (b *SampleBuffer) Append(frame Frame) error {
	if frame.SampleRate != b.sampleRate {
		return fmt.Errorf("frame sample rate %d does not match buffer rate %d", frame.SampleRate, b.sampleRate)
	}
	if len(frame.Samples) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		b.framesDropped++
		return nil
	}
	if b.maxSamples > 0 && b.totalSamples+len(frame.Samples) > b.maxSamples {
		b.framesDropped++
		return nil
	}

	samples := make([]float32, len(frame.Samples))
	copy(samples, frame.Samples)
	b.frames = append(b.frames, samples)
	b.totalSamples += len(samples)
	b.framesAccepted++
	b.lastUpdate = time.Now()
	return nil
}

// Seal stops the buffer from accepting further frames
func (b *SampleBuffer) Seal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sealed = true
}

// Samples concatenates all buffered frames into one contiguous sequence
func (b *SampleBuffer) Samples() []float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]float32, 0, b.totalSamples)
	for _, f := range b.frames {
		out = append(out, f...)
	}
	return out
}

// Release drops all buffered frames
func (b *SampleBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
	b.totalSamples = 0
}

// SampleRate returns the rate of the buffered audio
func (b *SampleBuffer) SampleRate() int {
	return b.sampleRate
}

// Size returns the current number of samples in the buffer
func (b *SampleBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.totalSamples
}

// FrameCount returns the number of frames currently buffered
func (b *SampleBuffer) FrameCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.frames)
}

// GetLastUpdate returns the time of the last accepted frame
func (b *SampleBuffer) GetLastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// GetStats returns current buffer statistics
func (b *SampleBuffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	duration := float64(0)
	if b.sampleRate > 0 {
		duration = float64(b.totalSamples) / float64(b.sampleRate)
	}

	return BufferStats{
		SampleRate:     b.sampleRate,
		Frames:         len(b.frames),
		Samples:        b.totalSamples,
		DurationSecs:   duration,
		FramesAccepted: b.framesAccepted,
		FramesDropped:  b.framesDropped,
		Sealed:         b.sealed,
	}
}
