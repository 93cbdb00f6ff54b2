package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Escorpio024/scribe-ia-aurora/internal/audio"
	"github.com/Escorpio024/scribe-ia-aurora/internal/capture"
	"github.com/Escorpio024/scribe-ia-aurora/internal/metrics"
)

// ErrTooManySessions is returned when the session limit is reached
var ErrTooManySessions = errors.New("too many capture sessions")

// Session is one remote capture: a push device fed by the client and the
// controller recording from it.
type Session struct {
	ID           string
	EncounterID  string
	RemoteAddr   string
	SampleRate   int
	StartTime    time.Time
	LastActivity time.Time

	device     *capture.PushDevice
	controller *capture.Controller

	framesReceived  uint64
	samplesReceived uint64
	framesRejected  uint64

	mu sync.RWMutex
}

// SessionInfo is a snapshot of a session for monitoring
type SessionInfo struct {
	ID              string        `json:"id"`
	EncounterID     string        `json:"encounter_id"`
	RemoteAddr      string        `json:"remote_addr"`
	SampleRate      int           `json:"sample_rate"`
	StartTime       time.Time     `json:"start_time"`
	LastActivity    time.Time     `json:"last_activity"`
	Duration        time.Duration `json:"duration"`
	FramesReceived  uint64        `json:"frames_received"`
	SamplesReceived uint64        `json:"samples_received"`
	FramesRejected  uint64        `json:"frames_rejected"`
	Capture         capture.Stats `json:"capture"`
}

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	MaxSessions     int
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	Capture         capture.Config
}

// Manager tracks active capture sessions and discards idle ones
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	metrics  *metrics.Metrics
	config   ManagerConfig

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewManager creates a session manager and starts its cleanup routine
func NewManager(logger *slog.Logger, config ManagerConfig, m *metrics.Metrics) *Manager {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
		metrics:  m,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		cleanup:  make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr
}

// CreateSession registers a session whose client delivers frames at
// sampleRate.
func (m *Manager) CreateSession(encounterID, remoteAddr string, sampleRate int) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.MaxSessions > 0 && len(m.sessions) >= m.config.MaxSessions {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, m.config.MaxSessions)
	}

	device := capture.NewPushDevice(sampleRate)
	now := time.Now()
	session := &Session{
		ID:           uuid.NewString(),
		EncounterID:  encounterID,
		RemoteAddr:   remoteAddr,
		SampleRate:   sampleRate,
		StartTime:    now,
		LastActivity: now,
		device:       device,
		controller: capture.NewController(device, m.config.Capture,
			m.logger.With(slog.String("encounter_id", encounterID)), m.metrics),
	}
	m.sessions[session.ID] = session

	m.logger.Info("Capture session created",
		slog.String("session_id", session.ID),
		slog.String("encounter_id", encounterID),
		slog.String("remote_addr", remoteAddr),
		slog.Int("sample_rate", sampleRate),
	)

	return session, nil
}

// GetSession retrieves a session by id
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// GetActiveSessionCount returns the number of active sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// GetAllSessions returns all active sessions
func (m *Manager) GetAllSessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// RemoveSession discards any capture in progress and forgets the session
func (m *Manager) RemoveSession(id string) bool {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !exists {
		return false
	}

	session.controller.Discard()

	m.logger.Info("Capture session removed",
		slog.String("session_id", id),
		slog.Duration("duration", time.Since(session.StartTime)),
	)
	return true
}

// Stop ends the cleanup routine and discards every session
func (m *Manager) Stop() {
	m.logger.Info("Stopping capture session manager...")

	m.cancel()
	<-m.cleanup

	for _, session := range m.GetAllSessions() {
		m.RemoveSession(session.ID)
	}

	m.logger.Info("Capture session manager stopped")
}

func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	if m.config.IdleTimeout <= 0 {
		<-m.ctx.Done()
		return
	}

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions discards recording sessions whose client went
// quiet. Paused sessions are left alone; their socket owns them.
func (m *Manager) cleanupExpiredSessions() {
	if m.config.IdleTimeout <= 0 {
		return
	}
	now := time.Now()
	expired := make([]string, 0)

	m.mu.RLock()
	for id, session := range m.sessions {
		session.mu.RLock()
		lastActivity := session.LastActivity
		session.mu.RUnlock()

		if session.State() == capture.StatePaused {
			continue
		}
		if now.Sub(lastActivity) > m.config.IdleTimeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) > 0 {
		m.logger.Info("Cleaning up idle capture sessions",
			slog.Int("expired_count", len(expired)),
		)
		for _, id := range expired {
			m.RemoveSession(id)
		}
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.LastActivity = time.Now()
	s.mu.Unlock()
}

// Start begins recording
func (s *Session) Start(ctx context.Context) error {
	s.touch()
	return s.controller.Start(ctx)
}

// Pause suspends recording
func (s *Session) Pause() error {
	s.touch()
	return s.controller.Pause()
}

// Resume continues recording
func (s *Session) Resume() error {
	s.touch()
	return s.controller.Resume()
}

// Stop ends recording and returns the encoded audio
func (s *Session) Stop() (*audio.EncodedAudio, error) {
	s.touch()
	return s.controller.Stop()
}

// Discard drops the recording
func (s *Session) Discard() {
	s.touch()
	s.controller.Discard()
}

// State returns the capture state
func (s *Session) State() capture.State {
	return s.controller.State()
}

// Push delivers a frame from the client. It reports whether the frame was
// recorded; frames sent while paused or stopped are counted as rejected.
func (s *Session) Push(samples []float32) bool {
	ok := s.device.Push(samples)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActivity = time.Now()
	if ok {
		s.framesReceived++
		s.samplesReceived += uint64(len(samples))
	} else {
		s.framesRejected++
	}
	return ok
}

// GetSessionInfo returns a snapshot of the session
func (s *Session) GetSessionInfo() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		ID:              s.ID,
		EncounterID:     s.EncounterID,
		RemoteAddr:      s.RemoteAddr,
		SampleRate:      s.SampleRate,
		StartTime:       s.StartTime,
		LastActivity:    s.LastActivity,
		Duration:        time.Since(s.StartTime),
		FramesReceived:  s.framesReceived,
		SamplesReceived: s.samplesReceived,
		FramesRejected:  s.framesRejected,
		Capture:         s.controller.GetStats(),
	}
}
