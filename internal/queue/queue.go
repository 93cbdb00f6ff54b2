package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Escorpio024/scribe-ia-aurora/internal/kv"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

var (
	ErrNotFound          = errors.New("queue entry not found")
	ErrInvalidTransition = errors.New("invalid queue status transition")
	ErrNoSession         = errors.New("no doctor session open")
	ErrNoCurrentPatient  = errors.New("no patient in consultation")
)

// Status of a queue entry
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// ParseStatus validates a status name
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusInProgress, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Entry is one patient waiting for, in, or done with consultation
type Entry struct {
	ID          string         `json:"id"`
	Patient     record.Patient `json:"patient"`
	Reason      string         `json:"reason,omitempty"`
	EncounterID string         `json:"encounter_id,omitempty"`
	Status      Status         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Session is the doctor's working session
type Session struct {
	PractitionerID string    `json:"practitioner_id"`
	Name           string    `json:"name,omitempty"`
	OpenedAt       time.Time `json:"opened_at"`
	CurrentEntryID string    `json:"current_entry_id,omitempty"`
}

var (
	entriesKey = kv.Key{"queue", "entries"}
	sessionKey = kv.Key{"session", "doctor"}
)

// Service manages the patient queue and the doctor session over a kv.Store
type Service struct {
	store  kv.Store
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewService creates a queue service
func NewService(store kv.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Add enqueues a patient as pending
func (s *Service) Add(ctx context.Context, patient record.Patient, reason string) (*Entry, error) {
	if strings.TrimSpace(patient.Name) == "" {
		return nil, errors.New("patient name is required")
	}

	e := &Entry{
		ID:        uuid.NewString(),
		Patient:   patient,
		Reason:    strings.TrimSpace(reason),
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.put(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("Patient queued", slog.String("entry_id", e.ID))
	return e, nil
}

// Get returns the entry with id
func (s *Service) Get(ctx context.Context, id string) (*Entry, error) {
	data, err := s.store.Get(ctx, append(slices.Clone(entriesKey), id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue entry: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode queue entry %s: %w", id, err)
	}
	return &e, nil
}

// List returns entries in arrival order, optionally filtered by status
func (s *Service) List(ctx context.Context, statuses ...Status) ([]Entry, error) {
	out := []Entry{}
	for item, err := range s.store.List(ctx, entriesKey) {
		if err != nil {
			return nil, fmt.Errorf("failed to list queue: %w", err)
		}
		var e Entry
		if err := json.Unmarshal(item.Value, &e); err != nil {
			s.logger.Warn("Skipping unreadable queue entry",
				slog.String("key", item.Key.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, e.Status) {
			continue
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b Entry) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// Start moves an entry from pending to in_progress, assigns its encounter
// id and makes it the current patient of the open session, if any.
func (s *Service) Start(ctx context.Context, id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusPending {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, e.Status, StatusInProgress)
	}

	now := s.now().UTC()
	e.Status = StatusInProgress
	e.StartedAt = &now
	e.EncounterID = record.EnsureEncounterID(e.EncounterID, now)
	if err := s.put(ctx, e); err != nil {
		return nil, err
	}

	sess, err := s.session(ctx)
	switch {
	case err == nil:
		sess.CurrentEntryID = e.ID
		if err := s.putSession(ctx, sess); err != nil {
			return nil, err
		}
	case !errors.Is(err, ErrNoSession):
		return nil, err
	}

	s.logger.Info("Consultation started",
		slog.String("entry_id", e.ID),
		slog.String("encounter_id", e.EncounterID),
	)
	return e, nil
}

// Complete moves an entry from in_progress to completed and clears it as
// the current patient.
func (s *Service) Complete(ctx context.Context, id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusInProgress {
		return nil, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, e.Status, StatusCompleted)
	}

	now := s.now().UTC()
	e.Status = StatusCompleted
	e.CompletedAt = &now
	if err := s.put(ctx, e); err != nil {
		return nil, err
	}

	if sess, err := s.session(ctx); err == nil && sess.CurrentEntryID == e.ID {
		sess.CurrentEntryID = ""
		if err := s.putSession(ctx, sess); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Consultation completed", slog.String("entry_id", e.ID))
	return e, nil
}

// Remove deletes an entry
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, append(slices.Clone(entriesKey), id))
}

// OpenSession opens, or replaces, the doctor session
func (s *Service) OpenSession(ctx context.Context, practitionerID, name string) (*Session, error) {
	if strings.TrimSpace(practitionerID) == "" {
		return nil, errors.New("practitioner id is required")
	}
	sess := &Session{
		PractitionerID: strings.TrimSpace(practitionerID),
		Name:           strings.TrimSpace(name),
		OpenedAt:       s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putSession(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("Doctor session opened", slog.String("practitioner_id", sess.PractitionerID))
	return sess, nil
}

// CurrentSession returns the open doctor session
func (s *Service) CurrentSession(ctx context.Context) (*Session, error) {
	return s.session(ctx)
}

// CloseSession ends the doctor session. Closing without a session is not
// an error.
func (s *Service) CloseSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, sessionKey)
}

// CurrentPatient returns the entry in consultation for the open session
func (s *Service) CurrentPatient(ctx context.Context) (*Entry, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	if sess.CurrentEntryID == "" {
		return nil, ErrNoCurrentPatient
	}
	return s.Get(ctx, sess.CurrentEntryID)
}

func (s *Service) put(ctx context.Context, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode queue entry: %w", err)
	}
	if err := s.store.Set(ctx, append(slices.Clone(entriesKey), e.ID), data); err != nil {
		return fmt.Errorf("failed to write queue entry: %w", err)
	}
	return nil
}

func (s *Service) session(ctx context.Context) (*Session, error) {
	data, err := s.store.Get(ctx, sessionKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

func (s *Service) putSession(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.store.Set(ctx, sessionKey, data); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}
