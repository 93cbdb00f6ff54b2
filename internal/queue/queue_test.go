package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Escorpio024/scribe-ia-aurora/internal/kv"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

func newTestService() *Service {
	s := NewService(kv.NewMemory(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	clock := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return s
}

func TestQueueLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	if _, err := s.OpenSession(ctx, "dr-1", "Dra. Rojas"); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	a, err := s.Add(ctx, record.Patient{Name: "Ana"}, "Control")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	b, _ := s.Add(ctx, record.Patient{Name: "Beto"}, "")

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Errorf("Expected arrival order, got %+v", list)
	}

	started, err := s.Start(ctx, a.ID)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if started.Status != StatusInProgress || !record.ValidEncounterID(started.EncounterID) || started.StartedAt == nil {
		t.Errorf("Unexpected started entry %+v", started)
	}

	current, err := s.CurrentPatient(ctx)
	if err != nil || current.ID != a.ID {
		t.Fatalf("Expected current patient %s, got %+v, %v", a.ID, current, err)
	}

	pending, _ := s.List(ctx, StatusPending)
	if len(pending) != 1 || pending[0].ID != b.ID {
		t.Errorf("Unexpected pending list %+v", pending)
	}

	done, err := s.Complete(ctx, a.ID)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.Status != StatusCompleted || done.CompletedAt == nil {
		t.Errorf("Unexpected completed entry %+v", done)
	}
	if _, err := s.CurrentPatient(ctx); !errors.Is(err, ErrNoCurrentPatient) {
		t.Errorf("Expected ErrNoCurrentPatient, got %v", err)
	}
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	e, _ := s.Add(ctx, record.Patient{Name: "Ana"}, "")

	if _, err := s.Complete(ctx, e.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition completing pending, got %v", err)
	}
	if _, err := s.Start(ctx, e.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := s.Start(ctx, e.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition starting twice, got %v", err)
	}
	if _, err := s.Start(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStartWithoutSession(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	e, _ := s.Add(ctx, record.Patient{Name: "Ana"}, "")

	if _, err := s.Start(ctx, e.ID); err != nil {
		t.Fatalf("Start without session failed: %v", err)
	}
	if _, err := s.CurrentPatient(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
}

func TestSession(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	if _, err := s.CurrentSession(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
	if _, err := s.OpenSession(ctx, " ", ""); err == nil {
		t.Error("Expected error for empty practitioner")
	}
	sess, _ := s.OpenSession(ctx, "dr-1", "")
	got, err := s.CurrentSession(ctx)
	if err != nil || got.PractitionerID != sess.PractitionerID {
		t.Errorf("Unexpected session %+v, %v", got, err)
	}
	if err := s.CloseSession(ctx); err != nil {
		t.Fatalf("CloseSession failed: %v", err)
	}
	if err := s.CloseSession(ctx); err != nil {
		t.Errorf("Second CloseSession failed: %v", err)
	}
}

func TestAddRequiresName(t *testing.T) {
	if _, err := newTestService().Add(context.Background(), record.Patient{}, "x"); err == nil {
		t.Error("Expected error for nameless patient")
	}
}

func TestParseStatus(t *testing.T) {
	if st, err := ParseStatus(" In_Progress "); err != nil || st != StatusInProgress {
		t.Errorf("Unexpected %q, %v", st, err)
	}
	if _, err := ParseStatus("done"); err == nil {
		t.Error("Expected error for unknown status")
	}
}
