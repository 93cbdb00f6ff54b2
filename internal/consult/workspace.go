package consult

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Escorpio024/scribe-ia-aurora/internal/audio"
	"github.com/Escorpio024/scribe-ia-aurora/internal/collab"
	"github.com/Escorpio024/scribe-ia-aurora/internal/metrics"
	"github.com/Escorpio024/scribe-ia-aurora/internal/queue"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
	"github.com/Escorpio024/scribe-ia-aurora/internal/suggest"
)

var (
	// ErrFinished is returned for any change after Finish succeeded
	ErrFinished = errors.New("consultation already finished")

	// ErrNoCollaborator is returned when a remote step is requested
	// without a configured collaborator
	ErrNoCollaborator = errors.New("no collaborator configured")
)

// Collaborator is the remote side of a consultation. *collab.Client
// satisfies it.
type Collaborator interface {
	Upload(ctx context.Context, encounterID string, wav *audio.EncodedAudio) (*collab.UploadResult, error)
	Generate(ctx context.Context, req collab.GenerateRequest) (*collab.Generated, error)
	Suggest(ctx context.Context, req collab.SuggestRequest) ([]suggest.Suggestion, error)
}

// Archiver persists finished consultations. *archive.Archive satisfies it.
type Archiver interface {
	Save(ctx context.Context, doc *record.Document) (string, error)
}

// Queue marks queue entries done. *queue.Service satisfies it.
type Queue interface {
	Complete(ctx context.Context, id string) (*queue.Entry, error)
}

// Options configures a Workspace. Only EncounterID is required; a
// workspace without collaborator, archive or queue still edits locally.
type Options struct {
	EncounterID    string
	EntryID        string
	PatientID      string
	PractitionerID string
	SchemaID       string
	Admission      record.Patient

	NarrativeLimit int
	UsePubMed      bool
	PubMedMax      int

	Collaborator Collaborator
	Archive      Archiver
	Queue        Queue
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Workspace owns the record and suggestion panel of one consultation.
// Remote calls run without the lock and their results are applied only on
// success, so a failed call leaves the workspace unchanged.
type Workspace struct {
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	record     *record.Record
	fhir       json.RawMessage
	panel      *suggest.Panel
	transcript []collab.Turn
	finished   *Finished

	mu sync.Mutex
}

// Finished describes a completed consultation
type Finished struct {
	File     string           `json:"file"`
	Document *record.Document `json:"document"`
}

// Snapshot is a read-only copy of the workspace
type Snapshot struct {
	EncounterID string               `json:"encounter_id"`
	Record      *record.Record       `json:"record"`
	Suggestions []suggest.Suggestion `json:"suggestions"`
	Transcript  []collab.Turn        `json:"transcript"`
	Finished    bool                 `json:"finished"`
}

// New creates an empty workspace
func New(opts Options) *Workspace {
	opts.EncounterID = record.EnsureEncounterID(opts.EncounterID, time.Now())
	if opts.NarrativeLimit <= 0 {
		opts.NarrativeLimit = record.DefaultNarrativeLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := record.New()
	record.MergePatientFields(r, opts.Admission)
	return &Workspace{
		opts:    opts,
		logger:  logger.With(slog.String("encounter_id", opts.EncounterID)),
		metrics: opts.Metrics,
		now:     time.Now,
		record:  r,
		panel:   suggest.NewPanel(nil),
	}
}

// EncounterID returns the consultation's encounter id
func (w *Workspace) EncounterID() string { return w.opts.EncounterID }

// Transcribe uploads the recorded audio and keeps the returned transcript
func (w *Workspace) Transcribe(ctx context.Context, wav *audio.EncodedAudio) (*collab.UploadResult, error) {
	if err := w.checkRemote(); err != nil {
		return nil, err
	}
	res, err := w.opts.Collaborator.Upload(ctx, w.opts.EncounterID, wav)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished != nil {
		return nil, ErrFinished
	}
	w.transcript = slices.Clone(res.Transcript)
	w.logger.Info("Transcript received", slog.Int("turns", len(res.Transcript)))
	return res, nil
}

// Generate asks the generation collaborator for the record of the current
// transcript and loads it.
func (w *Workspace) Generate(ctx context.Context) error {
	if err := w.checkRemote(); err != nil {
		return err
	}

	w.mu.Lock()
	req := collab.GenerateRequest{
		EncounterID:    w.opts.EncounterID,
		PatientID:      w.opts.PatientID,
		PractitionerID: w.opts.PractitionerID,
		SchemaID:       w.opts.SchemaID,
		Transcript:     slices.Clone(w.transcript),
	}
	w.mu.Unlock()

	g, err := w.opts.Collaborator.Generate(ctx, req)
	if err != nil {
		return err
	}
	return w.LoadGenerated(g)
}

// LoadGenerated replaces the record and built-in suggestions with a
// generation result. Admission data overlays the generated patient
// section and the narrative is compacted for display.
func (w *Workspace) LoadGenerated(g *collab.Generated) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished != nil {
		return ErrFinished
	}

	r := record.New()
	if g != nil && g.Record != nil {
		r = g.Record.Clone()
	}
	record.MergePatientFields(r, w.opts.Admission)
	r.CompactPresentIllness(w.opts.NarrativeLimit)

	var builtIn []suggest.Suggestion
	var fhir json.RawMessage
	if g != nil {
		builtIn = g.Suggestions
		fhir = slices.Clone(g.FHIRBundle)
	}

	w.record = r
	w.fhir = fhir
	w.panel = suggest.NewPanel(builtIn)
	w.metrics.RecordSuggestions(suggest.SourceBuiltIn, len(builtIn))
	w.logger.Info("Generated record loaded", slog.Int("suggestions", len(builtIn)))
	return nil
}

// FetchSuggestions asks the suggestion collaborator about the current
// record and merges the answer into the panel.
func (w *Workspace) FetchSuggestions(ctx context.Context) (int, error) {
	if err := w.checkRemote(); err != nil {
		return 0, err
	}

	w.mu.Lock()
	req := collab.SuggestRequest{
		Context:   record.BuildSuggestionContext(w.record),
		UsePubMed: w.opts.UsePubMed,
		PubMedMax: w.opts.PubMedMax,
	}
	w.mu.Unlock()

	list, err := w.opts.Collaborator.Suggest(ctx, req)
	if err != nil {
		return 0, err
	}
	return w.AddExternalSuggestions(list)
}

// AddExternalSuggestions merges external suggestions into the panel and
// returns how many were new.
func (w *Workspace) AddExternalSuggestions(list []suggest.Suggestion) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished != nil {
		return 0, ErrFinished
	}
	n := w.panel.Merge(list)
	w.logger.Debug("External suggestions merged",
		slog.Int("received", len(list)),
		slog.Int("added", n),
	)
	return n, nil
}

// RenderSection returns the editable text of a section
func (w *Workspace) RenderSection(key string) (string, error) {
	s, err := record.ParseSection(key)
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return record.ToText(w.record, s)
}

// EditSection replaces a section with the structure parsed from text
func (w *Workspace) EditSection(key, text string) error {
	s, err := record.ParseSection(key)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished != nil {
		return ErrFinished
	}
	if err := record.FromText(w.record, s, text); err != nil {
		return fmt.Errorf("failed to edit %s: %w", s, err)
	}
	w.metrics.RecordSectionEdit(string(s))
	return nil
}

// Accept applies a suggestion action to the record
func (w *Workspace) Accept(id string, action suggest.Action) (suggest.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished != nil {
		return suggest.Result{}, ErrFinished
	}

	res, err := w.panel.Accept(id, action, w.record)
	if err != nil {
		return suggest.Result{}, err
	}
	w.metrics.RecordAction(string(res.Action), string(res.Outcome))
	w.logger.Info("Suggestion applied",
		slog.String("action", string(res.Action)),
		slog.String("outcome", string(res.Outcome)),
		slog.String("section", string(res.Section)),
	)
	return res, nil
}

// Dismiss removes a suggestion without touching the record
func (w *Workspace) Dismiss(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished != nil {
		return ErrFinished
	}
	if !w.panel.Dismiss(id) {
		return fmt.Errorf("%w: %s", suggest.ErrNotFound, id)
	}
	return nil
}

// MergePatient overlays non-empty form fields onto the record and the
// admission data, returning the number of record fields changed.
func (w *Workspace) MergePatient(form record.Patient) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished != nil {
		return 0, ErrFinished
	}
	w.opts.Admission = w.opts.Admission.Merge(form)
	n := record.MergePatientFields(w.record, form)
	if n > 0 {
		w.metrics.RecordSectionEdit(string(record.SectionPatient))
	}
	return n, nil
}

// Snapshot returns a copy of the workspace state
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		EncounterID: w.opts.EncounterID,
		Record:      w.record.Clone(),
		Suggestions: w.panel.Items(),
		Transcript:  slices.Clone(w.transcript),
		Finished:    w.finished != nil,
	}
}

// Finish archives the consultation and completes its queue entry. When
// archiving fails nothing changes and Finish may be retried; a queue
// failure after a successful archive is logged and returned, and the
// workspace is still finished.
func (w *Workspace) Finish(ctx context.Context) (*Finished, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished != nil {
		return nil, ErrFinished
	}
	if w.opts.Archive == nil {
		return nil, errors.New("no archive configured")
	}

	doc := record.NewDocument(w.opts.EncounterID, w.opts.Admission, w.record, w.fhir, w.now())
	file, err := w.opts.Archive.Save(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to archive consultation: %w", err)
	}
	w.finished = &Finished{File: file, Document: doc}
	w.logger.Info("Consultation finished", slog.String("file", file))

	if w.opts.Queue != nil && w.opts.EntryID != "" {
		if _, err := w.opts.Queue.Complete(ctx, w.opts.EntryID); err != nil {
			w.logger.Warn("Failed to complete queue entry",
				slog.String("entry_id", w.opts.EntryID),
				slog.String("error", err.Error()),
			)
			return w.finished, fmt.Errorf("consultation archived as %s but queue not updated: %w", file, err)
		}
	}
	return w.finished, nil
}

func (w *Workspace) checkRemote() error {
	if w.opts.Collaborator == nil {
		return ErrNoCollaborator
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished != nil {
		return ErrFinished
	}
	return nil
}
