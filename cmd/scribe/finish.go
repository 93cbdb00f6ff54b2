package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Escorpio024/scribe-ia-aurora/internal/audio"
	"github.com/Escorpio024/scribe-ia-aurora/internal/collab"
	"github.com/Escorpio024/scribe-ia-aurora/internal/consult"
	"github.com/Escorpio024/scribe-ia-aurora/internal/queue"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

type finishOptions struct {
	entryID     string
	current     bool
	encounterID string
	recordPath  string
	fhirPath    string
	audioPath   string
	patientPath string
	suggest     bool
}

func newFinishCmd(a *app) *cobra.Command {
	opts := &finishOptions{}
	cmd := &cobra.Command{
		Use:   "finish",
		Short: "Archive a consultation and complete its queue entry",
		Long: `Build the consultation record and archive it.

The record comes either from a generated record JSON (--record) or from a
WAV recording (--audio) sent to the upload and generation collaborators.
Admission data comes from the queue entry (--entry or --current) or a
patient JSON file (--patient). When a queue entry is used it is marked
completed once the archive is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (opts.recordPath == "") == (opts.audioPath == "") {
				return errors.New("exactly one of --record or --audio is required")
			}
			if opts.entryID != "" && opts.current {
				return errors.New("--entry and --current are mutually exclusive")
			}
			return a.withQueue(func(q *queue.Service) error {
				return a.finish(cmd, q, opts)
			})
		},
	}
	cmd.Flags().StringVar(&opts.entryID, "entry", "", "queue entry being attended")
	cmd.Flags().BoolVar(&opts.current, "current", false, "use the current patient of the doctor session")
	cmd.Flags().StringVar(&opts.encounterID, "encounter", "", "encounter id when no queue entry is used")
	cmd.Flags().StringVarP(&opts.recordPath, "record", "r", "", `generated record JSON ("-" reads standard input)`)
	cmd.Flags().StringVar(&opts.fhirPath, "fhir", "", "FHIR bundle JSON stored with the record")
	cmd.Flags().StringVar(&opts.audioPath, "audio", "", "WAV recording to transcribe and generate from")
	cmd.Flags().StringVar(&opts.patientPath, "patient", "", "admission patient JSON")
	cmd.Flags().BoolVar(&opts.suggest, "suggest", false, "fetch external suggestions before finishing")
	return cmd
}

func (a *app) finish(cmd *cobra.Command, q *queue.Service, opts *finishOptions) error {
	ctx := cmd.Context()

	wsOpts := consult.Options{
		EncounterID:    opts.encounterID,
		SchemaID:       a.cfg.Record.SchemaID,
		NarrativeLimit: a.cfg.Record.NarrativeLimit,
		UsePubMed:      a.cfg.Upstream.UsePubMed,
		PubMedMax:      a.cfg.Upstream.PubMedMax,
		Logger:         a.logger,
	}

	entry, err := a.attendedEntry(ctx, q, opts)
	if err != nil {
		return err
	}
	if entry != nil {
		wsOpts.EncounterID = entry.EncounterID
		wsOpts.EntryID = entry.ID
		wsOpts.PatientID = entry.Patient.IDNumber
		wsOpts.Admission = entry.Patient
		wsOpts.Queue = q
		if sess, err := q.CurrentSession(ctx); err == nil {
			wsOpts.PractitionerID = sess.PractitionerID
		}
	}
	if opts.patientPath != "" {
		data, err := readInput(cmd, opts.patientPath)
		if err != nil {
			return err
		}
		var form record.Patient
		if err := record.UnmarshalLenient(data, &form); err != nil {
			return fmt.Errorf("invalid patient file: %w", err)
		}
		wsOpts.Admission = wsOpts.Admission.Merge(form)
	}

	client, err := a.newCollabClient(nil)
	if err != nil {
		return fmt.Errorf("failed to create collaborator client: %w", err)
	}
	if client != nil {
		defer client.Close()
		wsOpts.Collaborator = client
	}

	arch, err := a.openArchive(ctx)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	wsOpts.Archive = arch

	ws := consult.New(wsOpts)

	if opts.audioPath != "" {
		if err := transcribeAndGenerate(ctx, ws, opts.audioPath); err != nil {
			return err
		}
	} else if err := loadGenerated(cmd, ws, opts); err != nil {
		return err
	}

	if opts.suggest {
		n, err := ws.FetchSuggestions(ctx)
		if err != nil {
			a.logger.Warn("Suggestions unavailable", slog.String("error", err.Error()))
		} else {
			a.logger.Info("External suggestions added", slog.Int("count", n))
		}
	}

	finished, err := ws.Finish(ctx)
	if finished == nil {
		return err
	}
	if perr := printJSON(cmd, map[string]any{
		"file":         finished.File,
		"encounter_id": ws.EncounterID(),
		"entry_id":     wsOpts.EntryID,
		"suggestions":  ws.Snapshot().Suggestions,
	}); perr != nil {
		return perr
	}
	return err
}

// attendedEntry resolves the queue entry the consultation belongs to, if any
func (a *app) attendedEntry(ctx context.Context, q *queue.Service, opts *finishOptions) (*queue.Entry, error) {
	var entry *queue.Entry
	var err error
	switch {
	case opts.current:
		entry, err = q.CurrentPatient(ctx)
	case opts.entryID != "":
		entry, err = q.Get(ctx, opts.entryID)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if entry.Status != queue.StatusInProgress {
		return nil, fmt.Errorf("%w: entry %s is %s", queue.ErrInvalidTransition, entry.ID, entry.Status)
	}
	return entry, nil
}

func transcribeAndGenerate(ctx context.Context, ws *consult.Workspace, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("invalid recording %s: %w", path, err)
	}
	wav, err := audio.NewEncodedAudio(samples, rate)
	if err != nil {
		return err
	}

	if _, err := ws.Transcribe(ctx, wav); err != nil {
		return err
	}
	return ws.Generate(ctx)
}

func loadGenerated(cmd *cobra.Command, ws *consult.Workspace, opts *finishOptions) error {
	r, err := loadRecord(cmd, opts.recordPath)
	if err != nil {
		return err
	}
	g := &collab.Generated{Record: r}
	if opts.fhirPath != "" {
		fhir, err := readInput(cmd, opts.fhirPath)
		if err != nil {
			return err
		}
		g.FHIRBundle = fhir
	}
	return ws.LoadGenerated(g)
}
