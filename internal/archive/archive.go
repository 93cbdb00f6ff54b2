package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

// Archive saves finished consultation documents to a Store
type Archive struct {
	store  Store
	logger *slog.Logger
}

// New creates an archive over store
func New(store Store, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{store: store, logger: logger}
}

// Save writes doc under its archive file name. If that name is taken by
// another consultation the encounter id is appended, so a patient seen
// twice on one day keeps both files.
func (a *Archive) Save(ctx context.Context, doc *record.Document) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode archive document: %w", err)
	}

	name := doc.FileName()
	exists, err := a.store.Exists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to check archive: %w", err)
	}
	if exists && doc.EncounterID != "" {
		name = strings.TrimSuffix(name, ".json") + "_" + doc.EncounterID + ".json"
	}

	if err := a.store.Put(ctx, name, data); err != nil {
		return "", fmt.Errorf("failed to write archive document: %w", err)
	}

	a.logger.Info("Consultation archived",
		slog.String("file", name),
		slog.String("encounter_id", doc.EncounterID),
		slog.Int("bytes", len(data)),
	)
	return name, nil
}

// Load reads a previously saved document
func (a *Archive) Load(ctx context.Context, name string) (*record.Document, error) {
	data, err := a.store.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	var doc record.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode archive document %s: %w", name, err)
	}
	return &doc, nil
}
