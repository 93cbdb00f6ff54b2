// Command collabmock serves canned upload, generation and suggestion
// replies so the scribe service can be exercised end to end without the
// real collaborators.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Escorpio024/scribe-ia-aurora/internal/audio"
	"github.com/Escorpio024/scribe-ia-aurora/internal/collab"
	"github.com/Escorpio024/scribe-ia-aurora/internal/suggest"
)

const maxUploadBytes = 64 << 20

func main() {
	var addr string
	var delay time.Duration

	cmd := &cobra.Command{
		Use:          "collabmock",
		Short:        "Fake upload, generation and suggestion collaborators",
		SilenceUsage: true,
		RunE: func(*cobra.Command, []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
			logger.Info("Collaborator mock starting",
				slog.String("address", addr),
				slog.String("base_url", "http://"+addr),
			)
			return http.ListenAndServe(addr, newMux(logger, delay))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9000", "listen address")
	cmd.Flags().DurationVar(&delay, "delay", 200*time.Millisecond, "simulated processing time per request")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type mock struct {
	logger *slog.Logger
	delay  time.Duration
}

func newMux(logger *slog.Logger, delay time.Duration) *http.ServeMux {
	m := &mock{logger: logger, delay: delay}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ingest/upload", m.handleUpload)
	mux.HandleFunc("POST /nlp/generate", m.handleGenerate)
	mux.HandleFunc("POST /cds/suggest", m.handleSuggest)
	return mux
}

func (m *mock) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("wav")
	if err != nil {
		http.Error(w, "missing wav part", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read audio", http.StatusInternalServerError)
		return
	}
	info, err := audio.GetWAVInfo(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	encounterID := r.URL.Query().Get("encounter_id")
	m.logger.Info("Upload received",
		slog.String("encounter_id", encounterID),
		slog.String("filename", header.Filename),
		slog.Int("bytes", len(data)),
		slog.Int("sample_rate", int(info.SampleRate)),
		slog.Float64("duration_seconds", info.Duration),
	)
	m.wait()

	half := info.Duration / 2
	end := info.Duration
	zero := 0.0
	writeJSON(w, collab.UploadResult{
		EncounterID: encounterID,
		Transcript: []collab.Turn{
			{Speaker: "medico", Text: "Buenos días, ¿qué lo trae a consulta?", Start: &zero, End: &half},
			{Speaker: "paciente", Text: "Tengo dolor de cabeza desde hace tres días. Empeora en la tarde.", Start: &half, End: &end},
		},
		StoredWAV: "mock/" + encounterID + ".wav",
	})
}

func (m *mock) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req collab.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	m.logger.Info("Generation requested",
		slog.String("encounter_id", req.EncounterID),
		slog.String("schema_id", req.SchemaID),
		slog.Int("turns", len(req.Transcript)),
	)
	m.wait()

	var said []string
	for _, t := range req.Transcript {
		if t.Speaker != "medico" {
			said = append(said, t.Text)
		}
	}
	complaint := "Consulta general"
	if len(said) > 0 {
		complaint = said[0]
	}

	writeJSON(w, map[string]any{
		"json_clinico": map[string]any{
			"motivo_consulta":   complaint,
			"enfermedad_actual": strings.Join(said, " "),
			"impresion_dx":      []string{"Cefalea tensional"},
			"prescripciones":    []string{"Acetaminofén 500 mg cada 8 horas"},
		},
		"fhir_bundle": map[string]any{
			"resourceType": "Bundle",
			"type":         "collection",
			"entry":        []any{},
		},
		"cds_suggestions": []suggest.Suggestion{{
			Kind:      "medication",
			Message:   "Considerar ibuprofeno si no hay contraindicación gástrica",
			Proposed:  "Ibuprofeno 400 mg cada 8 horas",
			Current:   "Acetaminofén 500 mg cada 8 horas",
			Rationale: "Mejor respuesta en cefalea tensional episódica",
		}},
	})
}

func (m *mock) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req collab.SuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	m.logger.Info("Suggestions requested",
		slog.String("chief_complaint", req.Context.ChiefComplaint),
		slog.Bool("use_pubmed", req.UsePubMed),
	)
	m.wait()

	s := suggest.Suggestion{
		Kind:        "order",
		Message:     "Solicitar control de presión arterial",
		Proposed:    "Toma de presión arterial en 2 semanas",
		SafetyNotes: []string{"Descartar signos de alarma neurológica"},
	}
	if req.UsePubMed {
		refs := []string{"31563421", "29420612", "27214522"}
		if req.PubMedMax > 0 && req.PubMedMax < len(refs) {
			refs = refs[:req.PubMedMax]
		}
		s.Refs = refs
	}
	writeJSON(w, map[string]any{"suggestions": []suggest.Suggestion{s}})
}

func (m *mock) wait() {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
