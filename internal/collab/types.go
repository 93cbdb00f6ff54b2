package collab

import (
	"encoding/json"

	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
	"github.com/Escorpio024/scribe-ia-aurora/internal/suggest"
)

// Turn is one utterance of the transcript
type Turn struct {
	Speaker string   `json:"speaker"`
	Text    string   `json:"text"`
	Start   *float64 `json:"t0,omitempty"`
	End     *float64 `json:"t1,omitempty"`
}

// UploadResult is the reply of the upload collaborator
type UploadResult struct {
	EncounterID string `json:"encounter_id"`
	Transcript  []Turn `json:"transcript"`
	StoredWAV   string `json:"stored_wav"`
}

// GenerateRequest is the input of the generation collaborator
type GenerateRequest struct {
	EncounterID    string `json:"encounter_id"`
	PatientID      string `json:"patient_id"`
	PractitionerID string `json:"practitioner_id"`
	SchemaID       string `json:"schema_id"`
	Transcript     []Turn `json:"transcript"`
}

// Generated is the reply of the generation collaborator
type Generated struct {
	Record      *record.Record
	FHIRBundle  json.RawMessage
	Suggestions []suggest.Suggestion
}

// SuggestRequest is the input of the suggestion collaborator
type SuggestRequest struct {
	Context   record.SuggestionContext `json:"context"`
	UsePubMed bool                     `json:"use_pubmed"`
	PubMedMax int                      `json:"pubmed_max"`
}
