package record

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var encounterPattern = regexp.MustCompile(`^enc_(?:\d{8}_\d{6}|web_\d+)$`)

// NewEncounterID returns enc_<YYYYMMDD>_<HHMMSS> for t
func NewEncounterID(t time.Time) string {
	return "enc_" + t.Format("20060102_150405")
}

// NewWebEncounterID returns enc_web_<unix milliseconds> for t, the variant
// minted by browser-side capture.
func NewWebEncounterID(t time.Time) string {
	return fmt.Sprintf("enc_web_%d", t.UnixMilli())
}

// ValidEncounterID reports whether id follows either encounter pattern
func ValidEncounterID(id string) bool {
	return encounterPattern.MatchString(id)
}

// EnsureEncounterID returns id, or a fresh one when id is blank
func EnsureEncounterID(id string, now time.Time) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return NewEncounterID(now)
}

var unsafeFileChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_")

// ArchiveFileName returns historia_<name>_<YYYY-MM-DD>.json with spaces in
// the patient name replaced by underscores.
func ArchiveFileName(patientName string, date time.Time) string {
	name := strings.Join(strings.Fields(unsafeFileChars.Replace(patientName)), "_")
	if name == "" {
		name = "paciente"
	}
	return fmt.Sprintf("historia_%s_%s.json", name, date.Format("2006-01-02"))
}

// Document is the persisted form of a finished consultation
type Document struct {
	Admission    Patient         `json:"admission"`
	ClinicalData *Record         `json:"clinical_data"`
	FHIRBundle   json.RawMessage `json:"fhir_bundle"`
	FinishedAt   time.Time       `json:"finished_at"`
	EncounterID  string          `json:"encounter_id"`

	// finishedLocal is FinishedAt in the clinic's zone; file names are
	// dated by it.
	finishedLocal time.Time
}

// NewDocument assembles the archive document for a finished consultation.
// The record is cloned so later edits do not leak into it. finished_at is
// stored in UTC while the file name keeps finishedAt's own calendar day.
func NewDocument(encounterID string, admission Patient, r *Record, fhir json.RawMessage, finishedAt time.Time) *Document {
	return &Document{
		Admission:     admission,
		ClinicalData:  r.Clone(),
		FHIRBundle:    fhir,
		FinishedAt:    finishedAt.UTC(),
		EncounterID:   encounterID,
		finishedLocal: finishedAt,
	}
}

// FileName returns the archive file name of the document
func (d *Document) FileName() string {
	name := d.Admission.Name
	if name == "" && d.ClinicalData != nil {
		name = d.ClinicalData.Patient.Name
	}
	day := d.finishedLocal
	if day.IsZero() {
		day = d.FinishedAt.Local()
	}
	return ArchiveFileName(name, day)
}
