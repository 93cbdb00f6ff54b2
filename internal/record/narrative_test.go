package record

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestCompactNarrative(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "Tiene fiebre.", 20, "Tiene fiebre."},
		{"fits unchanged", "Tiene fiebre.\n\nTos seca desde ayer.", 350, "Tiene fiebre.\n\nTos seca desde ayer."},
		{"whitespace collapsed when compacting", "  Tiene   fiebre.\n\tTos.  Además mialgia generalizada.", 20, "Tiene fiebre. Tos."},
		{"fits after collapsing", "Tiene  fiebre.\n\nTos.", 19, "Tiene fiebre. Tos."},
		{"first sentence", "Tiene fiebre. Tos seca desde 3 días. Refiere además mialgia generalizada.", 20, "Tiene fiebre."},
		{"two sentences", "Tiene fiebre. Tos seca desde 3 días. Refiere además mialgia generalizada.", 40, "Tiene fiebre. Tos seca desde 3 días."},
		{"no boundary fits", "Paciente con fiebre alta y tos seca", 10, "Paciente…"},
		{"decimal is not a boundary", "Temperatura 38.5 grados y malestar general", 12, "Temperatura…"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompactNarrative(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
			if utf8.RuneCountInString(got) > tt.max {
				t.Errorf("Result longer than %d: %q", tt.max, got)
			}
		})
	}
}

func TestCompactNarrativeNeverSplitsSentence(t *testing.T) {
	text := strings.Repeat("Una oración clínica corta. ", 40)
	got := CompactNarrative(text, DefaultNarrativeLimit)
	if utf8.RuneCountInString(got) > DefaultNarrativeLimit {
		t.Fatalf("Result too long: %d", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, ".") || strings.HasSuffix(got, ellipsis) {
		t.Errorf("Expected whole sentences, got %q", got)
	}
}

func TestCompactPresentIllness(t *testing.T) {
	r := New()
	r.PresentIllness = Narrative{Text: "Uno. Dos. Tres."}
	r.CompactPresentIllness(9)
	if r.PresentIllness.Text != "Uno. Dos." {
		t.Errorf("Unexpected compaction %q", r.PresentIllness.Text)
	}

	r.PresentIllness = Narrative{Text: "Fiebre.\n\nTos."}
	r.CompactPresentIllness(DefaultNarrativeLimit)
	if r.PresentIllness.Text != "Fiebre.\n\nTos." {
		t.Errorf("Short narrative should keep its paragraphs, got %q", r.PresentIllness.Text)
	}

	r.PresentIllness = Narrative{Onset: strings.Repeat("x", 50)}
	r.CompactPresentIllness(9)
	if len(r.PresentIllness.Onset) != 50 {
		t.Error("Structured narrative should not be compacted")
	}
}

func TestMergePatientFields(t *testing.T) {
	r := New()
	r.Patient = Patient{Name: "Ana", Phone: "3001234567", Age: "40"}

	n := MergePatientFields(r, Patient{Name: "  ", IDNumber: "123", Age: "41", Insurer: "Sura"})
	if n != 3 {
		t.Errorf("Expected 3 fields written, got %d", n)
	}
	want := Patient{Name: "Ana", Phone: "3001234567", Age: "41", IDNumber: "123", Insurer: "Sura"}
	if r.Patient != want {
		t.Errorf("Expected %+v, got %+v", want, r.Patient)
	}

	if n := MergePatientFields(r, Patient{}); n != 0 || r.Patient != want {
		t.Error("Empty form must not change the record")
	}
}

func TestEncounterIDs(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	if got := NewEncounterID(ts); got != "enc_20240309_140507" {
		t.Errorf("Unexpected id %q", got)
	}
	web := NewWebEncounterID(ts)
	if !strings.HasPrefix(web, "enc_web_") || !ValidEncounterID(web) {
		t.Errorf("Unexpected web id %q", web)
	}
	for _, bad := range []string{"", "enc_2024", "encounter_20240309_140507"} {
		if ValidEncounterID(bad) {
			t.Errorf("Expected %q invalid", bad)
		}
	}
	if got := EnsureEncounterID(" ", ts); got != "enc_20240309_140507" {
		t.Errorf("Expected generated id, got %q", got)
	}
	if got := EnsureEncounterID("enc_x", ts); got != "enc_x" {
		t.Errorf("Expected id kept, got %q", got)
	}
}

func TestArchiveFileName(t *testing.T) {
	d := time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC)
	if got := ArchiveFileName("María  José Ruiz", d); got != "historia_María_José_Ruiz_2024-03-09.json" {
		t.Errorf("Unexpected name %q", got)
	}
	if got := ArchiveFileName("", d); got != "historia_paciente_2024-03-09.json" {
		t.Errorf("Unexpected fallback %q", got)
	}
	if got := ArchiveFileName("a/b", d); strings.Contains(got, "/") {
		t.Errorf("Path separator kept in %q", got)
	}
}

func TestDocument(t *testing.T) {
	r := New()
	r.Patient.Name = "Luis Mora"
	finished := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	doc := NewDocument("enc_20240501_100000", Patient{}, r, nil, finished)
	r.ChiefComplaint = "edited later"

	if doc.ClinicalData.ChiefComplaint != "" {
		t.Error("Document must hold a copy of the record")
	}
	if doc.FileName() != "historia_Luis_Mora_2024-05-01.json" {
		t.Errorf("Unexpected file name %q", doc.FileName())
	}
}

func TestDocumentDatedInClinicZone(t *testing.T) {
	bogota := time.FixedZone("COT", -5*60*60)
	finished := time.Date(2024, 5, 1, 21, 30, 0, 0, bogota)

	doc := NewDocument("enc_20240501_213000", Patient{Name: "Luis Mora"}, New(), nil, finished)
	if doc.FinishedAt.Location() != time.UTC || doc.FinishedAt.Day() != 2 {
		t.Errorf("Expected finished_at in UTC, got %v", doc.FinishedAt)
	}
	if doc.FileName() != "historia_Luis_Mora_2024-05-01.json" {
		t.Errorf("Expected local calendar day in file name, got %q", doc.FileName())
	}
}

func TestBuildSuggestionContext(t *testing.T) {
	r, _ := Parse([]byte(generated))
	ctx := BuildSuggestionContext(r)

	if ctx.ChiefComplaint != "Disnea progresiva" || ctx.Diagnosis != "Insuficiencia cardiaca descompensada" {
		t.Errorf("Unexpected context %+v", ctx)
	}
	if ctx.Symptoms != "disnea, ortopnea" || ctx.Age != "67" {
		t.Errorf("Unexpected context %+v", ctx)
	}
	if len(ctx.Allergies) != 1 {
		t.Errorf("Expected allergies, got %v", ctx.Allergies)
	}

	empty := BuildSuggestionContext(New())
	if empty.Allergies == nil || empty.Diagnosis != "" {
		t.Errorf("Unexpected empty context %+v", empty)
	}
}
