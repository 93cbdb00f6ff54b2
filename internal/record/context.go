package record

import "strings"

// SuggestionContext is the summary sent to the suggestion service
type SuggestionContext struct {
	ChiefComplaint string   `json:"chief_complaint"`
	Diagnosis      string   `json:"diagnosis"`
	Symptoms       string   `json:"symptoms"`
	Age            string   `json:"age"`
	Allergies      []string `json:"alergias"`
}

// BuildSuggestionContext summarizes r: chief complaint, first diagnosis,
// symptom narrative, age and allergies.
func BuildSuggestionContext(r *Record) SuggestionContext {
	ctx := SuggestionContext{
		ChiefComplaint: strings.TrimSpace(r.ChiefComplaint),
		Age:            strings.TrimSpace(r.Patient.Age),
		Allergies:      []string{},
	}
	if len(r.Diagnoses) > 0 {
		ctx.Diagnosis = strings.TrimSpace(r.Diagnoses[0])
	}
	if r.PresentIllness.Structured() && r.PresentIllness.Symptoms != "" {
		ctx.Symptoms = r.PresentIllness.Symptoms
	} else {
		ctx.Symptoms = CompactNarrative(r.PresentIllness.String(), DefaultNarrativeLimit)
	}
	for _, a := range r.History.Get("alergias") {
		if a = strings.TrimSpace(a); a != "" {
			ctx.Allergies = append(ctx.Allergies, a)
		}
	}
	return ctx
}
