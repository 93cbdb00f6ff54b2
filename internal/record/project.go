package record

import (
	"fmt"
	"regexp"
	"strings"
)

// vocabEntry maps label stems onto a fixed category key
type vocabEntry struct {
	key   string
	label string
	stems []string
}

// historyVocabulary is matched in order; the first entry with a stem
// contained in the folded label wins.
var historyVocabulary = []vocabEntry{
	{key: "personales", label: "Personales", stems: []string{"personal"}},
	{key: "patologicos", label: "Patológicos", stems: []string{"patol", "patholog"}},
	{key: "farmacologicos", label: "Farmacológicos", stems: []string{"farmac", "pharmac"}},
	{key: "alergias", label: "Alergias", stems: []string{"alerg", "allerg"}},
	// "Alergias medicamentosas" is an allergy line, so the drug stems only
	// apply after the allergy stems missed.
	{key: "farmacologicos", label: "Farmacológicos", stems: []string{"medicament", "medication"}},
	{key: "toxicos_habitos", label: "Tóxicos / hábitos", stems: []string{"habit", "toxic"}},
	{key: "quirurgicos", label: "Quirúrgicos", stems: []string{"quirurg", "surg"}},
	{key: "familiares", label: "Familiares", stems: []string{"famil"}},
	{key: "gineco_obstetricos", label: "Gineco-obstétricos", stems: []string{"gineco", "obstet"}},
	{key: "psicosociales", label: "Psicosociales", stems: []string{"social"}},
}

func historyKey(label string) (string, bool) {
	l := fold(label)
	for _, v := range historyVocabulary {
		for _, stem := range v.stems {
			if strings.Contains(l, stem) {
				return v.key, true
			}
		}
	}
	return "", false
}

func historyLabel(key string) string {
	for _, v := range historyVocabulary {
		if v.key == key {
			return v.label
		}
	}
	return humanize(key)
}

var bulletPattern = regexp.MustCompile(`^\s*(?:[-*•·]+|\d+[.)])\s*`)

func stripBullet(line string) string {
	return bulletPattern.ReplaceAllString(line, "")
}

// ToText projects one section of r into editable text
func ToText(r *Record, s Section) (string, error) {
	if !s.valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSection, s)
	}

	switch s {
	case SectionPatient:
		return fieldsText(&r.Patient, patientFields), nil
	case SectionChiefComplaint:
		return r.ChiefComplaint, nil
	case SectionPresentIllness:
		if !r.PresentIllness.Structured() {
			return r.PresentIllness.Text, nil
		}
		return fieldsText(&r.PresentIllness, narrativeFields), nil
	case SectionPhysicalExam:
		return fieldsText(&r.PhysicalExam, vitalFields), nil
	case SectionDiagnoses:
		return bullets(r.Diagnoses), nil
	case SectionAlerts:
		return bullets(r.Alerts), nil
	case SectionOrders:
		return bullets(details(r.Orders)), nil
	case SectionPrescriptions:
		return bullets(details(r.Prescriptions)), nil
	case SectionHistory:
		return categoriesText(r.History, historyLabel), nil
	case SectionReviewOfSystems:
		return categoriesText(r.ReviewOfSystems, humanize), nil
	}
	return "", nil
}

// FromText parses text and replaces section s of r with the result. Other
// sections are left untouched. Lines that cannot be parsed are dropped.
func FromText(r *Record, s Section, text string) error {
	if !s.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownSection, s)
	}

	switch s {
	case SectionPatient:
		r.Patient = parseFields(text, patientFields)
	case SectionChiefComplaint:
		r.ChiefComplaint = strings.TrimSpace(text)
	case SectionPresentIllness:
		r.PresentIllness = parseNarrative(text)
	case SectionPhysicalExam:
		r.PhysicalExam = parseFields(text, vitalFields)
	case SectionDiagnoses:
		r.Diagnoses = parseBullets(text)
	case SectionAlerts:
		r.Alerts = parseBullets(text)
	case SectionOrders:
		r.Orders = items(parseBullets(text))
	case SectionPrescriptions:
		r.Prescriptions = items(parseBullets(text))
	case SectionHistory:
		r.History = parseCategories(text, historyKey)
	case SectionReviewOfSystems:
		r.ReviewOfSystems = parseCategories(text, func(label string) (string, bool) {
			return slug(label), true
		})
	}
	return nil
}

// RenderAll projects every non-empty section, keyed by section
func RenderAll(r *Record) map[Section]string {
	out := make(map[Section]string, len(Sections))
	for _, s := range Sections {
		if text, err := ToText(r, s); err == nil && text != "" {
			out[s] = text
		}
	}
	return out
}

func bullets(values []string) string {
	var lines []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			lines = append(lines, "- "+v)
		}
	}
	return strings.Join(lines, "\n")
}

func parseBullets(text string) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		if v := strings.TrimSpace(stripBullet(line)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func details(list []Item) []string {
	out := make([]string, len(list))
	for i, it := range list {
		out[i] = it.Detail
	}
	return out
}

func items(texts []string) []Item {
	out := make([]Item, len(texts))
	for i, t := range texts {
		out[i] = Item{Detail: t}
	}
	return out
}

func categoriesText(c Categories, label func(string) string) string {
	var lines []string
	for _, cat := range c {
		var values []string
		for _, v := range cat.Values {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		lines = append(lines, label(cat.Name)+": "+strings.Join(values, "; "))
	}
	return strings.Join(lines, "\n")
}

// parseCategories reads "label: v1; v2" lines. keyOf maps a label to its
// category key; labels it rejects are dropped.
func parseCategories(text string, keyOf func(string) (string, bool)) Categories {
	out := Categories{}
	for _, line := range strings.Split(text, "\n") {
		label, value, ok := splitLabeled(line)
		if !ok {
			continue
		}
		key, ok := keyOf(label)
		if !ok || key == "" {
			continue
		}
		var values []string
		for _, v := range strings.Split(value, ";") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			out.Add(key, values...)
		}
	}
	return out
}

// parseNarrative yields a breakdown when every non-blank line carries a
// breakdown label, and free text otherwise.
func parseNarrative(text string) Narrative {
	text = strings.TrimSpace(text)
	if text == "" {
		return Narrative{}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		label, _, ok := splitLabeled(line)
		if !ok {
			return Narrative{Text: text}
		}
		if _, known := lookupField(narrativeFields, label); !known {
			return Narrative{Text: text}
		}
	}
	return parseFields(text, narrativeFields)
}
