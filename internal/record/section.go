package record

import (
	"fmt"
	"strings"
)

// Section is the JSON key of one record section
type Section string

const (
	SectionPatient         Section = "paciente"
	SectionChiefComplaint  Section = "motivo_consulta"
	SectionPresentIllness  Section = "enfermedad_actual"
	SectionHistory         Section = "antecedentes"
	SectionReviewOfSystems Section = "revision_sistemas"
	SectionPhysicalExam    Section = "examen_fisico"
	SectionDiagnoses       Section = "impresion_dx"
	SectionOrders          Section = "ordenes"
	SectionPrescriptions   Section = "prescripciones"
	SectionAlerts          Section = "alertas"
)

// Sections lists every section in document order
var Sections = []Section{
	SectionPatient,
	SectionChiefComplaint,
	SectionPresentIllness,
	SectionHistory,
	SectionReviewOfSystems,
	SectionPhysicalExam,
	SectionDiagnoses,
	SectionOrders,
	SectionPrescriptions,
	SectionAlerts,
}

// Kind selects the text projection used for a section
type Kind int

const (
	KindText Kind = iota
	KindNarrative
	KindFields
	KindVitals
	KindList
	KindOrders
	KindCategories
)

var sectionAliases = map[string]Section{
	"patient":                    SectionPatient,
	"patient-demographics":       SectionPatient,
	"chief-complaint":            SectionChiefComplaint,
	"history-of-present-illness": SectionPresentIllness,
	"present-illness":            SectionPresentIllness,
	"hpi":                        SectionPresentIllness,
	"past-history":               SectionHistory,
	"history":                    SectionHistory,
	"review-of-systems":          SectionReviewOfSystems,
	"ros":                        SectionReviewOfSystems,
	"physical-exam":              SectionPhysicalExam,
	"vitals":                     SectionPhysicalExam,
	"differential-diagnoses":     SectionDiagnoses,
	"diagnoses":                  SectionDiagnoses,
	"orders":                     SectionOrders,
	"prescriptions":              SectionPrescriptions,
	"recetas":                    SectionPrescriptions,
	"alerts":                     SectionAlerts,
}

// ParseSection resolves a JSON key or English alias to a Section
func ParseSection(name string) (Section, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, s := range Sections {
		if string(s) == key {
			return s, nil
		}
	}
	if s, ok := sectionAliases[strings.ReplaceAll(key, "_", "-")]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSection, name)
}

// Kind returns the projection kind of the section
func (s Section) Kind() Kind {
	switch s {
	case SectionPresentIllness:
		return KindNarrative
	case SectionPatient:
		return KindFields
	case SectionPhysicalExam:
		return KindVitals
	case SectionDiagnoses, SectionAlerts:
		return KindList
	case SectionOrders, SectionPrescriptions:
		return KindOrders
	case SectionHistory, SectionReviewOfSystems:
		return KindCategories
	default:
		return KindText
	}
}

func (s Section) valid() bool {
	for _, known := range Sections {
		if s == known {
			return true
		}
	}
	return false
}
