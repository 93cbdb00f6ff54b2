package record

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestToTextVitals(t *testing.T) {
	r := New()
	r.PhysicalExam = Vitals{BloodPressure: "120/80", Temperature: "37.2", Findings: "Sin hallazgos"}

	got, err := ToText(r, SectionPhysicalExam)
	if err != nil {
		t.Fatalf("ToText failed: %v", err)
	}
	want := "TA: 120/80\nTemp: 37.2\nHallazgos: Sin hallazgos"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestFromTextVitalsAliases(t *testing.T) {
	r := New()
	text := "Presión arterial: 130/85\nfc: 72\nSPO2: 97%\nPeso: 80 kg\nruido sin separador\nTemperatura:"
	if err := FromText(r, SectionPhysicalExam, text); err != nil {
		t.Fatalf("FromText failed: %v", err)
	}
	want := Vitals{BloodPressure: "130/85", HeartRate: "72", OxygenSaturation: "97%"}
	if r.PhysicalExam != want {
		t.Errorf("Expected %+v, got %+v", want, r.PhysicalExam)
	}
}

func TestHistoryVocabulary(t *testing.T) {
	r := New()
	text := strings.Join([]string{
		"Antecedentes personales patológicos: HTA; DM2",
		"Alérgicos: Penicilina",
		"Farmacológicos: Losartán 50 mg",
		"Hábitos: No fuma;  ; Alcohol ocasional",
		"Deportes: Natación",
		"sin dos puntos",
	}, "\n")
	if err := FromText(r, SectionHistory, text); err != nil {
		t.Fatalf("FromText failed: %v", err)
	}

	want := Categories{
		{Name: "personales", Values: []string{"HTA", "DM2"}},
		{Name: "alergias", Values: []string{"Penicilina"}},
		{Name: "farmacologicos", Values: []string{"Losartán 50 mg"}},
		{Name: "toxicos_habitos", Values: []string{"No fuma", "Alcohol ocasional"}},
	}
	if !reflect.DeepEqual(r.History, want) {
		t.Errorf("Expected %+v, got %+v", want, r.History)
	}

	got, _ := ToText(r, SectionHistory)
	wantText := "Personales: HTA; DM2\nAlergias: Penicilina\nFarmacológicos: Losartán 50 mg\nTóxicos / hábitos: No fuma; Alcohol ocasional"
	if got != wantText {
		t.Errorf("Expected %q, got %q", wantText, got)
	}
}

func TestHistoryDrugAllergies(t *testing.T) {
	r := New()
	text := "Alergias medicamentosas: penicilina\nAlergia a medicamentos: AINES\nMedicamentos actuales: Metformina"
	if err := FromText(r, SectionHistory, text); err != nil {
		t.Fatalf("FromText failed: %v", err)
	}

	want := Categories{
		{Name: "alergias", Values: []string{"penicilina", "AINES"}},
		{Name: "farmacologicos", Values: []string{"Metformina"}},
	}
	if !reflect.DeepEqual(r.History, want) {
		t.Errorf("Expected %+v, got %+v", want, r.History)
	}

	got, _ := ToText(r, SectionHistory)
	if got != "Alergias: penicilina; AINES\nFarmacológicos: Metformina" {
		t.Errorf("Unexpected history text %q", got)
	}

	ctx := BuildSuggestionContext(r)
	if !reflect.DeepEqual(ctx.Allergies, []string{"penicilina", "AINES"}) {
		t.Errorf("Expected drug allergies in suggestion context, got %v", ctx.Allergies)
	}
}

func TestReviewOfSystemsFreeForm(t *testing.T) {
	r := New()
	if err := FromText(r, SectionReviewOfSystems, "Respiratorio: Tos seca; Disnea\nPiel y faneras: Sin lesiones"); err != nil {
		t.Fatalf("FromText failed: %v", err)
	}
	if got := r.ReviewOfSystems.Get("piel_y_faneras"); len(got) != 1 {
		t.Errorf("Expected free-form system, got %+v", r.ReviewOfSystems)
	}
	got, _ := ToText(r, SectionReviewOfSystems)
	if got != "Respiratorio: Tos seca; Disnea\nPiel y faneras: Sin lesiones" {
		t.Errorf("Unexpected text %q", got)
	}
}

func TestListsAndOrders(t *testing.T) {
	r := New()
	_ = FromText(r, SectionDiagnoses, "- Neumonía\n\n* EPOC\n3. HTA")
	_ = FromText(r, SectionOrders, "• Hemograma\n- Rx de tórax")

	if !reflect.DeepEqual(r.Diagnoses, []string{"Neumonía", "EPOC", "HTA"}) {
		t.Errorf("Unexpected diagnoses %v", r.Diagnoses)
	}
	if len(r.Orders) != 2 || r.Orders[0].Detail != "Hemograma" {
		t.Errorf("Unexpected orders %+v", r.Orders)
	}

	got, _ := ToText(r, SectionOrders)
	if got != "- Hemograma\n- Rx de tórax" {
		t.Errorf("Unexpected orders text %q", got)
	}
}

func TestNarrativeProjection(t *testing.T) {
	r := New()
	_ = FromText(r, SectionPresentIllness, "Inicio: hace 3 días\nSíntomas: fiebre, tos")
	if !r.PresentIllness.Structured() || r.PresentIllness.Onset != "hace 3 días" {
		t.Errorf("Expected breakdown, got %+v", r.PresentIllness)
	}
	got, _ := ToText(r, SectionPresentIllness)
	if got != "Inicio: hace 3 días\nSíntomas: fiebre, tos" {
		t.Errorf("Unexpected narrative text %q", got)
	}

	_ = FromText(r, SectionPresentIllness, "Paciente refiere fiebre.\nInicio: hace 3 días")
	if r.PresentIllness.Structured() {
		t.Error("Mixed prose should stay free text")
	}
}

func TestFromTextLeavesOtherSections(t *testing.T) {
	r, _ := Parse([]byte(generated))
	before := r.Clone()

	if err := FromText(r, SectionAlerts, "- SatO2 < 92%"); err != nil {
		t.Fatalf("FromText failed: %v", err)
	}
	for _, s := range Sections {
		if s == SectionAlerts {
			continue
		}
		a, _ := ToText(before, s)
		b, _ := ToText(r, s)
		if a != b {
			t.Errorf("Section %s changed", s)
		}
	}
}

func TestUnknownSection(t *testing.T) {
	if _, err := ToText(New(), Section("plan")); !errors.Is(err, ErrUnknownSection) {
		t.Errorf("Expected ErrUnknownSection, got %v", err)
	}
	if err := FromText(New(), Section("plan"), "x"); !errors.Is(err, ErrUnknownSection) {
		t.Errorf("Expected ErrUnknownSection, got %v", err)
	}
}

// TestRoundTripLaw checks toText(fromText(t)) keeps label/value pairs for
// well-formed input, and that a second cycle is stable.
func TestRoundTripLaw(t *testing.T) {
	inputs := map[Section]string{
		SectionPatient:         "Nombre: Juan Gómez\nEdad: 54\nAseguradora: Sura",
		SectionChiefComplaint:  "Dolor torácico",
		SectionPresentIllness:  "Evolución: 2 días\nFactores de riesgo: tabaquismo",
		SectionHistory:         "Personales: HTA\nQuirúrgicos: Apendicectomía",
		SectionReviewOfSystems: "Cardiovascular: Palpitaciones; Edema",
		SectionPhysicalExam:    "TA: 140/90\nFC: 88\nFR: 18\nTemp: 36.8\nSatO2: 95\nHallazgos: Ruidos cardiacos rítmicos",
		SectionDiagnoses:       "- Angina estable",
		SectionOrders:          "- Electrocardiograma\n- Troponina",
		SectionPrescriptions:   "- ASA 100 mg VO cada día",
		SectionAlerts:          "- Dolor persistente",
	}

	for s, text := range inputs {
		r := New()
		if err := FromText(r, s, text); err != nil {
			t.Fatalf("%s: FromText failed: %v", s, err)
		}
		got, err := ToText(r, s)
		if err != nil {
			t.Fatalf("%s: ToText failed: %v", s, err)
		}
		if got != text {
			t.Errorf("%s: expected %q, got %q", s, text, got)
		}

		again := New()
		_ = FromText(again, s, got)
		if second, _ := ToText(again, s); second != got {
			t.Errorf("%s: second cycle changed text: %q", s, second)
		}
	}
}

func TestRenderAll(t *testing.T) {
	r := New()
	r.ChiefComplaint = "Tos"
	out := RenderAll(r)
	if len(out) != 1 || out[SectionChiefComplaint] != "Tos" {
		t.Errorf("Expected only non-empty sections, got %v", out)
	}
}
