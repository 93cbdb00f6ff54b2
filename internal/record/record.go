package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Record is the structured clinical record of one consultation. Absent or
// null sections decode to empty values; slices are never nil after
// decoding or Normalize.
type Record struct {
	Patient         Patient
	ChiefComplaint  string
	PresentIllness  Narrative
	History         Categories
	ReviewOfSystems Categories
	PhysicalExam    Vitals
	Diagnoses       []string
	Orders          []Item
	Prescriptions   []Item
	Alerts          []string

	// Extra keeps top-level keys outside the fixed sections so that a
	// decode/encode cycle does not lose them.
	Extra map[string]json.RawMessage
}

// New returns an empty, normalized record
func New() *Record {
	r := &Record{}
	r.Normalize()
	return r
}

// Normalize replaces nil collections with empty ones
func (r *Record) Normalize() {
	if r.History == nil {
		r.History = Categories{}
	}
	if r.ReviewOfSystems == nil {
		r.ReviewOfSystems = Categories{}
	}
	if r.Diagnoses == nil {
		r.Diagnoses = []string{}
	}
	if r.Orders == nil {
		r.Orders = []Item{}
	}
	if r.Prescriptions == nil {
		r.Prescriptions = []Item{}
	}
	if r.Alerts == nil {
		r.Alerts = []string{}
	}
}

// Clone returns a deep copy
func (r *Record) Clone() *Record {
	c := *r
	c.History = r.History.Clone()
	c.ReviewOfSystems = r.ReviewOfSystems.Clone()
	c.Diagnoses = slices.Clone(r.Diagnoses)
	c.Orders = slices.Clone(r.Orders)
	c.Prescriptions = slices.Clone(r.Prescriptions)
	c.Alerts = slices.Clone(r.Alerts)
	if r.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = slices.Clone(v)
		}
	}
	c.Normalize()
	return &c
}

// MarshalJSON writes the fixed sections in order, then any extra keys
func (r Record) MarshalJSON() ([]byte, error) {
	r.Normalize()

	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(b)
		return nil
	}

	sections := []struct {
		key string
		v   any
	}{
		{string(SectionPatient), r.Patient},
		{string(SectionChiefComplaint), r.ChiefComplaint},
		{string(SectionPresentIllness), r.PresentIllness},
		{string(SectionHistory), r.History},
		{string(SectionReviewOfSystems), r.ReviewOfSystems},
		{string(SectionPhysicalExam), r.PhysicalExam},
		{string(SectionDiagnoses), r.Diagnoses},
		{string(SectionOrders), r.Orders},
		{string(SectionPrescriptions), r.Prescriptions},
		{string(SectionAlerts), r.Alerts},
	}
	for _, s := range sections {
		if err := write(s.key, s.v); err != nil {
			return nil, err
		}
	}

	extra := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		if err := write(k, r.Extra[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the record object with its legacy variants:
// recetas for prescripciones, a nested plan_manejo holding ordenes and
// recetas, and antecedentes given as a bare list.
func (r *Record) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	if plan, ok := fields["plan_manejo"]; ok {
		var nested map[string]json.RawMessage
		if json.Unmarshal(plan, &nested) == nil {
			for _, k := range []string{"ordenes", "recetas", "prescripciones"} {
				if _, exists := fields[k]; !exists && nested[k] != nil {
					fields[k] = nested[k]
				}
			}
			delete(nested, "ordenes")
			delete(nested, "recetas")
			delete(nested, "prescripciones")
			if len(nested) == 0 {
				delete(fields, "plan_manejo")
			} else if b, err := json.Marshal(nested); err == nil {
				fields["plan_manejo"] = b
			}
		}
	}
	if _, ok := fields["prescripciones"]; !ok {
		if v, ok := fields["recetas"]; ok {
			fields["prescripciones"] = v
		}
	}
	delete(fields, "recetas")

	var out Record
	for key, raw := range fields {
		var err error
		switch Section(key) {
		case SectionPatient:
			err = decodeOptional(raw, &out.Patient)
		case SectionChiefComplaint:
			out.ChiefComplaint = textOf(raw)
		case SectionPresentIllness:
			err = decodeOptional(raw, &out.PresentIllness)
		case SectionHistory:
			out.History, err = decodeCategories(raw, "personales")
		case SectionReviewOfSystems:
			out.ReviewOfSystems, err = decodeCategories(raw, "general")
		case SectionPhysicalExam:
			err = decodeOptional(raw, &out.PhysicalExam)
		case SectionDiagnoses:
			out.Diagnoses, err = stringList(raw)
		case SectionOrders:
			out.Orders, err = decodeItems(raw)
		case SectionPrescriptions:
			out.Prescriptions, err = decodeItems(raw)
		case SectionAlerts:
			out.Alerts, err = stringList(raw)
		default:
			if out.Extra == nil {
				out.Extra = make(map[string]json.RawMessage)
			}
			out.Extra[key] = slices.Clone(raw)
		}
		if err != nil {
			return fmt.Errorf("section %s: %w", key, err)
		}
	}

	out.Normalize()
	*r = out
	return nil
}

func decodeOptional(raw json.RawMessage, v any) error {
	if isNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// Item is one entry of an order-like section
type Item struct {
	Detail string `json:"detalle"`
}

// UnmarshalJSON accepts {"detalle": ...}, other descriptive keys, or a
// bare string.
func (it *Item) UnmarshalJSON(data []byte) error {
	*it = Item{Detail: textOf(data)}
	return nil
}

func decodeItems(raw json.RawMessage) ([]Item, error) {
	texts, err := stringList(raw)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(texts))
	for _, t := range texts {
		items = append(items, Item{Detail: t})
	}
	return items, nil
}

// Narrative is the history of present illness: free text, or a breakdown
// into onset, evolution, symptoms and risk factors.
type Narrative struct {
	Text        string
	Onset       string
	Evolution   string
	Symptoms    string
	RiskFactors string
}

var narrativeFields = []textField[Narrative]{
	{Key: "inicio", Label: "Inicio", Aliases: []string{"onset"}, ptr: func(n *Narrative) *string { return &n.Onset }},
	{Key: "evolucion", Label: "Evolución", Aliases: []string{"evolution", "curso"}, ptr: func(n *Narrative) *string { return &n.Evolution }},
	{Key: "sintomas", Label: "Síntomas", Aliases: []string{"symptoms"}, ptr: func(n *Narrative) *string { return &n.Symptoms }},
	{Key: "factores_riesgo", Label: "Factores de riesgo", Aliases: []string{"risk factors", "factores de riesgo"}, ptr: func(n *Narrative) *string { return &n.RiskFactors }},
}

// Structured reports whether the narrative uses the field breakdown
func (n Narrative) Structured() bool {
	return n.Onset != "" || n.Evolution != "" || n.Symptoms != "" || n.RiskFactors != ""
}

// IsEmpty reports whether nothing has been written
func (n Narrative) IsEmpty() bool {
	return !n.Structured() && strings.TrimSpace(n.Text) == ""
}

// String returns the narrative as one line of prose
func (n Narrative) String() string {
	if !n.Structured() {
		return n.Text
	}
	var parts []string
	for _, f := range narrativeFields {
		if v := *f.ptr(&n); v != "" {
			parts = append(parts, f.Label+": "+v)
		}
	}
	return strings.Join(parts, ". ")
}

// MarshalJSON writes an object when structured, else a string
func (n Narrative) MarshalJSON() ([]byte, error) {
	if !n.Structured() {
		return json.Marshal(n.Text)
	}
	obj := make(map[string]string)
	for _, f := range narrativeFields {
		if v := *f.ptr(&n); v != "" {
			obj[f.Key] = v
		}
	}
	return json.Marshal(obj)
}

// UnmarshalJSON accepts a string or an object of breakdown fields
func (n *Narrative) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		return decodeFields(data, n, narrativeFields)
	}
	*n = Narrative{Text: textOf(data)}
	return nil
}

// Vitals is the physical exam section
type Vitals struct {
	BloodPressure    string `json:"TA,omitempty"`
	HeartRate        string `json:"FC,omitempty"`
	RespiratoryRate  string `json:"FR,omitempty"`
	Temperature      string `json:"Temp,omitempty"`
	OxygenSaturation string `json:"SatO2,omitempty"`
	Findings         string `json:"hallazgos,omitempty"`
}

var vitalFields = []textField[Vitals]{
	{Key: "TA", Label: "TA", Aliases: []string{"PA", "BP", "presion arterial", "tension arterial", "blood pressure"}, ptr: func(v *Vitals) *string { return &v.BloodPressure }},
	{Key: "FC", Label: "FC", Aliases: []string{"HR", "pulso", "frecuencia cardiaca", "heart rate"}, ptr: func(v *Vitals) *string { return &v.HeartRate }},
	{Key: "FR", Label: "FR", Aliases: []string{"RR", "frecuencia respiratoria", "respiratory rate"}, ptr: func(v *Vitals) *string { return &v.RespiratoryRate }},
	{Key: "Temp", Label: "Temp", Aliases: []string{"T", "temperatura", "temperature"}, ptr: func(v *Vitals) *string { return &v.Temperature }},
	{Key: "SatO2", Label: "SatO2", Aliases: []string{"SpO2", "saturacion", "saturacion de oxigeno", "oxygen saturation"}, ptr: func(v *Vitals) *string { return &v.OxygenSaturation }},
	{Key: "hallazgos", Label: "Hallazgos", Aliases: []string{"findings", "hallazgos fisicos", "examen"}, ptr: func(v *Vitals) *string { return &v.Findings }},
}

// UnmarshalJSON accepts numeric values and case-insensitive labels
func (v *Vitals) UnmarshalJSON(data []byte) error {
	if err := expectObject(data, "examen_fisico"); err != nil {
		return err
	}
	return decodeFields(data, v, vitalFields)
}

// IsEmpty reports whether no vital sign is present
func (v Vitals) IsEmpty() bool {
	return v == Vitals{}
}

// Patient holds the demographics of the patient section
type Patient struct {
	Name      string `json:"nombre,omitempty"`
	IDType    string `json:"tipo_documento,omitempty"`
	IDNumber  string `json:"documento,omitempty"`
	BirthDate string `json:"fecha_nacimiento,omitempty"`
	Age       string `json:"edad,omitempty"`
	Sex       string `json:"sexo,omitempty"`
	Address   string `json:"direccion,omitempty"`
	Phone     string `json:"telefono,omitempty"`
	Insurer   string `json:"aseguradora,omitempty"`
}

var patientFields = []textField[Patient]{
	{Key: "nombre", Label: "Nombre", Aliases: []string{"name", "nombre completo"}, ptr: func(p *Patient) *string { return &p.Name }},
	{Key: "tipo_documento", Label: "Tipo de documento", Aliases: []string{"id type", "tipo id"}, ptr: func(p *Patient) *string { return &p.IDType }},
	{Key: "documento", Label: "Documento", Aliases: []string{"id", "id number", "numero documento", "numero_documento"}, ptr: func(p *Patient) *string { return &p.IDNumber }},
	{Key: "fecha_nacimiento", Label: "Fecha de nacimiento", Aliases: []string{"birth date", "birthdate"}, ptr: func(p *Patient) *string { return &p.BirthDate }},
	{Key: "edad", Label: "Edad", Aliases: []string{"age"}, ptr: func(p *Patient) *string { return &p.Age }},
	{Key: "sexo", Label: "Sexo", Aliases: []string{"sex", "genero"}, ptr: func(p *Patient) *string { return &p.Sex }},
	{Key: "direccion", Label: "Dirección", Aliases: []string{"address"}, ptr: func(p *Patient) *string { return &p.Address }},
	{Key: "telefono", Label: "Teléfono", Aliases: []string{"phone"}, ptr: func(p *Patient) *string { return &p.Phone }},
	{Key: "aseguradora", Label: "Aseguradora", Aliases: []string{"insurer", "eps"}, ptr: func(p *Patient) *string { return &p.Insurer }},
}

// UnmarshalJSON accepts numeric values (edad: 45) and English keys
func (p *Patient) UnmarshalJSON(data []byte) error {
	if err := expectObject(data, "paciente"); err != nil {
		return err
	}
	return decodeFields(data, p, patientFields)
}
