package record

import "strings"

// MergePatientFields overlays the non-empty fields of form onto the
// record's patient. Empty form fields never clear existing values. It
// reports the number of fields written.
func MergePatientFields(r *Record, form Patient) int {
	n := 0
	for _, f := range patientFields {
		v := strings.TrimSpace(*f.ptr(&form))
		if v == "" {
			continue
		}
		dst := f.ptr(&r.Patient)
		if *dst != v {
			*dst = v
			n++
		}
	}
	return n
}

// Merge overlays the non-empty fields of other onto p and returns the
// result. Neither argument is modified.
func (p Patient) Merge(other Patient) Patient {
	r := Record{Patient: p}
	MergePatientFields(&r, other)
	return r.Patient
}
