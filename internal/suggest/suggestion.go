package suggest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

// Action is an operation a suggestion can apply to the record
type Action string

const (
	ActionAdd     Action = "add"
	ActionReplace Action = "replace"
)

// Source of a suggestion
const (
	SourceBuiltIn  = "builtin"
	SourceExternal = "external"
)

// Suggestion is one decision-support recommendation
type Suggestion struct {
	ID          string   `json:"id"`
	Kind        string   `json:"type"`
	Message     string   `json:"message"`
	Proposed    string   `json:"proposed,omitempty"`
	Current     string   `json:"current,omitempty"`
	Rationale   string   `json:"rationale,omitempty"`
	Refs        []string `json:"pmids"`
	SafetyNotes []string `json:"safety_notes"`
	Actions     []Action `json:"actions"`
	Source      string   `json:"source,omitempty"`
}

// Text returns the message, or the proposed text when there is none
func (s Suggestion) Text() string {
	if m := strings.TrimSpace(s.Message); m != "" {
		return m
	}
	return strings.TrimSpace(s.Proposed)
}

// Key is the deduplication key: lower-cased, trimmed message-or-proposed
func (s Suggestion) Key() string {
	return strings.ToLower(s.Text())
}

// MarshalJSON never writes null lists
func (s Suggestion) MarshalJSON() ([]byte, error) {
	type plain Suggestion
	p := plain(s)
	if p.Refs == nil {
		p.Refs = []string{}
	}
	if p.SafetyNotes == nil {
		p.SafetyNotes = []string{}
	}
	if p.Actions == nil {
		p.Actions = []Action{}
	}
	return json.Marshal(p)
}

// UnmarshalJSON accepts the variants emitted by the suggestion services:
// text for message, medication for proposed, numeric pmids, a single
// string where a list is expected, and an action field.
func (s *Suggestion) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	str := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := raw[k]; ok {
				if t := scalar(v); t != "" {
					return t
				}
			}
		}
		return ""
	}

	out := Suggestion{
		ID:        str("id", "code"),
		Kind:      str("type", "kind", "tipo"),
		Message:   str("message", "text", "guideline", "mensaje"),
		Proposed:  str("proposed", "medication", "propuesta"),
		Current:   str("current", "actual"),
		Rationale: str("rationale", "justificacion"),
		Source:    str("source"),
	}
	if med, instr := str("medication"), str("instructions"); med != "" && instr != "" {
		out.Message = med + ": " + instr
		out.Kind = "medication"
	}

	var err error
	if out.Refs, err = list(raw["pmids"], raw["refs"]); err != nil {
		return fmt.Errorf("pmids: %w", err)
	}
	if len(out.Refs) == 0 {
		out.Refs = evidenceRefs(raw["evidence"])
	}
	if out.SafetyNotes, err = list(raw["safety_notes"]); err != nil {
		return fmt.Errorf("safety_notes: %w", err)
	}
	names, err := list(raw["actions"], raw["action"])
	if err != nil {
		return fmt.Errorf("actions: %w", err)
	}
	for _, n := range names {
		if a, ok := ParseAction(n); ok {
			out.Actions = appendAction(out.Actions, a)
		}
	}

	*s = out
	return nil
}

// evidenceRefs collects pmid fields from an evidence list
func evidenceRefs(raw json.RawMessage) []string {
	out := []string{}
	var items []map[string]json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return out
	}
	for _, it := range items {
		if id := scalar(it["pmid"]); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// ParseAction resolves an action name, English or Spanish
func ParseAction(name string) (Action, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "add", "agregar", "añadir":
		return ActionAdd, true
	case "replace", "reemplazar", "sustituir":
		return ActionReplace, true
	}
	return "", false
}

func appendAction(actions []Action, a Action) []Action {
	for _, have := range actions {
		if have == a {
			return actions
		}
	}
	return append(actions, a)
}

func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return strings.TrimSpace(s)
		}
	}
	if raw[0] == '{' || raw[0] == '[' {
		return ""
	}
	return string(raw)
}

// list reads the first present value as a list of scalars
func list(candidates ...json.RawMessage) ([]string, error) {
	out := []string{}
	for _, raw := range candidates {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		if raw[0] != '[' {
			if s := scalar(raw); s != "" {
				out = append(out, s)
			}
			return out, nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			if s := scalar(it); s != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}
	return out, nil
}

// Parse decodes a list of suggestions. A bare array is accepted, as is an
// object carrying it under suggestions or cds_suggestions. Malformed JSON
// is repaired once before failing with record.ErrMalformedJSON.
func Parse(data []byte) ([]Suggestion, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := record.UnmarshalLenient(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", record.ErrMalformedJSON, err)
		}
		for _, k := range []string{"suggestions", "cds_suggestions", "sugerencias"} {
			if v, ok := envelope[k]; ok {
				trimmed = v
				break
			}
		}
	}

	var out []Suggestion
	if err := record.UnmarshalLenient(trimmed, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", record.ErrMalformedJSON, err)
	}
	if out == nil {
		out = []Suggestion{}
	}
	return out, nil
}
