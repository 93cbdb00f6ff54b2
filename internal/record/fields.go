package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// textField describes one scalar string field of T that is addressable by
// a JSON key and by a human label in editable text.
type textField[T any] struct {
	Key     string
	Label   string
	Aliases []string
	ptr     func(*T) *string
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u", "Ñ", "n",
)

// fold normalizes a label for matching: lower case, no accents, single
// spaces, underscores treated as spaces.
func fold(s string) string {
	s = accentFolder.Replace(strings.ToLower(s))
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}

func (f textField[T]) matches(label string) bool {
	l := fold(label)
	if l == fold(f.Key) || l == fold(f.Label) {
		return true
	}
	for _, a := range f.Aliases {
		if l == fold(a) {
			return true
		}
	}
	return false
}

func lookupField[T any](fields []textField[T], label string) (textField[T], bool) {
	for _, f := range fields {
		if f.matches(label) {
			return f, true
		}
	}
	return textField[T]{}, false
}

// decodeFields fills v from a JSON object, matching keys case-insensitively
// against the field table. Unknown keys are ignored.
func decodeFields[T any](data []byte, v *T, fields []textField[T]) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out T
	for _, f := range fields {
		if val, ok := raw[f.Key]; ok {
			*f.ptr(&out) = textOf(val)
		}
	}
	for key, val := range raw {
		f, ok := lookupField(fields, key)
		if !ok || *f.ptr(&out) != "" {
			continue
		}
		*f.ptr(&out) = textOf(val)
	}
	*v = out
	return nil
}

// fieldsText renders one "Label: value" line per non-empty field
func fieldsText[T any](v *T, fields []textField[T]) string {
	var lines []string
	for _, f := range fields {
		if s := strings.TrimSpace(*f.ptr(v)); s != "" {
			lines = append(lines, f.Label+": "+s)
		}
	}
	return strings.Join(lines, "\n")
}

// parseFields reads "label: value" lines. Unrecognized labels and lines
// without a separator are dropped.
func parseFields[T any](text string, fields []textField[T]) T {
	var out T
	for _, line := range strings.Split(text, "\n") {
		label, value, ok := splitLabeled(line)
		if !ok {
			continue
		}
		if f, found := lookupField(fields, label); found {
			*f.ptr(&out) = value
		}
	}
	return out
}

// splitLabeled splits "label: value" on the first colon. Both sides must be
// non-empty after trimming.
func splitLabeled(line string) (label, value string, ok bool) {
	label, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	label = strings.TrimSpace(stripBullet(label))
	value = strings.TrimSpace(value)
	if label == "" || value == "" {
		return "", "", false
	}
	return label, value, true
}

// textOf renders a JSON scalar or array of scalars as plain text
func textOf(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return strings.TrimSpace(s)
		}
	case '[':
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) == nil {
			parts := make([]string, 0, len(items))
			for _, it := range items {
				if s := textOf(it); s != "" {
					parts = append(parts, s)
				}
			}
			return strings.Join(parts, ", ")
		}
	case '{':
		return objectText(raw)
	}
	return string(raw)
}

// itemKeys are tried in order to find the display text of an object
var itemKeys = []string{"detalle", "detail", "texto", "text", "descripcion", "diagnostico", "dx", "medicamento", "nombre"}

func objectText(raw json.RawMessage) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return string(raw)
	}
	for _, k := range itemKeys {
		if v, ok := obj[k]; ok {
			if s := textOf(v); s != "" {
				return s
			}
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func stringList(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []string{}, nil
	}
	if raw[0] != '[' {
		if s := textOf(raw); s != "" {
			return []string{s}, nil
		}
		return []string{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := textOf(it); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// humanize turns a storage key into a display label
func humanize(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// slug turns a free-form label into a storage key
func slug(label string) string {
	return strings.ReplaceAll(fold(label), " ", "_")
}

func expectObject(raw json.RawMessage, what string) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return fmt.Errorf("%s: expected object", what)
	}
	return nil
}
