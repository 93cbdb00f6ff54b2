package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Category is one named group of findings, e.g. "alergias" or
// "respiratorio".
type Category struct {
	Name   string
	Values []string
}

// Categories is an ordered set of categories keyed by Name. Order follows
// the source document and is kept through encoding.
type Categories []Category

// Get returns the values of name, or nil
func (c Categories) Get(name string) []string {
	for _, cat := range c {
		if cat.Name == name {
			return cat.Values
		}
	}
	return nil
}

// Add appends values to the category name, creating it at the end if
// missing. Empty values are skipped.
func (c *Categories) Add(name string, values ...string) {
	idx := -1
	for i, cat := range *c {
		if cat.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		*c = append(*c, Category{Name: name, Values: []string{}})
		idx = len(*c) - 1
	}
	for _, v := range values {
		if v != "" {
			(*c)[idx].Values = append((*c)[idx].Values, v)
		}
	}
}

// Clone returns a deep copy
func (c Categories) Clone() Categories {
	if c == nil {
		return nil
	}
	out := make(Categories, len(c))
	for i, cat := range c {
		out[i] = Category{Name: cat.Name, Values: slices.Clone(cat.Values)}
	}
	return out
}

// MarshalJSON writes an object whose keys keep the category order
func (c Categories) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cat := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(cat.Name)
		if err != nil {
			return nil, err
		}
		values := cat.Values
		if values == nil {
			values = []string{}
		}
		v, err := json.Marshal(values)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of category → string or list of strings
func (c *Categories) UnmarshalJSON(data []byte) error {
	out, err := decodeCategories(data, "")
	if err != nil {
		return err
	}
	*c = out
	return nil
}

// decodeCategories reads a categories object preserving key order. A bare
// list is accepted and filed under listKey when one is given.
func decodeCategories(raw json.RawMessage, listKey string) (Categories, error) {
	raw = bytes.TrimSpace(raw)
	out := Categories{}
	if isNull(raw) {
		return out, nil
	}

	if raw[0] == '[' || raw[0] == '"' {
		if listKey == "" {
			return nil, fmt.Errorf("expected object of categories")
		}
		values, err := stringList(raw)
		if err != nil {
			return nil, err
		}
		if len(values) > 0 {
			out.Add(listKey, values...)
		}
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object of categories")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := tok.(string)

		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		values, err := stringList(val)
		if err != nil {
			return nil, fmt.Errorf("category %s: %w", name, err)
		}
		out.Add(name, values...)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}
