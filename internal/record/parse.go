package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// Parse decodes a record. Input that is not valid JSON is repaired once
// before giving up; a record wrapped in {"json_clinico": ...} is unwrapped.
func Parse(data []byte) (*Record, error) {
	var envelope map[string]json.RawMessage
	if err := UnmarshalLenient(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if envelope == nil {
		return nil, fmt.Errorf("%w: expected object", ErrMalformedJSON)
	}

	body, _ := json.Marshal(envelope)
	if inner, ok := envelope["json_clinico"]; ok && !bytes.Equal(bytes.TrimSpace(inner), []byte("null")) {
		body = inner
	}

	var r Record
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	return &r, nil
}

// UnmarshalLenient unmarshals data into v, repairing malformed JSON on a
// syntax error before retrying.
func UnmarshalLenient(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return err
	}
	fixed, rerr := jsonrepair.JSONRepair(string(data))
	if rerr != nil {
		return fmt.Errorf("%v (repair failed: %v)", err, rerr)
	}
	return json.Unmarshal([]byte(fixed), v)
}
