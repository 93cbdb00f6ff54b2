package record

import "errors"

var (
	// ErrMalformedJSON is returned when a record cannot be decoded, even
	// after repair. The caller's previous record is never touched.
	ErrMalformedJSON = errors.New("malformed clinical record JSON")

	// ErrUnknownSection is returned for section keys outside the fixed set
	ErrUnknownSection = errors.New("unknown record section")
)
