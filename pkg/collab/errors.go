package collab

import "errors"

// ErrInvalidData is returned when bytes or structured data cannot produce a
// valid document: malformed encodings, unknown format versions, a foreign
// object id, or a missing page block.
var ErrInvalidData = errors.New("invalid document data")

// IsInvalidData reports whether err is, or wraps, ErrInvalidData.
func IsInvalidData(err error) bool {
	return errors.Is(err, ErrInvalidData)
}
