package docid

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// UUID identifies a document. The zero value is the nil UUID and never names
// a document.
type UUID struct {
	value uuid.UUID
}

// NewUUID returns a random (v4) document id.
func NewUUID() UUID {
	return UUID{value: uuid.New()}
}

// MustParseUUID is ParseUUID for fixtures; it panics on malformed input.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(fmt.Sprintf("docid: %v", err))
	}
	return u
}

// ParseUUID accepts the hyphenated, hyphenless and uppercase forms and
// normalizes them.
func ParseUUID(s string) (UUID, error) {
	if s == "" {
		return UUID{}, fmt.Errorf("UUID cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("invalid UUID format %q: %w", s, err)
	}
	return UUID{value: u}, nil
}

func (u UUID) String() string {
	return u.value.String()
}

// IsZero reports whether u is the nil UUID.
func (u UUID) IsZero() bool {
	return u.value == uuid.Nil
}

func (u UUID) Equal(other UUID) bool {
	return u.value == other.value
}

// setString assigns the parsed form of s; an empty s resets u to zero.
func (u *UUID) setString(s string) error {
	if s == "" {
		*u = UUID{}
		return nil
	}
	parsed, err := ParseUUID(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// MarshalText makes UUID usable as a yaml value and a JSON map key.
func (u UUID) MarshalText() ([]byte, error) {
	if u.IsZero() {
		return []byte{}, nil
	}
	return []byte(u.String()), nil
}

func (u *UUID) UnmarshalText(text []byte) error {
	return u.setString(string(text))
}

// MarshalJSON encodes the zero UUID as null.
func (u UUID) MarshalJSON() ([]byte, error) {
	if u.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(u.String())
}

func (u *UUID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*u = UUID{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("UUID must be a string: %w", err)
	}
	return u.setString(s)
}

// Scan reads text or varchar columns; NULL scans to the zero UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = UUID{}
		return nil
	case string:
		return u.setString(v)
	case []byte:
		return u.setString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
}

// Value stores the zero UUID as NULL.
func (u UUID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.String(), nil
}
