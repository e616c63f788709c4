package model

import (
	"bytes"
	"encoding/json"

	"github.com/randalmurphal/tpm/internal/errors"
)

// Metadata is an opaque JSON value attached to tickets and tasks.
// The zero value and JSON null both mean "no metadata".
type Metadata json.RawMessage

// ParseMetadata validates s as JSON. An empty string yields nil.
func ParseMetadata(s string) (Metadata, error) {
	if len(bytes.TrimSpace([]byte(s))) == 0 {
		return nil, nil
	}
	m := Metadata(s)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m.normalize(), nil
}

// MustMetadata marshals v into Metadata, panicking on failure.
func MustMetadata(v any) Metadata {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Metadata(data).normalize()
}

// IsNull reports whether m carries no value.
func (m Metadata) IsNull() bool {
	t := bytes.TrimSpace(m)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// Validate reports a ValidationError when m is not valid JSON.
func (m Metadata) Validate() error {
	if len(bytes.TrimSpace(m)) == 0 {
		return nil
	}
	if !json.Valid(m) {
		return errors.Invalid("metadata", "metadata", "not valid JSON")
	}
	return nil
}

// normalize collapses null to nil and compacts whitespace.
func (m Metadata) normalize() Metadata {
	if m.IsNull() {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, m); err != nil {
		return m
	}
	return Metadata(buf.Bytes())
}

// Normalize returns m compacted, or nil for null.
func (m Metadata) Normalize() Metadata {
	return m.normalize()
}

// String returns the JSON text, or "" for no metadata.
func (m Metadata) String() string {
	if m.IsNull() {
		return ""
	}
	return string(m)
}

// Decode unmarshals m into a generic value. No metadata decodes to nil.
func (m Metadata) Decode() (any, error) {
	if m.IsNull() {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(m, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// MarshalJSON implements json.Marshaler.
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m.IsNull() {
		return []byte("null"), nil
	}
	return m, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	if m == nil {
		return errors.Invalid("metadata", "metadata", "unmarshal into nil pointer")
	}
	*m = Metadata(append([]byte(nil), data...)).normalize()
	return nil
}
