package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

//
// Metadata helper
//

// Metadata is an opaque JSON document attached to a key. It is stored in a
// Postgres jsonb column and passed through untouched.
type Metadata []byte

func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return []byte(m), nil
}

func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*m = append((*m)[:0], v...)
	case string:
		*m = Metadata(v)
	default:
		return fmt.Errorf("Metadata: expected []byte, got %T", value)
	}

	if len(*m) == 0 {
		*m = nil
	}
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return m, nil
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = nil
		return nil
	}
	if !json.Valid(data) {
		return fmt.Errorf("Metadata: invalid JSON")
	}
	*m = append((*m)[:0], data...)
	return nil
}
