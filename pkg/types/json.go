package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap maps a jsonb column onto a plain Go map
type JSONMap map[string]any

// Value implements driver.Valuer
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// Clone returns a deep copy via JSON round-trip
func (m JSONMap) Clone() JSONMap {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return JSONMap{}
	}
	var out JSONMap
	if err := json.Unmarshal(data, &out); err != nil {
		return JSONMap{}
	}
	return out
}

// String extracts a string field, "" when absent or differently typed
func (m JSONMap) String(key string) string {
	v, _ := m[key].(string)
	return v
}

// Map extracts a nested object field, nil when absent
func (m JSONMap) Map(key string) JSONMap {
	switch v := m[key].(type) {
	case JSONMap:
		return v
	case map[string]any:
		return JSONMap(v)
	}
	return nil
}

// Slice extracts an array field, nil when absent. Payloads hold []string
// values before their first jsonb round trip and []any after; both forms
// are accepted.
func (m JSONMap) Slice(key string) []any {
	switch v := m[key].(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	}
	return nil
}

// Bool extracts a boolean field
func (m JSONMap) Bool(key string) bool {
	v, _ := m[key].(bool)
	return v
}

// StringSlice extracts an array of strings, skipping non-string members
func (m JSONMap) StringSlice(key string) []string {
	raw := m.Slice(key)
	if raw == nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
