package spec

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType is the closed set of value kinds a field can hold.
type FieldType string

const (
	TypeText      FieldType = "text"
	TypeInt       FieldType = "int"
	TypeNumber    FieldType = "number"
	TypeBool      FieldType = "bool"
	TypeEnum      FieldType = "enum"
	TypeRef       FieldType = "ref"
	TypeDate      FieldType = "date"
	TypeTimestamp FieldType = "timestamp"
	TypeJSON      FieldType = "json"
)

func (t FieldType) IsValid() bool {
	switch t {
	case TypeText, TypeInt, TypeNumber, TypeBool, TypeEnum, TypeRef, TypeDate, TypeTimestamp, TypeJSON:
		return true
	}
	return false
}

// Auto names a value the engine fills in instead of the caller.
type Auto string

const (
	AutoNone      Auto = ""
	AutoCreatedBy Auto = "created_by"
	AutoUpdatedBy Auto = "updated_by"
	AutoNow       Auto = "now"
	AutoNowUpdate Auto = "now_update"
)

func (a Auto) IsValid() bool {
	switch a {
	case AutoNone, AutoCreatedBy, AutoUpdatedBy, AutoNow, AutoNowUpdate:
		return true
	}
	return false
}

// Field is one column of an entity.
type Field struct {
	Key      string    `yaml:"key"      json:"key"`
	Label    string    `yaml:"label"    json:"label,omitempty"`
	Type     FieldType `yaml:"type"     json:"type"`
	Required bool      `yaml:"required" json:"required"`
	Unique   bool      `yaml:"unique"   json:"unique,omitempty"`
	Default  any       `yaml:"default"  json:"default,omitempty"`
	Auto     Auto      `yaml:"auto"     json:"auto,omitempty"`
	Search   bool      `yaml:"search"   json:"search,omitempty"`
	Readonly bool      `yaml:"readonly" json:"readonly,omitempty"`
	// Internal fields are bookkeeping and never appear in audit diffs.
	Internal  bool     `yaml:"internal"   json:"internal,omitempty"`
	Options   string   `yaml:"options"    json:"options,omitempty"`
	Ref       string   `yaml:"ref"        json:"ref,omitempty"`
	MaxLength int      `yaml:"max_length" json:"max_length,omitempty"`
	Min       *float64 `yaml:"min"        json:"min,omitempty"`
	Max       *float64 `yaml:"max"        json:"max,omitempty"`

	values []string
	system bool
}

// IsSystem reports whether the field is maintained by the engine (id,
// timestamps, workflow bookkeeping) rather than declared by the spec.
func (f Field) IsSystem() bool { return f.system }

// Writable reports whether callers may set the field directly.
func (f Field) Writable() bool {
	return !f.system && !f.Readonly && f.Auto == AutoNone
}

// Values returns the allowed values of an enum field.
func (f Field) Values() []string { return f.values }

// Coerce converts an input value (typically decoded from JSON) into the Go
// type of the field. nil passes through; requiredness is checked separately.
func (f Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case TypeText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}
		if f.MaxLength > 0 && len([]rune(s)) > f.MaxLength {
			return nil, fmt.Errorf("max %d characters", f.MaxLength)
		}
		return s, nil

	case TypeInt:
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		if err := f.checkRange(float64(n)); err != nil {
			return nil, err
		}
		return n, nil

	case TypeNumber:
		n, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		if err := f.checkRange(n); err != nil {
			return nil, err
		}
		return n, nil

	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("must be a boolean")
		}
		return b, nil

	case TypeEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}
		if !slices.Contains(f.values, s) {
			return nil, fmt.Errorf("must be one of: %s", strings.Join(f.values, ", "))
		}
		return s, nil

	case TypeRef:
		return toUUID(v)

	case TypeDate, TypeTimestamp:
		return toUnix(v)

	case TypeJSON:
		switch v.(type) {
		case map[string]any, []any:
			return v, nil
		}
		return nil, fmt.Errorf("must be an object or array")
	}
	return nil, fmt.Errorf("unsupported field type %q", f.Type)
}

// FromStorage normalizes a value scanned from the database into the same Go
// type Coerce produces.
func (f Field) FromStorage(v any) any {
	if v == nil {
		return nil
	}
	switch f.Type {
	case TypeInt, TypeDate, TypeTimestamp:
		if n, err := toInt(v); err == nil {
			return n
		}
	case TypeNumber:
		if n, err := toFloat(v); err == nil {
			return n
		}
	case TypeRef:
		if id, err := toUUID(v); err == nil {
			return id
		}
	case TypeJSON:
		if b, ok := v.([]byte); ok {
			var out any
			if err := json.Unmarshal(b, &out); err == nil {
				return out
			}
		}
	}
	return v
}

// IsEmpty reports whether v counts as missing for a required field.
func (f Field) IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case uuid.UUID:
		return t == uuid.Nil
	}
	return false
}

func (f Field) checkRange(n float64) error {
	if f.Min != nil && n < *f.Min {
		return fmt.Errorf("must be >= %v", *f.Min)
	}
	if f.Max != nil && n > *f.Max {
		return fmt.Errorf("must be <= %v", *f.Max)
	}
	return nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("must be an integer")
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("must be an integer")
		}
		return i, nil
	}
	return 0, fmt.Errorf("must be an integer")
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("must be a number")
		}
		return f, nil
	}
	return 0, fmt.Errorf("must be a number")
}

func toUUID(v any) (uuid.UUID, error) {
	switch id := v.(type) {
	case uuid.UUID:
		return id, nil
	case [16]byte:
		return uuid.UUID(id), nil
	case string:
		parsed, err := uuid.Parse(id)
		if err != nil {
			return uuid.Nil, fmt.Errorf("must be a UUID")
		}
		return parsed, nil
	}
	return uuid.Nil, fmt.Errorf("must be a UUID")
}

// toUnix accepts Unix seconds or an RFC 3339 / YYYY-MM-DD string.
func toUnix(v any) (int64, error) {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Unix(), nil
		}
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			return t.Unix(), nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		return 0, fmt.Errorf("must be Unix seconds or a date")
	}
	n, err := toInt(v)
	if err != nil {
		return 0, fmt.Errorf("must be Unix seconds or a date")
	}
	return n, nil
}
