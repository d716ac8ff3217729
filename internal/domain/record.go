package domain

import (
	"maps"

	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"
)

// Column names present on every entity table.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
	FieldDeletedAt = "deleted_at"

	FieldTransitionAttempts    = "transition_attempts"
	FieldLastTransitionAt      = "last_transition_at"
	FieldAutoTransitionEnabled = "auto_transition_enabled"
)

// MaxAutoTransitionAttempts is the number of consecutive failed automatic
// transitions after which auto transitions are disabled for a record.
const MaxAutoTransitionAttempts = 3

// Record is one row of a spec-defined entity keyed by field name. Values are
// already coerced to the Go type of the field's type tag.
type Record map[string]any

// Clone returns a deep copy, so snapshots taken before a mutation stay
// untouched by it.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	var out Record
	if err := deepcopy.Copy(&out, r); err != nil {
		return maps.Clone(r)
	}
	return out
}

// ID returns the record identifier or uuid.Nil.
func (r Record) ID() uuid.UUID {
	id, _ := r[FieldID].(uuid.UUID)
	return id
}

// String returns a text value or "".
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int returns an integer value or 0.
func (r Record) Int(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Float returns a numeric value or 0.
func (r Record) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns a boolean value or false.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// UUID returns a reference value or uuid.Nil.
func (r Record) UUID(key string) uuid.UUID {
	id, _ := r[key].(uuid.UUID)
	return id
}

// IsSet reports whether key holds a non-nil value.
func (r Record) IsSet(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// RecordQuery describes a generic list/search request against one entity.
type RecordQuery struct {
	// Filter is an equality map; keys must already be restricted to declared fields.
	// A slice value matches any of its elements.
	Filter map[string]any
	// Exclude is an inequality map with the same key rules as Filter.
	Exclude map[string]any
	Ranges  []Range
	// Search is matched case-insensitively against SearchFields (OR).
	Search       string
	SearchFields []string
	OrderBy      string
	Desc         bool
	Limit        int
	Offset       int
}

// Range bounds a numeric or time field. Nil ends are open; set ends are inclusive.
type Range struct {
	Field string
	From  *int64
	To    *int64
}

// Matches reports whether v lies within the range. Non-numeric and nil
// values never match.
func (r Range) Matches(v any) bool {
	var n int64
	switch t := v.(type) {
	case int64:
		n = t
	case int:
		n = int64(t)
	case float64:
		n = int64(t)
	default:
		return false
	}
	if r.From != nil && n < *r.From {
		return false
	}
	if r.To != nil && n > *r.To {
		return false
	}
	return true
}
