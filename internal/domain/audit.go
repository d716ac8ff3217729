package domain

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sort"

	"github.com/google/uuid"
)

// Change is one field difference between two snapshots.
type Change struct {
	Field string `json:"field"`
	From  any    `json:"from"`
	To    any    `json:"to"`
}

// AuditEntry is one immutable audit log row.
type AuditEntry struct {
	ID          uuid.UUID      `json:"id"`
	EntityType  string         `json:"entity_type"`
	EntityID    uuid.UUID      `json:"entity_id"`
	Action      AuditAction    `json:"action"`
	UserID      uuid.UUID      `json:"user_id"`
	BeforeState Record         `json:"before_state"`
	AfterState  Record         `json:"after_state"`
	Changes     []Change       `json:"changes"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ReasonCode  *string        `json:"reason_code,omitempty"`
	CreatedAt   int64          `json:"created_at"`
}

// AuditFilter narrows an audit log search.
type AuditFilter struct {
	EntityType *string
	EntityID   *uuid.UUID
	UserID     *uuid.UUID
	Action     *AuditAction
	Search     *string
	// From and To are Unix seconds, inclusive.
	From int64
	To   int64
}

// CountByKey is one row of an aggregated count.
type CountByKey struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// RotationResult reports an audit archival run.
type RotationResult struct {
	Archived  int64  `json:"archived"`
	ArchiveID string `json:"archive_id"`
}

// Activity is a business event recorded by audit-kind hooks. It lives beside
// the audit log and never counts as a mutation entry.
type Activity struct {
	ID         uuid.UUID      `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	UserID     uuid.UUID      `json:"user_id"`
	Data       map[string]any `json:"data,omitempty"`
	CreatedAt  int64          `json:"created_at"`
}

// Diff compares two snapshots over the union of their keys and returns the
// fields whose serialized values differ, ordered by field name. A key missing
// on one side is treated as undefined and differs from any present value,
// including an explicit null.
func Diff(before, after Record) []Change {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	changes := []Change{}
	for _, k := range sorted {
		from, inBefore := before[k]
		to, inAfter := after[k]
		if inBefore && inAfter && sameSerialized(from, to) {
			continue
		}
		if !inBefore && !inAfter {
			continue
		}
		changes = append(changes, Change{Field: k, From: from, To: to})
	}
	return changes
}

func sameSerialized(a, b any) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ab, bb)
}
