package engine

import (
	"github.com/heartmarshall/engagement-backend/internal/domain"
)

// ListOptions controls ordering and windowing of List and Search.
type ListOptions struct {
	Limit  int
	Offset int
	// OrderBy defaults to created_at. Results are newest first unless Asc is set.
	OrderBy string
	Asc     bool
}

// UpdateOptions adjusts how UpdateWith treats a change.
type UpdateOptions struct {
	// Action is the permission checked against the record, update by default.
	Action domain.Action
	// Reason is stored in the audit entry details.
	Reason string
	// Automatic marks changes made by the scheduler.
	Automatic bool
	// Internal values are merged without input validation. Only engine
	// collaborators set them (workflow bookkeeping).
	Internal domain.Record
}

// UpdateResult carries both snapshots of an update.
type UpdateResult struct {
	Before domain.Record
	After  domain.Record
	// StageChanged is set when the update moved the workflow stage.
	StageChanged bool
}
