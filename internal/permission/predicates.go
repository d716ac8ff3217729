package permission

import (
	"maps"
	"slices"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

// Row-level predicate names usable in entity row_rules.
const (
	PredicateOwnRecords    = "own_records"
	PredicateInternalOnly  = "internal_only"
	PredicateClientVisible = "client_visible"
	PredicateAssignedToMe  = "assigned_to_me"
)

const (
	fieldCreatedBy     = "created_by"
	fieldAssignedTo    = "assigned_to"
	fieldClientVisible = "client_visible"
)

// predicate is a named row rule. allow decides on a loaded record; scope
// narrows a list query to the rows allow would accept. A false second
// result from scope means no row can be visible.
type predicate struct {
	allow func(u domain.User, r domain.Record) bool
	scope func(u domain.User) (map[string]any, bool)
}

var predicates = map[string]predicate{
	PredicateOwnRecords: {
		allow: func(u domain.User, r domain.Record) bool {
			return r.UUID(fieldCreatedBy) == u.ID
		},
		scope: func(u domain.User) (map[string]any, bool) {
			return map[string]any{fieldCreatedBy: u.ID}, true
		},
	},
	PredicateInternalOnly: {
		allow: func(u domain.User, _ domain.Record) bool {
			return u.IsInternal()
		},
		scope: func(u domain.User) (map[string]any, bool) {
			return nil, u.IsInternal()
		},
	},
	PredicateClientVisible: {
		allow: func(u domain.User, r domain.Record) bool {
			return u.IsInternal() || r.Bool(fieldClientVisible)
		},
		scope: func(u domain.User) (map[string]any, bool) {
			if u.IsInternal() {
				return nil, true
			}
			return map[string]any{fieldClientVisible: true}, true
		},
	},
	PredicateAssignedToMe: {
		allow: func(u domain.User, r domain.Record) bool {
			return r.UUID(fieldAssignedTo) == u.ID
		},
		scope: func(u domain.User) (map[string]any, bool) {
			return map[string]any{fieldAssignedTo: u.ID}, true
		},
	},
}

// PredicateNames lists every row rule the evaluator can resolve.
func PredicateNames() []string {
	return slices.Sorted(maps.Keys(predicates))
}
