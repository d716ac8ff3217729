package hook

import (
	"maps"
	"slices"
	"time"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

// Validate rule names usable in hook definitions.
const (
	RuleDeadlineNotPast  = "deadline_not_past"
	RuleResponseRequired = "response_required"
)

// rule returns a *domain.ValidationError to veto the mutation.
type rule func(e Event, field string, now time.Time) error

var rules = map[string]rule{
	RuleDeadlineNotPast: func(e Event, field string, now time.Time) error {
		cur := e.current()
		if !cur.IsSet(field) {
			return nil
		}
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if cur.Int(field) < today.Unix() {
			return domain.NewValidationError(field, "must not be in the past")
		}
		return nil
	},
	RuleResponseRequired: func(e Event, _ string, _ time.Time) error {
		if e.current().String("response") == "" {
			return domain.NewValidationError("response", "required before closing")
		}
		return nil
	},
}

// RuleNames lists every validate rule the dispatcher can resolve.
func RuleNames() []string {
	return slices.Sorted(maps.Keys(rules))
}
