package workflow

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// Validator names usable in stage definitions.
const (
	ValidatorHasBudget        = "has_budget"
	ValidatorHasStartDate     = "has_start_date"
	ValidatorHasTeam          = "has_team"
	ValidatorProgressComplete = "progress_complete"
	ValidatorHasResponse      = "has_response"
	ValidatorAllRFIsClosed    = "all_rfis_closed"
	ValidatorNoOpenHighlights = "no_open_highlights"
)

// Lookup reads related records for validators that look past the record
// being transitioned. It runs without permission checks.
type Lookup interface {
	Find(ctx context.Context, entity string, filter map[string]any) ([]domain.Record, error)
}

// Validator reports whether record may enter a stage. A non-nil error means
// the check itself could not run.
type Validator func(ctx context.Context, l Lookup, s *spec.EntitySpec, record domain.Record) (bool, error)

var builtin = map[string]Validator{
	ValidatorHasBudget: func(_ context.Context, _ Lookup, _ *spec.EntitySpec, r domain.Record) (bool, error) {
		return r.Float("budget") > 0, nil
	},
	ValidatorHasStartDate: func(_ context.Context, _ Lookup, _ *spec.EntitySpec, r domain.Record) (bool, error) {
		return r.IsSet("start_date"), nil
	},
	ValidatorHasTeam: func(_ context.Context, _ Lookup, _ *spec.EntitySpec, r domain.Record) (bool, error) {
		return r.UUID("team_id") != uuid.Nil, nil
	},
	ValidatorProgressComplete: func(_ context.Context, _ Lookup, _ *spec.EntitySpec, r domain.Record) (bool, error) {
		return r.Int("progress") >= 100, nil
	},
	ValidatorHasResponse: func(_ context.Context, _ Lookup, _ *spec.EntitySpec, r domain.Record) (bool, error) {
		return r.String("response") != "", nil
	},
	ValidatorAllRFIsClosed: func(ctx context.Context, l Lookup, _ *spec.EntitySpec, r domain.Record) (bool, error) {
		rfis, err := l.Find(ctx, "rfi", map[string]any{"engagement_id": r.ID()})
		if err != nil {
			return false, fmt.Errorf("find rfis: %w", err)
		}
		for _, rfi := range rfis {
			if rfi.String("status") != "closed" {
				return false, nil
			}
		}
		return true, nil
	},
	ValidatorNoOpenHighlights: func(ctx context.Context, l Lookup, _ *spec.EntitySpec, r domain.Record) (bool, error) {
		open, err := l.Find(ctx, "highlight", map[string]any{"review_id": r.ID(), "resolved": false})
		if err != nil {
			return false, fmt.Errorf("find highlights: %w", err)
		}
		return len(open) == 0, nil
	},
}

// ValidatorNames lists every validator the engine can resolve.
func ValidatorNames() []string {
	return slices.Sorted(maps.Keys(builtin))
}

// Validators resolves validator names against a lookup.
type Validators struct {
	lookup Lookup
	byName map[string]Validator
}

// NewValidators creates the builtin validator set.
func NewValidators(lookup Lookup) *Validators {
	return &Validators{lookup: lookup, byName: builtin}
}

// Failing runs the named validators and returns the names that rejected
// the record.
func (v *Validators) Failing(ctx context.Context, s *spec.EntitySpec, names []string, record domain.Record) ([]string, error) {
	var failed []string
	for _, name := range names {
		fn, ok := v.byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown validator %q", name)
		}
		ok, err := fn(ctx, v.lookup, s, record)
		if err != nil {
			return nil, fmt.Errorf("validator %s: %w", name, err)
		}
		if !ok {
			failed = append(failed, name)
		}
	}
	return failed, nil
}
