// Package permission decides whether a user may perform an action on an
// entity. Decisions are fail-closed: an action without an access entry is
// denied for everyone.
package permission

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// Decision is the result of evaluating one permission request.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Evaluator applies the access matrix and row rules of entity specs.
type Evaluator struct {
	log *slog.Logger
}

// NewEvaluator creates a new Evaluator.
func NewEvaluator(log *slog.Logger) *Evaluator {
	return &Evaluator{log: log.With("service", "permission")}
}

// Decide evaluates user against the access rule for action. When record is
// nil (list, create) the row rule is skipped.
func (e *Evaluator) Decide(user domain.User, s *spec.EntitySpec, action domain.Action, record domain.Record) Decision {
	roles, declared := s.AccessRoles(action)
	if !declared {
		return deny(fmt.Sprintf("no access rule for %s", action))
	}
	if !user.Role.IsValid() {
		return deny("unknown role")
	}

	reason := "role"
	if !slices.Contains(roles, user.Role) {
		if !user.HasGrant(s.Name, action) {
			return deny(fmt.Sprintf("role %s not allowed", user.Role))
		}
		reason = "grant"
	}

	if record == nil {
		return allow(reason)
	}
	name, ok := s.RowRule(action)
	if !ok {
		return allow(reason)
	}
	p, ok := predicates[name]
	if !ok {
		return deny(fmt.Sprintf("unknown row rule %s", name))
	}
	if !p.allow(user, record) {
		return deny(fmt.Sprintf("row rule %s", name))
	}
	return allow(reason + "+" + name)
}

// Can is the boolean form of Decide.
func (e *Evaluator) Can(user domain.User, s *spec.EntitySpec, action domain.Action, record domain.Record) bool {
	return e.Decide(user, s, action, record).Allowed
}

// Check is the enforcing form of Decide. It returns a *domain.PermissionError
// when the decision is a denial.
func (e *Evaluator) Check(user domain.User, s *spec.EntitySpec, action domain.Action, record domain.Record) error {
	d := e.Decide(user, s, action, record)
	if d.Allowed {
		return nil
	}
	e.log.Debug("permission denied",
		slog.String("entity", s.Name),
		slog.String("action", action.String()),
		slog.String("role", user.Role.String()),
		slog.String("user_id", user.ID.String()),
		slog.String("reason", d.Reason),
	)
	return &domain.PermissionError{
		Entity: s.Name,
		Action: action.String(),
		Role:   user.Role,
		Reason: d.Reason,
	}
}

// Scope returns the equality filter a list query must carry so that only
// rows passing the row rule for action are returned. visible is false when
// no row can pass. Entities without a row rule yield (nil, true).
func (e *Evaluator) Scope(user domain.User, s *spec.EntitySpec, action domain.Action) (filter map[string]any, visible bool) {
	name, ok := s.RowRule(action)
	if !ok {
		return nil, true
	}
	p, ok := predicates[name]
	if !ok {
		return nil, false
	}
	return p.scope(user)
}
