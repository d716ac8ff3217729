// Package hook dispatches side effects declared on entity specs at fixed
// lifecycle points.
package hook

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// Hook is one of Email, Audit or Validate.
type Hook interface {
	kind() string
}

// Email publishes a notification built from Template to the users referenced
// by the Recipients fields.
type Email struct {
	Template   string
	Recipients []string
	Async      bool
}

// Audit records a business activity synchronously.
type Audit struct {
	Action string
}

// Validate runs a named rule that may veto the mutation.
type Validate struct {
	Rule string
}

func (Email) kind() string    { return spec.KindEmail }
func (Audit) kind() string    { return spec.KindAudit }
func (Validate) kind() string { return spec.KindValidate }

// Condition limits a registration to mutations touching Field. When is
// "changed", "completed" or a literal value.
type Condition struct {
	Field string
	When  string
}

const (
	WhenChanged   = "changed"
	WhenCompleted = "completed"
)

// Registration binds a hook to an entity and point.
type Registration struct {
	Entity   string
	Point    string
	Priority int
	Cond     Condition
	Hook     Hook
}

// Event describes the mutation a hook runs for. Before is nil on create and
// After is nil on delete.
type Event struct {
	Spec   *spec.EntitySpec
	Point  string
	Before domain.Record
	After  domain.Record
	User   domain.User
	Reason string
}

func (e Event) current() domain.Record {
	if e.After != nil {
		return e.After
	}
	return e.Before
}

// matches reports whether the condition holds for the event.
func (c Condition) matches(e Event) bool {
	if c.Field == "" {
		return true
	}
	cur := e.current()
	switch c.When {
	case "", WhenChanged:
		if e.Before == nil || e.After == nil {
			return cur.IsSet(c.Field)
		}
		return !reflect.DeepEqual(e.Before[c.Field], e.After[c.Field])
	case WhenCompleted:
		switch v := cur[c.Field].(type) {
		case bool:
			return v && (e.Before == nil || !e.Before.Bool(c.Field))
		case string:
			return v == WhenCompleted && (e.Before == nil || e.Before.String(c.Field) != v)
		}
		return false
	default:
		if fmt.Sprint(cur[c.Field]) != c.When {
			return false
		}
		if e.Before != nil && e.After != nil {
			return fmt.Sprint(e.Before[c.Field]) != c.When
		}
		return true
	}
}

// compile turns the static hook definitions of every spec into
// registrations grouped by entity and point, ordered by priority.
func compile(specs []*spec.EntitySpec) map[string]map[string][]Registration {
	out := make(map[string]map[string][]Registration)
	for _, s := range specs {
		for _, def := range s.Hooks {
			var h Hook
			switch def.Kind {
			case spec.KindEmail:
				async := true
				if def.Async != nil {
					async = *def.Async
				}
				h = Email{Template: def.Template, Recipients: def.Recipients, Async: async}
			case spec.KindAudit:
				h = Audit{Action: def.Action}
			case spec.KindValidate:
				h = Validate{Rule: def.Rule}
			default:
				continue
			}
			if out[s.Name] == nil {
				out[s.Name] = make(map[string][]Registration)
			}
			out[s.Name][def.Point] = append(out[s.Name][def.Point], Registration{
				Entity:   s.Name,
				Point:    def.Point,
				Priority: def.Priority,
				Cond:     Condition{Field: def.Field, When: def.When},
				Hook:     h,
			})
		}
	}
	for _, byPoint := range out {
		for _, regs := range byPoint {
			sort.SliceStable(regs, func(i, j int) bool { return regs[i].Priority < regs[j].Priority })
		}
	}
	return out
}
