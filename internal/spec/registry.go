package spec

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

// Hook points an entity can declare hooks for.
const (
	PointAfterCreate        = "afterCreate"
	PointAfterUpdate        = "afterUpdate"
	PointAfterDelete        = "afterDelete"
	PointBeforeStatusChange = "beforeStatusChange"
)

// Hook kinds.
const (
	KindEmail    = "email"
	KindAudit    = "audit"
	KindValidate = "validate"
)

// Known lists the names configuration may reference. Anything outside these
// sets is rejected at load time so a typo never surfaces at request time.
type Known struct {
	Validators []string
	Predicates []string
	HookRules  []string
}

// Registry is the immutable set of entity specs keyed by name.
type Registry struct {
	specs map[string]*EntitySpec
	names []string
}

// NewRegistry validates and indexes specs. Either every spec is accepted or
// an error describing all problems is returned.
func NewRegistry(specs []*EntitySpec, known Known) (*Registry, error) {
	r := &Registry{specs: make(map[string]*EntitySpec, len(specs))}

	var errs []error
	for _, s := range specs {
		if s == nil {
			continue
		}
		if err := s.build(known); err != nil {
			errs = append(errs, fmt.Errorf("entity %q: %w", s.Name, err))
			continue
		}
		if _, dup := r.specs[s.Name]; dup {
			errs = append(errs, fmt.Errorf("entity %q: declared twice", s.Name))
			continue
		}
		r.specs[s.Name] = s
		r.names = append(r.names, s.Name)
	}
	if len(errs) == 0 {
		errs = append(errs, r.checkRelations()...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	sort.Strings(r.names)
	return r, nil
}

// Get returns the spec for name or an error wrapping domain.ErrNotFound.
func (r *Registry) Get(name string) (*EntitySpec, error) {
	s, ok := r.specs[name]
	if !ok {
		return nil, fmt.Errorf("entity %q: %w", name, domain.ErrNotFound)
	}
	return s, nil
}

// Names returns the registered entity names in sorted order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// All returns the registered specs in name order.
func (r *Registry) All() []*EntitySpec {
	out := make([]*EntitySpec, len(r.names))
	for i, n := range r.names {
		out[i] = r.specs[n]
	}
	return out
}

func (r *Registry) checkRelations() []error {
	var errs []error
	for _, name := range r.names {
		s := r.specs[name]
		for _, c := range s.Children {
			child, ok := r.specs[c.Entity]
			if !ok {
				errs = append(errs, fmt.Errorf("entity %q: child %q is not declared", name, c.Entity))
				continue
			}
			fk, ok := child.Field(c.ForeignKey)
			if !ok || fk.Type != TypeRef {
				errs = append(errs, fmt.Errorf("entity %q: child %q has no ref field %q", name, c.Entity, c.ForeignKey))
			}
		}
		for _, f := range s.Fields {
			if f.Type == TypeRef && f.Ref != "" {
				if _, ok := r.specs[f.Ref]; !ok && !slices.Contains(externalRefs, f.Ref) {
					errs = append(errs, fmt.Errorf("entity %q: field %q references unknown entity %q", name, f.Key, f.Ref))
				}
			}
		}
	}
	return errs
}

// externalRefs are identities owned outside the engine.
var externalRefs = []string{"user", "client", "team"}

var reservedFields = []string{
	domain.FieldID, domain.FieldCreatedAt, domain.FieldUpdatedAt, domain.FieldDeletedAt,
	domain.FieldTransitionAttempts, domain.FieldLastTransitionAt, domain.FieldAutoTransitionEnabled,
}

// build validates the spec in isolation, appends the implicit system fields
// and builds the field index.
func (s *EntitySpec) build(known Known) error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if s.Name == "" {
		add("name is required")
	}
	if s.Table == "" {
		s.Table = s.Name
	}
	switch s.Delete {
	case "":
		s.Delete = DeleteHard
	case DeleteHard, DeleteSoft:
	default:
		add("unknown delete policy %q", s.Delete)
	}

	fields := []Field{{Key: domain.FieldID, Type: TypeRef, system: true}}
	seen := map[string]bool{domain.FieldID: true}

	stageField := ""
	if s.Workflow != nil {
		if s.Workflow.Field == "" {
			s.Workflow.Field = "stage"
		}
		stageField = s.Workflow.Field
	}

	for _, f := range s.Fields {
		switch {
		case f.Key == "":
			add("field with empty key")
			continue
		case slices.Contains(reservedFields, f.Key) || f.Key == stageField:
			add("field %q is maintained by the engine", f.Key)
			continue
		case seen[f.Key]:
			add("field %q declared twice", f.Key)
			continue
		}
		seen[f.Key] = true

		if !f.Type.IsValid() {
			add("field %q: unknown type %q", f.Key, f.Type)
			continue
		}
		if !f.Auto.IsValid() {
			add("field %q: unknown auto behaviour %q", f.Key, f.Auto)
		}
		if f.Type == TypeEnum {
			vals := s.OptionValues(f.Options)
			if len(vals) == 0 {
				add("field %q: option set %q is empty or missing", f.Key, f.Options)
			}
			f.values = vals
		}
		if f.Default != nil {
			v, err := f.Coerce(f.Default)
			if err != nil {
				add("field %q: default: %v", f.Key, err)
			}
			f.Default = v
		}
		fields = append(fields, f)
	}

	if s.Workflow != nil {
		errs = append(errs, s.Workflow.validate(known)...)
		fields = append(fields,
			Field{Key: stageField, Type: TypeEnum, Required: true, Default: s.Workflow.Initial(), values: s.Workflow.StageNames(), system: true},
			Field{Key: domain.FieldTransitionAttempts, Type: TypeInt, Default: int64(0), Internal: true, system: true},
			Field{Key: domain.FieldLastTransitionAt, Type: TypeTimestamp, system: true},
			Field{Key: domain.FieldAutoTransitionEnabled, Type: TypeBool, Default: true, system: true},
		)
	}

	fields = append(fields,
		Field{Key: domain.FieldCreatedAt, Type: TypeTimestamp, Auto: AutoNow, system: true},
		Field{Key: domain.FieldUpdatedAt, Type: TypeTimestamp, Auto: AutoNowUpdate, system: true},
	)
	if s.Delete == DeleteSoft {
		fields = append(fields, Field{Key: domain.FieldDeletedAt, Type: TypeTimestamp, Internal: true, system: true})
	}
	s.Fields = fields

	s.index = make(map[string]int, len(fields))
	for i, f := range fields {
		s.index[f.Key] = i
	}

	for action, roles := range s.Access {
		if !action.IsValid() {
			add("access: unknown action %q", action)
		}
		for _, r := range roles {
			if !r.IsValid() {
				add("access %s: unknown role %q", action, r)
			}
		}
	}
	for action, pred := range s.RowRules {
		if !action.IsValid() {
			add("row_rules: unknown action %q", action)
		}
		if !slices.Contains(known.Predicates, pred) {
			add("row_rules %s: unknown predicate %q", action, pred)
		}
	}

	if g := s.DeleteGuard; g != nil {
		if s.Workflow == nil {
			add("delete_guard requires a workflow")
		} else {
			for _, st := range g.Stages {
				if !s.Workflow.HasStage(st) {
					add("delete_guard: unknown stage %q", st)
				}
			}
		}
		if g.ProgressField != "" && !s.HasField(g.ProgressField) {
			add("delete_guard: unknown progress field %q", g.ProgressField)
		}
	}
	if s.ReasonField != "" && !s.HasField(s.ReasonField) {
		add("reason_field: unknown field %q", s.ReasonField)
	}

	for i, h := range s.Hooks {
		errs = append(errs, s.validateHook(i, h, known)...)
	}

	return errors.Join(errs...)
}

func (s *EntitySpec) validateHook(i int, h HookDef, known Known) []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("hook[%d]: "+format, append([]any{i}, args...)...))
	}
	switch h.Point {
	case PointAfterCreate, PointAfterUpdate, PointAfterDelete, PointBeforeStatusChange:
	default:
		add("unknown point %q", h.Point)
	}
	switch h.Kind {
	case KindEmail:
		if h.Point == PointBeforeStatusChange {
			add("email hooks cannot run before a status change")
		}
		if h.Template == "" {
			add("email hook needs a template")
		}
		if len(h.Recipients) == 0 {
			add("email hook needs recipients")
		}
		for _, r := range h.Recipients {
			if f, ok := s.Field(r); !ok || f.Type != TypeRef {
				add("recipient %q is not a ref field", r)
			}
		}
	case KindAudit:
		if h.Action == "" {
			add("audit hook needs an action")
		}
	case KindValidate:
		if !slices.Contains(known.HookRules, h.Rule) {
			add("unknown validate rule %q", h.Rule)
		}
	default:
		add("unknown kind %q", h.Kind)
	}
	if h.Field != "" && !s.HasField(h.Field) {
		add("unknown field %q", h.Field)
	}
	if h.When != "" && h.Field == "" {
		add("when requires a field")
	}
	if h.Point == PointBeforeStatusChange && !s.IsWorkflow() {
		add("beforeStatusChange requires a workflow")
	}
	return errs
}

func (w *Workflow) validate(known Known) []error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf("workflow: "+format, args...)) }

	if len(w.Stages) == 0 {
		add("at least one stage is required")
	}
	names := map[string]bool{}
	for _, st := range w.Stages {
		if names[st.Name] {
			add("stage %q declared twice", st.Name)
		}
		names[st.Name] = true
	}
	for _, st := range w.Stages {
		for _, next := range st.Forward {
			if !names[next] {
				add("stage %q: forward to unknown stage %q", st.Name, next)
			}
			if next == st.Name {
				add("stage %q: self transition", st.Name)
			}
		}
		for _, r := range st.Roles {
			if !r.IsValid() {
				add("stage %q: unknown role %q", st.Name, r)
			}
		}
		for _, v := range st.Validators {
			if !slices.Contains(known.Validators, v) {
				add("stage %q: unknown validator %q", st.Name, v)
			}
		}
	}
	for _, a := range w.Auto {
		from, ok := w.Stage(a.From)
		if !ok {
			add("auto: unknown stage %q", a.From)
			continue
		}
		if !slices.Contains(from.Forward, a.To) {
			add("auto: %q is not reachable from %q", a.To, a.From)
		}
		if !a.Role.IsValid() {
			add("auto %s->%s: unknown role %q", a.From, a.To, a.Role)
		}
	}
	return errs
}
