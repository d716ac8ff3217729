// Package spec holds the declarative entity definitions the engine operates on.
// Specs are loaded once at startup and shared read-only; nothing in this
// package mutates a spec after the registry has been built.
package spec

import (
	"slices"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

// DeletePolicy selects how Remove treats a record of the entity.
type DeletePolicy string

const (
	// DeleteHard removes the row.
	DeleteHard DeletePolicy = "hard"
	// DeleteSoft stamps deleted_at and hides the row from reads.
	DeleteSoft DeletePolicy = "soft"
)

// Option is one value of an enumeration.
type Option struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
	Color string `yaml:"color" json:"color,omitempty"`
}

// Stage is one node of a workflow. Roles and Validators gate entering it.
type Stage struct {
	Name       string        `yaml:"name"       json:"name"`
	Label      string        `yaml:"label"      json:"label,omitempty"`
	Forward    []string      `yaml:"forward"    json:"forward"`
	Roles      []domain.Role `yaml:"roles"      json:"roles"`
	Validators []string      `yaml:"validators" json:"validators,omitempty"`
}

// AutoEdge is a transition the scheduler may attempt without a user. The
// gates are evaluated as if Role performed it.
type AutoEdge struct {
	From string      `yaml:"from" json:"from"`
	To   string      `yaml:"to"   json:"to"`
	Role domain.Role `yaml:"role" json:"role"`
}

// Workflow is the state machine of a workflow-bearing entity.
type Workflow struct {
	// Field is the record field holding the current stage ("stage" or "status").
	Field  string     `yaml:"field"  json:"field"`
	Stages []Stage    `yaml:"stages" json:"stages"`
	Auto   []AutoEdge `yaml:"auto"   json:"auto,omitempty"`
}

// Initial returns the first declared stage.
func (w *Workflow) Initial() string {
	if len(w.Stages) == 0 {
		return ""
	}
	return w.Stages[0].Name
}

// Stage looks up a stage by name.
func (w *Workflow) Stage(name string) (Stage, bool) {
	for _, s := range w.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}

// HasStage reports whether name is a declared stage.
func (w *Workflow) HasStage(name string) bool {
	_, ok := w.Stage(name)
	return ok
}

// StageNames returns the declared stages in order.
func (w *Workflow) StageNames() []string {
	names := make([]string, len(w.Stages))
	for i, s := range w.Stages {
		names[i] = s.Name
	}
	return names
}

// Child declares a one-to-many relation removed together with its parent.
type Child struct {
	Entity     string `yaml:"entity"      json:"entity"`
	ForeignKey string `yaml:"foreign_key" json:"foreign_key"`
}

// DeleteGuard blocks Remove when the record has progressed outside the
// deletable stages.
type DeleteGuard struct {
	Stages        []string `yaml:"stages"         json:"stages"`
	ProgressField string   `yaml:"progress_field" json:"progress_field"`
}

// HookDef is the static form of a hook registration. It is compiled into a
// typed hook by the hook package.
type HookDef struct {
	Point      string   `yaml:"point"`
	Kind       string   `yaml:"kind"`
	Priority   int      `yaml:"priority"`
	Template   string   `yaml:"template"`
	Recipients []string `yaml:"recipients"`
	Async      *bool    `yaml:"async"`
	Action     string   `yaml:"action"`
	Rule       string   `yaml:"rule"`
	Field      string   `yaml:"field"`
	When       string   `yaml:"when"`
}

// EntitySpec is the immutable definition of one entity type.
type EntitySpec struct {
	Name        string                          `yaml:"name"         json:"name"`
	Table       string                          `yaml:"table"        json:"table"`
	Fields      []Field                         `yaml:"fields"       json:"fields"`
	Options     map[string][]Option             `yaml:"options"      json:"options,omitempty"`
	Access      map[domain.Action][]domain.Role `yaml:"access"       json:"access"`
	RowRules    map[domain.Action]string        `yaml:"row_rules"    json:"row_rules,omitempty"`
	Workflow    *Workflow                       `yaml:"workflow"     json:"workflow,omitempty"`
	Children    []Child                         `yaml:"children"     json:"children,omitempty"`
	Delete      DeletePolicy                    `yaml:"delete"       json:"delete"`
	DeleteGuard *DeleteGuard                    `yaml:"delete_guard" json:"delete_guard,omitempty"`
	Strict      bool                            `yaml:"strict"       json:"strict"`
	// ReasonField names the field copied into audit entries as reason_code.
	ReasonField string    `yaml:"reason_field" json:"reason_field,omitempty"`
	Hooks       []HookDef `yaml:"hooks"        json:"-"`

	index map[string]int
}

// Field looks up a declared (or implicit) field by key.
func (s *EntitySpec) Field(key string) (Field, bool) {
	i, ok := s.index[key]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// HasField reports whether key is a field of the entity.
func (s *EntitySpec) HasField(key string) bool {
	_, ok := s.index[key]
	return ok
}

// Columns returns every stored column in declaration order.
func (s *EntitySpec) Columns() []string {
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = f.Key
	}
	return cols
}

// Searchable returns the keys of fields declared with search: true.
func (s *EntitySpec) Searchable() []string {
	var keys []string
	for _, f := range s.Fields {
		if f.Search {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// IsWorkflow reports whether the entity carries a state machine.
func (s *EntitySpec) IsWorkflow() bool {
	return s.Workflow != nil
}

// StageField returns the workflow field or "" for plain entities.
func (s *EntitySpec) StageField() string {
	if s.Workflow == nil {
		return ""
	}
	return s.Workflow.Field
}

// AccessRoles returns the role set allowed for action and whether the action
// is declared at all.
func (s *EntitySpec) AccessRoles(action domain.Action) ([]domain.Role, bool) {
	roles, ok := s.Access[action]
	return roles, ok
}

// RowRule returns the row-level predicate name for action, if any.
func (s *EntitySpec) RowRule(action domain.Action) (string, bool) {
	name, ok := s.RowRules[action]
	return name, ok && name != ""
}

// IsSoftDelete reports whether Remove stamps deleted_at instead of deleting.
func (s *EntitySpec) IsSoftDelete() bool {
	return s.Delete == DeleteSoft
}

// OptionValues returns the allowed values of an option set.
func (s *EntitySpec) OptionValues(set string) []string {
	opts := s.Options[set]
	vals := make([]string, len(opts))
	for i, o := range opts {
		vals[i] = o.Value
	}
	return vals
}

// AllowsOption reports whether value belongs to the option set.
func (s *EntitySpec) AllowsOption(set, value string) bool {
	return slices.Contains(s.OptionValues(set), value)
}
