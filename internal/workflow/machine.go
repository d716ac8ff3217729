// Package workflow evaluates stage transitions of workflow-bearing entities.
// Each entity's stages and forward edges are compiled once into a set of
// looplab/fsm events; every evaluation runs on a throwaway machine positioned
// at the record's current stage, so nothing here holds per-record state.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/looplab/fsm"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/spec"
)

// specRegistry is the subset of the spec registry the machine needs.
type specRegistry interface {
	All() []*spec.EntitySpec
}

// Machine holds the compiled state machines of every workflow entity.
type Machine struct {
	events     map[string]fsm.Events
	validators *Validators
}

// NewMachine compiles the workflows of all registered entities. One fsm
// event is emitted per target stage, reachable from every stage that lists
// it as forward.
func NewMachine(reg specRegistry, validators *Validators) *Machine {
	m := &Machine{
		events:     make(map[string]fsm.Events),
		validators: validators,
	}
	for _, s := range reg.All() {
		if !s.IsWorkflow() {
			continue
		}
		m.events[s.Name] = compile(s.Workflow)
	}
	return m
}

func compile(w *spec.Workflow) fsm.Events {
	var events fsm.Events
	for _, target := range w.Stages {
		var src []string
		for _, st := range w.Stages {
			if slices.Contains(st.Forward, target.Name) {
				src = append(src, st.Name)
			}
		}
		if len(src) == 0 {
			continue
		}
		events = append(events, fsm.EventDesc{Name: target.Name, Src: src, Dst: target.Name})
	}
	return events
}

// ValidateTransition checks that to is a forward edge of from and that the
// user's role may enter to. Validators are not evaluated.
func (m *Machine) ValidateTransition(ctx context.Context, s *spec.EntitySpec, from, to string, user domain.User) error {
	return m.fire(ctx, s, from, to, func(context.Context, spec.Stage) error {
		return nil
	}, user)
}

// Gate is ValidateTransition plus every validator of the target stage,
// evaluated against record. All failing validators are reported together.
func (m *Machine) Gate(ctx context.Context, s *spec.EntitySpec, from, to string, user domain.User, record domain.Record) error {
	return m.fire(ctx, s, from, to, func(ctx context.Context, st spec.Stage) error {
		failed, err := m.validators.Failing(ctx, s, st.Validators, record)
		if err != nil {
			return err
		}
		if len(failed) > 0 {
			return &domain.TransitionError{
				Entity: s.Name, From: from, To: to,
				Reason: "validation failed",
				Failed: failed,
			}
		}
		return nil
	}, user)
}

// AvailableTransitions returns the forward stages of current the user may
// enter and whose validators currently pass, in declaration order.
func (m *Machine) AvailableTransitions(ctx context.Context, s *spec.EntitySpec, current string, user domain.User, record domain.Record) ([]spec.Stage, error) {
	if !s.IsWorkflow() {
		return nil, fmt.Errorf("entity %s has no workflow: %w", s.Name, domain.ErrValidation)
	}
	from, ok := s.Workflow.Stage(current)
	if !ok {
		return nil, &domain.TransitionError{Entity: s.Name, From: current, Reason: "unknown stage"}
	}

	out := []spec.Stage{}
	for _, next := range from.Forward {
		err := m.Gate(ctx, s, current, next, user, record)
		if err == nil {
			st, _ := s.Workflow.Stage(next)
			out = append(out, st)
			continue
		}
		if !errors.Is(err, domain.ErrTransition) {
			return nil, err
		}
	}
	return out, nil
}

func (m *Machine) fire(ctx context.Context, s *spec.EntitySpec, from, to string, check func(context.Context, spec.Stage) error, user domain.User) error {
	events, ok := m.events[s.Name]
	if !ok {
		return &domain.TransitionError{Entity: s.Name, From: from, To: to, Reason: "entity has no workflow"}
	}
	if !s.Workflow.HasStage(from) {
		return &domain.TransitionError{Entity: s.Name, From: from, To: to, Reason: "unknown current stage"}
	}
	if !s.Workflow.HasStage(to) {
		return &domain.TransitionError{Entity: s.Name, From: from, To: to, Reason: "unknown target stage"}
	}

	machine := fsm.NewFSM(from, events, fsm.Callbacks{
		"before_event": func(ctx context.Context, e *fsm.Event) {
			target, _ := s.Workflow.Stage(e.Dst)
			if !slices.Contains(target.Roles, user.Role) {
				e.Cancel(&domain.TransitionError{
					Entity: s.Name, From: from, To: to,
					Reason: fmt.Sprintf("role %s may not enter %s", user.Role, to),
				})
				return
			}
			if err := check(ctx, target); err != nil {
				e.Cancel(err)
			}
		},
	})

	err := machine.Event(ctx, to)
	if err == nil {
		return nil
	}

	var canceled fsm.CanceledError
	if errors.As(err, &canceled) {
		return canceled.Err
	}
	var invalid fsm.InvalidEventError
	var unknown fsm.UnknownEventError
	var noop fsm.NoTransitionError
	if errors.As(err, &invalid) || errors.As(err, &unknown) || errors.As(err, &noop) {
		return &domain.TransitionError{Entity: s.Name, From: from, To: to, Reason: "not a forward edge"}
	}
	return fmt.Errorf("workflow %s: %w", s.Name, err)
}
