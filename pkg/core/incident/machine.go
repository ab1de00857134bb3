// Package incident holds the report lifecycle: which events move a report between states,
// who may trigger them, and which fields each role may edit in each state.
package incident

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/looplab/fsm"

	"github.com/jakechorley/incident-desk/pkg/core/model"
)

var (
	// ErrInvalidTransition is returned when an event is not defined for the report's state
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrPermissionDenied is returned when the actor lacks the capability for an action
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnknownField is returned when an update names a field reports do not have
	ErrUnknownField = errors.New("unknown field")
)

// Transition is one row of the lifecycle table
type Transition struct {
	Event       model.Event
	From        model.State
	To          model.State
	Roles       []model.Role
	CreatorOnly bool
	stamp       func(r *model.IncidentReport, actor string, at time.Time, reason string)
}

// transitions is the complete set of legal lifecycle edges
var transitions = []Transition{
	{
		Event:       model.EventSubmit,
		From:        model.StateDraft,
		To:          model.StateEnRevision,
		Roles:       []model.Role{model.RoleBrigadista, model.RoleAdmin},
		CreatorOnly: true,
		stamp: func(r *model.IncidentReport, actor string, at time.Time, _ string) {
			r.SubmittedAt = &at
			r.SubmittedBy = actor
		},
	},
	{
		Event: model.EventApprove,
		From:  model.StateEnRevision,
		To:    model.StateAprobado,
		Roles: []model.Role{model.RoleCoordinador, model.RoleAdmin},
		stamp: func(r *model.IncidentReport, actor string, at time.Time, _ string) {
			r.ApprovedAt = &at
			r.ApprovedBy = actor
		},
	},
	{
		Event: model.EventReject,
		From:  model.StateEnRevision,
		To:    model.StateDraft,
		Roles: []model.Role{model.RoleCoordinador, model.RoleAdmin},
		stamp: func(r *model.IncidentReport, actor string, at time.Time, reason string) {
			if strings.TrimSpace(reason) == "" {
				reason = model.DefaultRejectReason
			}
			r.RejectedAt = &at
			r.RejectedBy = actor
			r.RejectReason = reason
		},
	},
	{
		Event: model.EventClose,
		From:  model.StateAprobado,
		To:    model.StateCerrado,
		Roles: []model.Role{model.RoleCoordinador, model.RoleAdmin},
		stamp: func(r *model.IncidentReport, actor string, at time.Time, _ string) {
			r.ClosedAt = &at
			r.ClosedBy = actor
		},
	},
}

// Transitions returns the lifecycle table
func Transitions() []Transition {
	return slices.Clone(transitions)
}

func lookup(event model.Event, from model.State) (Transition, bool) {
	for _, t := range transitions {
		if t.Event == event && t.From == from {
			return t, true
		}
	}
	return Transition{}, false
}

// authorize checks the transition guard for actor against report
func (t Transition) authorize(report model.IncidentReport, actor model.Principal) error {
	if !slices.Contains(t.Roles, actor.Role) {
		return fmt.Errorf("%w: role %q cannot %s reports", ErrPermissionDenied, actor.Role, t.Event)
	}
	if t.CreatorOnly && report.CreatedBy != actor.Username {
		return fmt.Errorf("%w: only the creator can %s report %d", ErrPermissionDenied, t.Event, report.ID)
	}
	return nil
}

// Result is the outcome of applying an event
type Result struct {
	Report     model.IncidentReport
	From       model.State
	Transition Transition
}

// Machine applies lifecycle events to reports. It holds no per-report state
// and is safe for concurrent use.
type Machine struct {
	events fsm.Events
}

// NewMachine builds the executor for the lifecycle table
func NewMachine() *Machine {
	events := make(fsm.Events, 0, len(transitions))
	for _, t := range transitions {
		events = append(events, fsm.EventDesc{
			Name: string(t.Event),
			Src:  []string{string(t.From)},
			Dst:  string(t.To),
		})
	}
	return &Machine{events: events}
}

// Apply runs event against report on behalf of actor. The input report is not
// modified; the returned report carries the new state and the audit stamp.
func (m *Machine) Apply(report model.IncidentReport, event model.Event, actor model.Principal, at time.Time, reason string) (Result, error) {
	var guardErr error
	machine := fsm.NewFSM(string(report.State), m.events, fsm.Callbacks{
		"before_event": func(_ context.Context, e *fsm.Event) {
			t, ok := lookup(model.Event(e.Event), model.State(e.Src))
			if !ok {
				guardErr = fmt.Errorf("%w: cannot %s a report in state %q", ErrInvalidTransition, e.Event, e.Src)
				e.Cancel(guardErr)
				return
			}
			if err := t.authorize(report, actor); err != nil {
				guardErr = err
				e.Cancel(err)
			}
		},
	})

	if err := machine.Event(context.Background(), string(event)); err != nil {
		if guardErr != nil {
			return Result{}, guardErr
		}
		var invalid fsm.InvalidEventError
		var unknown fsm.UnknownEventError
		if errors.As(err, &invalid) || errors.As(err, &unknown) {
			return Result{}, fmt.Errorf("%w: cannot %s a report in state %q", ErrInvalidTransition, event, report.State)
		}
		return Result{}, fmt.Errorf("failed to apply %s: %w", event, err)
	}

	t, _ := lookup(event, report.State)
	next := report
	next.State = model.State(machine.Current())
	next.UpdatedAt = at
	t.stamp(&next, actor.Username, at, reason)

	return Result{Report: next, From: report.State, Transition: t}, nil
}

// EventFor maps a requested state change onto the event that performs it
func EventFor(from, to model.State) (model.Event, error) {
	for _, t := range transitions {
		if t.From == from && t.To == to {
			return t.Event, nil
		}
	}
	return "", fmt.Errorf("%w: no event moves a report from %q to %q", ErrInvalidTransition, from, to)
}
