// Package lifecycle validates and records lead status transitions.
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/leadgrid/prospector/internal/model"
)

// allowed is the fixed transition graph for non-privileged actors.
// DO_NOT_CONTACT is terminal: no outgoing edges.
var allowed = map[model.Status][]model.Status{
	model.StatusNew:           {model.StatusToContact, model.StatusDoNotContact},
	model.StatusToContact:     {model.StatusContacted, model.StatusDoNotContact},
	model.StatusContacted:     {model.StatusInterested, model.StatusNotInterested, model.StatusToFollowUp, model.StatusDoNotContact},
	model.StatusInterested:    {model.StatusToFollowUp, model.StatusClient, model.StatusNotInterested, model.StatusDoNotContact},
	model.StatusToFollowUp:    {model.StatusContacted, model.StatusInterested, model.StatusNotInterested, model.StatusDoNotContact},
	model.StatusNotInterested: {model.StatusLost, model.StatusToFollowUp, model.StatusDoNotContact},
	model.StatusClient:        {model.StatusDoNotContact},
	model.StatusLost:          {model.StatusToContact, model.StatusDoNotContact},
	model.StatusDoNotContact:  {},
}

// IllegalTransitionError is returned when a non-privileged actor requests a
// transition outside the current state's allowed set.
type IllegalTransitionError struct {
	From    model.Status
	To      model.Status
	Allowed []model.Status
}

func (e *IllegalTransitionError) Error() string {
	names := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		names[i] = string(s)
	}
	sort.Strings(names)
	return fmt.Sprintf("illegal transition %s -> %s (allowed: %s)",
		e.From, e.To, strings.Join(names, ", "))
}

// CanTransition reports whether from -> to is in the allowed graph.
func CanTransition(from, to model.Status) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedFrom returns the allowed target set for a status.
func AllowedFrom(from model.Status) []model.Status {
	out := make([]model.Status, len(allowed[from]))
	copy(out, allowed[from])
	return out
}

// Transition is the atomic record of one status change: lead status update,
// history entry and audit activity are written in a single transaction.
type Transition struct {
	LeadID string
	From   *model.Status // nil for the creation entry
	To     model.Status
	Reason string
	Actor  model.Actor
	OptOut bool // set the opt-out flag alongside the status
}

// TransitionStore persists a transition atomically.
type TransitionStore interface {
	RecordTransition(ctx context.Context, t Transition) error
}

// Machine applies lifecycle rules on top of a TransitionStore.
type Machine struct {
	store TransitionStore
}

// NewMachine creates a Machine.
func NewMachine(store TransitionStore) *Machine {
	return &Machine{store: store}
}

// Transition moves a lead to a new status. Privileged actors (admins and
// the system identity) may force any transition; everyone else is bound to
// the allowed graph. On success the in-memory lead reflects the change.
func (m *Machine) Transition(ctx context.Context, lead *model.Lead, to model.Status, reason string, actor model.Actor) error {
	if !to.Valid() {
		return eris.Errorf("lifecycle: unknown status %q", to)
	}
	if lead.Status == to {
		return eris.Errorf("lifecycle: lead %s already in status %s", lead.ID, to)
	}

	if !actor.Privileged() && !CanTransition(lead.Status, to) {
		return &IllegalTransitionError{
			From:    lead.Status,
			To:      to,
			Allowed: AllowedFrom(lead.Status),
		}
	}

	from := lead.Status
	t := Transition{
		LeadID: lead.ID,
		From:   &from,
		To:     to,
		Reason: reason,
		Actor:  actor,
		OptOut: to == model.StatusDoNotContact,
	}

	if err := m.store.RecordTransition(ctx, t); err != nil {
		return eris.Wrapf(err, "lifecycle: transition %s -> %s for lead %s", from, to, lead.ID)
	}

	lead.Status = to
	if t.OptOut {
		lead.OptedOut = true
	}
	return nil
}
