package workflow

import (
	"tripplanner/internal/metrics"
	"tripplanner/internal/model"
)

// Rule is one row of a transition table.
type Rule[S, E ~string] struct {
	From  S
	Event E
	To    S
}

// Machine is a table-driven state machine. Transitions not in the table are
// rejected with *model.StateTransitionError.
type Machine[S, E ~string] struct {
	entity string
	table  map[S]map[E]S
}

func NewMachine[S, E ~string](entity string, rules ...Rule[S, E]) *Machine[S, E] {
	m := &Machine[S, E]{entity: entity, table: map[S]map[E]S{}}
	for _, r := range rules {
		if m.table[r.From] == nil {
			m.table[r.From] = map[E]S{}
		}
		m.table[r.From][r.Event] = r.To
	}
	return m
}

// Transition returns the state reached from `from` on ev.
func (m *Machine[S, E]) Transition(from S, ev E) (S, error) {
	to, ok := m.table[from][ev]
	if !ok {
		metrics.Transitions.WithLabelValues(m.entity, string(ev), "rejected").Inc()
		return from, &model.StateTransitionError{Entity: m.entity, From: string(from), Event: string(ev)}
	}
	metrics.Transitions.WithLabelValues(m.entity, string(ev), "ok").Inc()
	return to, nil
}

// Can reports whether ev is legal from `from` without recording anything.
func (m *Machine[S, E]) Can(from S, ev E) bool {
	_, ok := m.table[from][ev]
	return ok
}

// Events lists the events accepted in state s.
func (m *Machine[S, E]) Events(s S) []E {
	out := make([]E, 0, len(m.table[s]))
	for ev := range m.table[s] {
		out = append(out, ev)
	}
	return out
}

type TripEvent string

const (
	TripStart    TripEvent = "start"
	TripComplete TripEvent = "complete"
)

type DayEvent string

const (
	DayBeginVoting DayEvent = "begin_voting"
	DayFinalize    DayEvent = "finalize"
	DayActivate    DayEvent = "activate"
	// DayVote is checked against the table but never changes state.
	DayVote DayEvent = "vote"
)

// TripMachine: DRAFT -start-> ACTIVE -complete-> COMPLETED.
var TripMachine = NewMachine("trip",
	Rule[model.TripState, TripEvent]{model.TripDraft, TripStart, model.TripActive},
	Rule[model.TripState, TripEvent]{model.TripActive, TripComplete, model.TripCompleted},
)

// DayMachine: PENDING -begin_voting-> VOTING -finalize-> LOCKED -activate-> LIVE.
// A day can only go live once its route is locked.
var DayMachine = NewMachine("day",
	Rule[model.DayStatus, DayEvent]{model.DayPending, DayBeginVoting, model.DayVoting},
	Rule[model.DayStatus, DayEvent]{model.DayVoting, DayVote, model.DayVoting},
	Rule[model.DayStatus, DayEvent]{model.DayVoting, DayFinalize, model.DayLocked},
	Rule[model.DayStatus, DayEvent]{model.DayLocked, DayActivate, model.DayLive},
)
