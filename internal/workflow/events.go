package workflow

import (
	"context"
	"sync"
	"time"
)

// Event types emitted by Service.
const (
	EventTripCreated   = "trip.created"
	EventTripStarted   = "trip.started"
	EventTripCompleted = "trip.completed"
	EventDayVoting     = "day.voting"
	EventDayVote       = "day.vote"
	EventDayLocked     = "day.locked"
	EventDayLive       = "day.live"
)

type Event struct {
	ID     string    `json:"id"`
	Type   string    `json:"type"`
	TripID string    `json:"tripId"`
	DayID  string    `json:"dayId,omitempty"`
	At     time.Time `json:"ts"`
	Data   any       `json:"data,omitempty"`
}

// EventSink receives every lifecycle change and vote after it is stored.
// Publish must not block for long; sinks that do I/O should queue.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// Sinks fans an event out to several sinks.
type Sinks []EventSink

func (s Sinks) Publish(ctx context.Context, ev Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Publish(ctx, ev)
		}
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, ev)
}

func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.Type
	}
	return out
}

// keyedMutex serialises work per key (a day or trip id).
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*keyedEntry{}
	}
	e := k.locks[key]
	if e == nil {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
