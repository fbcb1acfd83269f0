package api

import (
    "context"
    "sync"
    "time"

    "tripplanner/internal/workflow"
)

type SSEEvent struct {
    Type string         `json:"type"`
    Data map[string]any `json:"data"`
}

// EventBroker fans stream events out to subscribers of a day or trip id.
type EventBroker interface {
    Subscribe(key string) chan SSEEvent
    Unsubscribe(key string, ch chan SSEEvent)
    Publish(key string, evt SSEEvent)
}

type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan SSEEvent]struct{} // key -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan SSEEvent]struct{}{}}
}

func (b *Broker) Subscribe(key string) chan SSEEvent {
    ch := make(chan SSEEvent, 8)
    b.mu.Lock()
    if b.subs[key] == nil { b.subs[key] = map[chan SSEEvent]struct{}{} }
    b.subs[key][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

// Unsubscribe closes ch; calling it twice for the same channel is a no-op.
func (b *Broker) Unsubscribe(key string, ch chan SSEEvent) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[key]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, key) }
    close(ch)
}

// Publish drops the event for subscribers whose buffer is full.
func (b *Broker) Publish(key string, evt SSEEvent) {
    b.mu.Lock()
    for ch := range b.subs[key] {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}

// Subscribers reports how many streams follow key.
func (b *Broker) Subscribers(key string) int {
    b.mu.Lock()
    defer b.mu.Unlock()
    return len(b.subs[key])
}

// BrokerSink forwards workflow events to stream subscribers. Day events go to
// the day's subscribers, trip events to the trip's.
type BrokerSink struct {
    Broker EventBroker
}

func (s BrokerSink) Publish(_ context.Context, ev workflow.Event) {
    if s.Broker == nil { return }
    data := map[string]any{"id": ev.ID, "tripId": ev.TripID, "ts": ev.At.UTC().Format(time.RFC3339)}
    if ev.DayID != "" { data["dayId"] = ev.DayID }
    if ev.Data != nil { data["data"] = ev.Data }
    key := ev.DayID
    if key == "" { key = ev.TripID }
    s.Broker.Publish(key, SSEEvent{Type: ev.Type, Data: data})
}
