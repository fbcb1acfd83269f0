package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripplanner/internal/workflow"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("d1")
	other := b.Subscribe("d2")

	b.Publish("d1", SSEEvent{Type: "test.event", Data: map[string]any{"x": 1}})
	select {
	case got := <-ch:
		assert.Equal(t, "test.event", got.Type)
		assert.Equal(t, 1, got.Data["x"])
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	assert.Empty(t, other)

	b.Unsubscribe("d1", ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.NotPanics(t, func() { b.Unsubscribe("d1", ch) })
	assert.Equal(t, 0, b.Subscribers("d1"))
	assert.Equal(t, 1, b.Subscribers("d2"))
}

func TestBrokerDropsWhenSubscriberIsSlow(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("d1")
	for i := 0; i < 20; i++ {
		b.Publish("d1", SSEEvent{Type: "tick"})
	}
	assert.Len(t, ch, cap(ch))
}

func TestBrokerSinkRoutesByDayThenTrip(t *testing.T) {
	b := NewBroker()
	day := b.Subscribe("day-1")
	trip := b.Subscribe("trip-1")
	sink := BrokerSink{Broker: b}
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	sink.Publish(context.Background(), workflow.Event{ID: "e1", Type: workflow.EventDayVote, TripID: "trip-1", DayID: "day-1", At: at, Data: map[string]any{"slot": "morning"}})
	sink.Publish(context.Background(), workflow.Event{ID: "e2", Type: workflow.EventTripStarted, TripID: "trip-1", At: at})

	got := <-day
	assert.Equal(t, workflow.EventDayVote, got.Type)
	assert.Equal(t, "day-1", got.Data["dayId"])
	assert.Equal(t, "2025-06-01T10:00:00Z", got.Data["ts"])
	require.Contains(t, got.Data, "data")

	got = <-trip
	assert.Equal(t, workflow.EventTripStarted, got.Type)
	assert.NotContains(t, got.Data, "dayId")
	assert.Empty(t, day)
}
