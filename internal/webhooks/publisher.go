package webhooks

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"tripplanner/internal/store"
	"tripplanner/internal/workflow"
)

// Publisher queues one signed delivery per configured URL for every
// workflow event. It satisfies workflow.EventSink.
type Publisher struct {
	Store  store.Store
	URLs   []string
	Secret string
}

func NewPublisher(s store.Store, urls []string, secret string) *Publisher {
	return &Publisher{Store: s, URLs: urls, Secret: secret}
}

func (p *Publisher) Publish(ctx context.Context, ev workflow.Event) {
	if p == nil || len(p.URLs) == 0 {
		return
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	payload := map[string]any{
		"id":     ev.ID,
		"type":   ev.Type,
		"tripId": ev.TripID,
		"ts":     at.UTC().Format(time.RFC3339),
		"data":   ev.Data,
	}
	if ev.DayID != "" {
		payload["dayId"] = ev.DayID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[webhooks] encode %s: %v", ev.Type, err)
		return
	}
	for _, url := range p.URLs {
		if _, err := p.Store.EnqueueWebhook(ctx, ev.TripID, ev.Type, url, p.Secret, body); err != nil {
			log.Printf("[webhooks] enqueue %s for %s: %v", ev.Type, url, err)
		}
	}
}
