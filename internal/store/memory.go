package store

import (
    "context"
    "slices"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"

    "tripplanner/internal/model"
)

// Memory is a simple in-memory store used when neither DATABASE_URL nor MONGO_URL is set.
type Memory struct {
    mu        sync.Mutex
    trips     map[string]model.Trip     // id -> trip
    tripOrder []string                  // creation order
    days      map[string]model.Day      // id -> day
    places    map[string]model.Place    // id -> place
    placeIDs  []string                  // insertion order
    // Webhooks queue state
    deliveries map[string]*WebhookDelivery // id -> delivery state
    order      []string                    // enqueue order
    dlq        []WebhookDelivery           // dead-lettered deliveries
    now        func() time.Time
}

func NewMemory() *Memory {
    return &Memory{
        trips:      map[string]model.Trip{},
        days:       map[string]model.Day{},
        places:     map[string]model.Place{},
        deliveries: map[string]*WebhookDelivery{},
        now:        time.Now,
    }
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) CreateTrip(ctx context.Context, t model.Trip) (model.Trip, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if t.ID == "" { t.ID = uuid.NewString() }
    if t.CreatedAt.IsZero() { t.CreatedAt = m.now().UTC() }
    if _, ok := m.trips[t.ID]; !ok { m.tripOrder = append(m.tripOrder, t.ID) }
    m.trips[t.ID] = cloneTrip(t)
    return cloneTrip(t), nil
}

func (m *Memory) GetTrip(ctx context.Context, id string) (model.Trip, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    t, ok := m.trips[id]
    if !ok { return model.Trip{}, ErrNotFound }
    return cloneTrip(t), nil
}

func (m *Memory) UpdateTrip(ctx context.Context, t model.Trip) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.trips[t.ID]; !ok { return ErrNotFound }
    m.trips[t.ID] = cloneTrip(t)
    return nil
}

func (m *Memory) ListTrips(ctx context.Context, cursor string, limit int) ([]model.Trip, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = pageSize(limit)
    start := 0
    if cursor != "" {
        for i, id := range m.tripOrder {
            if id == cursor { start = i + 1; break }
        }
    }
    out := []model.Trip{}
    next := ""
    for i := start; i < len(m.tripOrder); i++ {
        if len(out) == limit { next = out[len(out)-1].ID; break }
        out = append(out, cloneTrip(m.trips[m.tripOrder[i]]))
    }
    return out, next, nil
}

func (m *Memory) CreateDays(ctx context.Context, days []model.Day) error {
    m.mu.Lock(); defer m.mu.Unlock()
    for _, d := range days {
        if d.UpdatedAt.IsZero() { d.UpdatedAt = m.now().UTC() }
        m.days[d.ID] = cloneDay(d)
    }
    return nil
}

func (m *Memory) GetDay(ctx context.Context, id string) (model.Day, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    d, ok := m.days[id]
    if !ok { return model.Day{}, ErrNotFound }
    return cloneDay(d), nil
}

func (m *Memory) UpdateDay(ctx context.Context, d model.Day) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.days[d.ID]; !ok { return ErrNotFound }
    m.days[d.ID] = cloneDay(d)
    return nil
}

func (m *Memory) ListDays(ctx context.Context, tripID string) ([]model.Day, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Day{}
    for _, d := range m.days {
        if d.TripID == tripID { out = append(out, cloneDay(d)) }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
    return out, nil
}

func (m *Memory) UpsertPlaces(ctx context.Context, ps []model.Place) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    n := 0
    for _, p := range ps {
        if p.ID == "" { continue }
        if _, ok := m.places[p.ID]; !ok { m.placeIDs = append(m.placeIDs, p.ID) }
        m.places[p.ID] = p
        n++
    }
    return n, nil
}

func (m *Memory) allPlaces() []model.Place {
    out := make([]model.Place, 0, len(m.placeIDs))
    for _, id := range m.placeIDs { out = append(out, m.places[id]) }
    return out
}

func (m *Memory) SearchPlaces(ctx context.Context, query string, limit int) ([]model.Place, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = pageSize(limit)
    out := []model.Place{}
    for _, p := range m.allPlaces() {
        if !matchesQuery(p, query) { continue }
        out = append(out, p)
        if len(out) == limit { break }
    }
    return out, nil
}

func (m *Memory) NearbyPlaces(ctx context.Context, center model.GeoPoint, radiusKm float64, category string, limit int) ([]model.Place, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    return filterNearby(m.allPlaces(), center, radiusKm, category, limit), nil
}

// Webhook deliveries

func (m *Memory) EnqueueWebhook(ctx context.Context, tripID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    dk := computeDedupKey(payload)
    for _, id := range m.order {
        d := m.deliveries[id]
        if d.EventType == eventType && d.URL == url && d.DedupKey == dk { return d.ID, nil }
    }
    id := uuid.NewString()
    m.deliveries[id] = &WebhookDelivery{
        ID: id, TripID: tripID, EventType: eventType, URL: url, Secret: secret,
        Payload: append([]byte(nil), payload...), Status: DeliveryPending,
        NextAttemptAt: m.now(), DedupKey: dk,
    }
    m.order = append(m.order, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := m.now()
    out := []WebhookDelivery{}
    for _, id := range m.order {
        d := m.deliveries[id]
        if d.due(now) {
            out = append(out, *d)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    sort.SliceStable(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = DeliveryDelivered
        now := m.now()
        d.DeliveredAt = &now
        return nil
    }
    d.Status = DeliveryRetry
    d.LastError = lastError
    if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = m.now().Add(1 * time.Minute) }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.Status = DeliveryFailed
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    m.dlq = append(m.dlq, *d)
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tripID, status string, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    limit = pageSize(limit)
    out := []WebhookDelivery{}
    for _, id := range m.order {
        d := m.deliveries[id]
        if tripID != "" && d.TripID != tripID { continue }
        if status != "" && d.Status != status { continue }
        out = append(out, *d)
        if len(out) == limit { break }
    }
    return out, nil
}

// DeadLetters returns the deliveries that exhausted their attempts.
func (m *Memory) DeadLetters() []WebhookDelivery {
    m.mu.Lock(); defer m.mu.Unlock()
    return append([]WebhookDelivery(nil), m.dlq...)
}

func cloneTrip(t model.Trip) model.Trip {
    t.Members = slices.Clone(t.Members)
    t.Days = slices.Clone(t.Days)
    if t.Destination.Location != nil {
        loc := *t.Destination.Location
        t.Destination.Location = &loc
    }
    return t
}

func cloneDay(d model.Day) model.Day {
    for _, slot := range model.Slots {
        d.VotingPool.Set(slot, cloneCandidates(d.VotingPool.Get(slot)))
    }
    d.FinalRoute.Stops = cloneCandidates(d.FinalRoute.Stops)
    d.FinalRoute.Transport = slices.Clone(d.FinalRoute.Transport)
    return d
}

func cloneCandidates(cs []model.Candidate) []model.Candidate {
    if cs == nil { return nil }
    out := make([]model.Candidate, len(cs))
    for i, c := range cs {
        c.Votes = slices.Clone(c.Votes)
        c.Tags = slices.Clone(c.Tags)
        if c.VibeCheck != nil {
            v := *c.VibeCheck
            v.Tags = slices.Clone(v.Tags)
            c.VibeCheck = &v
        }
        out[i] = c
    }
    return out
}
