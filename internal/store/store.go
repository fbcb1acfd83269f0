package store

import (
    "context"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "errors"
    "sort"
    "strings"
    "time"

    "tripplanner/internal/geo"
    "tripplanner/internal/model"
)

// Store is the persistence interface used by the API server and the workflow service.
type Store interface {
    // Trips
    CreateTrip(ctx context.Context, t model.Trip) (model.Trip, error)
    GetTrip(ctx context.Context, id string) (model.Trip, error)
    UpdateTrip(ctx context.Context, t model.Trip) error
    ListTrips(ctx context.Context, cursor string, limit int) ([]model.Trip, string, error)

    // Days
    CreateDays(ctx context.Context, days []model.Day) error
    GetDay(ctx context.Context, id string) (model.Day, error)
    UpdateDay(ctx context.Context, d model.Day) error
    ListDays(ctx context.Context, tripID string) ([]model.Day, error)

    // Places
    UpsertPlaces(ctx context.Context, ps []model.Place) (int, error)
    SearchPlaces(ctx context.Context, query string, limit int) ([]model.Place, error)
    NearbyPlaces(ctx context.Context, center model.GeoPoint, radiusKm float64, category string, limit int) ([]model.Place, error)

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, tripID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tripID, status string, limit int) ([]WebhookDelivery, error)

    Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

const (
    defaultPageSize = 50
    maxPageSize     = 500
)

func pageSize(limit int) int {
    if limit <= 0 || limit > maxPageSize { return defaultPageSize }
    return limit
}

// matchesQuery is the free-text match shared by every backend: a case-insensitive
// substring of city, zone, name or description. An empty query matches everything.
func matchesQuery(p model.Place, q string) bool {
    q = strings.ToLower(strings.TrimSpace(q))
    if q == "" { return true }
    for _, f := range []string{p.City, p.Zone, p.Name, p.Description} {
        if strings.Contains(strings.ToLower(f), q) { return true }
    }
    return false
}

// filterNearby keeps located places within radiusKm of center, optionally of one
// category, closest first.
func filterNearby(ps []model.Place, center model.GeoPoint, radiusKm float64, category string, limit int) []model.Place {
    category = strings.ToLower(strings.TrimSpace(category))
    type hit struct {
        p model.Place
        d float64
    }
    hits := []hit{}
    for _, p := range ps {
        if p.Location == nil { continue }
        if category != "" && p.Category != category { continue }
        d := geo.Distance(center, *p.Location)
        if radiusKm > 0 && d > radiusKm { continue }
        hits = append(hits, hit{p, d})
    }
    sort.SliceStable(hits, func(i, j int) bool { return hits[i].d < hits[j].d })
    if limit > 0 && len(hits) > limit { hits = hits[:limit] }
    out := make([]model.Place, len(hits))
    for i, h := range hits { out[i] = h.p }
    return out
}

// computeDedupKey identifies a payload for delivery dedup: its "id" field when
// present, else a short content hash.
func computeDedupKey(payload []byte) string {
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }
