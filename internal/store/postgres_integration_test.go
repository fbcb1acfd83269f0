//go:build postgres_integration

package store

import (
    "context"
    "os"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "tripplanner/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    ctx := context.Background()
    p, err := NewPostgres(dsn)
    require.NoError(t, err)
    require.NoError(t, p.Ping(ctx))
    require.NoError(t, p.Migrate(ctx))
    require.NoError(t, p.Migrate(ctx), "migrations are idempotent")

    trip, err := p.CreateTrip(ctx, model.Trip{Name: "it", State: model.TripDraft})
    require.NoError(t, err)
    got, err := p.GetTrip(ctx, trip.ID)
    require.NoError(t, err)
    assert.Equal(t, "it", got.Name)

    _, err = p.UpsertPlaces(ctx, []model.Place{{ID: "it-place", Name: "Integration Park", Category: "park", City: "Testville", Location: &model.GeoPoint{Lat: 10, Lng: 20}}})
    require.NoError(t, err)
    near, err := p.NearbyPlaces(ctx, model.GeoPoint{Lat: 10, Lng: 20}, 1, "park", 5)
    require.NoError(t, err)
    require.NotEmpty(t, near)
    assert.InDelta(t, 20, near[0].Location.Lng, 1e-9, "WKT geometry round-trips lng/lat")

    found, err := p.SearchPlaces(ctx, "testville", 10)
    require.NoError(t, err)
    assert.NotEmpty(t, found)
}
