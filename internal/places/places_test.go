package places

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripplanner/internal/model"
)

func fp(v float64) *float64 { return &v }

func TestNormalize(t *testing.T) {
	p, err := Normalize(RawPlace{
		ID:         " p1 ",
		Name:       "  Lalbagh ",
		Category:   " Park",
		Rating:     7,
		Reviews:    -3,
		PriceLevel: 9,
		Tags:       []string{"green", " ", "quiet "},
		Geometry:   "POINT(77.5946 12.9716)",
		ClosesAt:   "18:30",
		OpensAt:    "6am",
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "Lalbagh", p.Name)
	assert.Equal(t, "park", p.Category)
	assert.Equal(t, 5.0, p.Rating)
	assert.Equal(t, 0, p.Reviews)
	assert.Equal(t, 4, p.PriceLevel)
	assert.Equal(t, []string{"green", "quiet"}, p.Tags)
	assert.Equal(t, "18:30", p.ClosesAt)
	assert.Empty(t, p.OpensAt)
	require.NotNil(t, p.Location)
	assert.InDelta(t, 12.9716, p.Location.Lat, 1e-9)
	assert.InDelta(t, 77.5946, p.Location.Lng, 1e-9)
}

func TestNormalize_LatLngAndBadGeometry(t *testing.T) {
	p, err := Normalize(RawPlace{Name: "a", Lat: fp(1), Lng: fp(2)})
	require.NoError(t, err)
	assert.Equal(t, &model.GeoPoint{Lat: 1, Lng: 2}, p.Location)

	p, err = Normalize(RawPlace{Name: "b", Geometry: "somewhere nice"})
	require.NoError(t, err, "bad geometry keeps the place")
	assert.Nil(t, p.Location)

	p, err = Normalize(RawPlace{Name: "c", Lat: fp(95), Lng: fp(0)})
	require.NoError(t, err)
	assert.Nil(t, p.Location)
}

func TestNormalize_RejectsMissingName(t *testing.T) {
	_, err := Normalize(RawPlace{ID: "x", Name: "   "})
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "name", ve.Field)

	got, errs := NormalizeAll([]RawPlace{{Name: "ok"}, {Name: ""}})
	assert.Len(t, got, 1)
	assert.Len(t, errs, 1)
}

func TestRank(t *testing.T) {
	center := model.GeoPoint{Lat: 0, Lng: 0}
	near := &model.GeoPoint{Lat: 0.01, Lng: 0}
	far := &model.GeoPoint{Lat: 0.2, Lng: 0}
	ps := []model.Place{
		{ID: "far", Rating: 4.5, Reviews: 100, Location: far},
		{ID: "near", Rating: 4.5, Reviews: 100, Location: near},
		{ID: "popular", Rating: 4.5, Reviews: 900, Location: far},
		{ID: "best", Rating: 4.9, Reviews: 10},
		{ID: "low", Rating: 3.0, Reviews: 5000, Location: near},
	}
	var ids []string
	for _, p := range Rank(center, ps, 4) {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"best", "popular", "near", "far"}, ids)
}

type fakeSource struct {
	radiusKm float64
	places   []model.Place
	err      error
}

func (f *fakeSource) NearbyPlaces(_ context.Context, _ model.GeoPoint, radiusKm float64, _ string, _ int) ([]model.Place, error) {
	f.radiusKm = radiusKm
	return f.places, f.err
}

func TestStoreSearcher_ClampsRadiusAndLimits(t *testing.T) {
	src := &fakeSource{places: []model.Place{{ID: "a", Rating: 1}, {ID: "b", Rating: 2}, {ID: "c", Rating: 3}}}
	got, err := StoreSearcher{Source: src}.SearchNearby(context.Background(), NearbyRequest{RadiusMeters: 900000, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 50.0, src.radiusKm)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
}

func TestLimitedSearcher_WrapsErrors(t *testing.T) {
	ls := NewLimitedSearcher(StoreSearcher{Source: &fakeSource{err: errors.New("db down")}}, 0, 1)
	_, err := ls.SearchNearby(context.Background(), NearbyRequest{})
	var pe *model.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "places", pe.Provider)
	assert.EqualError(t, pe.Err, "db down")
}

func TestLimitedSearcher_CancelledWait(t *testing.T) {
	ls := NewLimitedSearcher(StoreSearcher{Source: &fakeSource{}}, 0.001, 1)
	_, err := ls.SearchNearby(context.Background(), NearbyRequest{})
	require.NoError(t, err, "first call uses the burst")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ls.SearchNearby(ctx, NearbyRequest{})
	var pe *model.ProviderError
	assert.True(t, errors.As(err, &pe))
}
