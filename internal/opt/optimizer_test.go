package opt

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripplanner/internal/geo"
	"tripplanner/internal/model"
)

var origin = model.GeoPoint{Lat: 15.4909, Lng: 73.8278}

func randomPlaces(rng *rand.Rand, n int) []model.Place {
	out := make([]model.Place, n)
	for i := range out {
		loc := model.GeoPoint{Lat: origin.Lat + rng.Float64()*0.4 - 0.2, Lng: origin.Lng + rng.Float64()*0.4 - 0.2}
		out[i] = model.Place{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Place %d", i), Location: &loc}
	}
	return out
}

func routePoints(start model.GeoPoint, byID map[string]model.Place, order []string) []model.GeoPoint {
	pts := []model.GeoPoint{start}
	for _, id := range order {
		pts = append(pts, *byID[id].Location)
	}
	return pts
}

func TestOptimize_NeverWorseThanInputOrder(t *testing.T) {
	o := New(100000, 5*time.Second)
	rng := rand.New(rand.NewSource(7))
	for c := 0; c < 60; c++ {
		places := randomPlaces(rng, 2+rng.Intn(12))
		for _, back := range []bool{false, true} {
			r, err := o.Optimize(context.Background(), origin, places, model.RoutePreferences{Mode: model.ModeDriving, ReturnToStart: back})
			require.NoError(t, err)

			naive := []model.GeoPoint{origin}
			for _, p := range places {
				naive = append(naive, *p.Location)
			}
			if back {
				naive = append(naive, origin)
			}
			assert.LessOrEqual(t, r.TotalDistanceKm, geo.PathDistance(naive)+1e-9, "case %d back=%v", c, back)
			assert.Len(t, r.OptimizedOrder, len(places))
			assert.ElementsMatch(t, r.OriginalOrder, r.OptimizedOrder)
		}
	}
}

func TestOptimize_ResultIsTwoOptLocalOptimum(t *testing.T) {
	o := New(100000, 5*time.Second)
	rng := rand.New(rand.NewSource(42))
	for c := 0; c < 40; c++ {
		places := randomPlaces(rng, 3+rng.Intn(10))
		byID := map[string]model.Place{}
		for _, p := range places {
			byID[p.ID] = p
		}
		r, err := o.Optimize(context.Background(), origin, places, model.RoutePreferences{})
		require.NoError(t, err)
		require.False(t, r.BudgetExhausted)

		best := geo.PathDistance(routePoints(origin, byID, r.OptimizedOrder))
		n := len(r.OptimizedOrder)
		for i := 0; i < n-1; i++ {
			for j := i + 1; j < n; j++ {
				alt := append([]string(nil), r.OptimizedOrder...)
				for a, b := i, j; a < b; a, b = a+1, b-1 {
					alt[a], alt[b] = alt[b], alt[a]
				}
				d := geo.PathDistance(routePoints(origin, byID, alt))
				assert.GreaterOrEqual(t, d, best-1e-6, "reversal %d..%d improves case %d", i, j, c)
			}
		}
	}
}

func TestOptimize_EmptyInput(t *testing.T) {
	r, err := New(0, 0).Optimize(context.Background(), origin, nil, model.RoutePreferences{})
	require.NoError(t, err)
	assert.Empty(t, r.Segments)
	assert.Equal(t, 0.0, r.TotalDistanceKm)
	assert.Equal(t, 100, r.EfficiencyScore)
}

func TestOptimize_SinglePlace(t *testing.T) {
	loc := model.GeoPoint{Lat: origin.Lat + 0.09, Lng: origin.Lng}
	places := []model.Place{{ID: "a", Location: &loc}}
	r, err := New(0, 0).Optimize(context.Background(), origin, places, model.RoutePreferences{Mode: model.ModeDriving, VisitDurationMin: 30})
	require.NoError(t, err)
	require.Len(t, r.Segments, 1)
	seg := r.Segments[0]
	assert.Equal(t, model.StartID, seg.FromID)
	assert.Equal(t, "a", seg.ToID)
	assert.InDelta(t, 10.0, seg.DistanceKm, 0.05)
	assert.Equal(t, 13, seg.DurationMin)
	assert.Equal(t, 13+30, r.TotalDurationMin)
	assert.Equal(t, 100, r.EfficiencyScore)
}

func TestOptimize_ReturnLegAppended(t *testing.T) {
	a := model.GeoPoint{Lat: origin.Lat + 0.05, Lng: origin.Lng}
	b := model.GeoPoint{Lat: origin.Lat + 0.10, Lng: origin.Lng}
	places := []model.Place{{ID: "far", Location: &b}, {ID: "near", Location: &a}}
	r, err := New(0, 0).Optimize(context.Background(), origin, places, model.RoutePreferences{Mode: model.ModeWalking, ReturnToStart: true})
	require.NoError(t, err)
	require.Len(t, r.Segments, 3)
	last := r.Segments[2]
	assert.Equal(t, model.SegmentReturnTrip, last.Kind)
	assert.Equal(t, model.StartID, last.ToID)
	assert.True(t, r.ReturnTripIncluded)
	assert.Equal(t, []string{"far", "near"}, r.OriginalOrder)
	assert.Len(t, r.OptimizedOrder, 2)
}

func TestOptimize_NearestFirstOnALine(t *testing.T) {
	var places []model.Place
	for _, k := range []int{4, 1, 3, 2} {
		loc := model.GeoPoint{Lat: origin.Lat + float64(k)*0.01, Lng: origin.Lng}
		places = append(places, model.Place{ID: fmt.Sprintf("k%d", k), Location: &loc})
	}
	r, err := New(0, 0).Optimize(context.Background(), origin, places, model.RoutePreferences{})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2", "k3", "k4"}, r.OptimizedOrder)
	assert.Equal(t, 100, r.EfficiencyScore)
}

func TestOptimize_Validation(t *testing.T) {
	ok := model.GeoPoint{Lat: 1, Lng: 1}
	cases := map[string]struct {
		places []model.Place
		prefs  model.RoutePreferences
	}{
		"missing location": {places: []model.Place{{ID: "a"}}},
		"duplicate id":     {places: []model.Place{{ID: "a", Location: &ok}, {ID: "a", Location: &ok}}},
		"bad mode":         {places: []model.Place{{ID: "a", Location: &ok}}, prefs: model.RoutePreferences{Mode: "boat"}},
		"bad priority":     {places: []model.Place{{ID: "a", Location: &ok}}, prefs: model.RoutePreferences{Priority: "vibes"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(0, 0).Optimize(context.Background(), origin, tc.places, tc.prefs)
			var ve *model.ValidationError
			require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
		})
	}
}

func TestImproveOrder2Opt_StopsOnCancelledContext(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	places := randomPlaces(rng, 8)
	nodes := make([]model.GeoPoint, len(places))
	order := make([]int, len(places))
	for i, p := range places {
		nodes[i] = *p.Location
		order[i] = i
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := ImproveOrder2Opt(ctx, origin, nodes, order, false, Budget{MaxPasses: 100})
	assert.False(t, res.Converged)
	assert.Equal(t, 0, res.Passes)
	assert.Equal(t, order, res.Order)
}

func TestImproveOrder2Opt_PassBudget(t *testing.T) {
	// reversed line: every pass finds an improving move
	var nodes []model.GeoPoint
	var order []int
	for i := 0; i < 10; i++ {
		nodes = append(nodes, model.GeoPoint{Lat: origin.Lat + float64(i+1)*0.01, Lng: origin.Lng + float64(i%2)*0.001})
		order = append([]int{i}, order...)
	}
	before := tourDistance(origin, nodes, order, false)
	res := ImproveOrder2Opt(context.Background(), origin, nodes, order, false, Budget{MaxPasses: 1})
	assert.Equal(t, 1, res.Passes)
	assert.False(t, res.Converged)
	assert.Less(t, res.Distance, before)
}

func TestRecordRunKeepsLatestPerKey(t *testing.T) {
	RecordRun(RunStats{Key: "trip-1/day-1", Passes: 3, At: time.Now().Add(-time.Minute)})
	RecordRun(RunStats{Key: "trip-1/day-1", Passes: 5, At: time.Now()})
	found := 0
	for _, r := range Runs() {
		if r.Key == "trip-1/day-1" {
			found++
			assert.Equal(t, 5, r.Passes)
		}
	}
	assert.Equal(t, 1, found)
}
