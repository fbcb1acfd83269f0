package places

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"tripplanner/internal/geo"
	"tripplanner/internal/metrics"
	"tripplanner/internal/model"
)

// MaxRadiusMeters caps every nearby search.
const MaxRadiusMeters = 50000

type NearbyRequest struct {
	Location     model.GeoPoint
	RadiusMeters int
	Category     string
	Limit        int
}

type Searcher interface {
	SearchNearby(ctx context.Context, req NearbyRequest) ([]model.Place, error)
}

// Source is the store side of a StoreSearcher.
type Source interface {
	NearbyPlaces(ctx context.Context, center model.GeoPoint, radiusKm float64, category string, limit int) ([]model.Place, error)
}

// StoreSearcher answers nearby searches from a place store.
type StoreSearcher struct {
	Source Source
}

func (s StoreSearcher) SearchNearby(ctx context.Context, req NearbyRequest) ([]model.Place, error) {
	req = clampRequest(req)
	got, err := s.Source.NearbyPlaces(ctx, req.Location, float64(req.RadiusMeters)/1000, req.Category, 0)
	if err != nil {
		return nil, err
	}
	return Rank(req.Location, got, req.Limit), nil
}

func clampRequest(req NearbyRequest) NearbyRequest {
	if req.RadiusMeters <= 0 || req.RadiusMeters > MaxRadiusMeters {
		req.RadiusMeters = MaxRadiusMeters
	}
	return req
}

// Rank orders places by rating, then review count, then distance from
// center, and keeps at most limit of them (all when limit <= 0). Places
// without a location sort after located ones with equal rating and reviews.
func Rank(center model.GeoPoint, ps []model.Place, limit int) []model.Place {
	out := append([]model.Place(nil), ps...)
	dist := func(p model.Place) float64 {
		if p.Location == nil {
			return 1e18
		}
		return geo.Distance(center, *p.Location)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.Reviews != b.Reviews {
			return a.Reviews > b.Reviews
		}
		return dist(a) < dist(b)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// LimitedSearcher throttles an upstream searcher and reports its failures
// as *model.ProviderError.
type LimitedSearcher struct {
	Next    Searcher
	Limiter *rate.Limiter
	Name    string
}

func NewLimitedSearcher(next Searcher, rps float64, burst int) *LimitedSearcher {
	if burst <= 0 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Inf, burst)
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &LimitedSearcher{Next: next, Limiter: lim, Name: "places"}
}

func (l *LimitedSearcher) SearchNearby(ctx context.Context, req NearbyRequest) ([]model.Place, error) {
	start := time.Now()
	if err := l.Limiter.Wait(ctx); err != nil {
		metrics.ProviderCalls.WithLabelValues(l.Name, "throttled").Inc()
		return nil, &model.ProviderError{Provider: l.Name, Op: "search_nearby", Err: err}
	}
	got, err := l.Next.SearchNearby(ctx, clampRequest(req))
	metrics.ProviderLatency.WithLabelValues(l.Name).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.ProviderCalls.WithLabelValues(l.Name, "error").Inc()
		var pe *model.ProviderError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, &model.ProviderError{Provider: l.Name, Op: "search_nearby", Err: err}
	}
	metrics.ProviderCalls.WithLabelValues(l.Name, "ok").Inc()
	return got, nil
}
