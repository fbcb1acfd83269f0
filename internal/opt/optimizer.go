// Package opt builds visiting orders for a single day: nearest-neighbour
// construction followed by a budgeted 2-opt pass.
package opt

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"tripplanner/internal/geo"
	"tripplanner/internal/metrics"
	"tripplanner/internal/model"
)

const (
	DefaultMaxPasses     = 1000
	DefaultTimeBudget    = 250 * time.Millisecond
	DefaultVisitDuration = 60 // minutes
)

// Optimizer is safe for concurrent use; it holds configuration only.
type Optimizer struct {
	MaxPasses  int
	TimeBudget time.Duration
}

// New returns an Optimizer, substituting defaults for non-positive values.
func New(maxPasses int, budget time.Duration) *Optimizer {
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	if budget <= 0 {
		budget = DefaultTimeBudget
	}
	return &Optimizer{MaxPasses: maxPasses, TimeBudget: budget}
}

// Optimize orders places for a visit starting at start.
func (o *Optimizer) Optimize(ctx context.Context, start model.GeoPoint, places []model.Place, prefs model.RoutePreferences) (model.OptimizedRoute, error) {
	mode := prefs.Mode
	if mode == "" {
		mode = model.ModeDriving
	}
	if err := validate(start, places, mode, prefs.Priority); err != nil {
		metrics.OptimizerRuns.WithLabelValues(string(mode), "invalid").Inc()
		return model.OptimizedRoute{}, err
	}
	out := model.OptimizedRoute{
		Segments:       []model.RouteSegment{},
		OriginalOrder:  make([]string, 0, len(places)),
		OptimizedOrder: []string{},
	}
	for _, p := range places {
		out.OriginalOrder = append(out.OriginalOrder, p.ID)
	}
	if len(places) == 0 {
		out.EfficiencyScore = 100
		metrics.OptimizerRuns.WithLabelValues(string(mode), "empty").Inc()
		return out, nil
	}

	nodes := make([]model.GeoPoint, len(places))
	var prefer []float64
	if prefs.Priority == "rating" {
		prefer = make([]float64, len(places))
	}
	for i, p := range places {
		nodes[i] = *p.Location
		if prefer != nil {
			prefer[i] = p.Rating
		}
	}
	closed := prefs.ReturnToStart
	budget := Budget{MaxPasses: o.maxPasses()}
	if o.TimeBudget > 0 {
		budget.Deadline = time.Now().Add(o.TimeBudget)
	}

	identity := make([]int, len(places))
	for i := range identity {
		identity[i] = i
	}
	naive := tourDistance(start, nodes, identity, closed)

	res := ImproveOrder2Opt(ctx, start, nodes, NearestNeighbor(start, nodes, prefer), closed, budget)
	if res.Distance > naive+improveEps {
		// nearest-neighbour can lose to the input order; improve that one too
		alt := ImproveOrder2Opt(ctx, start, nodes, identity, closed, budget)
		alt.Passes += res.Passes
		res = alt
	}
	out.Passes = res.Passes
	out.BudgetExhausted = !res.Converged
	if out.BudgetExhausted {
		log.Printf("[optimizer] budget exhausted after %d passes over %d places", res.Passes, len(places))
	}

	visit := prefs.VisitDurationMin
	if visit <= 0 {
		visit = DefaultVisitDuration
	}
	cur, curID := start, model.StartID
	for _, idx := range res.Order {
		p := places[idx]
		d := geo.Distance(cur, nodes[idx])
		out.Segments = append(out.Segments, model.RouteSegment{
			FromID: curID, ToID: p.ID, DistanceKm: d, DurationMin: geo.TravelTime(d, mode), Mode: mode, Kind: model.SegmentVisit,
		})
		out.OptimizedOrder = append(out.OptimizedOrder, p.ID)
		stay := visit
		if p.VisitDurationMin > 0 {
			stay = p.VisitDurationMin
		}
		out.TotalDurationMin += stay
		cur, curID = nodes[idx], p.ID
	}
	if prefs.ReturnToStart {
		d := geo.Distance(cur, start)
		out.Segments = append(out.Segments, model.RouteSegment{
			FromID: curID, ToID: model.StartID, DistanceKm: d, DurationMin: geo.TravelTime(d, mode), Mode: mode, Kind: model.SegmentReturnTrip,
		})
		out.ReturnTripIncluded = true
	}
	for _, s := range out.Segments {
		out.TotalDistanceKm += s.DistanceKm
		out.TotalDurationMin += s.DurationMin
	}
	out.EfficiencyScore = efficiencyScore(naive, res.Distance)

	outcome := "converged"
	if out.BudgetExhausted {
		outcome = "budget_exhausted"
	}
	metrics.OptimizerRuns.WithLabelValues(string(mode), outcome).Inc()
	metrics.OptimizerPasses.Observe(float64(out.Passes))
	metrics.OptimizerEfficiency.Observe(float64(out.EfficiencyScore))
	return out, nil
}

func (o *Optimizer) maxPasses() int {
	if o == nil || o.MaxPasses <= 0 {
		return DefaultMaxPasses
	}
	return o.MaxPasses
}

// efficiencyScore compares the input order against the optimised one, capped at 100.
func efficiencyScore(naive, optimized float64) int {
	if optimized <= 0 {
		return 100
	}
	return int(math.Min(100, math.Round(naive/optimized*100)))
}

func validate(start model.GeoPoint, places []model.Place, mode model.TransportMode, priority string) error {
	if !mode.Valid() {
		return model.Invalid("transportMode", "unsupported mode %q", mode)
	}
	switch priority {
	case "", "distance", "rating":
	default:
		return model.Invalid("priority", "unsupported priority %q", priority)
	}
	if !geo.ValidPoint(start) {
		return model.Invalid("start", "coordinates out of range")
	}
	seen := make(map[string]struct{}, len(places))
	for i, p := range places {
		field := fmt.Sprintf("places[%d]", i)
		if p.ID == "" {
			return model.Invalid(field+".id", "required")
		}
		if _, dup := seen[p.ID]; dup {
			return model.Invalid(field+".id", "duplicate id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Location == nil || !geo.ValidPoint(*p.Location) {
			return model.Invalid(field+".location", "missing or invalid coordinates")
		}
	}
	return nil
}
