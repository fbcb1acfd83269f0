package workflow

import (
	"context"
	"log"
	"sync"

	"tripplanner/internal/geo"
	"tripplanner/internal/model"
	"tripplanner/internal/places"
)

const (
	DefaultClusterRadius = 5000 // meters
	DefaultClusterLimit  = 5
)

// slotCategory is the place category searched for each slot, in search order.
var slotCategory = []struct {
	slot     model.Slot
	category string
}{
	{model.SlotMorning, "tourist_attraction"},
	{model.SlotAfternoon, "restaurant"},
	{model.SlotEvening, "night_club"},
}

// Clusterer builds a day's voting pool by sequential re-centring: morning
// candidates are searched near the destination, afternoon near the morning
// centroid, evening near the afternoon centroid.
type Clusterer struct {
	Searcher places.Searcher
	Vibe     VibeChecker
	Radius   int // meters
	Limit    int
}

func NewClusterer(s places.Searcher, vibe VibeChecker) *Clusterer {
	return &Clusterer{Searcher: s, Vibe: vibe, Radius: DefaultClusterRadius, Limit: DefaultClusterLimit}
}

// ClusterTrace records where each slot was searched.
type ClusterTrace struct {
	Centers map[model.Slot]model.GeoPoint
}

func (c *Clusterer) Generate(ctx context.Context, destination model.GeoPoint) (model.VotingPool, ClusterTrace, error) {
	var pool model.VotingPool
	trace := ClusterTrace{Centers: map[model.Slot]model.GeoPoint{}}
	radius, limit := c.Radius, c.Limit
	if radius <= 0 {
		radius = DefaultClusterRadius
	}
	if limit <= 0 {
		limit = DefaultClusterLimit
	}

	center := destination
	parent := ""
	for _, sc := range slotCategory {
		if err := ctx.Err(); err != nil {
			return pool, trace, err
		}
		trace.Centers[sc.slot] = center
		found, err := c.Searcher.SearchNearby(ctx, places.NearbyRequest{Location: center, RadiusMeters: radius, Category: sc.category, Limit: limit})
		if err != nil {
			log.Printf("[workflow] %s search near %.4f,%.4f failed: %v", sc.slot, center.Lat, center.Lng, err)
			found = nil
		}
		if len(found) > limit {
			found = found[:limit]
		}
		cands := make([]model.Candidate, len(found))
		for i, p := range found {
			cands[i] = model.Candidate{Place: p, ClusterSlot: sc.slot, ParentClusterID: parent, Votes: []model.Vote{}}
		}
		c.attachVibes(ctx, cands)
		pool.Set(sc.slot, cands)

		pts := make([]model.GeoPoint, 0, len(found))
		for _, p := range found {
			if p.Location != nil {
				pts = append(pts, *p.Location)
			}
		}
		// an empty slot keeps the previous centre
		if next, ok := geo.Centroid(pts); ok {
			center = next
		}
		parent = string(sc.slot) + "_centroid"
	}
	return pool, trace, nil
}

func (c *Clusterer) attachVibes(ctx context.Context, cands []model.Candidate) {
	var wg sync.WaitGroup
	for i := range cands {
		if c.Vibe == nil {
			v := NoVibe()
			cands[i].VibeCheck = &v
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Vibe.Check(ctx, cands[i].Place)
			if err != nil {
				v = NoVibe()
			}
			cands[i].VibeCheck = &v
		}(i)
	}
	wg.Wait()
}
