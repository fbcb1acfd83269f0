package opt

import (
	"context"
	"time"

	"tripplanner/internal/geo"
	"tripplanner/internal/model"
)

// improveEps is the smallest gain (km) a 2-opt move must bring to be taken.
const improveEps = 1e-9

// NearestNeighbor orders nodes by repeatedly stepping to the closest unvisited
// node, starting from start. When prefer is non-nil it breaks exact distance
// ties in favour of the node with the higher preference.
func NearestNeighbor(start model.GeoPoint, nodes []model.GeoPoint, prefer []float64) []int {
	n := len(nodes)
	order := make([]int, 0, n)
	used := make([]bool, n)
	cur := start
	for len(order) < n {
		best := -1
		bestD := 0.0
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			d := geo.Distance(cur, nodes[i])
			switch {
			case best == -1 || d < bestD:
				best, bestD = i, d
			case d == bestD && prefer != nil && prefer[i] > prefer[best]:
				best = i
			}
		}
		used[best] = true
		order = append(order, best)
		cur = nodes[best]
	}
	return order
}

// Budget bounds a 2-opt run. Zero values mean no bound of that kind, except
// MaxPasses which falls back to 1.
type Budget struct {
	MaxPasses int
	Deadline  time.Time
}

// ImproveResult reports the outcome of ImproveOrder2Opt.
type ImproveResult struct {
	Order     []int
	Distance  float64
	Passes    int
	Converged bool
}

// ImproveOrder2Opt applies first-improvement 2-opt to the open path
// start -> nodes[order...]. When closed is set the leg back to start is part of
// the objective. The scan restarts after every accepted reversal; a pass ends
// either on an accepted move or on a full scan without one. The best order
// found so far is returned when the budget, the deadline or ctx runs out.
func ImproveOrder2Opt(ctx context.Context, start model.GeoPoint, nodes []model.GeoPoint, order []int, closed bool, b Budget) ImproveResult {
	if b.MaxPasses <= 0 {
		b.MaxPasses = 1
	}
	best := append([]int(nil), order...)
	res := ImproveResult{Order: best, Distance: tourDistance(start, nodes, best, closed)}
	n := len(best)
	if n < 2 {
		res.Converged = true
		return res
	}
	at := func(k int) model.GeoPoint {
		if k < 0 || k >= n {
			return start
		}
		return nodes[best[k]]
	}
	for res.Passes < b.MaxPasses {
		if ctx.Err() != nil || (!b.Deadline.IsZero() && time.Now().After(b.Deadline)) {
			return res
		}
		res.Passes++
		improved := false
	scan:
		for i := 0; i < n-1; i++ {
			prev := at(i - 1)
			for j := i + 1; j < n; j++ {
				oldD := geo.Distance(prev, at(i))
				newD := geo.Distance(prev, at(j))
				if j < n-1 || closed {
					next := at(j + 1)
					oldD += geo.Distance(at(j), next)
					newD += geo.Distance(at(i), next)
				}
				if newD+improveEps < oldD {
					reverse(best, i, j)
					res.Distance = tourDistance(start, nodes, best, closed)
					improved = true
					break scan
				}
			}
		}
		if !improved {
			res.Converged = true
			return res
		}
	}
	return res
}

func reverse(ord []int, i, j int) {
	for i < j {
		ord[i], ord[j] = ord[j], ord[i]
		i++
		j--
	}
}

func tourDistance(start model.GeoPoint, nodes []model.GeoPoint, order []int, closed bool) float64 {
	if len(order) == 0 {
		return 0
	}
	total := geo.Distance(start, nodes[order[0]])
	for i := 0; i+1 < len(order); i++ {
		total += geo.Distance(nodes[order[i]], nodes[order[i+1]])
	}
	if closed {
		total += geo.Distance(nodes[order[len(order)-1]], start)
	}
	return total
}
