// Package voting runs the plan in three steps: discovery of voting options
// without any geometry, resolution of a winner per slot, then routing and
// timing of the winners day by day.
package voting

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"tripplanner/internal/model"
	"tripplanner/internal/opt"
	"tripplanner/internal/schedule"
)

// OptionsPerSlot is how many options each slot offers.
const OptionsPerSlot = 3

// MaxDays bounds a single discovery.
const MaxDays = 30

// minPool is the number of places below which discovery adds filler ideas.
const minPool = 5

type DiscoverRequest struct {
	Days        int                `json:"days"`
	Places      []model.Place      `json:"places"`
	Categories  []string           `json:"categories,omitempty"`
	Priorities  map[string]int     `json:"priorities,omitempty"`
	Destination *model.Destination `json:"destination,omitempty"`
	// At dates the trending signal; zero means now.
	At time.Time `json:"at,omitempty"`
}

// Option is one place offered for a slot. Travel fields stay nil at this
// stage so distance cannot sway the vote.
type Option struct {
	Place          model.Place     `json:"place"`
	Slot           model.Slot      `json:"slot"`
	Category       string          `json:"category"`
	QualityScore   float64         `json:"qualityScore"`
	Trending       Trending        `json:"trending"`
	Preference     PreferenceMatch `json:"preference"`
	WhyRecommended string          `json:"whyRecommended"`
	TravelTimeMin  *int            `json:"travelTime"`
	DistanceKm     *float64        `json:"distanceKm"`
}

type DayBallot struct {
	Day   int                     `json:"day"`
	Slots map[model.Slot][]Option `json:"slots"`
}

type Ballot struct {
	Days         []DayBallot `json:"days"`
	TotalOptions int         `json:"totalOptions"`
	Categories   []string    `json:"categories,omitempty"`
}

// VotedDay holds the winners of one day with the slot they were voted into.
type VotedDay struct {
	Day   int                  `json:"day"`
	Picks []schedule.SlotPlace `json:"picks"`
}

type PlanRequest struct {
	Start            model.GeoPoint      `json:"start"`
	DayStart         time.Time           `json:"dayStart"` // first day's date and start time
	Mode             model.TransportMode `json:"transportMode,omitempty"`
	VisitDurationMin int                 `json:"visitDuration,omitempty"`
	ReturnToStart    bool                `json:"returnToStart,omitempty"`
	Days             []VotedDay          `json:"days"`
}

type DayPlan struct {
	Day          int                      `json:"day"`
	Start        model.GeoPoint           `json:"start"`
	Items        []model.ItineraryItem    `json:"items"`
	LateArrivals []schedule.SlotViolation `json:"lateArrivals,omitempty"`
	Skipped      []schedule.SkippedStop   `json:"skipped,omitempty"`
	Route        *model.OptimizedRoute    `json:"route,omitempty"`
}

// Coordinator ties discovery, resolution and routing together. Optimizer
// is optional; when set, each day's plan carries an optimized route
// summary of its stops.
type Coordinator struct {
	Optimizer *opt.Optimizer
	Now       func() time.Time
}

func NewCoordinator(o *opt.Optimizer) *Coordinator {
	return &Coordinator{Optimizer: o, Now: time.Now}
}

func (c *Coordinator) now() time.Time {
	if c == nil || c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Discover builds the voting options: for every day and slot, the three
// best places by OptionScore that suit the time of day and are not offered
// anywhere else in the trip.
func (c *Coordinator) Discover(req DiscoverRequest) (Ballot, error) {
	if req.Days < 1 || req.Days > MaxDays {
		return Ballot{}, model.Invalid("days", "must be between 1 and %d", MaxDays)
	}
	at := req.At
	if at.IsZero() {
		at = c.now()
	}
	pool := dedupe(req.Places)
	if len(pool) < minPool && req.Destination != nil && req.Destination.Location != nil {
		pool = append(pool, fillers(*req.Destination, minPool-len(pool))...)
	}

	scores := make(map[string]float64, len(pool))
	for _, p := range pool {
		scores[p.ID] = OptionScore(p, req.Categories, at)
	}

	used := map[string]bool{}
	b := Ballot{Categories: req.Categories}
	for d := 1; d <= req.Days; d++ {
		day := DayBallot{Day: d, Slots: map[model.Slot][]Option{}}
		for _, slot := range model.Slots {
			picks := pickForSlot(pool, slot, used, scores)
			opts := make([]Option, 0, len(picks))
			for _, p := range picks {
				used[p.ID] = true
				opts = append(opts, Option{
					Place:          p,
					Slot:           slot,
					Category:       p.Category,
					QualityScore:   CategoryScore(p, req.Categories),
					Trending:       TrendingScore(p, at),
					Preference:     PreferenceScore(p, req.Categories, req.Priorities),
					WhyRecommended: WhyRecommended(p, slot),
				})
			}
			day.Slots[slot] = opts
			b.TotalOptions += len(opts)
		}
		b.Days = append(b.Days, day)
	}
	return b, nil
}

func dedupe(ps []model.Place) []model.Place {
	seen := map[string]bool{}
	out := make([]model.Place, 0, len(ps))
	for _, p := range ps {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}

// pickForSlot takes the best scoring suitable places, then tops up from any
// remaining place the slot does not exclude. Equal scores keep pool order.
func pickForSlot(pool []model.Place, slot model.Slot, used map[string]bool, scores map[string]float64) []model.Place {
	var fit, rest []model.Place
	for _, p := range pool {
		switch {
		case used[p.ID]:
		case suitable(p, slot):
			fit = append(fit, p)
		case !excluded(p, slot):
			rest = append(rest, p)
		}
	}
	byScore := func(ps []model.Place) {
		sort.SliceStable(ps, func(i, j int) bool { return scores[ps[i].ID] > scores[ps[j].ID] })
	}
	byScore(fit)
	byScore(rest)
	out := append(fit, rest...)
	if len(out) > OptionsPerSlot {
		out = out[:OptionsPerSlot]
	}
	return out
}

// fillers are generic ideas at the destination for thin place pools.
func fillers(dest model.Destination, n int) []model.Place {
	ideas := []struct{ id, name, category, desc string }{
		{"local-dining", "Explore Local Cuisine", "food", "Try famous local dishes at a nearby rated restaurant."},
		{"evening-stroll", "Evening City Walk", "activity", "Take a leisure walk to soak in the city vibe."},
		{"shopping", "Souvenir Shopping", "shopping", "Pick up some memories from local markets."},
	}
	loc := *dest.Location
	out := make([]model.Place, 0, n)
	for i := 0; i < n; i++ {
		p := model.Place{
			Rating: 4.5, Reviews: 100, PriceLevel: 2, City: dest.Name, Location: &loc,
			Tags: []string{"Recommended"},
		}
		if i < len(ideas) {
			p.ID, p.Name, p.Category, p.Description = "suggestion-"+ideas[i].id, ideas[i].name, ideas[i].category, ideas[i].desc
		} else {
			p.ID = fmt.Sprintf("suggestion-explore-%d", i)
			p.Name, p.Category, p.Description = "Discover Hidden Gems", "activity", "Wander around and find unplanned spots."
		}
		out = append(out, p)
	}
	return out
}

// Resolve picks the option with the best 0.7*quality + 0.3*trending score,
// the same weighting OptionScore ranks discovery by. Ties go to the earliest
// option.
func Resolve(options []Option) (Option, bool) {
	if len(options) == 0 {
		return Option{}, false
	}
	best, bestScore := 0, -1.0
	for i, o := range options {
		s := 0.7*o.QualityScore + 0.3*o.Trending.Score
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	return options[best], true
}

// ResolveByVotes picks the candidate with the most up votes. Ties go to the
// earliest candidate.
func ResolveByVotes(cands []model.Candidate) (model.Candidate, bool) {
	if len(cands) == 0 {
		return model.Candidate{}, false
	}
	best := 0
	for i, c := range cands {
		if c.UpVotes() > cands[best].UpVotes() {
			best = i
		}
	}
	return cands[best], true
}

// ResolveBallot resolves every slot of every day automatically.
func ResolveBallot(b Ballot) []VotedDay {
	out := make([]VotedDay, 0, len(b.Days))
	for _, d := range b.Days {
		vd := VotedDay{Day: d.Day}
		for _, slot := range model.Slots {
			if w, ok := Resolve(d.Slots[slot]); ok {
				vd.Picks = append(vd.Picks, schedule.SlotPlace{Place: w.Place, Slot: slot})
			}
		}
		out = append(out, vd)
	}
	return out
}

// PlanRoutes orders and times each day's winners. Every day starts where the
// previous one ended; the return trip, if asked for, closes the last day.
func (c *Coordinator) PlanRoutes(ctx context.Context, req PlanRequest) ([]DayPlan, error) {
	if req.DayStart.IsZero() {
		return nil, model.Invalid("dayStart", "required")
	}
	days := append([]VotedDay(nil), req.Days...)
	sort.SliceStable(days, func(i, j int) bool { return days[i].Day < days[j].Day })

	out := make([]DayPlan, 0, len(days))
	cur := req.Start
	var lastEnd time.Time
	for i, d := range days {
		if d.Day < 1 {
			return nil, model.Invalid(fmt.Sprintf("days[%d].day", i), "must be >= 1")
		}
		var stops []schedule.SlotPlace
		var unplaced []schedule.SkippedStop
		for _, sp := range d.Picks {
			if sp.Place.Location == nil {
				unplaced = append(unplaced, schedule.SkippedStop{PlaceID: sp.Place.ID, Reason: "no coordinates"})
				continue
			}
			stops = append(stops, sp)
		}
		res, err := schedule.Schedule(schedule.Request{
			Start:            cur,
			StartTime:        req.DayStart.AddDate(0, 0, d.Day-1),
			Stops:            stops,
			Mode:             req.Mode,
			VisitDurationMin: req.VisitDurationMin,
		})
		if err != nil {
			return nil, fmt.Errorf("day %d: %w", d.Day, err)
		}
		plan := DayPlan{Day: d.Day, Start: cur, Items: res.Items, LateArrivals: res.LateArrivals, Skipped: append(unplaced, res.Skipped...)}
		if c != nil && c.Optimizer != nil && len(stops) > 0 {
			route, err := c.Optimizer.Optimize(ctx, cur, slotPlaces(stops), model.RoutePreferences{Mode: req.Mode, VisitDurationMin: req.VisitDurationMin})
			if err != nil {
				log.Printf("[voting] day %d route summary: %v", d.Day, err)
			} else {
				plan.Route = &route
			}
		}
		out = append(out, plan)
		cur, lastEnd = res.End, res.EndTime
	}

	if req.ReturnToStart && len(out) > 0 {
		last := &out[len(out)-1]
		if len(last.Items) > 0 {
			item, _ := schedule.ReturnLeg(cur, req.Start, lastEnd, req.Mode)
			last.Items = append(last.Items, item)
		}
	}
	return out, nil
}

func slotPlaces(sps []schedule.SlotPlace) []model.Place {
	out := make([]model.Place, len(sps))
	for i, sp := range sps {
		out[i] = sp.Place
	}
	return out
}

// PlanAllRequest is a discovery request plus routing settings.
type PlanAllRequest struct {
	Discover         DiscoverRequest     `json:"discover"`
	Start            model.GeoPoint      `json:"start"`
	DayStart         time.Time           `json:"dayStart"`
	Mode             model.TransportMode `json:"transportMode,omitempty"`
	VisitDurationMin int                 `json:"visitDuration,omitempty"`
	ReturnToStart    bool                `json:"returnToStart,omitempty"`
}

type PlanResult struct {
	Ballot Ballot     `json:"ballot"`
	Voted  []VotedDay `json:"voted"`
	Days   []DayPlan  `json:"days"`
}

// Plan runs discovery, automatic resolution and routing in one go.
func (c *Coordinator) Plan(ctx context.Context, req PlanAllRequest) (PlanResult, error) {
	b, err := c.Discover(req.Discover)
	if err != nil {
		return PlanResult{}, err
	}
	voted := ResolveBallot(b)
	days, err := c.PlanRoutes(ctx, PlanRequest{
		Start:            req.Start,
		DayStart:         req.DayStart,
		Mode:             req.Mode,
		VisitDurationMin: req.VisitDurationMin,
		ReturnToStart:    req.ReturnToStart,
		Days:             voted,
	})
	if err != nil {
		return PlanResult{}, err
	}
	return PlanResult{Ballot: b, Voted: voted, Days: days}, nil
}
