// Package schedule turns a voted, slot-tagged set of places into a
// timestamped itinerary for one day.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"tripplanner/internal/geo"
	"tripplanner/internal/model"
)

// DefaultVisitDuration is the time spent at each stop, in minutes.
const DefaultVisitDuration = 90

// SlotPlace is a place together with the slot it was voted into. Slot may be
// empty when the place has no preference.
type SlotPlace struct {
	Place model.Place `json:"place"`
	Slot  model.Slot  `json:"slot,omitempty"`
}

type Request struct {
	Start            model.GeoPoint      `json:"start"`
	StartTime        time.Time           `json:"startTime"`
	Stops            []SlotPlace         `json:"stops"`
	Mode             model.TransportMode `json:"transportMode,omitempty"`
	VisitDurationMin int                 `json:"visitDuration,omitempty"`
	ReturnToStart    bool                `json:"returnToStart,omitempty"`
}

// SlotViolation records an arrival later than the end of its slot window.
type SlotViolation struct {
	PlaceID   string     `json:"placeId"`
	Slot      model.Slot `json:"slot"`
	Arrival   time.Time  `json:"arrival"`
	WindowEnd time.Time  `json:"windowEnd"`
	LateByMin int        `json:"lateByMin"`
}

type SkippedStop struct {
	PlaceID string `json:"placeId"`
	Reason  string `json:"reason"`
}

type Result struct {
	Items        []model.ItineraryItem `json:"items"`
	LateArrivals []SlotViolation       `json:"lateArrivals,omitempty"`
	Skipped      []SkippedStop         `json:"skipped,omitempty"`
	// End is where the day finishes, the last visited stop or the start after a return trip.
	End     model.GeoPoint `json:"end"`
	EndTime time.Time      `json:"endTime"`
}

// Windows returns the slot windows on the calendar date of day, in day's location.
func Windows(day time.Time) map[model.Slot]model.TimeSlotConstraint {
	at := func(h int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, day.Location())
	}
	return map[model.Slot]model.TimeSlotConstraint{
		model.SlotMorning:   {Slot: model.SlotMorning, Start: at(9), End: at(12)},
		model.SlotAfternoon: {Slot: model.SlotAfternoon, Start: at(12), End: at(17)},
		model.SlotEvening:   {Slot: model.SlotEvening, Start: at(17), End: at(21)},
	}
}

// Sequence picks the visiting order for a day's stops:
//   - up to two stops: nearest to start first
//   - exactly three: morning, afternoon, evening, then stops without a known slot
//   - more than three: unchanged
func Sequence(start model.GeoPoint, stops []SlotPlace) []SlotPlace {
	out := append([]SlotPlace(nil), stops...)
	switch {
	case len(out) <= 2:
		sort.SliceStable(out, func(i, j int) bool {
			return distFrom(start, out[i]) < distFrom(start, out[j])
		})
	case len(out) == 3:
		ordered := make([]SlotPlace, 0, 3)
		for _, s := range model.Slots {
			for _, sp := range stops {
				if sp.Slot == s {
					ordered = append(ordered, sp)
				}
			}
		}
		for _, sp := range stops {
			if !sp.Slot.Valid() {
				ordered = append(ordered, sp)
			}
		}
		out = ordered
	}
	return out
}

func distFrom(start model.GeoPoint, sp SlotPlace) float64 {
	if sp.Place.Location == nil {
		return 0
	}
	return geo.Distance(start, *sp.Place.Location)
}

// Schedule sequences req.Stops and stamps arrival and departure times.
// An arrival before the slot opens waits for it; a later arrival keeps its
// time and is listed in LateArrivals when it misses the slot entirely.
func Schedule(req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}
	mode := req.Mode
	if mode == "" {
		mode = model.ModeDriving
	}
	visit := req.VisitDurationMin
	if visit <= 0 {
		visit = DefaultVisitDuration
	}

	res := Result{Items: []model.ItineraryItem{}}
	clock := req.StartTime
	cur := req.Start
	for _, sp := range Sequence(req.Start, req.Stops) {
		km := geo.Distance(cur, *sp.Place.Location)
		travel := geo.TravelTime(km, mode)
		arrival := clock.Add(time.Duration(travel) * time.Minute)
		if w, ok := Windows(arrival)[sp.Slot]; ok {
			if arrival.Before(w.Start) {
				arrival = w.Start
			} else if arrival.After(w.End) {
				res.LateArrivals = append(res.LateArrivals, SlotViolation{
					PlaceID: sp.Place.ID, Slot: sp.Slot, Arrival: arrival, WindowEnd: w.End,
					LateByMin: int(arrival.Sub(w.End).Minutes()),
				})
			}
		}
		stay := visit
		if sp.Place.VisitDurationMin > 0 {
			stay = sp.Place.VisitDurationMin
		}
		departure := arrival.Add(time.Duration(stay) * time.Minute)
		if closes, ok := closingTime(sp.Place.ClosesAt, arrival); ok && departure.After(closes) {
			res.Skipped = append(res.Skipped, SkippedStop{PlaceID: sp.Place.ID, Reason: "closes at " + sp.Place.ClosesAt})
			continue
		}
		res.Items = append(res.Items, model.ItineraryItem{
			ID:        uuid.NewString(),
			PlaceID:   sp.Place.ID,
			StartTime: arrival.Format(time.RFC3339),
			EndTime:   departure.Format(time.RFC3339),
			Notes:     activityNote(km, travel, mode, sp.Slot),
			Type:      model.ItemActivity,
		})
		clock = departure
		cur = *sp.Place.Location
	}

	if req.ReturnToStart && len(res.Items) > 0 {
		var item model.ItineraryItem
		item, clock = ReturnLeg(cur, req.Start, clock, mode)
		res.Items = append(res.Items, item)
		cur = req.Start
	}
	res.End = cur
	res.EndTime = clock
	return res, nil
}

// ReturnLeg builds the closing trip from from back to home, departing at
// depart, and returns it with its arrival time.
func ReturnLeg(from, home model.GeoPoint, depart time.Time, mode model.TransportMode) (model.ItineraryItem, time.Time) {
	if mode == "" {
		mode = model.ModeDriving
	}
	km := geo.Distance(from, home)
	travel := geo.TravelTime(km, mode)
	end := depart.Add(time.Duration(travel) * time.Minute)
	return model.ItineraryItem{
		ID:        uuid.NewString(),
		PlaceID:   model.ReturnTripPlaceID,
		StartTime: depart.Format(time.RFC3339),
		EndTime:   end.Format(time.RFC3339),
		Notes:     fmt.Sprintf("Return to start: %.1fkm, %dmin by %s", km, travel, mode),
		Type:      model.ItemReturnTrip,
	}, end
}

func activityNote(km float64, travel int, mode model.TransportMode, slot model.Slot) string {
	note := fmt.Sprintf("%.1fkm, %dmin by %s", km, travel, mode)
	if slot.Valid() {
		note += ". Recommended for " + string(slot)
	}
	return note
}

// closingTime resolves an "HH:MM" closing time on the date of at.
func closingTime(hhmm string, at time.Time) (time.Time, bool) {
	if hhmm == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(at.Year(), at.Month(), at.Day(), t.Hour(), t.Minute(), 0, 0, at.Location()), true
}

func validate(req Request) error {
	if req.StartTime.IsZero() {
		return model.Invalid("startTime", "required")
	}
	if req.Mode != "" && !req.Mode.Valid() {
		return model.Invalid("transportMode", "unsupported mode %q", req.Mode)
	}
	if !geo.ValidPoint(req.Start) {
		return model.Invalid("start", "coordinates out of range")
	}
	for i, sp := range req.Stops {
		if sp.Place.ID == "" {
			return model.Invalid(fmt.Sprintf("stops[%d].place.id", i), "required")
		}
		if sp.Place.Location == nil || !geo.ValidPoint(*sp.Place.Location) {
			return model.Invalid(fmt.Sprintf("stops[%d].place.location", i), "missing or invalid coordinates")
		}
	}
	return nil
}
