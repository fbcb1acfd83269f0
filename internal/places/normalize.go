// Package places turns place records from any source into model.Place and
// searches them by proximity.
package places

import (
	"fmt"
	"math"
	"strings"

	"tripplanner/internal/geo"
	"tripplanner/internal/model"
)

// RawPlace is a place as it arrives from a database row, a generated
// suggestion, a search result or an API request. Geometry may be hex WKB,
// WKT, a GeoJSON object or already a model.GeoPoint. Without Geometry,
// Location (the model.Place wire shape) is used, then Lat/Lng.
type RawPlace struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	Rating           float64         `json:"rating"`
	Reviews          int             `json:"reviews"`
	PriceLevel       int             `json:"priceLevel"`
	Tags             []string        `json:"tags"`
	Description      string          `json:"description"`
	City             string          `json:"city"`
	Zone             string          `json:"zone"`
	Geometry         any             `json:"geometry"`
	Location         *model.GeoPoint `json:"location"`
	Lat              *float64        `json:"lat"`
	Lng              *float64        `json:"lng"`
	OpensAt          string          `json:"opensAt"`
	ClosesAt         string          `json:"closesAt"`
	VisitDurationMin int             `json:"visitDurationMin"`
}

// Normalize validates and canonicalises r. A place whose geometry cannot be
// decoded is returned with a nil Location rather than rejected.
func Normalize(r RawPlace) (model.Place, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return model.Place{}, model.Invalid("name", "required")
	}
	p := model.Place{
		ID:               strings.TrimSpace(r.ID),
		Name:             name,
		Category:         strings.ToLower(strings.TrimSpace(r.Category)),
		Rating:           clampF(r.Rating, 0, 5),
		Reviews:          max(r.Reviews, 0),
		PriceLevel:       min(max(r.PriceLevel, 0), 4),
		Description:      strings.TrimSpace(r.Description),
		City:             strings.TrimSpace(r.City),
		Zone:             strings.TrimSpace(r.Zone),
		OpensAt:          hhmm(r.OpensAt),
		ClosesAt:         hhmm(r.ClosesAt),
		VisitDurationMin: max(r.VisitDurationMin, 0),
	}
	for _, t := range r.Tags {
		if t = strings.TrimSpace(t); t != "" {
			p.Tags = append(p.Tags, t)
		}
	}
	switch {
	case r.Geometry != nil:
		p.Location = geo.ParseLocation(r.Geometry)
	case r.Location != nil:
		p.Location = geo.ParseLocation(r.Location)
	case r.Lat != nil && r.Lng != nil:
		pt := model.GeoPoint{Lat: *r.Lat, Lng: *r.Lng}
		if geo.ValidPoint(pt) {
			p.Location = &pt
		}
	}
	return p, nil
}

// NormalizeAll normalizes every record, dropping (and reporting) the ones
// Normalize rejects.
func NormalizeAll(raws []RawPlace) ([]model.Place, []error) {
	out := make([]model.Place, 0, len(raws))
	var errs []error
	for i, r := range raws {
		p, err := Normalize(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("place %d: %w", i, err))
			continue
		}
		out = append(out, p)
	}
	return out, errs
}

func clampF(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

// hhmm keeps only well formed "HH:MM" values.
func hhmm(s string) string {
	s = strings.TrimSpace(s)
	var h, m int
	if len(s) != 5 {
		return ""
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil || h > 23 || m > 59 {
		return ""
	}
	return s
}
