package api

import (
	"strings"

	"tripplanner/internal/geo"
	"tripplanner/internal/model"
	"tripplanner/internal/places"
	"tripplanner/internal/schedule"
)

const (
	maxOptimizePlaces = 100
	maxScheduleStops  = 50
)

func validateOptimizeRequest(req *optimizeRequest) error {
	if len(req.Places) > maxOptimizePlaces {
		return model.Invalid("places", "at most %d places per request", maxOptimizePlaces)
	}
	if len(req.Key) > 128 {
		return model.Invalid("key", "must be at most 128 characters")
	}
	if req.Preferences.VisitDurationMin < 0 {
		return model.Invalid("preferences.visitDuration", "must be >= 0")
	}
	return nil
}

func validateScheduleRequest(req *schedule.Request) error {
	if len(req.Stops) > maxScheduleStops {
		return model.Invalid("stops", "at most %d stops per request", maxScheduleStops)
	}
	if req.StartTime.IsZero() {
		return model.Invalid("startTime", "required")
	}
	return nil
}

func validateSuggestionQuery(day int, destination string) error {
	if day < 1 {
		return model.Invalid("day", "must be >= 1")
	}
	if strings.TrimSpace(destination) == "" {
		return model.Invalid("destination", "required")
	}
	return nil
}

func validateNearbyRequest(req places.NearbyRequest) error {
	if !geo.ValidPoint(req.Location) {
		return model.Invalid("location", "lat must be in [-90,90] and lng in [-180,180]")
	}
	if req.RadiusMeters <= 0 || req.RadiusMeters > places.MaxRadiusMeters {
		return model.Invalid("radius", "must be in (0,%d]", places.MaxRadiusMeters)
	}
	if req.Limit < 0 {
		return model.Invalid("limit", "must be >= 0")
	}
	return nil
}
