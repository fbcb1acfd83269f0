// Package geo holds the great-circle and travel-time estimates used by the
// optimizer, the day scheduler and candidate clustering.
package geo

import (
	"math"

	"tripplanner/internal/model"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Average speeds in km/h per transport mode.
var speeds = map[model.TransportMode]float64{
	model.ModeDriving: 50,
	model.ModeWalking: 5,
	model.ModeTransit: 30,
}

// Distance returns the haversine distance between a and b in kilometres.
func Distance(a, b model.GeoPoint) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// Speed returns the average speed for mode. Unknown modes fall back to driving.
func Speed(mode model.TransportMode) float64 {
	if v, ok := speeds[mode]; ok {
		return v
	}
	return speeds[model.ModeDriving]
}

// TravelTime estimates whole minutes needed to cover km with mode, rounded up.
func TravelTime(km float64, mode model.TransportMode) int {
	if km <= 0 {
		return 0
	}
	minutes := km / Speed(mode) * 60
	// snap to 1e-9 first so noise such as 31.000000000000004 stays 31
	return int(math.Ceil(math.Round(minutes*1e9) / 1e9))
}

// Centroid is the unweighted mean of points. ok is false for an empty set.
func Centroid(points []model.GeoPoint) (c model.GeoPoint, ok bool) {
	if len(points) == 0 {
		return model.GeoPoint{}, false
	}
	for _, p := range points {
		c.Lat += p.Lat
		c.Lng += p.Lng
	}
	n := float64(len(points))
	c.Lat /= n
	c.Lng /= n
	return c, true
}

// ValidPoint reports whether p lies inside the WGS84 coordinate ranges.
func ValidPoint(p model.GeoPoint) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// PathDistance sums leg distances along pts in order.
func PathDistance(pts []model.GeoPoint) float64 {
	total := 0.0
	for i := 0; i+1 < len(pts); i++ {
		total += Distance(pts[i], pts[i+1])
	}
	return total
}
