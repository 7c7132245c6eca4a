// Package geo provides the pure distance and containment math used by the
// geofence evaluator and the fusion engine.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for great-circle math.
const EarthRadiusMeters = 6371000.0

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Distance returns the great-circle distance between a and b in meters via
// the Haversine formula. Symmetric; zero for identical points.
func Distance(a, b Coordinate) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLng := radians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// WithinRadius reports whether point lies within radiusMeters of center.
// The boundary is inclusive.
func WithinRadius(center, point Coordinate, radiusMeters float64) bool {
	return Distance(center, point) <= radiusMeters
}

// Truncate rounds v to the given number of decimal digits, preserving sign.
// Six digits (~0.11 m of latitude) is the storage default.
func Truncate(v float64, digits int) float64 {
	if digits < 0 {
		digits = 0
	}
	scale := math.Pow(10, float64(digits))
	return math.Round(v*scale) / scale
}

// Offset moves c by dx meters east and dy meters north and returns the
// resulting coordinate. Accurate at the sub-kilometer scales the PDR
// displacement operates on.
func Offset(c Coordinate, dx, dy float64) Coordinate {
	dLat := dy / EarthRadiusMeters
	dLng := dx / (EarthRadiusMeters * math.Cos(radians(c.Latitude)))
	return Coordinate{
		Latitude:  c.Latitude + degrees(dLat),
		Longitude: c.Longitude + degrees(dLng),
	}
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
