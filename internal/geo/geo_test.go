package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceIdenticalPoints(t *testing.T) {
	p := Coordinate{Latitude: 37.4607, Longitude: 126.9524}
	assert.Zero(t, Distance(p, p))
}

func TestDistanceSymmetric(t *testing.T) {
	a := Coordinate{Latitude: 37.4607, Longitude: 126.9524}
	b := Coordinate{Latitude: 37.4700, Longitude: 126.9600}
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
}

func TestDistanceOneDegreeLatitude(t *testing.T) {
	a := Coordinate{Latitude: 37.0, Longitude: 126.95}
	b := Coordinate{Latitude: 38.0, Longitude: 126.95}
	assert.InDelta(t, 111000, Distance(a, b), 1000)
}

func TestWithinRadiusBoundaryInclusive(t *testing.T) {
	center := Coordinate{Latitude: 37.4607, Longitude: 126.9524}
	point := Offset(center, 0, 100)
	d := Distance(center, point)
	// Offset is approximate at the meter level; test against the actual
	// distance so the boundary case is exact.
	assert.True(t, WithinRadius(center, point, d))
	assert.False(t, WithinRadius(center, point, d-0.001))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, 37.460712, Truncate(37.46071249, 6))
	assert.Equal(t, -126.952401, Truncate(-126.95240149, 6))
	assert.Equal(t, 37.0, Truncate(37.4, 0))
}

func TestTruncatePreservesSign(t *testing.T) {
	assert.Negative(t, Truncate(-0.0000015, 6))
	assert.Positive(t, Truncate(0.0000015, 6))
}

func TestOffsetRoundTrip(t *testing.T) {
	origin := Coordinate{Latitude: 37.4607, Longitude: 126.9524}
	moved := Offset(origin, 30, 40)
	assert.InDelta(t, 50, Distance(origin, moved), 0.5)
}
