package models

import "time"

// PositionSource identifies which subsystem produced a position estimate.
type PositionSource string

const (
	PositionSourceGPS   PositionSource = "gps"
	PositionSourcePDR   PositionSource = "pdr"
	PositionSourceFused PositionSource = "fused"
)

// Valid returns true when the source is a supported value.
func (s PositionSource) Valid() bool {
	switch s {
	case PositionSourceGPS, PositionSourcePDR, PositionSourceFused:
		return true
	default:
		return false
	}
}

// Position is an immutable best-estimate location sample.
type Position struct {
	Latitude       float64        `json:"latitude"`
	Longitude      float64        `json:"longitude"`
	AccuracyMeters float64        `json:"accuracy_meters"`
	Timestamp      time.Time      `json:"timestamp"`
	Source         PositionSource `json:"source"`
}

// FusedPosition extends Position with fusion diagnostics.
type FusedPosition struct {
	Position
	Confidence float64 `json:"confidence"`
	GPSWeight  float64 `json:"gps_weight"`
	PDRWeight  float64 `json:"pdr_weight"`
}

// Vector3 is a raw three-axis sensor reading.
type Vector3 struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Timestamp time.Time `json:"timestamp"`
}

// RotationRate carries device rotation in rad/s. Axis naming follows the
// device convention: Alpha about Z, Beta about X, Gamma about Y.
type RotationRate struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// SensorSample is one sensor tick. Rotation and Magnetometer are nil when
// the active capability tier does not provide them; absence is explicit,
// never defaulted.
type SensorSample struct {
	Acceleration Vector3       `json:"acceleration"`
	Rotation     *RotationRate `json:"rotation,omitempty"`
	Magnetometer *Vector3      `json:"magnetometer,omitempty"`
}

// Displacement is a planar offset in meters relative to an anchor point.
// Dx is east, Dy is north.
type Displacement struct {
	Dx float64 `json:"dx"`
	Dy float64 `json:"dy"`
}

// PDRState snapshots the dead-reckoning accumulator.
type PDRState struct {
	StepCount          int          `json:"step_count"`
	HeadingRadians     float64      `json:"heading_radians"`
	StrideLengthMeters float64      `json:"stride_length_meters"`
	Displacement       Displacement `json:"displacement"`
	LastUpdatedAt      time.Time    `json:"last_updated_at"`
}
