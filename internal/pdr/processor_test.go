package pdr

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/presence-api/internal/models"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func accelSample(magnitude float64, at time.Time) models.SensorSample {
	return models.SensorSample{Acceleration: models.Vector3{Z: magnitude, Timestamp: at}}
}

// walk feeds one peak-then-trough cycle starting at the given time.
func walk(p *Processor, at time.Time) bool {
	p.Process(accelSample(12.0, at))
	return p.Process(accelSample(8.0, at.Add(150*time.Millisecond)))
}

func TestStepDetectionPeakThenTrough(t *testing.T) {
	p := NewProcessor(Config{})
	assert.False(t, p.Process(accelSample(9.81, t0)))
	assert.False(t, p.Process(accelSample(12.0, t0.Add(50*time.Millisecond))))
	assert.True(t, p.Process(accelSample(8.0, t0.Add(200*time.Millisecond))))
	assert.Equal(t, 1, p.StepCount())
}

func TestStepDebounceRejectsDoubleCount(t *testing.T) {
	p := NewProcessor(Config{MinStepInterval: 300 * time.Millisecond})
	assert.True(t, walk(p, t0))
	// Second peak/trough well inside the debounce window.
	p.Process(accelSample(12.0, t0.Add(200*time.Millisecond)))
	assert.False(t, p.Process(accelSample(8.0, t0.Add(250*time.Millisecond))))
	assert.Equal(t, 1, p.StepCount())

	assert.True(t, walk(p, t0.Add(time.Second)))
	assert.Equal(t, 2, p.StepCount())
}

func TestStrideDerivedFromHeight(t *testing.T) {
	short := NewProcessor(Config{UserHeightCm: 150})
	tall := NewProcessor(Config{UserHeightCm: 190})
	assert.InDelta(t, 0.6225, short.State().StrideLengthMeters, 1e-9)
	assert.InDelta(t, 0.7885, tall.State().StrideLengthMeters, 1e-9)
}

func TestDisplacementFollowsHeading(t *testing.T) {
	p := NewProcessor(Config{UserHeightCm: 170})
	// Heading zero: every step moves north (positive Dy).
	walk(p, t0)
	walk(p, t0.Add(time.Second))
	d := p.Displacement()
	assert.InDelta(t, 0, d.Dx, 1e-9)
	assert.InDelta(t, 2*0.7055, d.Dy, 1e-6)
}

func TestHeadingIntegratesRotationAndWraps(t *testing.T) {
	p := NewProcessor(Config{})
	rate := 3.0 // rad/s about the vertical axis
	at := t0
	p.Process(accelSample(9.81, at))
	for i := 0; i < 12; i++ {
		at = at.Add(100 * time.Millisecond)
		p.Process(models.SensorSample{
			Acceleration: models.Vector3{Z: 9.81, Timestamp: at},
			Rotation:     &models.RotationRate{Alpha: rate},
		})
	}
	// 1.2 s at 3 rad/s = 3.6 rad, which wraps past +π.
	h := p.State().HeadingRadians
	assert.InDelta(t, 3.6-2*math.Pi, h, 1e-6)
	assert.LessOrEqual(t, h, math.Pi)
	assert.Greater(t, h, -math.Pi)
}

func TestMagnetometerCorrectsHeading(t *testing.T) {
	p := NewProcessor(Config{})
	// Magnetometer pointing so that magnetic heading is π/2.
	sample := models.SensorSample{
		Acceleration: models.Vector3{Z: 9.81, Timestamp: t0},
		Magnetometer: &models.Vector3{X: 0, Y: -1, Timestamp: t0},
	}
	p.Process(sample)
	assert.InDelta(t, magnetometerBlend*math.Pi/2, p.State().HeadingRadians, 1e-9)
}

func TestResetClearsDisplacementKeepsHeading(t *testing.T) {
	p := NewProcessor(Config{})
	p.Process(models.SensorSample{
		Acceleration: models.Vector3{Z: 9.81, Timestamp: t0},
		Magnetometer: &models.Vector3{X: 0, Y: -1, Timestamp: t0},
	})
	walk(p, t0.Add(time.Second))
	heading := p.State().HeadingRadians

	p.Reset(t0.Add(2 * time.Second))
	s := p.State()
	assert.Zero(t, s.StepCount)
	assert.Zero(t, s.Displacement)
	assert.Equal(t, heading, s.HeadingRadians)
}
