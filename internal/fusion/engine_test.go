package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presence-api/internal/models"
	"github.com/noah-isme/presence-api/internal/pdr"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func gpsFix(lat, lng, accuracy float64, at time.Time) models.Position {
	return models.Position{
		Latitude:       lat,
		Longitude:      lng,
		AccuracyMeters: accuracy,
		Timestamp:      at,
		Source:         models.PositionSourceGPS,
	}
}

func newEngine() (*Engine, *pdr.Processor) {
	p := pdr.NewProcessor(pdr.Config{UserHeightCm: 170})
	return NewEngine(Config{MinGPSAccuracyMeters: 40}, p, nil), p
}

// stepOnce drives the processor through one full step cycle.
func stepOnce(e *Engine, at time.Time) {
	e.OnSensorSample(models.SensorSample{Acceleration: models.Vector3{Z: 12.0, Timestamp: at}})
	e.OnSensorSample(models.SensorSample{Acceleration: models.Vector3{Z: 8.0, Timestamp: at.Add(150 * time.Millisecond)}})
}

func TestAccurateFixSnapsAndResetsPDR(t *testing.T) {
	engine, processor := newEngine()
	engine.Start(nil)

	stepOnce(engine, t0)
	require.Equal(t, 1, processor.StepCount())

	var got models.FusedPosition
	engine.Subscribe(func(p models.FusedPosition) { got = p })

	engine.OnGPSFix(gpsFix(37.4607, 126.9524, 10, t0.Add(time.Second)))

	assert.Equal(t, models.PositionSourceGPS, got.Source)
	assert.Equal(t, 1.0, got.Confidence)
	assert.Equal(t, 37.4607, got.Latitude)
	assert.Zero(t, processor.StepCount())
	assert.Zero(t, processor.Displacement())
}

func TestInaccurateFixBlendsFromAnchor(t *testing.T) {
	engine, _ := newEngine()
	engine.Start(nil)
	engine.OnGPSFix(gpsFix(37.4607, 126.9524, 10, t0))

	stepOnce(engine, t0.Add(time.Second))

	var got models.FusedPosition
	engine.Subscribe(func(p models.FusedPosition) { got = p })
	engine.OnGPSFix(gpsFix(37.9, 127.0, 80, t0.Add(2*time.Second)))

	assert.Equal(t, models.PositionSourceFused, got.Source)
	// The blend stays near the anchor plus one stride north, ignoring the
	// wild 80 m fix.
	assert.InDelta(t, 37.4607, got.Latitude, 0.0001)
	assert.Less(t, got.Confidence, 1.0)
	assert.InDelta(t, got.GPSWeight+got.PDRWeight, 1.0, 1e-9)
}

func TestConfidenceDecaysWithAnchorAgeAndSteps(t *testing.T) {
	engine, _ := newEngine()
	engine.Start(nil)
	engine.OnGPSFix(gpsFix(37.4607, 126.9524, 10, t0))

	stepOnce(engine, t0.Add(time.Second))
	early := engine.Current()

	for i := 0; i < 10; i++ {
		stepOnce(engine, t0.Add(time.Duration(60+i)*time.Second))
	}
	late := engine.Current()

	assert.Less(t, late.Confidence, early.Confidence)
	assert.Greater(t, late.AccuracyMeters, early.AccuracyMeters)
}

func TestNeverAnchoredEmitsPDRSource(t *testing.T) {
	engine, _ := newEngine()
	engine.Start(nil)

	var got models.FusedPosition
	engine.Subscribe(func(p models.FusedPosition) { got = p })
	stepOnce(engine, t0)

	assert.Equal(t, models.PositionSourcePDR, got.Source)
	assert.Equal(t, 1.0, got.PDRWeight)
	assert.Zero(t, got.GPSWeight)
	assert.Less(t, got.Confidence, 0.5)
}

func TestStartSeedsAnchor(t *testing.T) {
	engine, _ := newEngine()
	var got models.FusedPosition
	engine.Subscribe(func(p models.FusedPosition) { got = p })

	fix := gpsFix(37.4607, 126.9524, 25, t0)
	engine.Start(&fix)

	assert.Equal(t, models.PositionSourceGPS, got.Source)
	assert.Equal(t, 1.0, got.Confidence)
}

func TestStopHaltsEmission(t *testing.T) {
	engine, _ := newEngine()
	engine.Start(nil)

	var count int
	engine.Subscribe(func(models.FusedPosition) { count++ })
	engine.OnGPSFix(gpsFix(37.4607, 126.9524, 10, t0))
	require.Equal(t, 1, count)

	engine.Stop()
	engine.OnGPSFix(gpsFix(37.4607, 126.9524, 10, t0.Add(time.Second)))
	stepOnce(engine, t0.Add(2*time.Second))
	assert.Equal(t, 1, count)
}
