package sensor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

type fakeProvider struct {
	name      string
	available bool
	permErr   error
	features  Features
	startErr  error

	emit    func(models.SensorSample, error)
	started bool
	stopped bool
}

func (f *fakeProvider) Name() string                              { return f.name }
func (f *fakeProvider) Available() bool                           { return f.available }
func (f *fakeProvider) RequestPermission(context.Context) error   { return f.permErr }
func (f *fakeProvider) Features() Features                        { return f.features }
func (f *fakeProvider) Stop() error                               { f.stopped = true; return nil }
func (f *fakeProvider) Start(_ int, emit func(models.SensorSample, error)) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.emit = emit
	f.started = true
	return nil
}

func goodSample() models.SensorSample {
	return models.SensorSample{Acceleration: models.Vector3{X: 0, Y: 0, Z: 9.81, Timestamp: time.Now()}}
}

func TestInitializeSelectsFirstAvailableTier(t *testing.T) {
	rich := &fakeProvider{name: "multi", available: false, features: Features{Accelerometer: true, Gyroscope: true, Magnetometer: true}}
	basic := &fakeProvider{name: "motion-events", available: true, features: Features{Accelerometer: true}}
	m := NewManager([]Provider{rich, basic}, 60, nil)

	require.NoError(t, m.Initialize(context.Background()))
	assert.Equal(t, StateReady, m.State())
	assert.Equal(t, Features{Accelerometer: true}, m.SupportedFeatures())
}

func TestInitializePrefersRicherTier(t *testing.T) {
	rich := &fakeProvider{name: "multi", available: true, features: Features{Accelerometer: true, Gyroscope: true, Magnetometer: true}}
	basic := &fakeProvider{name: "motion-events", available: true, features: Features{Accelerometer: true}}
	m := NewManager([]Provider{rich, basic}, 60, nil)

	require.NoError(t, m.Initialize(context.Background()))
	assert.True(t, m.SupportedFeatures().Magnetometer)
}

func TestInitializeNotSupported(t *testing.T) {
	m := NewManager([]Provider{&fakeProvider{name: "multi"}}, 60, nil)
	err := m.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotSupported.Code, appErrors.FromError(err).Code)
	assert.Equal(t, StateError, m.State())
}

func TestInitializePermissionDenied(t *testing.T) {
	denied := &fakeProvider{name: "multi", available: true, permErr: errors.New("user declined")}
	m := NewManager([]Provider{denied}, 60, nil)
	err := m.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPermissionDenied.Code, appErrors.FromError(err).Code)
}

func TestStartTrackingRequiresReady(t *testing.T) {
	m := NewManager([]Provider{&fakeProvider{available: true}}, 60, nil)
	err := m.StartTracking(func(models.SensorSample) {}, nil)
	require.Error(t, err)
}

func TestBadReadingDroppedStreamContinues(t *testing.T) {
	p := &fakeProvider{name: "multi", available: true}
	m := NewManager([]Provider{p}, 60, nil)
	require.NoError(t, m.Initialize(context.Background()))

	var samples []models.SensorSample
	var failures []error
	require.NoError(t, m.StartTracking(
		func(s models.SensorSample) { samples = append(samples, s) },
		func(err error) { failures = append(failures, err) },
	))

	p.emit(goodSample(), nil)
	p.emit(models.SensorSample{Acceleration: models.Vector3{X: math.NaN(), Timestamp: time.Now()}}, nil)
	p.emit(models.SensorSample{}, errors.New("transient hardware fault"))
	p.emit(goodSample(), nil)

	assert.Len(t, samples, 2)
	assert.Len(t, failures, 2)
	assert.Equal(t, StateTracking, m.State())
}

func TestPauseResumeStopIdempotent(t *testing.T) {
	p := &fakeProvider{name: "multi", available: true}
	m := NewManager([]Provider{p}, 60, nil)
	require.NoError(t, m.Initialize(context.Background()))
	require.NoError(t, m.StartTracking(func(models.SensorSample) {}, nil))

	m.Pause()
	m.Pause()
	assert.Equal(t, StatePaused, m.State())

	require.NoError(t, m.Resume())
	require.NoError(t, m.Resume())
	assert.Equal(t, StateTracking, m.State())

	m.StopTracking()
	m.StopTracking()
	assert.Equal(t, StateReady, m.State())
}

func TestNoSamplesAfterStop(t *testing.T) {
	p := &fakeProvider{name: "multi", available: true}
	m := NewManager([]Provider{p}, 60, nil)
	require.NoError(t, m.Initialize(context.Background()))

	var count int
	require.NoError(t, m.StartTracking(func(models.SensorSample) { count++ }, nil))
	p.emit(goodSample(), nil)
	m.StopTracking()
	p.emit(goodSample(), nil)

	assert.Equal(t, 1, count)
}
