// Package sensor presents one capability interface over heterogeneous
// platform motion-sensor facilities. Providers are probed once, in priority
// order, at initialization; the richest available tier wins.
package sensor

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

// State captures the manager lifecycle.
type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateTracking     State = "tracking"
	StatePaused       State = "paused"
	StateError        State = "error"
)

// Features reports which sensors the active tier actually delivers.
type Features struct {
	Accelerometer bool `json:"accelerometer"`
	Gyroscope     bool `json:"gyroscope"`
	Magnetometer  bool `json:"magnetometer"`
}

// SampleFunc receives each good sensor sample.
type SampleFunc func(models.SensorSample)

// ErrorFunc receives per-reading failures; the stream continues.
type ErrorFunc func(error)

// Provider is one capability tier. Emit delivers either a sample or a
// reading error; a reading error must not stop the provider.
type Provider interface {
	Name() string
	Available() bool
	RequestPermission(ctx context.Context) error
	Features() Features
	Start(frequencyHz int, emit func(models.SensorSample, error)) error
	Stop() error
}

// Manager owns the provider fallback chain and the tracking state machine.
type Manager struct {
	mu          sync.Mutex
	providers   []Provider
	active      Provider
	state       State
	frequencyHz int
	logger      *zap.Logger

	onSample SampleFunc
	onError  ErrorFunc
}

// NewManager builds a manager over the given tiers, richest first.
func NewManager(providers []Provider, frequencyHz int, logger *zap.Logger) *Manager {
	if frequencyHz <= 0 {
		frequencyHz = 60
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{providers: providers, frequencyHz: frequencyHz, state: StateIdle, logger: logger}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialize probes tiers in order and requests permission on the first
// available one. Permission denial and total unavailability are surfaced,
// never swallowed.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle && m.state != StateError {
		return appErrors.Clone(appErrors.ErrConflict, "sensor manager already initialized")
	}
	m.state = StateInitializing

	for _, p := range m.providers {
		if !p.Available() {
			continue
		}
		if err := p.RequestPermission(ctx); err != nil {
			m.state = StateError
			return appErrors.Wrap(err, appErrors.ErrPermissionDenied.Code, appErrors.ErrPermissionDenied.Status, "sensor permission denied")
		}
		m.active = p
		m.state = StateReady
		m.logger.Info("sensor tier selected", zap.String("provider", p.Name()))
		return nil
	}

	m.state = StateError
	return appErrors.Clone(appErrors.ErrNotSupported, "no usable sensor tier available")
}

// SupportedFeatures reports the active tier's capabilities; zero value when
// no tier has been selected.
func (m *Manager) SupportedFeatures() Features {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Features{}
	}
	return m.active.Features()
}

// StartTracking begins sample emission. Legal only from ready or paused.
func (m *Manager) StartTracking(onSample SampleFunc, onError ErrorFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateReady, StatePaused:
	case StateTracking:
		return nil
	default:
		return appErrors.Clone(appErrors.ErrConflict, "tracking requires an initialized sensor manager")
	}

	m.onSample = onSample
	m.onError = onError
	if err := m.active.Start(m.frequencyHz, m.dispatch); err != nil {
		m.state = StateError
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start sensor stream")
	}
	m.state = StateTracking
	return nil
}

// StopTracking halts emission. Idempotent.
func (m *Manager) StopTracking() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateTracking && m.state != StatePaused {
		return
	}
	if err := m.active.Stop(); err != nil {
		m.logger.Warn("sensor stop failed", zap.Error(err))
	}
	m.onSample = nil
	m.onError = nil
	m.state = StateReady
}

// Pause suspends emission while keeping the selected tier. Idempotent.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateTracking {
		return
	}
	if err := m.active.Stop(); err != nil {
		m.logger.Warn("sensor pause failed", zap.Error(err))
	}
	m.state = StatePaused
}

// Resume restarts emission after Pause with the previous callbacks.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StatePaused {
		return nil
	}
	if err := m.active.Start(m.frequencyHz, m.dispatch); err != nil {
		m.state = StateError
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resume sensor stream")
	}
	m.state = StateTracking
	return nil
}

// dispatch routes provider events, dropping faulty readings instead of
// terminating the stream.
func (m *Manager) dispatch(sample models.SensorSample, err error) {
	m.mu.Lock()
	onSample, onError := m.onSample, m.onError
	tracking := m.state == StateTracking
	m.mu.Unlock()
	if !tracking {
		return
	}
	if err != nil {
		if onError != nil {
			onError(appErrors.Wrap(err, appErrors.ErrReadingFailed.Code, appErrors.ErrReadingFailed.Status, "sensor reading failed"))
		}
		return
	}
	if badReading(sample) {
		if onError != nil {
			onError(appErrors.Clone(appErrors.ErrReadingFailed, "non-finite acceleration reading dropped"))
		}
		return
	}
	if onSample != nil {
		onSample(sample)
	}
}

func badReading(s models.SensorSample) bool {
	for _, v := range []float64{s.Acceleration.X, s.Acceleration.Y, s.Acceleration.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return s.Acceleration.Timestamp.IsZero()
}
