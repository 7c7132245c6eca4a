// Package fusion maintains one authoritative position by combining
// absolute-but-noisy GPS fixes with relative-but-drifting pedestrian
// dead-reckoning. Any sufficiently accurate GPS fix re-anchors the
// estimate and zeroes the PDR origin, bounding drift.
package fusion

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/geo"
	"github.com/noah-isme/presence-api/internal/models"
	"github.com/noah-isme/presence-api/internal/pdr"
)

const (
	// Drift growth applied to the reported accuracy per step since the
	// last anchor.
	driftPerStepMeters = 0.35

	// Confidence decay scales: one minute without an anchor or fifty
	// steps each roughly halve the blended confidence.
	anchorAgeScale = 60.0
	stepScale      = 50.0

	minConfidence = 0.05
)

// Config tunes recalibration behaviour.
type Config struct {
	MinGPSAccuracyMeters float64
}

func (c Config) withDefaults() Config {
	if c.MinGPSAccuracyMeters <= 0 {
		c.MinGPSAccuracyMeters = 40
	}
	return c
}

// Subscriber receives every fused position update.
type Subscriber func(models.FusedPosition)

// Engine blends GPS fixes with PDR displacement. All mutating entry points
// are expected to be called from the single client scheduling context; the
// internal mutex only guards against misuse, the design has no concurrent
// writers.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	pdr    *pdr.Processor
	logger *zap.Logger

	started     bool
	anchored    bool
	anchor      geo.Coordinate
	anchorAcc   float64
	anchoredAt  time.Time
	current     models.FusedPosition
	subscribers []Subscriber

	now func() time.Time
}

// NewEngine builds an engine over the given PDR processor.
func NewEngine(cfg Config, processor *pdr.Processor, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg.withDefaults(), pdr: processor, logger: logger, now: time.Now}
}

// Subscribe registers a listener for fused updates.
func (e *Engine) Subscribe(fn Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, fn)
}

// Start seeds the engine. A non-nil initial fix becomes the first anchor
// regardless of accuracy so the very first emission has an absolute origin.
func (e *Engine) Start(initialFix *models.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	if initialFix != nil {
		e.setAnchorLocked(*initialFix)
		seed := models.FusedPosition{
			Position:   *initialFix,
			Confidence: 1.0,
			GPSWeight:  1.0,
		}
		seed.Source = models.PositionSourceGPS
		e.emitLocked(seed)
	}
}

// Stop halts emission. Subscribers receive nothing after Stop returns.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = false
	e.subscribers = nil
}

// OnGPSFix folds an absolute fix into the estimate. A fix at or under the
// recalibration accuracy threshold snaps the position exactly and resets
// the PDR displacement origin; anything worse only re-blends.
func (e *Engine) OnGPSFix(fix models.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}

	if fix.AccuracyMeters <= e.cfg.MinGPSAccuracyMeters {
		e.setAnchorLocked(fix)
		fused := models.FusedPosition{
			Position:   fix,
			Confidence: 1.0,
			GPSWeight:  1.0,
			PDRWeight:  0.0,
		}
		fused.Source = models.PositionSourceGPS
		e.emitLocked(fused)
		return
	}

	e.logger.Debug("gps fix above recalibration threshold, blending",
		zap.Float64("accuracy_m", fix.AccuracyMeters))
	e.emitLocked(e.blendLocked(fix.Timestamp))
}

// OnSensorSample feeds the PDR processor; a completed step re-emits the
// blended estimate.
func (e *Engine) OnSensorSample(sample models.SensorSample) {
	stepped := e.pdr.Process(sample)
	if !stepped {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return
	}
	e.emitLocked(e.blendLocked(sample.Acceleration.Timestamp))
}

// Current returns the latest fused estimate.
func (e *Engine) Current() models.FusedPosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *Engine) setAnchorLocked(fix models.Position) {
	e.anchor = geo.Coordinate{Latitude: fix.Latitude, Longitude: fix.Longitude}
	e.anchorAcc = fix.AccuracyMeters
	e.anchoredAt = fix.Timestamp
	e.anchored = true
	e.pdr.Reset(fix.Timestamp)
}

// blendLocked computes anchor + PDR displacement with confidence that
// decays as the anchor ages and steps accumulate.
func (e *Engine) blendLocked(at time.Time) models.FusedPosition {
	disp := e.pdr.Displacement()
	steps := e.pdr.StepCount()

	if !e.anchored {
		// Never had a usable absolute fix: pure dead reckoning from an
		// unknown origin.
		confidence := clampConfidence(0.3 / (1 + float64(steps)/stepScale))
		return models.FusedPosition{
			Position: models.Position{
				Latitude:       geo.Truncate(disp.Dy/geo.EarthRadiusMeters*180/math.Pi, 6),
				Longitude:      geo.Truncate(disp.Dx/geo.EarthRadiusMeters*180/math.Pi, 6),
				AccuracyMeters: driftPerStepMeters * float64(steps),
				Timestamp:      at,
				Source:         models.PositionSourcePDR,
			},
			Confidence: confidence,
			PDRWeight:  1.0,
		}
	}

	pos := geo.Offset(e.anchor, disp.Dx, disp.Dy)
	age := at.Sub(e.anchoredAt).Seconds()
	if age < 0 {
		age = 0
	}
	confidence := clampConfidence(1 / (1 + age/anchorAgeScale + float64(steps)/stepScale))

	fused := models.FusedPosition{
		Position: models.Position{
			Latitude:       pos.Latitude,
			Longitude:      pos.Longitude,
			AccuracyMeters: e.anchorAcc + driftPerStepMeters*float64(steps),
			Timestamp:      at,
			Source:         models.PositionSourceFused,
		},
		Confidence: confidence,
		GPSWeight:  confidence,
		PDRWeight:  1 - confidence,
	}
	e.current = fused
	return fused
}

func (e *Engine) emitLocked(p models.FusedPosition) {
	e.current = p
	for _, fn := range e.subscribers {
		fn(p)
	}
}

func clampConfidence(c float64) float64 {
	if c < minConfidence {
		return minConfidence
	}
	if c > 1 {
		return 1
	}
	return c
}
