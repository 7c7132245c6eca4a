// Package pdr turns a motion-sensor sample stream into incremental
// pedestrian displacement: step detection on the acceleration magnitude,
// heading from integrated rotation rate with opportunistic magnetometer
// correction, and a height-proportional stride model.
package pdr

import (
	"math"
	"sync"
	"time"

	"github.com/noah-isme/presence-api/internal/models"
)

const (
	gravity = 9.81

	// Stride length as a fraction of body height; the dominant drift
	// source, isolated here so recalibration can bound it.
	strideHeightFactor = 0.415

	// Weight of a magnetometer heading fix against the integrated gyro
	// heading.
	magnetometerBlend = 0.1
)

// Config tunes the step detector.
type Config struct {
	UserHeightCm    float64
	PeakThreshold   float64
	TroughThreshold float64
	MinStepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.UserHeightCm <= 0 {
		c.UserHeightCm = 170
	}
	if c.PeakThreshold <= 0 {
		c.PeakThreshold = gravity + 1.2
	}
	if c.TroughThreshold <= 0 {
		c.TroughThreshold = gravity - 1.0
	}
	if c.MinStepInterval <= 0 {
		c.MinStepInterval = 300 * time.Millisecond
	}
	return c
}

type stepPhase int

const (
	phaseIdle stepPhase = iota
	phasePeak
)

// Processor accumulates displacement from sensor samples. Displacement is
// consumed by the fusion engine and reset only through its recalibration
// call.
type Processor struct {
	mu  sync.Mutex
	cfg Config

	phase      stepPhase
	lastStepAt time.Time
	lastSample time.Time

	stepCount    int
	heading      float64
	stride       float64
	displacement models.Displacement
	updatedAt    time.Time
}

// NewProcessor builds a processor for a user of the configured height.
func NewProcessor(cfg Config) *Processor {
	cfg = cfg.withDefaults()
	return &Processor{
		cfg:    cfg,
		stride: cfg.UserHeightCm / 100 * strideHeightFactor,
	}
}

// Process consumes one sample and reports whether it completed a step.
func (p *Processor) Process(sample models.SensorSample) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ts := sample.Acceleration.Timestamp
	p.updateHeading(sample, ts)
	stepped := p.detectStep(sample.Acceleration, ts)
	if stepped {
		p.stepCount++
		p.lastStepAt = ts
		p.displacement.Dx += p.stride * math.Sin(p.heading)
		p.displacement.Dy += p.stride * math.Cos(p.heading)
	}
	p.lastSample = ts
	p.updatedAt = ts
	return stepped
}

// detectStep looks for a peak-then-trough magnitude pattern with a minimum
// inter-step time, debouncing sensor noise double-counts.
func (p *Processor) detectStep(a models.Vector3, ts time.Time) bool {
	magnitude := math.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z)
	switch p.phase {
	case phaseIdle:
		if magnitude >= p.cfg.PeakThreshold {
			p.phase = phasePeak
		}
	case phasePeak:
		if magnitude <= p.cfg.TroughThreshold {
			p.phase = phaseIdle
			if p.lastStepAt.IsZero() || ts.Sub(p.lastStepAt) >= p.cfg.MinStepInterval {
				return true
			}
		}
	}
	return false
}

// updateHeading integrates rotation about the vertical axis between samples
// and corrects toward the magnetometer heading when one is present.
func (p *Processor) updateHeading(sample models.SensorSample, ts time.Time) {
	if sample.Rotation != nil && !p.lastSample.IsZero() {
		dt := ts.Sub(p.lastSample).Seconds()
		if dt > 0 && dt < 1 {
			p.heading = wrapAngle(p.heading + sample.Rotation.Alpha*dt)
		}
	}
	if m := sample.Magnetometer; m != nil {
		magHeading := math.Atan2(-m.Y, m.X)
		p.heading = wrapAngle(p.heading + magnetometerBlend*wrapAngle(magHeading-p.heading))
	}
}

// State snapshots the accumulator.
func (p *Processor) State() models.PDRState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return models.PDRState{
		StepCount:          p.stepCount,
		HeadingRadians:     p.heading,
		StrideLengthMeters: p.stride,
		Displacement:       p.displacement,
		LastUpdatedAt:      p.updatedAt,
	}
}

// Displacement returns the accumulated offset since the last reset.
func (p *Processor) Displacement() models.Displacement {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.displacement
}

// StepCount returns the steps registered since the last reset.
func (p *Processor) StepCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stepCount
}

// Reset zeroes the displacement origin and step count. Called by the fusion
// engine on recalibration; heading survives since the device did not turn.
func (p *Processor) Reset(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.displacement = models.Displacement{}
	p.stepCount = 0
	p.updatedAt = at
}

// wrapAngle normalizes an angle to (-π, π].
func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
