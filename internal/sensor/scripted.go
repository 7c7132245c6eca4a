package sensor

import (
	"context"
	"sync"
	"time"

	"github.com/noah-isme/presence-api/internal/models"
)

// ScriptedProvider replays a fixed sample sequence at the requested
// frequency. It backs the tracking simulator and deterministic tests; real
// deployments register platform tiers ahead of it in the fallback chain.
type ScriptedProvider struct {
	name     string
	features Features
	samples  []models.SensorSample

	mu     sync.Mutex
	cancel chan struct{}
	wg     sync.WaitGroup
}

// NewScriptedProvider builds a replay provider advertising the given
// capabilities.
func NewScriptedProvider(name string, features Features, samples []models.SensorSample) *ScriptedProvider {
	return &ScriptedProvider{name: name, features: features, samples: samples}
}

func (p *ScriptedProvider) Name() string { return p.name }

func (p *ScriptedProvider) Available() bool { return true }

func (p *ScriptedProvider) RequestPermission(context.Context) error { return nil }

func (p *ScriptedProvider) Features() Features { return p.features }

// Start replays the script once, then idles until Stop.
func (p *ScriptedProvider) Start(frequencyHz int, emit func(models.SensorSample, error)) error {
	if frequencyHz <= 0 {
		frequencyHz = 60
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}
	cancel := make(chan struct{})
	p.cancel = cancel

	interval := time.Second / time.Duration(frequencyHz)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for _, sample := range p.samples {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				emit(sample, nil)
			}
		}
		<-cancel
	}()
	return nil
}

// Stop halts replay and waits for the emitting goroutine to exit.
func (p *ScriptedProvider) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	close(cancel)
	p.wg.Wait()
	return nil
}
