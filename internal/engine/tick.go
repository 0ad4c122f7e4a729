// Package engine drives the compressor simulation: a tick loop that can run
// in real time or be stepped in batches, and the Simulation that ties the
// compressor to its plant and publishes what happens.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Engine advances simulated time in fixed steps of Dt seconds.
type Engine struct {
	Tick     uint64        // ticks processed, never reset
	Dt       float64       // simulated seconds per tick
	Interval time.Duration // wall time per tick at speed 1

	// Callbacks, populated during setup.
	OnTick   func(tick uint64, dt float64) // every tick
	OnMinute func(tick uint64)             // each simulated minute
	OnHour   func(tick uint64)             // each simulated hour

	mu      sync.Mutex
	speed   float64 // multiplier: 1 = real time, 0 = paused
	running bool
	simTime float64
}

// NewEngine returns a real-time engine with one-second ticks.
func NewEngine() *Engine {
	return &Engine{
		Dt:       1,
		Interval: time.Second,
		speed:    1,
	}
}

// Speed returns the tick-rate multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the tick-rate multiplier; 0 pauses.
func (e *Engine) SetSpeed(s float64) {
	e.mu.Lock()
	e.speed = math.Max(s, 0)
	e.mu.Unlock()
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// SimTime returns the simulated seconds elapsed since tick zero.
func (e *Engine) SimTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.simTime
}

// Run ticks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed(), "dt", e.Dt)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation engine stopped", "tick", e.Tick)
			return nil
		case <-timer.C:
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused; check again shortly.
			timer.Reset(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		e.step()

		wait := time.Duration(float64(e.Interval)/speed) - time.Since(start)
		timer.Reset(max(wait, 0))
	}
}

// Step runs n ticks immediately, for batch runs and tests.
func (e *Engine) Step(n int) {
	for i := 0; i < n; i++ {
		e.step()
	}
}

func (e *Engine) step() {
	e.mu.Lock()
	prev := e.simTime
	e.simTime += e.Dt
	now := e.simTime
	e.mu.Unlock()
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick, e.Dt)
	}
	if crossed(prev, now, 60) && e.OnMinute != nil {
		e.OnMinute(e.Tick)
	}
	if crossed(prev, now, 3600) && e.OnHour != nil {
		e.OnHour(e.Tick)
	}
}

// crossed reports whether a multiple of period lies in (prev, now].
func crossed(prev, now, period float64) bool {
	return math.Floor(now/period) > math.Floor(prev/period)
}

// FormatSimTime renders simulated seconds as "day D hh:mm:ss".
func FormatSimTime(seconds float64) string {
	total := int64(seconds)
	s := total % 60
	m := (total / 60) % 60
	h := (total / 3600) % 24
	d := total/86400 + 1
	return fmt.Sprintf("day %d %02d:%02d:%02d", d, h, m, s)
}
