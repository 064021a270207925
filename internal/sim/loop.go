// Package sim drives a replication node at a fixed tick rate.
package sim

import (
	"context"
	"log/slog"
	"time"
)

// DefaultTickRate is used when Config.TickRate is not positive.
const DefaultTickRate = 20

// Ticker is advanced once per loop iteration. replication.Node implements it.
type Ticker interface {
	Tick(dt float64)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config tunes the loop.
type Config struct {
	TickRate int
	// CatchupMaxTicks caps a delayed tick's delta at this many budgets.
	CatchupMaxTicks int
}

// Result describes one completed tick.
type Result struct {
	Tick         uint64
	Delta        float64
	ClampedDelta bool
	MaxDelta     float64
	Duration     time.Duration
	Budget       time.Duration
}

// Hooks observe the loop.
type Hooks struct {
	AfterTick func(Result)
}

// Loop runs a Ticker on a fixed-timestep schedule.
type Loop struct {
	target Ticker
	config Config
	hooks  Hooks
	clock  Clock
	logger *slog.Logger
	tick   uint64
}

// NewLoop creates a loop around target.
func NewLoop(target Ticker, cfg Config, hooks Hooks, logger *slog.Logger) *Loop {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		target: target,
		config: cfg,
		hooks:  hooks,
		clock:  systemClock{},
		logger: logger.With("component", "sim"),
	}
}

// WithClock replaces the clock. Used by tests.
func (l *Loop) WithClock(c Clock) *Loop {
	l.clock = c
	return l
}

// Budget returns the duration of one tick.
func (l *Loop) Budget() time.Duration {
	return time.Second / time.Duration(l.config.TickRate)
}

// MaxDelta returns the largest delta a single tick may advance.
func (l *Loop) MaxDelta() float64 {
	budget := 1.0 / float64(l.config.TickRate)
	if l.config.CatchupMaxTicks > 1 {
		return budget * float64(l.config.CatchupMaxTicks)
	}
	return budget
}

// ClampDelta bounds an elapsed time to (0, MaxDelta]. A non-positive
// elapsed time advances by one budget.
func (l *Loop) ClampDelta(elapsed float64) (float64, bool) {
	switch {
	case elapsed <= 0:
		return 1.0 / float64(l.config.TickRate), false
	case elapsed > l.MaxDelta():
		return l.MaxDelta(), true
	default:
		return elapsed, false
	}
}

// Step advances the target once by dt and reports the result.
func (l *Loop) Step(dt float64) Result {
	l.tick++
	start := l.clock.Now()
	l.target.Tick(dt)
	res := Result{
		Tick:     l.tick,
		Delta:    dt,
		MaxDelta: l.MaxDelta(),
		Duration: l.clock.Now().Sub(start),
		Budget:   l.Budget(),
	}
	if res.Duration > res.Budget {
		l.logger.Warn("Tick over budget", "tick", res.Tick, "duration", res.Duration, "budget", res.Budget)
	}
	return res
}

// Run ticks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.Budget())
	defer ticker.Stop()

	last := l.clock.Now()
	l.logger.Info("Loop started", "tickRate", l.config.TickRate, "maxDelta", l.MaxDelta())

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Loop stopped", "ticks", l.tick)
			return
		case <-ticker.C:
			now := l.clock.Now()
			dt, clamped := l.ClampDelta(now.Sub(last).Seconds())
			last = now

			res := l.Step(dt)
			res.ClampedDelta = clamped
			if clamped {
				l.logger.Debug("Tick delta clamped", "tick", res.Tick, "delta", dt)
			}
			if l.hooks.AfterTick != nil {
				l.hooks.AfterTick(res)
			}
		}
	}
}
