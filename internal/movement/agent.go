// Package movement defines the navigation capability units steer through.
package movement

import (
	"github.com/peterstace/simplefeatures/geom"

	"github.com/quickrts/skirmish/internal/geo"
)

// Stopping distances used when steering a unit.
const (
	// PursuitStoppingDistance keeps a chasing unit just short of its target.
	PursuitStoppingDistance = 0.5
	// ArrivalThreshold is the remaining distance below which a unit has arrived.
	ArrivalThreshold = 0.5
)

// Agent moves one unit. Implementations own path planning; callers only
// set destinations and read progress.
type Agent interface {
	SetDestination(geom.XY)
	SetStoppingDistance(float64)
	StoppingDistance() float64
	RemainingDistance() float64
	HasArrived() bool
	Position() geom.XY
	Step(dt float64)
}

// Factory creates the agent of a unit at its spawn position.
type Factory func(pos geom.XY, speed float64) Agent

// Linear walks in a straight line at a constant speed.
type Linear struct {
	pos      geom.XY
	dest     geom.XY
	hasDest  bool
	speed    float64
	stopping float64
}

// NewLinear returns an idle agent at pos.
func NewLinear(pos geom.XY, speed float64) Agent {
	return &Linear{pos: pos, dest: pos, speed: speed}
}

func (l *Linear) SetDestination(p geom.XY) {
	l.dest = p
	l.hasDest = true
}

func (l *Linear) SetStoppingDistance(d float64) {
	if d < 0 {
		d = 0
	}
	l.stopping = d
}

func (l *Linear) StoppingDistance() float64 { return l.stopping }

func (l *Linear) Position() geom.XY { return l.pos }

// RemainingDistance is the distance left to the stopping point, zero when idle.
func (l *Linear) RemainingDistance() float64 {
	if !l.hasDest {
		return 0
	}
	d := geo.Distance(l.pos, l.dest) - l.stopping
	if d < 0 {
		return 0
	}
	return d
}

func (l *Linear) HasArrived() bool {
	return l.RemainingDistance() < ArrivalThreshold
}

func (l *Linear) Step(dt float64) {
	remaining := l.RemainingDistance()
	if remaining <= 0 || dt <= 0 || l.speed <= 0 {
		return
	}
	step := l.speed * dt
	if step > remaining {
		step = remaining
	}
	l.pos = geo.MoveTowards(l.pos, l.dest, step)
}
