package movement

import (
	"testing"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
)

func TestLinear_IdleHasArrived(t *testing.T) {
	a := NewLinear(geom.XY{X: 1, Y: 1}, 2)

	assert.True(t, a.HasArrived())
	assert.Equal(t, 0.0, a.RemainingDistance())
	a.Step(1)
	assert.Equal(t, geom.XY{X: 1, Y: 1}, a.Position())
}

func TestLinear_WalksToDestination(t *testing.T) {
	a := NewLinear(geom.XY{}, 2)
	a.SetDestination(geom.XY{X: 5})

	a.Step(1)
	assert.InDelta(t, 2.0, a.Position().X, 1e-9)
	assert.InDelta(t, 3.0, a.RemainingDistance(), 1e-9)
	assert.False(t, a.HasArrived())

	a.Step(10)
	assert.InDelta(t, 5.0, a.Position().X, 1e-9)
	assert.True(t, a.HasArrived())
}

func TestLinear_StopsShortByStoppingDistance(t *testing.T) {
	a := NewLinear(geom.XY{}, 1)
	a.SetStoppingDistance(PursuitStoppingDistance)
	a.SetDestination(geom.XY{X: 3})

	for i := 0; i < 10; i++ {
		a.Step(1)
	}

	assert.InDelta(t, 2.5, a.Position().X, 1e-9)
	assert.Equal(t, PursuitStoppingDistance, a.StoppingDistance())
	assert.True(t, a.HasArrived())
}

func TestLinear_NegativeStoppingDistance(t *testing.T) {
	a := NewLinear(geom.XY{}, 1)
	a.SetStoppingDistance(-1)
	assert.Equal(t, 0.0, a.StoppingDistance())
}
