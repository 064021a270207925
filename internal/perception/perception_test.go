package perception

import (
	"testing"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"

	"github.com/quickrts/skirmish/pkg/core"
)

var cfg = Config{SightRadius: 8, AttackRadius: 2}

func at(id core.UnitID, team core.TeamID, x, y float64) *core.Unit {
	return &core.Unit{ID: id, Team: team, Visible: true, Position: geom.XY{X: x, Y: y}}
}

func ids(cs []Contact) []core.UnitID {
	out := []core.UnitID{}
	for _, c := range cs {
		out = append(out, c.Unit.ID)
	}
	return out
}

func TestQuery_OrdersByDistanceThenID(t *testing.T) {
	self := at(1, 0, 0, 0)
	units := []*core.Unit{
		self,
		at(5, 1, 3, 0),
		at(4, 1, 0, 3),
		at(2, 1, 1, 0),
		at(3, 1, 0, 9), // out of sight
	}

	res := Query(cfg, self, self.Position, units)

	assert.Equal(t, []core.UnitID{2, 4, 5}, ids(res.Sighted))
	assert.Equal(t, []core.UnitID{2}, ids(res.Attackable))
	assert.Equal(t, 1.0, res.Sighted[0].Distance)
}

func TestQuery_IgnoresFriendsAndInvisible(t *testing.T) {
	self := at(1, 0, 0, 0)
	friend := at(2, 0, 1, 0)
	dead := at(3, 1, 1, 0)
	dead.Visible = false

	res := Query(cfg, self, self.Position, []*core.Unit{self, friend, dead})

	assert.Empty(t, res.Sighted)
	assert.Empty(t, res.Attackable)
	_, ok := res.NearestSighted()
	assert.False(t, ok)
	_, ok = res.NearestAttackable()
	assert.False(t, ok)
}

func TestQuery_AttackableIsSubsetOfSighted(t *testing.T) {
	self := at(1, 0, 0, 0)
	units := []*core.Unit{at(2, 1, 2, 0), at(3, 1, 1.5, 0), at(4, 1, 7.9, 0)}

	res := Query(cfg, self, geom.XY{}, units)

	assert.Equal(t, []core.UnitID{3, 2}, ids(res.Attackable), "boundary distance is inclusive")
	for _, c := range res.Attackable {
		assert.Contains(t, ids(res.Sighted), c.Unit.ID)
	}
	assert.True(t, res.IsAttackable(2))
	assert.False(t, res.IsAttackable(4))

	near, ok := res.NearestAttackable()
	assert.True(t, ok)
	assert.Equal(t, core.UnitID(3), near.ID)
}

func TestQuery_UsesGivenPosition(t *testing.T) {
	self := at(1, 0, 0, 0)
	enemy := at(2, 1, 20, 0)

	res := Query(cfg, self, geom.XY{X: 19, Y: 0}, []*core.Unit{enemy})

	assert.Equal(t, []core.UnitID{2}, ids(res.Attackable))
}
