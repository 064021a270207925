// Package perception finds the enemies a unit can see and attack.
package perception

import (
	"cmp"
	"slices"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/quickrts/skirmish/internal/geo"
	"github.com/quickrts/skirmish/pkg/core"
)

// Default radii in world units.
const (
	DefaultSightRadius  = 8.0
	DefaultAttackRadius = 2.0
)

// Config holds the perception radii. AttackRadius is expected to be no larger than SightRadius.
type Config struct {
	SightRadius  float64 `json:"sightRadius" mapstructure:"sightRadius"`
	AttackRadius float64 `json:"attackRadius" mapstructure:"attackRadius"`
}

// Contact is one perceived enemy.
type Contact struct {
	Unit     *core.Unit
	Distance float64
}

// Result lists contacts ordered by ascending distance, ties by ascending id.
type Result struct {
	Sighted    []Contact
	Attackable []Contact
}

// NearestSighted returns the closest sighted unit.
func (r Result) NearestSighted() (*core.Unit, bool) {
	if len(r.Sighted) == 0 {
		return nil, false
	}
	return r.Sighted[0].Unit, true
}

// NearestAttackable returns the closest attackable unit.
func (r Result) NearestAttackable() (*core.Unit, bool) {
	if len(r.Attackable) == 0 {
		return nil, false
	}
	return r.Attackable[0].Unit, true
}

// IsAttackable reports whether id is among the attackable contacts.
func (r Result) IsAttackable(id core.UnitID) bool {
	for _, c := range r.Attackable {
		if c.Unit.ID == id {
			return true
		}
	}
	return false
}

// Query returns the visible opposing units around pos. It has no side effects.
func Query(cfg Config, self *core.Unit, pos geom.XY, candidates []*core.Unit) Result {
	var res Result
	for _, other := range candidates {
		if other == nil || other.ID == self.ID || other.Team == self.Team || !other.Visible {
			continue
		}
		d := geo.Distance(pos, other.Position)
		if d > cfg.SightRadius {
			continue
		}
		c := Contact{Unit: other, Distance: d}
		res.Sighted = append(res.Sighted, c)
		if d <= cfg.AttackRadius {
			res.Attackable = append(res.Attackable, c)
		}
	}
	sortContacts(res.Sighted)
	sortContacts(res.Attackable)
	return res
}

func sortContacts(cs []Contact) {
	slices.SortFunc(cs, func(a, b Contact) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Unit.ID, b.Unit.ID)
	})
}
