package unit

import (
	"github.com/quickrts/skirmish/internal/perception"
	"github.com/quickrts/skirmish/pkg/core"
)

// Decision is the outcome of a targeting evaluation. A field equal to the
// unit's own id means "no target".
type Decision struct {
	Pursuit core.UnitID
	Attack  core.UnitID
}

// Cleared reports whether the decision drops every target of self.
func (d Decision) Cleared(self core.UnitID) bool {
	return d.Pursuit == self && d.Attack == self
}

// ShouldEvaluate reports whether the targeting policy runs this tick.
// A player-directed unit keeps its order until it arrives.
func ShouldEvaluate(u *core.Unit, arrived bool) bool {
	return !u.PlayerDirected || arrived
}

// DecideTarget applies the targeting policy to a perception result.
func DecideTarget(u *core.Unit, seen perception.Result) Decision {
	sighted, hasSighted := seen.NearestSighted()
	attackable, hasAttackable := seen.NearestAttackable()

	switch {
	case hasSighted && hasAttackable:
		return Decision{Pursuit: sighted.ID, Attack: attackable.ID}
	case hasSighted:
		return Decision{Pursuit: sighted.ID, Attack: sighted.ID}
	case hasAttackable:
		return Decision{Pursuit: attackable.ID, Attack: attackable.ID}
	default:
		return Decision{Pursuit: u.ID, Attack: u.ID}
	}
}

// ResolveTarget turns a decision into the unit's new target id.
func ResolveTarget(self core.UnitID, d Decision) core.UnitID {
	if d.Pursuit == self || d.Pursuit == core.NoUnit {
		return core.NoUnit
	}
	return d.Pursuit
}
