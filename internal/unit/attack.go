package unit

import (
	"github.com/quickrts/skirmish/internal/perception"
	"github.com/quickrts/skirmish/pkg/core"
)

// Outcome of the attack transition.
type Outcome uint8

const (
	Idle Outcome = iota
	Attacked
	Retargeted
)

// Attack runs the attack transition. cooldown is the cooldown of the unit's
// current level. On Attacked the returned id is the victim; on Retargeted
// the unit's TargetID already points at the nearest attackable enemy and
// nothing is propagated until the next status sync.
func Attack(u *core.Unit, seen perception.Result, cooldown float64, dt float64) (Outcome, core.UnitID) {
	if u.HasTarget() {
		if seen.IsAttackable(u.TargetID) {
			if u.AttackCooldownRemaining <= 0 {
				u.AttackCooldownRemaining = cooldown
				return Attacked, u.TargetID
			}
		} else if nearest, ok := seen.NearestAttackable(); ok {
			u.TargetID = nearest.ID
			return Retargeted, nearest.ID
		}
	}

	Advance(u, dt)
	return Idle, core.NoUnit
}
