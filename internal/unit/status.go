package unit

import (
	"github.com/lucasb-eyer/go-colorful"

	"github.com/quickrts/skirmish/pkg/core"
)

// Advance counts the attack cooldown down and the damage recovery up.
func Advance(u *core.Unit, dt float64) {
	u.AttackCooldownRemaining = max(u.AttackCooldownRemaining-dt, 0)
	advanceRecovery(u, dt)
}

// AdvanceCosmetic moves only the damage flash forward. Mirrors use it
// between authoritative updates.
func AdvanceCosmetic(u *core.Unit, dt float64) {
	advanceRecovery(u, dt)
}

func advanceRecovery(u *core.Unit, dt float64) {
	if u.RecoverCooldown > 0 {
		u.RecoverProgress = min(u.RecoverProgress+dt/u.RecoverCooldown, 1)
	} else {
		u.RecoverProgress = 1
	}
	u.DisplayColor = DisplayColor(u)
}

// DisplayColor blends from the damage flash to the base color as the unit recovers.
func DisplayColor(u *core.Unit) colorful.Color {
	t := min(max(u.RecoverProgress, 0), 1)
	return u.DamageFlashColor.BlendRgb(u.BaseColor, t).Clamped()
}

// Snapshot captures the authority-owned status of u.
func Snapshot(u *core.Unit, targetGone bool) core.UnitSnapshot {
	return core.UnitSnapshot{
		Version:                 u.Version,
		AttackCooldownRemaining: u.AttackCooldownRemaining,
		RecoverProgress:         u.RecoverProgress,
		CurrentHealth:           u.CurrentHealth,
		TargetID:                u.TargetID,
		TargetGone:              targetGone,
		DisplayColor:            u.DisplayColor,
	}
}

// ApplySnapshot overwrites the authority-owned fields of a mirrored unit.
func ApplySnapshot(u *core.Unit, s core.UnitSnapshot) {
	u.AttackCooldownRemaining = s.AttackCooldownRemaining
	u.RecoverProgress = s.RecoverProgress
	u.CurrentHealth = ClampHealth(u, s.CurrentHealth)
	u.DisplayColor = s.DisplayColor
	if s.TargetGone {
		u.TargetID = core.NoUnit
	} else {
		u.TargetID = s.TargetID
	}
}
