// Package unit holds the per-unit state transitions run on every tick.
package unit

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/quickrts/skirmish/internal/curve"
	"github.com/quickrts/skirmish/pkg/core"
)

// Clamp records one attribute value that was forced into its declared range.
type Clamp struct {
	Attribute string
	Value     float64
	Clamped   float64
}

// New creates a level 1 unit from its team's attribute curves, painted in
// base. Out-of-range curve values are clamped and reported, never rejected.
func New(id core.UnitID, team core.TeamID, role core.Role, curves *curve.Set, pos geom.XY, base colorful.Color) (*core.Unit, []Clamp) {
	const level = 1
	var clamps []Clamp

	clampf := func(name string, v, lo, hi float64) float64 {
		c := math.Min(math.Max(v, lo), hi)
		if c != v {
			clamps = append(clamps, Clamp{Attribute: name, Value: v, Clamped: c})
		}
		return c
	}

	maxHealth := int(clampf("maxHealth", math.Floor(curves.Value(team, curve.Health, level)), core.MinMaxHealth, core.MaxMaxHealth))
	attackPower := clampf("attackPower", curves.Value(team, curve.Attack, level), core.MinAttackPower, core.MaxAttackPower)
	cooldown := clampf("attackCooldown", curves.Cooldown(team, level), core.MinAttackCooldown, core.MaxAttackCooldown)
	speed := math.Max(curves.Value(team, curve.Speed, level), 0)

	return &core.Unit{
		ID:                      id,
		Team:                    team,
		Role:                    role,
		Level:                   level,
		MaxHealth:               maxHealth,
		CurrentHealth:           maxHealth,
		AttackPower:             attackPower,
		AttackCooldown:          cooldown,
		AttackCooldownRemaining: cooldown,
		RecoverCooldown:         core.DefaultRecoverCooldown,
		RecoverProgress:         1,
		Speed:                   speed,
		SplitThreshold:          curves.Value(team, curve.Split, level),
		MergeThreshold:          curves.Value(team, curve.Merge, level),
		Position:                pos,
		StandPoint:              core.FarPoint,
		BaseColor:               base,
		DamageFlashColor:        core.White,
		DisplayColor:            base,
		Visible:                 true,
	}, clamps
}

// ClampHealth bounds h to [0, u.MaxHealth].
func ClampHealth(u *core.Unit, h int) int {
	return min(max(h, 0), u.MaxHealth)
}
