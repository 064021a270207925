// pkg/core/snapshot.go
package core

import (
	"github.com/lucasb-eyer/go-colorful"
	"github.com/peterstace/simplefeatures/geom"
)

// UnitSnapshot is the authority-owned status of a unit, sent as one
// versioned record so mirrors never see a half-applied update.
type UnitSnapshot struct {
	Version                 uint64         `json:"version"`
	AttackCooldownRemaining float64        `json:"attackCooldownRemaining"`
	RecoverProgress         float64        `json:"recoverProgress"`
	CurrentHealth           int            `json:"currentHealth"`
	TargetID                UnitID         `json:"targetId"`
	TargetGone              bool           `json:"targetGone"`
	DisplayColor            colorful.Color `json:"displayColor"`
}

// Equal compares everything except Version.
func (s UnitSnapshot) Equal(o UnitSnapshot) bool {
	return s.AttackCooldownRemaining == o.AttackCooldownRemaining &&
		s.RecoverProgress == o.RecoverProgress &&
		s.CurrentHealth == o.CurrentHealth &&
		s.TargetID == o.TargetID &&
		s.TargetGone == o.TargetGone &&
		s.DisplayColor == o.DisplayColor
}

// SpawnRecord carries everything an observer needs to create a unit.
type SpawnRecord struct {
	ID               UnitID         `json:"id"`
	Team             TeamID         `json:"team"`
	Level            int            `json:"level"`
	MaxHealth        int            `json:"maxHealth"`
	CurrentHealth    int            `json:"currentHealth"`
	AttackPower      float64        `json:"attackPower"`
	AttackCooldown   float64        `json:"attackCooldown"`
	RecoverCooldown  float64        `json:"recoverCooldown"`
	Speed            float64        `json:"speed"`
	SplitThreshold   float64        `json:"splitThreshold"`
	MergeThreshold   float64        `json:"mergeThreshold"`
	Position         geom.XY        `json:"position"`
	BaseColor        colorful.Color `json:"baseColor"`
	DamageFlashColor colorful.Color `json:"damageFlashColor"`
}

// SpawnRecordOf captures the spawn-time state of u.
func SpawnRecordOf(u *Unit) SpawnRecord {
	return SpawnRecord{
		ID:               u.ID,
		Team:             u.Team,
		Level:            u.Level,
		MaxHealth:        u.MaxHealth,
		CurrentHealth:    u.CurrentHealth,
		AttackPower:      u.AttackPower,
		AttackCooldown:   u.AttackCooldown,
		RecoverCooldown:  u.RecoverCooldown,
		Speed:            u.Speed,
		SplitThreshold:   u.SplitThreshold,
		MergeThreshold:   u.MergeThreshold,
		Position:         u.Position,
		BaseColor:        u.BaseColor,
		DamageFlashColor: u.DamageFlashColor,
	}
}

// NewUnitFromSpawn builds the local copy of a spawned unit with the given role.
func NewUnitFromSpawn(rec SpawnRecord, role Role) *Unit {
	return &Unit{
		ID:                      rec.ID,
		Team:                    rec.Team,
		Role:                    role,
		Level:                   rec.Level,
		MaxHealth:               rec.MaxHealth,
		CurrentHealth:           rec.CurrentHealth,
		AttackPower:             rec.AttackPower,
		AttackCooldown:          rec.AttackCooldown,
		AttackCooldownRemaining: rec.AttackCooldown,
		RecoverCooldown:         rec.RecoverCooldown,
		RecoverProgress:         1,
		Speed:                   rec.Speed,
		SplitThreshold:          rec.SplitThreshold,
		MergeThreshold:          rec.MergeThreshold,
		Position:                rec.Position,
		StandPoint:              FarPoint,
		BaseColor:               rec.BaseColor,
		DamageFlashColor:        rec.DamageFlashColor,
		DisplayColor:            rec.BaseColor,
		Visible:                 true,
	}
}
