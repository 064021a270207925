// pkg/core/unit.go
package core

import (
	"github.com/lucasb-eyer/go-colorful"
	"github.com/peterstace/simplefeatures/geom"
)

// UnitID is the stable network reference of a unit.
// NoUnit (zero) is never assigned and means "absent".
type UnitID uint32

// NoUnit marks an empty unit reference.
const NoUnit UnitID = 0

// TeamID identifies a side. Units only fight units of another team.
type TeamID int

// Role tells whether this node may originate state changes for a unit.
type Role uint8

const (
	Mirror Role = iota
	Authority
)

func (r Role) String() string {
	if r == Authority {
		return "authority"
	}
	return "mirror"
}

// Declared attribute bounds. Values outside are clamped when a unit is created.
const (
	MinMaxHealth       = 3
	MaxMaxHealth       = 100
	MinAttackPower     = 1.0
	MaxAttackPower     = 100.0
	MinAttackCooldown  = 0.001
	MaxAttackCooldown  = 10.0
	MinRecoverCooldown = 0.001
	MaxRecoverCooldown = 10.0

	DefaultRecoverCooldown = 1.0
)

// FarPoint is the stand point of a unit that was never ordered anywhere.
var FarPoint = geom.XY{X: -9999, Y: -9999}

// Unit is the replicated state of one combat unit.
//
// Position is local to each node: nodes move units from replicated
// destinations and never exchange coordinates after spawn.
type Unit struct {
	ID   UnitID
	Team TeamID
	Role Role

	Level                   int
	MaxHealth               int
	CurrentHealth           int
	AttackPower             float64
	AttackCooldown          float64
	AttackCooldownRemaining float64
	RecoverCooldown         float64
	RecoverProgress         float64
	Speed                   float64
	SplitThreshold          float64
	MergeThreshold          float64

	// TargetID is a weak reference, resolved through the roster on every use.
	TargetID UnitID

	Position             geom.XY
	CommandedDestination geom.XY
	HasDestination       bool
	PlayerDirected       bool
	StandPoint           geom.XY

	BaseColor        colorful.Color
	DamageFlashColor colorful.Color
	DisplayColor     colorful.Color
	Visible          bool
	Selected         bool

	// Version is the sequence of the last broadcast applied to this unit.
	Version uint64
}

// HasTarget reports whether the unit currently references a target.
func (u *Unit) HasTarget() bool {
	return u.TargetID != NoUnit
}

// Alive reports whether the unit still takes part in the match.
func (u *Unit) Alive() bool {
	return u.Visible && u.CurrentHealth > 0
}
