// Package combat turns attacks into health changes and deaths.
package combat

import (
	"log/slog"
	"math"

	"github.com/quickrts/skirmish/pkg/core"
)

// Committer publishes the results of an attack. The replication node
// implements it; both calls are expected to apply on the local node
// before returning.
type Committer interface {
	ApplyHealth(id core.UnitID, health int) error
	DestroyUnit(id core.UnitID) error
}

// Telemetry observes resolved attacks.
type Telemetry interface {
	OnDamage(attacker, victim *core.Unit, dealt, health int)
	OnDestroyed(victim *core.Unit)
}

// Result describes one resolved attack.
type Result struct {
	Dealt     int
	Health    int
	Destroyed bool
	Skipped   bool
}

// Resolver applies attacks on the authority of the victim.
type Resolver struct {
	commit    Committer
	telemetry Telemetry
	logger    *slog.Logger
}

// NewResolver creates a resolver. telemetry may be nil.
func NewResolver(commit Committer, telemetry Telemetry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{commit: commit, telemetry: telemetry, logger: logger}
}

// Attack deals attacker's power to victim. Attacks on a victim that is
// already destroyed are no-ops. Health never goes below zero: a killing
// blow commits zero health and then the destruction, back to back.
func (r *Resolver) Attack(attacker, victim *core.Unit) (Result, error) {
	if victim == nil || !victim.Visible || victim.CurrentHealth <= 0 {
		return Result{Skipped: true}, nil
	}

	dealt := int(math.Floor(attacker.AttackPower))
	next := max(victim.CurrentHealth-dealt, 0)
	next = min(next, victim.MaxHealth)

	if err := r.commit.ApplyHealth(victim.ID, next); err != nil {
		return Result{}, err
	}
	victim.RecoverProgress = 0

	res := Result{Dealt: dealt, Health: next}
	r.logger.Debug("Attack resolved",
		"attacker", attacker.ID,
		"victim", victim.ID,
		"dealt", dealt,
		"health", next)
	if r.telemetry != nil {
		r.telemetry.OnDamage(attacker, victim, dealt, next)
	}

	if next <= 0 {
		if err := r.commit.DestroyUnit(victim.ID); err != nil {
			return res, err
		}
		res.Destroyed = true
		r.logger.Info("Unit destroyed", "unit", victim.ID, "team", victim.Team, "by", attacker.ID)
		if r.telemetry != nil {
			r.telemetry.OnDestroyed(victim)
		}
	}
	return res, nil
}
