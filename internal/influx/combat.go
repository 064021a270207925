package influx

import (
	"strconv"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/quickrts/skirmish/internal/match"
	"github.com/quickrts/skirmish/pkg/core"
)

// CombatTelemetry writes one point per resolved attack and per destroyed
// unit to the combat bucket. It implements combat.Telemetry.
type CombatTelemetry struct {
	manager *Manager
	match   *match.Context
}

// NewCombatTelemetry creates a telemetry writer. mc may be nil.
func NewCombatTelemetry(m *Manager, mc *match.Context) *CombatTelemetry {
	return &CombatTelemetry{manager: m, match: mc}
}

func (c *CombatTelemetry) point(measurement string) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(measurement).SetTime(time.Now())
	if c.match != nil {
		p.AddTag("match", c.match.GetMatch().Name)
		p.AddField("tick", c.match.Tick())
	}
	return p
}

// OnDamage records a resolved attack.
func (c *CombatTelemetry) OnDamage(attacker, victim *core.Unit, dealt, health int) {
	p := c.point("damage").
		AddTag("attacker_team", strconv.Itoa(int(attacker.Team))).
		AddTag("victim_team", strconv.Itoa(int(victim.Team))).
		AddField("attacker", uint32(attacker.ID)).
		AddField("victim", uint32(victim.ID)).
		AddField("dealt", dealt).
		AddField("health", health)

	if err := c.manager.WritePoint(BucketCombat, p); err != nil {
		c.manager.Logger.Warn().Err(err).Msg("Failed to write damage point")
	}
}

// OnDestroyed records a destroyed unit.
func (c *CombatTelemetry) OnDestroyed(victim *core.Unit) {
	p := c.point("destroyed").
		AddTag("team", strconv.Itoa(int(victim.Team))).
		AddField("unit", uint32(victim.ID)).
		AddField("level", victim.Level)

	if err := c.manager.WritePoint(BucketCombat, p); err != nil {
		c.manager.Logger.Warn().Err(err).Msg("Failed to write destroyed point")
	}
}
