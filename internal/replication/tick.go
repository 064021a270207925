package replication

import (
	"time"

	"github.com/quickrts/skirmish/internal/movement"
	"github.com/quickrts/skirmish/internal/perception"
	"github.com/quickrts/skirmish/internal/unit"
	"github.com/quickrts/skirmish/pkg/core"
	"github.com/quickrts/skirmish/pkg/streaming"
)

// Tick advances the node by dt seconds: it applies queued input, runs the
// authority's per-unit decisions, moves every agent, presents the result
// and removes destroyed units.
func (n *Node) Tick(dt float64) {
	start := time.Now()
	n.tick++

	for _, env := range n.local.Drain(0) {
		n.report(env, n.applyOrForward(env))
	}
	for _, env := range n.deps.Transport.Inbox().Drain(n.cfg.MaxMessagesPerTick) {
		n.receive(env)
	}

	if n.role == core.Authority {
		for _, u := range n.roster.All() {
			n.think(u, dt)
		}
	}

	n.move(dt)

	if n.deps.Sink != nil {
		n.deps.Sink.Present(n.views())
	}

	for _, id := range n.roster.Sweep() {
		delete(n.agents, id)
		delete(n.lastStatus, id)
		delete(n.lastDecision, id)
		delete(n.seq, id)
		delete(n.owners, id)
		n.sequencer.forget(id)
	}

	n.publishStats(time.Since(start))
	if n.deps.Match != nil {
		n.deps.Match.SetTick(n.tick)
	}
}

// receive handles one envelope from the transport.
func (n *Node) receive(env streaming.Envelope) {
	switch env.Type {
	case streaming.TypeHello, streaming.TypeAck:
		return
	case streaming.TypeLeave:
		if n.role == core.Authority {
			n.disown(env.Origin)
		}
		return
	}

	if env.Command {
		if n.role != core.Authority {
			n.logger.Debug("Ignoring command on mirror", "type", env.Type, "unit", env.Unit)
			return
		}
		if err := n.admit(env); err != nil {
			n.rejected++
			n.logger.Warn("Rejected command from mirror", "type", env.Type, "unit", env.Unit, "origin", env.Origin, "error", err)
			return
		}
		n.report(env, n.dispatch(env))
		return
	}

	if n.role == core.Authority {
		// broadcasts originate here
		return
	}
	for _, ready := range n.sequencer.offer(env) {
		n.report(ready, n.dispatch(ready))
	}
}

func (n *Node) report(env streaming.Envelope, err error) {
	if err == nil {
		return
	}
	if isReference(err) {
		n.logger.Debug("Dropped message", "type", env.Type, "unit", env.Unit, "seq", env.Seq, "error", err)
		return
	}
	n.logger.Warn("Failed to apply message", "type", env.Type, "unit", env.Unit, "seq", env.Seq, "error", err)
}

// think runs the authority-side update of one unit: targeting, the attack
// transition and the status sync.
func (n *Node) think(u *core.Unit, dt float64) {
	if !u.Visible {
		return
	}

	targetGone := false
	if u.HasTarget() {
		if _, ok := n.roster.GetVisible(u.TargetID); !ok {
			u.TargetID = core.NoUnit
			targetGone = true
		}
	}

	arrived := true
	if a, ok := n.agents[u.ID]; ok {
		arrived = a.HasArrived()
	}
	evaluate := unit.ShouldEvaluate(u, arrived)
	if u.PlayerDirected && arrived {
		u.PlayerDirected = false
	}

	seen := perception.Query(n.cfg.Perception, u, u.Position, n.roster.Opponents(u.Team))

	if evaluate {
		d := unit.DecideTarget(u, seen)
		last, sent := n.lastDecision[u.ID]
		if n.cfg.StatusSync == SyncPeriodic || !sent || last != d || unit.ResolveTarget(u.ID, d) != u.TargetID {
			n.lastDecision[u.ID] = d
			n.report(streaming.Envelope{Type: streaming.TypeSetTarget, Unit: u.ID}, n.SetTarget(u.ID, d.Pursuit, d.Attack))
		}
	}

	outcome, victim := unit.Attack(u, seen, u.AttackCooldown, dt)
	switch outcome {
	case unit.Attacked:
		n.report(streaming.Envelope{Type: streaming.TypeAttack, Unit: u.ID}, n.Attack(u.ID, victim))
	case unit.Retargeted:
		n.logger.Debug("Retargeted", "unit", u.ID, "target", victim)
		n.steer(u)
	}

	// the attack may have destroyed this unit through a chain of commits
	if !u.Visible {
		return
	}

	snap := unit.Snapshot(u, targetGone)
	snap.Version = n.seq[u.ID] + 1
	last, sent := n.lastStatus[u.ID]
	if n.cfg.StatusSync == SyncPeriodic || !sent || !last.Equal(snap) {
		n.lastStatus[u.ID] = snap
		n.report(streaming.Envelope{Type: streaming.TypeStatus, Unit: u.ID}, n.UpdateStatus(u.ID, snap))
	}
}

// move follows pursuit targets and steps every agent. Positions are
// simulated locally on every node.
func (n *Node) move(dt float64) {
	for _, u := range n.roster.All() {
		a, ok := n.agents[u.ID]
		if !ok || !u.Visible {
			continue
		}
		if target, ok := n.roster.GetVisible(u.TargetID); ok {
			a.SetStoppingDistance(movement.PursuitStoppingDistance)
			a.SetDestination(target.Position)
		}
		a.Step(dt)
		u.Position = a.Position()

		if n.role != core.Authority {
			if u.PlayerDirected && a.HasArrived() {
				u.PlayerDirected = false
			}
			unit.AdvanceCosmetic(u, dt)
		}
	}
}

func (n *Node) views() []View {
	units := n.roster.All()
	views := make([]View, 0, len(units))
	for _, u := range units {
		views = append(views, View{
			ID:        u.ID,
			Team:      u.Team,
			Position:  u.Position,
			Color:     u.DisplayColor,
			Health:    u.CurrentHealth,
			MaxHealth: u.MaxHealth,
			Visible:   u.Visible,
			Selected:  u.Selected,
		})
	}
	return views
}

func (n *Node) publishStats(elapsed time.Duration) {
	s := Stats{
		Tick:        n.tick,
		Units:       n.roster.Len(),
		UnitsByTeam: n.roster.CountByTeam(),
		InboxLen:    n.deps.Transport.Inbox().Len(),
		Committed:   n.committed,
		Applied:     n.applied,
		Forwarded:   n.forwarded,
		Rejected:    n.rejected,
		Duplicates:  n.sequencer.duplicates,
		Parked:      n.sequencer.parkedCount(),
		LastTick:    elapsed,
	}

	n.statsMu.Lock()
	n.stats = s
	n.statsMu.Unlock()
}
