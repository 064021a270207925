package replication

import (
	"errors"
	"fmt"

	"github.com/quickrts/skirmish/internal/dispatcher"
	"github.com/quickrts/skirmish/internal/movement"
	"github.com/quickrts/skirmish/internal/unit"
	"github.com/quickrts/skirmish/pkg/core"
	"github.com/quickrts/skirmish/pkg/streaming"
)

var broadcastTypes = []string{
	streaming.TypeSpawn,
	streaming.TypeSetTarget,
	streaming.TypeMoveOrder,
	streaming.TypeStatus,
	streaming.TypeApplyHealth,
	streaming.TypeAttack,
	streaming.TypeDestroy,
}

// registerHandlers wires every broadcast type to its apply handler, and on
// the authority every command type to commit.
func (n *Node) registerHandlers() {
	d := n.dispatcher

	d.Register(streaming.TypeSpawn, n.applySpawn, dispatcher.Logged())
	d.Register(streaming.TypeSetTarget, n.applySetTarget)
	d.Register(streaming.TypeMoveOrder, n.applyMoveOrder, dispatcher.Logged())
	d.Register(streaming.TypeStatus, n.applyStatus)
	d.Register(streaming.TypeApplyHealth, n.applyHealth, dispatcher.Logged())
	d.Register(streaming.TypeAttack, n.applyAttack, dispatcher.Logged())
	d.Register(streaming.TypeDestroy, n.applyDestroy, dispatcher.Logged())

	if n.role != core.Authority {
		return
	}
	for _, t := range broadcastTypes {
		d.Register(streaming.CommandRoute(t), func(e dispatcher.Event) error {
			return n.commit(e.Envelope)
		})
	}
}

// admit decides whether the authority accepts a command forwarded by a
// mirror. Mirrors may spawn units and direct them; health, destruction,
// attacks and status are decided by the authority alone. A unit spawned by
// one mirror only takes orders from that mirror.
func (n *Node) admit(cmd streaming.Envelope) error {
	switch cmd.Type {
	case streaming.TypeSpawn:
		return nil
	case streaming.TypeMoveOrder, streaming.TypeSetTarget:
	default:
		return fmt.Errorf("%s from %q: %w", cmd.Type, cmd.Origin, ErrNotAuthority)
	}

	subject, ok := n.roster.GetVisible(cmd.Unit)
	if !ok {
		return fmt.Errorf("%s: unit %d: %w", cmd.Type, cmd.Unit, ErrInvalidReference)
	}
	if owner, owned := n.owners[subject.ID]; owned && owner != cmd.Origin {
		return fmt.Errorf("%s: unit %d belongs to %q, not %q: %w", cmd.Type, subject.ID, owner, cmd.Origin, ErrNotAuthority)
	}
	if cmd.Type != streaming.TypeSetTarget {
		return nil
	}

	p, err := streaming.Decode[streaming.SetTargetPayload](cmd)
	if err != nil {
		return err
	}
	for _, id := range []core.UnitID{p.Pursuit, p.Attack} {
		if id == subject.ID || id == core.NoUnit {
			continue
		}
		target, ok := n.roster.GetVisible(id)
		if !ok || target.Team == subject.Team {
			return fmt.Errorf("%s: target %d is not a visible opponent: %w", cmd.Type, id, ErrInvalidReference)
		}
	}
	return nil
}

// prepare validates a command on the authority and fills in what only the
// authority knows. Invalid references are rejected without side effects.
func (n *Node) prepare(cmd streaming.Envelope) (streaming.Envelope, error) {
	if cmd.Type == streaming.TypeSpawn {
		return n.prepareSpawn(cmd)
	}

	subject, ok := n.roster.GetVisible(cmd.Unit)
	if !ok {
		return cmd, fmt.Errorf("%s: unit %d: %w", cmd.Type, cmd.Unit, ErrInvalidReference)
	}

	switch cmd.Type {
	case streaming.TypeSetTarget:
		p, err := streaming.Decode[streaming.SetTargetPayload](cmd)
		if err != nil {
			return cmd, err
		}
		for _, id := range []core.UnitID{p.Pursuit, p.Attack} {
			if id == subject.ID || id == core.NoUnit {
				continue
			}
			if _, ok := n.roster.GetVisible(id); !ok {
				return cmd, fmt.Errorf("%s: target %d: %w", cmd.Type, id, ErrInvalidReference)
			}
		}
	case streaming.TypeAttack:
		p, err := streaming.Decode[streaming.AttackPayload](cmd)
		if err != nil {
			return cmd, err
		}
		if _, ok := n.roster.GetVisible(p.Victim); !ok {
			return cmd, fmt.Errorf("%s: victim %d: %w", cmd.Type, p.Victim, ErrInvalidReference)
		}
	case streaming.TypeApplyHealth:
		p, err := streaming.Decode[streaming.ApplyHealthPayload](cmd)
		if err != nil {
			return cmd, err
		}
		clamped := unit.ClampHealth(subject, p.Health)
		if clamped != p.Health {
			return streaming.NewEnvelope(cmd.Type, cmd.Unit, streaming.ApplyHealthPayload{Health: clamped})
		}
	case streaming.TypeMoveOrder:
		if _, err := streaming.Decode[streaming.MoveOrderPayload](cmd); err != nil {
			return cmd, err
		}
	case streaming.TypeStatus:
		if _, err := streaming.Decode[streaming.StatusPayload](cmd); err != nil {
			return cmd, err
		}
	case streaming.TypeDestroy:
	default:
		return cmd, fmt.Errorf("unknown command type %q", cmd.Type)
	}
	return cmd, nil
}

func (n *Node) prepareSpawn(cmd streaming.Envelope) (streaming.Envelope, error) {
	p, err := streaming.Decode[streaming.SpawnPayload](cmd)
	if err != nil {
		return cmd, err
	}

	id := n.nextID
	n.nextID++
	u, clamps := unit.New(id, p.Record.Team, core.Authority, n.deps.Curves, p.Record.Position, n.deps.TeamColor(p.Record.Team))
	for _, c := range clamps {
		n.logger.Warn("Attribute clamped", "unit", id, "attribute", c.Attribute,
			"value", c.Value, "clamped", c.Clamped, "error", ErrOutOfRange)
	}
	if cmd.Origin != "" {
		n.owners[id] = cmd.Origin
	}
	return streaming.NewEnvelope(streaming.TypeSpawn, id, streaming.SpawnPayload{Record: core.SpawnRecordOf(u)})
}

// lookup resolves the subject of a broadcast and records its version.
func (n *Node) lookup(env streaming.Envelope) (*core.Unit, error) {
	u, ok := n.roster.Get(env.Unit)
	if !ok {
		return nil, fmt.Errorf("%s: unit %d: %w", env.Type, env.Unit, ErrInvalidReference)
	}
	if env.Seq > u.Version {
		u.Version = env.Seq
	}
	return u, nil
}

func (n *Node) applySpawn(e dispatcher.Event) error {
	p, err := streaming.Decode[streaming.SpawnPayload](e.Envelope)
	if err != nil {
		return err
	}
	if _, exists := n.roster.Get(p.Record.ID); exists {
		return nil
	}
	u := core.NewUnitFromSpawn(p.Record, n.role)
	u.Version = e.Envelope.Seq
	n.roster.Add(u)
	n.agents[u.ID] = n.deps.Agents(u.Position, u.Speed)
	if u.ID >= n.nextID {
		n.nextID = u.ID + 1
	}
	n.logger.Info("Unit spawned", "unit", u.ID, "team", u.Team, "health", u.MaxHealth, "attackPower", u.AttackPower)
	return nil
}

func (n *Node) applySetTarget(e dispatcher.Event) error {
	u, err := n.lookup(e.Envelope)
	if err != nil {
		return err
	}
	p, err := streaming.Decode[streaming.SetTargetPayload](e.Envelope)
	if err != nil {
		return err
	}

	target := unit.ResolveTarget(u.ID, unit.Decision{Pursuit: p.Pursuit, Attack: p.Attack})
	if target == core.NoUnit {
		target = unit.ResolveTarget(u.ID, unit.Decision{Pursuit: p.Attack})
	}
	if _, ok := n.roster.GetVisible(target); !ok {
		target = core.NoUnit
	}
	u.TargetID = target
	n.steer(u)
	return nil
}

func (n *Node) applyMoveOrder(e dispatcher.Event) error {
	u, err := n.lookup(e.Envelope)
	if err != nil {
		return err
	}
	p, err := streaming.Decode[streaming.MoveOrderPayload](e.Envelope)
	if err != nil {
		return err
	}
	if u.HasDestination && u.CommandedDestination == p.Destination {
		return nil
	}

	u.CommandedDestination = p.Destination
	u.StandPoint = p.Destination
	u.HasDestination = true
	u.PlayerDirected = true
	u.TargetID = core.NoUnit
	if a, ok := n.agents[u.ID]; ok {
		a.SetStoppingDistance(0)
		a.SetDestination(p.Destination)
	}
	return nil
}

func (n *Node) applyStatus(e dispatcher.Event) error {
	u, err := n.lookup(e.Envelope)
	if err != nil {
		return err
	}
	if n.role == core.Authority {
		// the authority already holds this state
		return nil
	}
	p, err := streaming.Decode[streaming.StatusPayload](e.Envelope)
	if err != nil {
		return err
	}
	unit.ApplySnapshot(u, p.Snapshot)
	if _, ok := n.roster.GetVisible(u.TargetID); !ok {
		u.TargetID = core.NoUnit
	}
	return nil
}

func (n *Node) applyHealth(e dispatcher.Event) error {
	u, err := n.lookup(e.Envelope)
	if err != nil {
		return err
	}
	p, err := streaming.Decode[streaming.ApplyHealthPayload](e.Envelope)
	if err != nil {
		return err
	}
	u.CurrentHealth = unit.ClampHealth(u, p.Health)
	return nil
}

func (n *Node) applyAttack(e dispatcher.Event) error {
	attacker, err := n.lookup(e.Envelope)
	if err != nil {
		return err
	}
	if n.role != core.Authority {
		return nil
	}
	p, err := streaming.Decode[streaming.AttackPayload](e.Envelope)
	if err != nil {
		return err
	}
	victim, ok := n.roster.Get(p.Victim)
	if !ok {
		return fmt.Errorf("%s: victim %d: %w", e.Envelope.Type, p.Victim, ErrInvalidReference)
	}
	_, err = n.resolver.Attack(attacker, victim)
	return err
}

func (n *Node) applyDestroy(e dispatcher.Event) error {
	u, err := n.lookup(e.Envelope)
	if err != nil {
		return err
	}
	u.Visible = false
	u.TargetID = core.NoUnit
	u.Selected = false
	cleared := n.roster.ClearTargetsTo(u.ID)
	n.roster.ScheduleRemoval(u.ID)
	for _, other := range n.roster.All() {
		if other.Visible && !other.HasTarget() {
			n.steer(other)
		}
	}
	n.logger.Debug("Unit detached", "unit", u.ID, "clearedTargets", cleared)
	return nil
}

// steer points the agent of u at its target, or back at its stand point.
func (n *Node) steer(u *core.Unit) {
	a, ok := n.agents[u.ID]
	if !ok {
		return
	}
	if target, ok := n.roster.GetVisible(u.TargetID); ok {
		a.SetStoppingDistance(movement.PursuitStoppingDistance)
		a.SetDestination(target.Position)
		return
	}
	a.SetStoppingDistance(0)
	if u.HasDestination {
		a.SetDestination(u.StandPoint)
	} else {
		a.SetDestination(u.Position)
	}
}

// isReference reports whether err only means a message named a missing unit.
func isReference(err error) bool {
	return errors.Is(err, ErrInvalidReference)
}
