// Package replication keeps unit state consistent between the authority
// and its mirrors. Every mutation is a command sent to the authority, which
// commits it and broadcasts it to every observer, itself included.
package replication

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/quickrts/skirmish/internal/channel"
	"github.com/quickrts/skirmish/internal/combat"
	"github.com/quickrts/skirmish/internal/curve"
	"github.com/quickrts/skirmish/internal/dispatcher"
	"github.com/quickrts/skirmish/internal/journal"
	"github.com/quickrts/skirmish/internal/logging"
	"github.com/quickrts/skirmish/internal/match"
	"github.com/quickrts/skirmish/internal/movement"
	"github.com/quickrts/skirmish/internal/perception"
	"github.com/quickrts/skirmish/internal/roster"
	"github.com/quickrts/skirmish/internal/unit"
	"github.com/quickrts/skirmish/pkg/core"
	"github.com/quickrts/skirmish/pkg/streaming"
)

// StatusSync selects when the authority broadcasts unit status.
type StatusSync string

const (
	// SyncPeriodic broadcasts status and targeting for every unit on every tick.
	SyncPeriodic StatusSync = "periodic"
	// SyncOnChange broadcasts only when the snapshot or decision differs from the last one sent.
	SyncOnChange StatusSync = "change"
)

// ParseStatusSync maps a config value to a StatusSync. Unknown values are periodic.
func ParseStatusSync(s string) StatusSync {
	if StatusSync(s) == SyncOnChange {
		return SyncOnChange
	}
	return SyncPeriodic
}

// Config holds node settings.
type Config struct {
	Perception perception.Config
	StatusSync StatusSync
	// LocalQueueSize bounds Submit.
	LocalQueueSize int
	// MaxMessagesPerTick bounds the inbox drain per tick. Zero drains everything.
	MaxMessagesPerTick int
}

// Dependencies holds the collaborators of a node.
type Dependencies struct {
	Role      core.Role
	Transport Transport
	Curves    *curve.Set
	Agents    movement.Factory

	// Optional
	Journal   journal.Backend
	Sink      Sink
	Telemetry combat.Telemetry
	Match     *match.Context
	Logger    *slog.Logger
	// TeamColor paints spawned units. Defaults to core.TeamColor.
	TeamColor func(core.TeamID) colorful.Color
}

// Stats is a point-in-time summary of a node, safe to read from any goroutine.
type Stats struct {
	Tick        uint64
	Units       int
	UnitsByTeam map[core.TeamID]int
	InboxLen    int
	Committed   uint64
	Applied     uint64
	Forwarded   uint64
	Rejected    uint64
	Duplicates  uint64
	Parked      int
	LastTick    time.Duration
}

// Node is one side of the replication channel. All methods except Submit
// and Stats must be called from the goroutine that runs Tick.
type Node struct {
	cfg  Config
	deps Dependencies
	role core.Role

	logger     *slog.Logger
	dispatcher *dispatcher.Dispatcher
	roster     *roster.Roster
	agents     map[core.UnitID]movement.Agent
	resolver   *combat.Resolver
	local      channel.Channel[streaming.Envelope]

	// authority: last committed sequence per unit
	seq    map[core.UnitID]uint64
	nextID core.UnitID
	// authority: mirror that spawned a unit
	owners map[core.UnitID]string
	// mirror: release order of incoming broadcasts
	sequencer *sequencer

	// change-triggered sync bookkeeping
	lastStatus   map[core.UnitID]core.UnitSnapshot
	lastDecision map[core.UnitID]unit.Decision

	tick      uint64
	committed uint64
	applied   uint64
	forwarded uint64
	rejected  uint64

	statsMu sync.RWMutex
	stats   Stats
}

// New creates a node and registers its message handlers.
func New(cfg Config, deps Dependencies) (*Node, error) {
	if deps.Transport == nil {
		return nil, errors.New("replication: transport is required")
	}
	if deps.Curves == nil {
		deps.Curves = curve.NewSet(curve.DefaultMaxLevels)
	}
	if deps.Agents == nil {
		deps.Agents = movement.NewLinear
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.TeamColor == nil {
		deps.TeamColor = core.TeamColor
	}
	if cfg.Perception.SightRadius == 0 && cfg.Perception.AttackRadius == 0 {
		cfg.Perception = perception.Config{
			SightRadius:  perception.DefaultSightRadius,
			AttackRadius: perception.DefaultAttackRadius,
		}
	}
	if cfg.StatusSync == "" {
		cfg.StatusSync = SyncPeriodic
	}
	if cfg.LocalQueueSize <= 0 {
		cfg.LocalQueueSize = 1024
	}

	logger := deps.Logger.With("component", "replication")
	d, err := dispatcher.New(logging.NewDispatcherLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	n := &Node{
		cfg:          cfg,
		deps:         deps,
		role:         deps.Role,
		logger:       logger,
		dispatcher:   d,
		roster:       roster.New(),
		agents:       make(map[core.UnitID]movement.Agent),
		local:        channel.New[streaming.Envelope](cfg.LocalQueueSize),
		seq:          make(map[core.UnitID]uint64),
		nextID:       1,
		owners:       make(map[core.UnitID]string),
		sequencer:    newSequencer(),
		lastStatus:   make(map[core.UnitID]core.UnitSnapshot),
		lastDecision: make(map[core.UnitID]unit.Decision),
	}
	n.resolver = combat.NewResolver(n, deps.Telemetry, logger)

	d.ObserveQueue("inbox", func() int { return deps.Transport.Inbox().Len() })
	d.ObserveQueue("local", n.local.Len)
	n.registerHandlers()

	return n, nil
}

// Role returns the role of this node.
func (n *Node) Role() core.Role {
	return n.role
}

// Roster returns the units known to this node.
func (n *Node) Roster() *roster.Roster {
	return n.roster
}

// Agent returns the movement agent of a unit.
func (n *Node) Agent(id core.UnitID) (movement.Agent, bool) {
	a, ok := n.agents[id]
	return a, ok
}

// Submit queues a command from another goroutine (player input, scripts).
// It is applied or forwarded on the next tick. Returns false when the queue is full.
func (n *Node) Submit(env streaming.Envelope) bool {
	env.Command = true
	env.Seq = 0
	return n.local.TrySend(env)
}

// Stats returns the summary captured at the end of the last tick.
func (n *Node) Stats() Stats {
	n.statsMu.RLock()
	defer n.statsMu.RUnlock()
	s := n.stats
	s.UnitsByTeam = make(map[core.TeamID]int, len(n.stats.UnitsByTeam))
	for k, v := range n.stats.UnitsByTeam {
		s.UnitsByTeam[k] = v
	}
	return s
}

// applyOrForward is the single entry point of every mutation. Mirrors
// forward the command to the authority and change nothing locally; the
// authority validates, stamps the subject unit's next sequence, journals,
// publishes and applies the broadcast locally.
func (n *Node) applyOrForward(env streaming.Envelope) error {
	env.Command = true
	env.Seq = 0

	if n.role != core.Authority {
		if err := n.deps.Transport.Forward(env); err != nil {
			return fmt.Errorf("forward %s for unit %d: %w", env.Type, env.Unit, err)
		}
		n.forwarded++
		n.logger.Debug("Forwarded to authority", "type", env.Type, "unit", env.Unit, "reason", ErrNotAuthority)
		return nil
	}

	return n.commit(env)
}

func (n *Node) commit(cmd streaming.Envelope) error {
	env, err := n.prepare(cmd)
	if err != nil {
		n.rejected++
		return err
	}

	n.seq[env.Unit]++
	b := env.AsBroadcast(n.seq[env.Unit])
	n.committed++

	if n.deps.Journal != nil {
		if err := n.deps.Journal.Record(b); err != nil {
			n.logger.Warn("Failed to journal broadcast", "type", b.Type, "unit", b.Unit, "seq", b.Seq, "error", err)
		}
	}
	if err := n.deps.Transport.Publish(b); err != nil {
		n.logger.Warn("Failed to publish broadcast", "type", b.Type, "unit", b.Unit, "seq", b.Seq, "error", err)
	}

	return n.dispatch(b)
}

func (n *Node) dispatch(env streaming.Envelope) error {
	err := n.dispatcher.Dispatch(dispatcher.Event{Envelope: env, Received: time.Now()})
	if err == nil && !env.Command {
		n.applied++
	}
	return err
}

// ApplyHealth commits a new health value. Implements combat.Committer.
func (n *Node) ApplyHealth(id core.UnitID, health int) error {
	env, err := streaming.NewEnvelope(streaming.TypeApplyHealth, id, streaming.ApplyHealthPayload{Health: health})
	if err != nil {
		return err
	}
	return n.applyOrForward(env)
}

// DestroyUnit commits the destruction of a unit. Implements combat.Committer.
func (n *Node) DestroyUnit(id core.UnitID) error {
	env, err := streaming.NewEnvelope(streaming.TypeDestroy, id, nil)
	if err != nil {
		return err
	}
	return n.applyOrForward(env)
}

// SetTarget commits a targeting decision. Passing the unit's own id for a
// field means "no target".
func (n *Node) SetTarget(id, pursuit, attack core.UnitID) error {
	env, err := streaming.NewEnvelope(streaming.TypeSetTarget, id, streaming.SetTargetPayload{Pursuit: pursuit, Attack: attack})
	if err != nil {
		return err
	}
	return n.applyOrForward(env)
}

// SetMoveOrder commits a player-issued destination.
func (n *Node) SetMoveOrder(id core.UnitID, dest geom.XY) error {
	env, err := streaming.NewEnvelope(streaming.TypeMoveOrder, id, streaming.MoveOrderPayload{Destination: dest})
	if err != nil {
		return err
	}
	return n.applyOrForward(env)
}

// UpdateStatus commits the authority-owned status of a unit.
func (n *Node) UpdateStatus(id core.UnitID, snap core.UnitSnapshot) error {
	env, err := streaming.NewEnvelope(streaming.TypeStatus, id, streaming.StatusPayload{Snapshot: snap})
	if err != nil {
		return err
	}
	return n.applyOrForward(env)
}

// Attack commits an attack of attacker on victim.
func (n *Node) Attack(attacker, victim core.UnitID) error {
	env, err := streaming.NewEnvelope(streaming.TypeAttack, attacker, streaming.AttackPayload{Victim: victim})
	if err != nil {
		return err
	}
	return n.applyOrForward(env)
}

// Spawn creates a level 1 unit of team at pos. On the authority it returns
// the new id; on a mirror the request is forwarded and NoUnit is returned.
func (n *Node) Spawn(team core.TeamID, pos geom.XY) (core.UnitID, error) {
	env, err := streaming.NewEnvelope(streaming.TypeSpawn, core.NoUnit, streaming.SpawnPayload{
		Record: core.SpawnRecord{Team: team, Position: pos},
	})
	if err != nil {
		return core.NoUnit, err
	}
	if n.role != core.Authority {
		return core.NoUnit, n.applyOrForward(env)
	}
	id := n.nextID
	if err := n.applyOrForward(env); err != nil {
		return core.NoUnit, err
	}
	return id, nil
}

// Owner returns the mirror that spawned a unit. Units spawned on the
// authority itself have no owner.
func (n *Node) Owner(id core.UnitID) (string, bool) {
	o, ok := n.owners[id]
	return o, ok
}

// disown destroys every unit spawned by a mirror that has left.
func (n *Node) disown(origin string) {
	var ids []core.UnitID
	for id, o := range n.owners {
		if o == origin {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	n.logger.Info("Mirror left, destroying its units", "origin", origin, "units", len(ids))
	for _, id := range ids {
		delete(n.owners, id)
		n.report(streaming.Envelope{Type: streaming.TypeDestroy, Unit: id}, n.DestroyUnit(id))
	}
}

// Select toggles the local selection flag. Selection is presentation state
// of this node only and is never replicated.
func (n *Node) Select(id core.UnitID, selected bool) error {
	u, ok := n.roster.GetVisible(id)
	if !ok {
		return ErrInvalidReference
	}
	u.Selected = selected
	return nil
}
