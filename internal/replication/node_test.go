package replication

import (
	"io"
	"log/slog"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickrts/skirmish/internal/curve"
	"github.com/quickrts/skirmish/internal/journal/memory"
	"github.com/quickrts/skirmish/internal/transport/loopback"
	"github.com/quickrts/skirmish/pkg/core"
	"github.com/quickrts/skirmish/pkg/streaming"
)

const dt = 0.5

type recorder struct {
	health    map[core.UnitID][]int
	destroyed []core.UnitID
}

func newRecorder() *recorder {
	return &recorder{health: make(map[core.UnitID][]int)}
}

func (r *recorder) OnDamage(_, victim *core.Unit, _, health int) {
	r.health[victim.ID] = append(r.health[victim.ID], health)
}

func (r *recorder) OnDestroyed(victim *core.Unit) {
	r.destroyed = append(r.destroyed, victim.ID)
}

type sink struct {
	calls int
	last  []View
}

func (s *sink) Present(views []View) {
	s.calls++
	s.last = views
}

func testCurves(t *testing.T) *curve.Set {
	t.Helper()
	set := curve.NewSet(curve.DefaultMaxLevels)
	require.NoError(t, set.SetFormula(0, curve.Health, "y=100"))
	require.NoError(t, set.SetFormula(0, curve.Attack, "y=20"))
	require.NoError(t, set.SetFormula(0, curve.AttackCooldown, "y=2"))
	require.NoError(t, set.SetFormula(1, curve.Health, "y=50"))
	require.NoError(t, set.SetFormula(1, curve.AttackCooldown, "y=10"))
	return set
}

type harness struct {
	bus       *loopback.Bus
	journal   *memory.Backend
	host      *Node
	telemetry *recorder
	curves    *curve.Set
}

func newHarness(t *testing.T, sync StatusSync) *harness {
	t.Helper()
	j := memory.New()
	require.NoError(t, j.StartMatch(&core.Match{Name: "test"}))

	h := &harness{
		bus:       loopback.NewBus(j, 0),
		journal:   j,
		telemetry: newRecorder(),
		curves:    testCurves(t),
	}

	host, err := New(Config{StatusSync: sync}, Dependencies{
		Role:      core.Authority,
		Transport: h.bus.Host(),
		Curves:    h.curves,
		Journal:   j,
		Telemetry: h.telemetry,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	h.host = host
	return h
}

func (h *harness) join(t *testing.T) *Node {
	t.Helper()
	mirror, _ := h.joinEndpoint(t)
	return mirror
}

func (h *harness) joinEndpoint(t *testing.T) (*Node, *loopback.Endpoint) {
	t.Helper()
	ep, err := h.bus.Join()
	require.NoError(t, err)
	mirror, err := New(Config{}, Dependencies{
		Role:      core.Mirror,
		Transport: ep,
		Curves:    h.curves,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return mirror, ep
}

func spawn(t *testing.T, n *Node, team core.TeamID, x, y float64) core.UnitID {
	t.Helper()
	id, err := n.Spawn(team, geom.XY{X: x, Y: y})
	require.NoError(t, err)
	require.NotEqual(t, core.NoUnit, id)
	return id
}

func unitOf(t *testing.T, n *Node, id core.UnitID) *core.Unit {
	t.Helper()
	u, ok := n.Roster().Get(id)
	require.True(t, ok, "unit %d not found", id)
	return u
}

func assertTargetsVisible(t *testing.T, n *Node) {
	t.Helper()
	for _, u := range n.Roster().All() {
		if !u.HasTarget() {
			continue
		}
		_, ok := n.Roster().GetVisible(u.TargetID)
		assert.True(t, ok, "unit %d targets invisible unit %d", u.ID, u.TargetID)
	}
}

func TestSpawnAssignsIDsAndSequences(t *testing.T) {
	h := newHarness(t, SyncPeriodic)

	a := spawn(t, h.host, 0, 0, 0)
	b := spawn(t, h.host, 1, 1, 0)

	assert.Equal(t, core.UnitID(1), a)
	assert.Equal(t, core.UnitID(2), b)

	ua := unitOf(t, h.host, a)
	assert.Equal(t, 100, ua.MaxHealth)
	assert.Equal(t, 100, ua.CurrentHealth)
	assert.Equal(t, 20.0, ua.AttackPower)
	assert.Equal(t, 2.0, ua.AttackCooldown)
	assert.Equal(t, core.Red, ua.BaseColor)
	assert.Equal(t, uint64(1), ua.Version)
	assert.Equal(t, core.Authority, ua.Role)

	assert.Equal(t, core.Blue, unitOf(t, h.host, b).BaseColor)
	assert.Equal(t, 2, h.journal.Len())
}

func TestAttackSequenceDestroysVictim(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	mirror := h.join(t)

	a := spawn(t, h.host, 0, 0, 0)
	b := spawn(t, h.host, 1, 1, 0)
	c := spawn(t, h.host, 0, 0, 5)

	require.NoError(t, h.host.SetTarget(c, b, b))
	require.Equal(t, b, unitOf(t, h.host, c).TargetID)

	victim := unitOf(t, h.host, b)
	require.NoError(t, h.host.Attack(a, b))
	assert.Equal(t, 30, victim.CurrentHealth)
	assert.Zero(t, victim.RecoverProgress)
	require.NoError(t, h.host.Attack(a, b))
	assert.Equal(t, 10, victim.CurrentHealth)
	require.NoError(t, h.host.Attack(a, b))

	assert.Equal(t, 0, victim.CurrentHealth)
	assert.False(t, victim.Visible)
	assert.Equal(t, core.NoUnit, unitOf(t, h.host, c).TargetID)
	assert.Equal(t, []int{30, 10, 0}, h.telemetry.health[b])
	assert.Equal(t, []core.UnitID{b}, h.telemetry.destroyed)

	// a destroyed victim is never hit again
	err := h.host.Attack(a, b)
	assert.ErrorIs(t, err, ErrInvalidReference)
	assert.Equal(t, 0, victim.CurrentHealth)

	mirror.Tick(dt)
	_, ok := mirror.Roster().Get(b)
	assert.False(t, ok, "destroyed unit should be swept on the mirror")
	assert.Equal(t, core.NoUnit, unitOf(t, mirror, c).TargetID)
	assert.Equal(t, 100, unitOf(t, mirror, a).CurrentHealth)
}

func TestTickCombatScenario(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	mirror := h.join(t)

	a := spawn(t, h.host, 0, 0, 0)
	b := spawn(t, h.host, 1, 1, 0)

	for i := 0; i < 40; i++ {
		h.host.Tick(dt)
		mirror.Tick(dt)
		assertTargetsVisible(t, h.host)
		assertTargetsVisible(t, mirror)
	}

	assert.Equal(t, []int{30, 10, 0}, h.telemetry.health[b])
	assert.Equal(t, []core.UnitID{b}, h.telemetry.destroyed)

	_, ok := h.host.Roster().Get(b)
	assert.False(t, ok)
	_, ok = mirror.Roster().Get(b)
	assert.False(t, ok)

	assert.Equal(t, core.NoUnit, unitOf(t, h.host, a).TargetID)
	assert.Equal(t, core.NoUnit, unitOf(t, mirror, a).TargetID)
	assert.Equal(t, 100, unitOf(t, mirror, a).CurrentHealth)

	stats := h.host.Stats()
	assert.Equal(t, uint64(40), stats.Tick)
	assert.Equal(t, 1, stats.Units)
	assert.Zero(t, stats.Rejected)
	assert.Zero(t, mirror.Stats().Parked)
}

func TestSetTargetSelfClears(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	a := spawn(t, h.host, 0, 0, 0)
	b := spawn(t, h.host, 1, 1, 0)

	require.NoError(t, h.host.SetTarget(a, b, b))
	require.Equal(t, b, unitOf(t, h.host, a).TargetID)

	require.NoError(t, h.host.SetTarget(a, a, a))
	assert.Equal(t, core.NoUnit, unitOf(t, h.host, a).TargetID)
}

func TestSetTargetSteersAgent(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	a := spawn(t, h.host, 0, 0, 0)
	b := spawn(t, h.host, 1, 4, 0)

	require.NoError(t, h.host.SetTarget(a, b, b))
	agent, ok := h.host.Agent(a)
	require.True(t, ok)
	assert.Equal(t, 0.5, agent.StoppingDistance())
	assert.InDelta(t, 3.5, agent.RemainingDistance(), 1e-9)

	require.NoError(t, h.host.SetTarget(a, a, a))
	assert.Equal(t, 0.0, agent.StoppingDistance())
	assert.Zero(t, agent.RemainingDistance())
}

func TestSetTargetRejectsInvisibleTarget(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	a := spawn(t, h.host, 0, 0, 0)

	err := h.host.SetTarget(a, 99, 99)
	assert.ErrorIs(t, err, ErrInvalidReference)
	assert.Equal(t, core.NoUnit, unitOf(t, h.host, a).TargetID)

	err = h.host.SetTarget(99, a, a)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestMoveOrderIsIdempotent(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	a := spawn(t, h.host, 0, 0, 0)
	b := spawn(t, h.host, 1, 1, 0)
	p := geom.XY{X: 10, Y: 0}

	require.NoError(t, h.host.SetMoveOrder(a, p))
	u := unitOf(t, h.host, a)
	assert.True(t, u.HasDestination)
	assert.True(t, u.PlayerDirected)
	assert.Equal(t, p, u.CommandedDestination)
	assert.Equal(t, p, u.StandPoint)

	require.NoError(t, h.host.SetTarget(a, b, b))
	require.Equal(t, b, u.TargetID)

	// same destination again: nothing changes
	require.NoError(t, h.host.SetMoveOrder(a, p))
	assert.Equal(t, b, u.TargetID)

	require.NoError(t, h.host.SetMoveOrder(a, geom.XY{X: 0, Y: 10}))
	assert.Equal(t, core.NoUnit, u.TargetID)
}

func TestPlayerDirectedSkipsTargetingUntilArrival(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	a := spawn(t, h.host, 0, 0, 0)
	spawn(t, h.host, 1, 1, 0)

	require.NoError(t, h.host.SetMoveOrder(a, geom.XY{X: 3, Y: 0}))
	u := unitOf(t, h.host, a)

	h.host.Tick(dt)
	assert.True(t, u.PlayerDirected)
	assert.Equal(t, core.NoUnit, u.TargetID, "an ordered unit ignores enemies on the way")

	for i := 0; i < 20 && u.PlayerDirected; i++ {
		h.host.Tick(dt)
	}
	assert.False(t, u.PlayerDirected)

	h.host.Tick(dt)
	assert.True(t, u.HasTarget(), "arrived unit picks a target again")
}

func TestMirrorForwardsCommands(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	mirror := h.join(t)

	id, err := mirror.Spawn(1, geom.XY{X: 2, Y: 2})
	require.NoError(t, err)
	assert.Equal(t, core.NoUnit, id)
	assert.Zero(t, mirror.Roster().Len())

	h.host.Tick(dt)
	mirror.Tick(dt)

	units := mirror.Roster().All()
	require.Len(t, units, 1)
	u := units[0]
	assert.Equal(t, core.Mirror, u.Role)
	assert.Equal(t, core.TeamID(1), u.Team)
	assert.Equal(t, 50, u.MaxHealth)

	p := geom.XY{X: 5, Y: 5}
	require.NoError(t, mirror.SetMoveOrder(u.ID, p))
	assert.False(t, u.HasDestination, "mirrors never apply their own commands")

	h.host.Tick(dt)
	mirror.Tick(dt)
	assert.Equal(t, uint64(2), mirror.Stats().Forwarded)
	assert.True(t, u.HasDestination)
	assert.Equal(t, p, u.CommandedDestination)
	assert.Equal(t, p, unitOf(t, h.host, u.ID).CommandedDestination)
}

func TestSubmitQueuesForNextTick(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	a := spawn(t, h.host, 0, 0, 0)

	env, err := streaming.NewEnvelope(streaming.TypeMoveOrder, a, streaming.MoveOrderPayload{Destination: geom.XY{X: 4, Y: 4}})
	require.NoError(t, err)
	require.True(t, h.host.Submit(env))
	assert.False(t, unitOf(t, h.host, a).HasDestination)

	h.host.Tick(dt)
	assert.True(t, unitOf(t, h.host, a).HasDestination)
}

func TestLateJoinReplaysJournal(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	a := spawn(t, h.host, 0, 0, 0)
	b := spawn(t, h.host, 1, 1, 0)
	require.NoError(t, h.host.Attack(a, b))
	h.host.Tick(dt)

	mirror := h.join(t)
	mirror.Tick(dt)

	hb := unitOf(t, h.host, b)
	mb := unitOf(t, mirror, b)
	assert.Equal(t, hb.CurrentHealth, mb.CurrentHealth)
	assert.Equal(t, hb.Version, mb.Version)
	assert.Equal(t, 2, mirror.Roster().Len())
	assert.Zero(t, mirror.Stats().Parked)
}

func TestMirrorDropsDuplicateReplay(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	mirror := h.join(t)
	spawn(t, h.host, 0, 0, 0)

	entries, err := h.journal.Entries()
	require.NoError(t, err)
	mirror.Tick(dt)
	for _, env := range entries {
		mirror.receive(env)
	}
	mirror.Tick(dt)

	assert.Equal(t, 1, mirror.Roster().Len())
	assert.Equal(t, uint64(1), mirror.Stats().Duplicates)
}

func TestStatusSyncOnChangeStopsWhenIdle(t *testing.T) {
	h := newHarness(t, SyncOnChange)
	spawn(t, h.host, 0, 0, 0)
	spawn(t, h.host, 1, 100, 100)

	// the slowest cooldown reaches zero after 20 ticks
	for i := 0; i < 25; i++ {
		h.host.Tick(dt)
	}
	settled := h.journal.Len()
	for i := 0; i < 10; i++ {
		h.host.Tick(dt)
	}
	assert.Equal(t, settled, h.journal.Len())
}

func TestStatusSyncPeriodicEveryTick(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	spawn(t, h.host, 0, 0, 0)
	spawn(t, h.host, 1, 100, 100)

	h.host.Tick(dt)
	before := h.journal.Len()
	h.host.Tick(dt)
	// one set_target and one status per unit
	assert.Equal(t, before+4, h.journal.Len())
}

func TestSelectIsLocal(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	s := &sink{}
	h.host.deps.Sink = s
	a := spawn(t, h.host, 0, 0, 0)

	require.NoError(t, h.host.Select(a, true))
	assert.ErrorIs(t, h.host.Select(42, true), ErrInvalidReference)
	assert.Equal(t, 1, h.journal.Len(), "selection is never broadcast")

	h.host.Tick(dt)
	assert.Equal(t, 1, s.calls)
	require.Len(t, s.last, 1)
	assert.True(t, s.last[0].Selected)
	assert.Equal(t, core.Red, s.last[0].Color)
}

func TestParseStatusSync(t *testing.T) {
	assert.Equal(t, SyncOnChange, ParseStatusSync("change"))
	assert.Equal(t, SyncPeriodic, ParseStatusSync("periodic"))
	assert.Equal(t, SyncPeriodic, ParseStatusSync("bogus"))
}

func TestAuthorityRejectsForgedMirrorCommands(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	mirror := h.join(t)
	a := spawn(t, h.host, 0, 0, 0)
	b := spawn(t, h.host, 1, 100, 0)
	mirror.Tick(dt)

	require.NoError(t, mirror.ApplyHealth(b, 1))
	require.NoError(t, mirror.DestroyUnit(a))
	require.NoError(t, mirror.Attack(a, b))
	require.NoError(t, mirror.UpdateStatus(b, core.UnitSnapshot{CurrentHealth: 1}))
	h.host.Tick(dt)
	mirror.Tick(dt)

	assert.Equal(t, uint64(4), h.host.Stats().Rejected)
	assert.True(t, unitOf(t, h.host, a).Visible)
	assert.Equal(t, 50, unitOf(t, h.host, b).CurrentHealth)
	assert.True(t, unitOf(t, mirror, a).Visible)
	assert.Equal(t, 50, unitOf(t, mirror, b).CurrentHealth)
	assert.Empty(t, h.telemetry.destroyed)
}

func TestAuthorityRejectsMirrorTargetingFriend(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	mirror := h.join(t)
	a := spawn(t, h.host, 0, 0, 0)
	friend := spawn(t, h.host, 0, 0, 50)
	foe := spawn(t, h.host, 1, 50, 0)
	mirror.Tick(dt)

	require.NoError(t, mirror.SetTarget(a, friend, friend))
	h.host.Tick(dt)
	assert.Equal(t, uint64(1), h.host.Stats().Rejected)
	assert.False(t, h.committedTarget(t, a, friend))

	require.NoError(t, mirror.SetTarget(a, foe, foe))
	h.host.Tick(dt)
	assert.Equal(t, uint64(1), h.host.Stats().Rejected)
	assert.True(t, h.committedTarget(t, a, foe))
}

// committedTarget reports whether the journal holds a set_target that
// pointed id at target.
func (h *harness) committedTarget(t *testing.T, id, target core.UnitID) bool {
	t.Helper()
	entries, err := h.journal.Entries()
	require.NoError(t, err)
	for _, env := range entries {
		if env.Type != streaming.TypeSetTarget || env.Unit != id {
			continue
		}
		p, err := streaming.Decode[streaming.SetTargetPayload](env)
		require.NoError(t, err)
		if p.Pursuit == target {
			return true
		}
	}
	return false
}

func TestMirrorOnlyDirectsItsOwnUnits(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	owner, ep := h.joinEndpoint(t)
	other := h.join(t)

	_, err := owner.Spawn(0, geom.XY{X: 0, Y: 0})
	require.NoError(t, err)
	h.host.Tick(dt)
	units := h.host.Roster().All()
	require.Len(t, units, 1)
	id := units[0].ID

	origin, ok := h.host.Owner(id)
	require.True(t, ok)
	assert.Equal(t, ep.Name(), origin)

	require.NoError(t, other.SetMoveOrder(id, geom.XY{X: 9, Y: 9}))
	h.host.Tick(dt)
	assert.Equal(t, uint64(1), h.host.Stats().Rejected)
	assert.False(t, unitOf(t, h.host, id).HasDestination)

	dest := geom.XY{X: 3, Y: 3}
	require.NoError(t, owner.SetMoveOrder(id, dest))
	h.host.Tick(dt)
	assert.Equal(t, dest, unitOf(t, h.host, id).CommandedDestination)
}

func TestMirrorLeaveDestroysItsUnits(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	mirror, ep := h.joinEndpoint(t)
	watcher := h.join(t)
	own := spawn(t, h.host, 1, 50, 50)

	_, err := mirror.Spawn(0, geom.XY{X: 0, Y: 0})
	require.NoError(t, err)
	h.host.Tick(dt)
	require.Equal(t, 2, h.host.Roster().Len())
	var spawned core.UnitID
	for _, u := range h.host.Roster().All() {
		if u.ID != own {
			spawned = u.ID
		}
	}
	watcher.Tick(dt)
	require.Equal(t, 2, watcher.Roster().Len())

	ep.Close()
	h.host.Tick(dt)
	watcher.Tick(dt)

	_, ok := h.host.Roster().Get(spawned)
	assert.False(t, ok)
	_, ok = h.host.Owner(spawned)
	assert.False(t, ok)
	unitOf(t, h.host, own)
	_, ok = watcher.Roster().Get(spawned)
	assert.False(t, ok)
}

func TestTeamColorDependencyPaintsUnits(t *testing.T) {
	green := colorful.Color{R: 0, G: 1, B: 0}
	bus := loopback.NewBus(nil, 0)
	host, err := New(Config{}, Dependencies{
		Role:      core.Authority,
		Transport: bus.Host(),
		Curves:    testCurves(t),
		TeamColor: func(core.TeamID) colorful.Color { return green },
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	ep, err := bus.Join()
	require.NoError(t, err)
	mirror, err := New(Config{}, Dependencies{
		Role:      core.Mirror,
		Transport: ep,
		Curves:    testCurves(t),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	id := spawn(t, host, 1, 0, 0)
	mirror.Tick(dt)

	assert.Equal(t, green, unitOf(t, host, id).BaseColor)
	assert.Equal(t, green, unitOf(t, mirror, id).BaseColor)
}

func TestMirrorCatchesUpAfterInboxOverflow(t *testing.T) {
	j := memory.New()
	require.NoError(t, j.StartMatch(&core.Match{Name: "overflow"}))
	bus := loopback.NewBus(j, 2)
	host, err := New(Config{}, Dependencies{
		Role:      core.Authority,
		Transport: bus.Host(),
		Curves:    testCurves(t),
		Journal:   j,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	ep, err := bus.Join()
	require.NoError(t, err)
	mirror, err := New(Config{}, Dependencies{
		Role:      core.Mirror,
		Transport: ep,
		Curves:    testCurves(t),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		spawn(t, host, 0, float64(i)*20, 0)
	}
	assert.Positive(t, ep.Resyncs())

	mirror.Tick(dt)
	assert.Equal(t, 5, mirror.Roster().Len())
	assert.Zero(t, mirror.Stats().Parked)
}

func TestSweepForgetsSequences(t *testing.T) {
	h := newHarness(t, SyncPeriodic)
	mirror := h.join(t)
	a := spawn(t, h.host, 0, 0, 0)
	b := spawn(t, h.host, 1, 1, 0)
	mirror.Tick(dt)
	require.Contains(t, mirror.sequencer.last, b)

	require.NoError(t, h.host.DestroyUnit(b))
	h.host.Tick(dt)
	mirror.Tick(dt)

	assert.NotContains(t, mirror.sequencer.last, b)
	assert.NotContains(t, h.host.seq, b)
	assert.Contains(t, mirror.sequencer.last, a)
}
