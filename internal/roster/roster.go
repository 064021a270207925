// Package roster holds the units known to one node.
package roster

import (
	"slices"
	"sync"

	"github.com/quickrts/skirmish/pkg/core"
)

// Roster indexes units by id. Removal is deferred: destroyed units are
// scheduled and dropped by Sweep at the end of a tick, so lookups within
// the same propagation step still resolve them as invisible.
type Roster struct {
	m       sync.RWMutex
	units   map[core.UnitID]*core.Unit
	removal []core.UnitID
}

func New() *Roster {
	return &Roster{
		units: make(map[core.UnitID]*core.Unit),
	}
}

// Add inserts u, replacing any unit with the same id.
func (r *Roster) Add(u *core.Unit) {
	r.m.Lock()
	defer r.m.Unlock()
	r.units[u.ID] = u
}

// Get resolves an id. NoUnit never resolves.
func (r *Roster) Get(id core.UnitID) (*core.Unit, bool) {
	if id == core.NoUnit {
		return nil, false
	}
	r.m.RLock()
	defer r.m.RUnlock()
	u, ok := r.units[id]
	return u, ok
}

// GetVisible resolves an id to a unit that is still visible.
func (r *Roster) GetVisible(id core.UnitID) (*core.Unit, bool) {
	u, ok := r.Get(id)
	if !ok || !u.Visible {
		return nil, false
	}
	return u, true
}

// All returns every unit ordered by id.
func (r *Roster) All() []*core.Unit {
	r.m.RLock()
	out := make([]*core.Unit, 0, len(r.units))
	for _, u := range r.units {
		out = append(out, u)
	}
	r.m.RUnlock()

	slices.SortFunc(out, func(a, b *core.Unit) int {
		return int(a.ID) - int(b.ID)
	})
	return out
}

// Opponents returns the visible units of every team except team, ordered by id.
func (r *Roster) Opponents(team core.TeamID) []*core.Unit {
	all := r.All()
	out := all[:0]
	for _, u := range all {
		if u.Team != team && u.Visible {
			out = append(out, u)
		}
	}
	return out
}

// ClearTargetsTo detaches every unit that targets id and returns how many were cleared.
func (r *Roster) ClearTargetsTo(id core.UnitID) int {
	r.m.RLock()
	defer r.m.RUnlock()
	n := 0
	for _, u := range r.units {
		if u.TargetID == id {
			u.TargetID = core.NoUnit
			n++
		}
	}
	return n
}

// ScheduleRemoval marks id for removal at the next Sweep.
func (r *Roster) ScheduleRemoval(id core.UnitID) {
	r.m.Lock()
	defer r.m.Unlock()
	if slices.Contains(r.removal, id) {
		return
	}
	r.removal = append(r.removal, id)
}

// Sweep removes every scheduled unit and returns their ids.
func (r *Roster) Sweep() []core.UnitID {
	r.m.Lock()
	defer r.m.Unlock()
	removed := r.removal
	for _, id := range removed {
		delete(r.units, id)
	}
	r.removal = nil
	return removed
}

// Len returns the number of units, including those scheduled for removal.
func (r *Roster) Len() int {
	r.m.RLock()
	defer r.m.RUnlock()
	return len(r.units)
}

// CountByTeam returns the number of visible units per team.
func (r *Roster) CountByTeam() map[core.TeamID]int {
	r.m.RLock()
	defer r.m.RUnlock()
	out := make(map[core.TeamID]int)
	for _, u := range r.units {
		if u.Visible {
			out[u.Team]++
		}
	}
	return out
}
