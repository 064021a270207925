package replication

import (
	"github.com/quickrts/skirmish/pkg/core"
	"github.com/quickrts/skirmish/pkg/streaming"
)

// sequencer releases broadcasts in per-unit sequence order, exactly once.
// Broadcasts ahead of a gap are parked until the gap fills; anything at or
// below the last released sequence is a duplicate.
type sequencer struct {
	last       map[core.UnitID]uint64
	parked     map[core.UnitID]map[uint64]streaming.Envelope
	duplicates uint64
}

func newSequencer() *sequencer {
	return &sequencer{
		last:   make(map[core.UnitID]uint64),
		parked: make(map[core.UnitID]map[uint64]streaming.Envelope),
	}
}

// offer returns the broadcasts that became applicable, in order.
func (s *sequencer) offer(env streaming.Envelope) []streaming.Envelope {
	last := s.last[env.Unit]
	switch {
	case env.Seq <= last:
		s.duplicates++
		return nil
	case env.Seq > last+1:
		p, ok := s.parked[env.Unit]
		if !ok {
			p = make(map[uint64]streaming.Envelope)
			s.parked[env.Unit] = p
		}
		if _, dup := p[env.Seq]; dup {
			s.duplicates++
		}
		p[env.Seq] = env
		return nil
	}

	ready := []streaming.Envelope{env}
	last = env.Seq
	if p, ok := s.parked[env.Unit]; ok {
		for {
			next, ok := p[last+1]
			if !ok {
				break
			}
			delete(p, last+1)
			ready = append(ready, next)
			last++
		}
		if len(p) == 0 {
			delete(s.parked, env.Unit)
		}
	}
	s.last[env.Unit] = last
	return ready
}

// parkedCount returns how many broadcasts wait for a gap to fill.
func (s *sequencer) parkedCount() int {
	n := 0
	for _, p := range s.parked {
		n += len(p)
	}
	return n
}

// forget drops everything known about a removed unit. A full journal
// replay recreates and destroys it again in order.
func (s *sequencer) forget(id core.UnitID) {
	delete(s.last, id)
	delete(s.parked, id)
}
