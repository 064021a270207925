// internal/journal/memory/memory.go
package memory

import (
	"errors"
	"sync"

	"github.com/quickrts/skirmish/pkg/core"
	"github.com/quickrts/skirmish/pkg/streaming"
)

var ErrNoMatch = errors.New("no match started")

type key struct {
	unit core.UnitID
	seq  uint64
}

// Backend keeps the journal in a slice.
type Backend struct {
	mu      sync.RWMutex
	match   *core.Match
	entries []streaming.Envelope
	seen    map[key]struct{}
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{seen: make(map[key]struct{})}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartMatch begins a new journal.
func (b *Backend) StartMatch(m *core.Match) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.match = m
	b.entries = nil
	b.seen = make(map[key]struct{})
	return nil
}

// EndMatch keeps the entries readable until the next StartMatch.
func (b *Backend) EndMatch() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.match = nil
	return nil
}

func (b *Backend) Record(env streaming.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.match == nil {
		return ErrNoMatch
	}
	k := key{unit: env.Unit, seq: env.Seq}
	if _, dup := b.seen[k]; dup {
		return nil
	}
	b.seen[k] = struct{}{}
	b.entries = append(b.entries, env)
	return nil
}

func (b *Backend) Entries() ([]streaming.Envelope, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]streaming.Envelope, len(b.entries))
	copy(out, b.entries)
	return out, nil
}

func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
