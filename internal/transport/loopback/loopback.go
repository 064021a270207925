// Package loopback connects an authority and its mirrors inside one process.
package loopback

import (
	"errors"
	"fmt"
	"sync"

	"github.com/quickrts/skirmish/internal/channel"
	"github.com/quickrts/skirmish/internal/journal"
	"github.com/quickrts/skirmish/pkg/streaming"
)

// DefaultInboxSize is used when NewBus is given a size below 1.
const DefaultInboxSize = 4096

var (
	ErrNoHost    = errors.New("no host attached")
	ErrInboxFull = errors.New("inbox full")
	ErrClosed    = errors.New("endpoint closed")
	ErrWrongSide = errors.New("operation not available on this side")
)

// Bus links one host endpoint with any number of mirror endpoints.
type Bus struct {
	mu        sync.Mutex
	inboxSize int
	journal   journal.Backend
	host      *Endpoint
	mirrors   map[*Endpoint]struct{}
	joined    int
}

// NewBus creates a bus. When j is set, mirrors that join replay it first.
func NewBus(j journal.Backend, inboxSize int) *Bus {
	if inboxSize < 1 {
		inboxSize = DefaultInboxSize
	}
	return &Bus{
		inboxSize: inboxSize,
		journal:   j,
		mirrors:   make(map[*Endpoint]struct{}),
	}
}

// Host returns the host endpoint, creating it on first use.
func (b *Bus) Host() *Endpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.host == nil {
		b.host = &Endpoint{bus: b, host: true, inbox: channel.New[streaming.Envelope](b.inboxSize)}
	}
	return b.host
}

// Join attaches a new mirror named mirror-N. Every journaled broadcast is
// queued in its inbox before it starts receiving live broadcasts.
func (b *Bus) Join() (*Endpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	inbox, err := b.replay()
	if err != nil {
		return nil, err
	}
	b.joined++
	ep := &Endpoint{bus: b, name: fmt.Sprintf("mirror-%d", b.joined), inbox: inbox}
	b.mirrors[ep] = struct{}{}
	return ep, nil
}

// replay returns a fresh inbox holding the whole journal. Callers hold mu.
func (b *Bus) replay() (channel.Channel[streaming.Envelope], error) {
	var backlog []streaming.Envelope
	if b.journal != nil {
		entries, err := b.journal.Entries()
		if err != nil {
			return nil, fmt.Errorf("reading journal: %w", err)
		}
		backlog = entries
	}
	inbox := channel.New[streaming.Envelope](b.inboxSize + len(backlog))
	for _, env := range backlog {
		inbox.TrySend(env)
	}
	return inbox, nil
}

// Mirrors returns the number of attached mirrors.
func (b *Bus) Mirrors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.mirrors)
}

func (b *Bus) leave(ep *Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ep.host {
		b.host = nil
		return
	}
	if _, ok := b.mirrors[ep]; !ok {
		return
	}
	delete(b.mirrors, ep)
	if b.host != nil {
		b.host.inbox.TrySend(streaming.Leave(ep.name))
	}
}

// Endpoint is one side of the bus. It implements replication.Transport.
type Endpoint struct {
	bus     *Bus
	host    bool
	name    string
	inbox   channel.Channel[streaming.Envelope]
	closed  bool
	resyncs int
}

// Name returns the origin the host sees on commands from this endpoint.
func (e *Endpoint) Name() string {
	return e.name
}

// Resyncs returns how many times the inbox overflowed and was rebuilt from
// the journal.
func (e *Endpoint) Resyncs() int {
	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()
	return e.resyncs
}

// Forward delivers a command to the host.
func (e *Endpoint) Forward(env streaming.Envelope) error {
	if e.host {
		return ErrWrongSide
	}
	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.bus.host == nil {
		return ErrNoHost
	}
	env.Origin = e.name
	if !e.bus.host.inbox.TrySend(env) {
		return fmt.Errorf("host: %w", ErrInboxFull)
	}
	return nil
}

// Publish delivers a broadcast to every mirror. A mirror whose inbox is
// full gets a new inbox replaying the journal, which already holds env.
// Without a journal the broadcast is lost and ErrInboxFull is returned.
func (e *Endpoint) Publish(env streaming.Envelope) error {
	if !e.host {
		return ErrWrongSide
	}
	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()

	var errs []error
	for m := range e.bus.mirrors {
		if m.inbox.TrySend(env) {
			continue
		}
		if e.bus.journal == nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.name, ErrInboxFull))
			continue
		}
		inbox, err := e.bus.replay()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
			continue
		}
		m.inbox = inbox
		m.resyncs++
	}
	return errors.Join(errs...)
}

// Inbox returns the envelopes delivered to this endpoint.
func (e *Endpoint) Inbox() channel.Receiver[streaming.Envelope] {
	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()
	return e.inbox
}

// Close detaches the endpoint from the bus.
func (e *Endpoint) Close() {
	e.bus.leave(e)
	e.bus.mu.Lock()
	e.closed = true
	e.bus.mu.Unlock()
}
