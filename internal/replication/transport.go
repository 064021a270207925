package replication

import (
	"github.com/lucasb-eyer/go-colorful"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/quickrts/skirmish/internal/channel"
	"github.com/quickrts/skirmish/pkg/core"
	"github.com/quickrts/skirmish/pkg/streaming"
)

// Transport carries envelopes between the authority and its mirrors.
// Implementations must be safe for concurrent use and must not block the
// tick loop.
type Transport interface {
	// Forward sends a command to the authority. Used by mirrors.
	Forward(env streaming.Envelope) error
	// Publish sends a committed broadcast to every remote observer. Used by the authority.
	Publish(env streaming.Envelope) error
	// Inbox delivers envelopes received from the other side.
	Inbox() channel.Receiver[streaming.Envelope]
}

// View is the presentation state of one unit after a tick.
type View struct {
	ID        core.UnitID
	Team      core.TeamID
	Position  geom.XY
	Color     colorful.Color
	Health    int
	MaxHealth int
	Visible   bool
	Selected  bool
}

// Sink receives the presentation state of every unit after each tick.
type Sink interface {
	Present(views []View)
}
