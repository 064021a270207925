// internal/journal/journal.go
package journal

import (
	"github.com/quickrts/skirmish/pkg/core"
	"github.com/quickrts/skirmish/pkg/streaming"
)

// Backend keeps the committed broadcasts of the running match so a mirror
// that joins late can replay them. Entries live for one session only.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Match management. StartMatch drops the entries of any previous match.
	StartMatch(m *core.Match) error
	EndMatch() error

	// Record stores a broadcast. Recording the same (unit, seq) twice is a no-op.
	Record(env streaming.Envelope) error
	// Entries returns every broadcast in commit order.
	Entries() ([]streaming.Envelope, error)
	Len() int
}
