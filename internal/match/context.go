package match

import (
	"log/slog"
	"sync"

	"github.com/quickrts/skirmish/pkg/core"
)

// Context holds the current match, tick and node role. The tick loop writes
// it; log handlers and the monitor read it.
type Context struct {
	mu    sync.RWMutex
	match *core.Match
	tick  uint64
	role  core.Role
}

// NewContext creates a new Context with default values
func NewContext(role core.Role) *Context {
	return &Context{
		match: &core.Match{Name: "No match loaded"},
		role:  role,
	}
}

// GetMatch returns the current match
func (c *Context) GetMatch() *core.Match {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.match
}

// SetMatch sets the current match and resets the tick counter
func (c *Context) SetMatch(m *core.Match) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.match = m
	c.tick = 0
}

// Tick returns the number of the last completed tick
func (c *Context) Tick() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tick
}

// SetTick records the last completed tick
func (c *Context) SetTick(tick uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = tick
}

// Role returns the role of this node
func (c *Context) Role() core.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// LogAttrs returns the attributes injected into every log record.
func (c *Context) LogAttrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return []slog.Attr{
		slog.String("match", c.match.Name),
		slog.Uint64("tick", c.tick),
		slog.String("role", c.role.String()),
	}
}
