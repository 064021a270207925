package match

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickrts/skirmish/pkg/core"
)

func TestNewContext_Defaults(t *testing.T) {
	c := NewContext(core.Mirror)

	require.NotNil(t, c.GetMatch())
	assert.Equal(t, "No match loaded", c.GetMatch().Name)
	assert.Equal(t, uint64(0), c.Tick())
	assert.Equal(t, core.Mirror, c.Role())
}

func TestContext_SetMatchResetsTick(t *testing.T) {
	c := NewContext(core.Authority)
	c.SetTick(40)

	c.SetMatch(&core.Match{ID: 3, Name: "duel"})

	assert.Equal(t, "duel", c.GetMatch().Name)
	assert.Equal(t, uint64(0), c.Tick())
}

func TestContext_LogAttrs(t *testing.T) {
	c := NewContext(core.Authority)
	c.SetMatch(&core.Match{Name: "duel"})
	c.SetTick(7)

	attrs := c.LogAttrs()

	require.Len(t, attrs, 3)
	assert.Equal(t, "duel", attrs[0].Value.String())
	assert.Equal(t, uint64(7), attrs[1].Value.Uint64())
	assert.Equal(t, "authority", attrs[2].Value.String())
}

func TestContext_ConcurrentAccess(t *testing.T) {
	c := NewContext(core.Authority)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c.SetTick(uint64(i))
		}(i)
		go func() {
			defer wg.Done()
			_ = c.LogAttrs()
		}()
	}
	wg.Wait()
}
