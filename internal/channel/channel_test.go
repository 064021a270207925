package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffered_TrySendDropsWhenFull(t *testing.T) {
	c := NewBuffered[int](2)

	assert.True(t, c.TrySend(1))
	assert.True(t, c.TrySend(2))
	assert.False(t, c.TrySend(3))
	assert.Equal(t, 2, c.Len())
}

func TestBuffered_DrainRespectsMax(t *testing.T) {
	c := NewBuffered[int](5)
	for i := 1; i <= 4; i++ {
		c.Send(i)
	}

	assert.Equal(t, []int{1, 2, 3}, c.Drain(3))
	assert.Equal(t, []int{4}, c.Drain(0))
	assert.Empty(t, c.Drain(0))
}

func TestBuffered_DrainAfterClose(t *testing.T) {
	c := NewBuffered[string](2)
	c.Send("a")
	c.Close()

	assert.Equal(t, []string{"a"}, c.Drain(0))
}

func TestBuffered_MinimumSize(t *testing.T) {
	c := NewBuffered[int](0)
	assert.True(t, c.TrySend(1))
	assert.Equal(t, 1, <-c.Receive())
}
