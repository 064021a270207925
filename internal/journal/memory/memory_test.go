package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickrts/skirmish/internal/journal"
	"github.com/quickrts/skirmish/pkg/core"
	"github.com/quickrts/skirmish/pkg/streaming"
)

// Compile-time interface check.
var _ journal.Backend = (*Backend)(nil)

func TestBackend_RecordRequiresMatch(t *testing.T) {
	b := New()
	require.NoError(t, b.Init())

	err := b.Record(streaming.Envelope{Type: streaming.TypeStatus, Unit: 1, Seq: 1})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestBackend_RecordAndEntries(t *testing.T) {
	b := New()
	require.NoError(t, b.StartMatch(&core.Match{ID: 1, Name: "test"}))

	require.NoError(t, b.Record(streaming.Envelope{Type: streaming.TypeSpawn, Unit: 1, Seq: 1}))
	require.NoError(t, b.Record(streaming.Envelope{Type: streaming.TypeSpawn, Unit: 2, Seq: 1}))
	require.NoError(t, b.Record(streaming.Envelope{Type: streaming.TypeStatus, Unit: 1, Seq: 2}))
	require.NoError(t, b.Record(streaming.Envelope{Type: streaming.TypeStatus, Unit: 1, Seq: 2}), "duplicate is ignored")

	entries, err := b.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, core.UnitID(2), entries[1].Unit)
	assert.Equal(t, uint64(2), entries[2].Seq)
	assert.Equal(t, 3, b.Len())
}

func TestBackend_StartMatchResets(t *testing.T) {
	b := New()
	require.NoError(t, b.StartMatch(&core.Match{ID: 1}))
	require.NoError(t, b.Record(streaming.Envelope{Unit: 1, Seq: 1}))
	require.NoError(t, b.EndMatch())

	assert.Equal(t, 1, b.Len(), "entries survive EndMatch")

	require.NoError(t, b.StartMatch(&core.Match{ID: 2}))
	assert.Equal(t, 0, b.Len())
	require.NoError(t, b.Record(streaming.Envelope{Unit: 1, Seq: 1}))
	assert.Equal(t, 1, b.Len())
	require.NoError(t, b.Close())
}
