package sqlitejournal

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickrts/skirmish/internal/journal"
	"github.com/quickrts/skirmish/internal/model"
	"github.com/quickrts/skirmish/pkg/core"
	"github.com/quickrts/skirmish/pkg/streaming"
)

// Compile-time interface check.
var _ journal.Backend = (*Backend)(nil)

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b := New(Config{Name: strings.ReplaceAll(t.Name(), "/", "_")})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_RecordRequiresMatch(t *testing.T) {
	b := newBackend(t)

	err := b.Record(streaming.Envelope{Unit: 1, Seq: 1})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestBackend_RecordAndEntries(t *testing.T) {
	b := newBackend(t)
	m := &core.Match{Name: "skirmish", Scenario: "duel", StartedAt: time.Now()}
	require.NoError(t, b.StartMatch(m))
	assert.NotZero(t, m.ID)

	env, err := streaming.NewEnvelope(streaming.TypeApplyHealth, 2, streaming.ApplyHealthPayload{Health: 30})
	require.NoError(t, err)
	env.Seq = 4

	require.NoError(t, b.Record(streaming.Envelope{Type: streaming.TypeDestroy, Unit: 3, Seq: 1}))
	require.NoError(t, b.Record(env))
	require.NoError(t, b.Record(env), "duplicate is ignored")

	entries, err := b.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 2, b.Len())

	assert.Equal(t, streaming.TypeDestroy, entries[0].Type)
	assert.Empty(t, entries[0].Payload)

	got := entries[1]
	assert.Equal(t, core.UnitID(2), got.Unit)
	assert.Equal(t, uint64(4), got.Seq)
	var p streaming.ApplyHealthPayload
	require.NoError(t, json.Unmarshal(got.Payload, &p))
	assert.Equal(t, 30, p.Health)
}

func TestBackend_StartMatchDropsOldEntries(t *testing.T) {
	b := newBackend(t)
	require.NoError(t, b.StartMatch(&core.Match{Name: "first"}))
	require.NoError(t, b.Record(streaming.Envelope{Type: streaming.TypeSpawn, Unit: 1, Seq: 1}))
	require.NoError(t, b.EndMatch())

	var ended model.Match
	require.NoError(t, b.db.Order("id").First(&ended).Error)
	assert.NotNil(t, ended.EndedAt)

	require.NoError(t, b.StartMatch(&core.Match{Name: "second"}))
	entries, err := b.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 0, b.Len())
}

func TestBackend_EndMatchWithoutStart(t *testing.T) {
	b := newBackend(t)
	assert.ErrorIs(t, b.EndMatch(), ErrNoMatch)
}
