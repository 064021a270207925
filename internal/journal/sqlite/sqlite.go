// Package sqlitejournal keeps the broadcast journal in an in-memory SQLite
// database through gorm. Writes are synchronous so Entries always sees
// every recorded broadcast.
package sqlitejournal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quickrts/skirmish/internal/database"
	"github.com/quickrts/skirmish/internal/model"
	"github.com/quickrts/skirmish/pkg/core"
	"github.com/quickrts/skirmish/pkg/streaming"
)

var ErrNoMatch = errors.New("no match started")

// nullPayload stands in for messages without a payload; the column is never NULL.
const nullPayload = "null"

// Config holds configuration for the SQLite journal.
type Config struct {
	// Name of the shared in-memory database.
	Name string
}

// Backend implements journal.Backend on gorm.
type Backend struct {
	cfg Config
	db  *gorm.DB

	mu      sync.RWMutex
	matchID uint
	count   int
}

// New creates a new SQLite journal backend. Init opens the database.
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// Init opens the database and migrates the schema.
func (b *Backend) Init() error {
	db, err := database.GetSqliteDB(b.cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	b.db = db
	return nil
}

// Close closes the underlying connection pool.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartMatch stores the match and drops the broadcasts of earlier ones.
func (b *Backend) StartMatch(m *core.Match) error {
	row := model.Match{
		Name:      m.Name,
		Scenario:  m.Scenario,
		StartedAt: m.StartedAt,
	}
	err := b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&model.Broadcast{}).Error; err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to start match: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.matchID = row.ID
	b.count = 0
	m.ID = row.ID
	return nil
}

// EndMatch stamps the end time. Entries stay readable until the next StartMatch.
func (b *Backend) EndMatch() error {
	b.mu.Lock()
	id := b.matchID
	b.matchID = 0
	b.mu.Unlock()
	if id == 0 {
		return ErrNoMatch
	}
	now := time.Now()
	return b.db.Model(&model.Match{}).Where("id = ?", id).Update("ended_at", &now).Error
}

func (b *Backend) Record(env streaming.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.matchID == 0 {
		return ErrNoMatch
	}

	payload := datatypes.JSON(env.Payload)
	if len(payload) == 0 {
		payload = datatypes.JSON(nullPayload)
	}
	row := model.Broadcast{
		MatchID: b.matchID,
		Unit:    uint32(env.Unit),
		Seq:     env.Seq,
		Type:    env.Type,
		Payload: payload,
	}
	res := b.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("failed to record broadcast: %w", res.Error)
	}
	b.count += int(res.RowsAffected)
	return nil
}

func (b *Backend) Entries() ([]streaming.Envelope, error) {
	var rows []model.Broadcast
	if err := b.db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	out := make([]streaming.Envelope, 0, len(rows))
	for _, r := range rows {
		env := streaming.Envelope{
			Type: r.Type,
			Unit: core.UnitID(r.Unit),
			Seq:  r.Seq,
		}
		if len(r.Payload) > 0 && string(r.Payload) != nullPayload {
			env.Payload = []byte(r.Payload)
		}
		out = append(out, env)
	}
	return out, nil
}

func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
