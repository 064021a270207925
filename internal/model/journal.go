package model

import (
	"time"

	"gorm.io/datatypes"
)

// JournalModels lists the tables of the broadcast journal.
var JournalModels = []any{
	&Match{},
	&Broadcast{},
}

// Match is one session whose broadcasts are journaled.
type Match struct {
	ID        uint       `json:"id" gorm:"primarykey"`
	Name      string     `json:"name" gorm:"size:200"`
	Scenario  string     `json:"scenario" gorm:"size:200"`
	StartedAt time.Time  `json:"startedAt" gorm:"index:idx_match_start"`
	EndedAt   *time.Time `json:"endedAt"`
}

func (*Match) TableName() string {
	return "matches"
}

// Broadcast is one committed replication message.
// (match, unit, seq) is unique: replaying a broadcast is a no-op.
type Broadcast struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	MatchID   uint           `json:"matchId" gorm:"uniqueIndex:idx_broadcast_unit_seq,priority:1"`
	Match     Match          `json:"-" gorm:"foreignkey:MatchID"`
	Unit      uint32         `json:"unit" gorm:"uniqueIndex:idx_broadcast_unit_seq,priority:2"`
	Seq       uint64         `json:"seq" gorm:"uniqueIndex:idx_broadcast_unit_seq,priority:3"`
	Type      string         `json:"type" gorm:"size:32;index:idx_broadcast_type"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}

func (*Broadcast) TableName() string {
	return "broadcasts"
}
