package main

import (
	"fmt"

	"github.com/quickrts/skirmish/internal/config"
	"github.com/quickrts/skirmish/internal/journal"
	"github.com/quickrts/skirmish/internal/journal/memory"
	sqlite "github.com/quickrts/skirmish/internal/journal/sqlite"
)

func createJournal(cfg config.JournalConfig) (journal.Backend, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.New(sqlite.Config{Name: cfg.SQLite.Name}), nil
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}
}
