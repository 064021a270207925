// pkg/core/match.go
package core

import "time"

// Match is one game session on a host.
type Match struct {
	ID        uint
	Name      string
	Scenario  string
	StartedAt time.Time
}
