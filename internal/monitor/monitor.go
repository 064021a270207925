package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/quickrts/skirmish/internal/influx"
	"github.com/quickrts/skirmish/internal/match"
	"github.com/quickrts/skirmish/internal/replication"
)

// StatsSource is satisfied by *replication.Node.
type StatsSource interface {
	Stats() replication.Stats
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Node   StatsSource
	Match  *match.Context
	Logger *slog.Logger

	// Optional
	Influx     *influx.Manager
	StatusFile string
	Interval   time.Duration
}

// Service periodically reports node status
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = 10 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Status is the JSON document written to the status file.
type Status struct {
	Time  time.Time         `json:"time"`
	Match string            `json:"match"`
	Role  string            `json:"role"`
	Stats replication.Stats `json:"stats"`
}

// GetStatus returns the current node status and its rendering.
func (s *Service) GetStatus() (string, Status) {
	st := Status{
		Time:  time.Now(),
		Stats: s.deps.Node.Stats(),
	}
	if s.deps.Match != nil {
		st.Match = s.deps.Match.GetMatch().Name
		st.Role = s.deps.Match.Role().String()
	}

	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		out = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	return string(out), st
}

// Report logs the current status once and writes it to influx when
// configured.
func (s *Service) Report() Status {
	_, st := s.GetStatus()
	stats := st.Stats

	s.deps.Logger.Info("Node status",
		"match", st.Match,
		"role", st.Role,
		"tick", stats.Tick,
		"units", stats.Units,
		"inbox", stats.InboxLen,
		"committed", stats.Committed,
		"applied", stats.Applied,
		"forwarded", stats.Forwarded,
		"rejected", stats.Rejected,
		"duplicates", stats.Duplicates,
		"parked", stats.Parked,
		"lastTick", stats.LastTick,
	)

	if s.deps.Influx != nil {
		p := influxdb2_write.NewPointWithMeasurement("node").
			SetTime(st.Time).
			AddTag("match", st.Match).
			AddTag("role", st.Role).
			AddField("tick", stats.Tick).
			AddField("units", stats.Units).
			AddField("inbox", stats.InboxLen).
			AddField("committed", stats.Committed).
			AddField("applied", stats.Applied).
			AddField("forwarded", stats.Forwarded).
			AddField("rejected", stats.Rejected).
			AddField("duplicates", stats.Duplicates).
			AddField("parked", stats.Parked).
			AddField("last_tick_ms", float64(stats.LastTick.Microseconds())/1000)
		for team, n := range stats.UnitsByTeam {
			p.AddField("team_"+strconv.Itoa(int(team)), n)
		}
		if err := s.deps.Influx.WritePoint(influx.BucketNodes, p); err != nil {
			s.deps.Logger.Warn("Failed to write node status point", "error", err)
		}
	}

	return st
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			if s.stopChan == stop {
				s.isRunning = false
			}
			s.mu.Unlock()
			close(done)
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)

		var statusFile *os.File
		if s.deps.StatusFile != "" {
			f, err := os.Create(s.deps.StatusFile)
			if err != nil {
				logger.Error("Error creating status file", "error", err)
			} else {
				statusFile = f
				defer statusFile.Close()
			}
		}

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Report()
				if statusFile != nil {
					rendered, _ := s.GetStatus()
					_ = statusFile.Truncate(0)
					_, _ = statusFile.Seek(0, 0)
					_, _ = statusFile.WriteString(rendered + "\n")
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.isRunning = false
	done := s.done
	s.mu.Unlock()
	<-done
}
