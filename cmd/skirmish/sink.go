package main

import (
	"log/slog"
	"sort"

	"github.com/quickrts/skirmish/internal/replication"
	"github.com/quickrts/skirmish/internal/scenario"
	"github.com/quickrts/skirmish/pkg/core"
)

// logSink presents frames as log lines. It stands in for a renderer.
type logSink struct {
	logger   *slog.Logger
	scenario *scenario.Scenario
	frames   uint64
	units    int
}

func newLogSink(logger *slog.Logger, s *scenario.Scenario) *logSink {
	return &logSink{logger: logger.With("component", "sink"), scenario: s, units: -1}
}

type teamSummary struct {
	Team   core.TeamID
	Color  string
	Units  int
	Health int
}

func (s *logSink) Present(views []replication.View) {
	s.frames++

	byTeam := map[core.TeamID]*teamSummary{}
	visible := 0
	for _, v := range views {
		if !v.Visible {
			continue
		}
		visible++
		ts, ok := byTeam[v.Team]
		if !ok {
			color := v.Color
			if s.scenario != nil {
				color = s.scenario.TeamColor(v.Team)
			}
			ts = &teamSummary{Team: v.Team, Color: color.Hex()}
			byTeam[v.Team] = ts
		}
		ts.Units++
		ts.Health += v.Health
	}

	teams := make([]teamSummary, 0, len(byTeam))
	for _, ts := range byTeam {
		teams = append(teams, *ts)
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Team < teams[j].Team })

	if visible != s.units {
		s.logger.Info("Units changed", "frame", s.frames, "visible", visible, "teams", teams)
		s.units = visible
		return
	}
	s.logger.Debug("Frame", "frame", s.frames, "visible", visible, "teams", teams)
}
