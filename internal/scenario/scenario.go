// Package scenario loads match setups from YAML: per-team attribute
// formulas and initial unit placements.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/peterstace/simplefeatures/geom"
	"gopkg.in/yaml.v3"

	"github.com/quickrts/skirmish/internal/curve"
	"github.com/quickrts/skirmish/internal/geo"
	"github.com/quickrts/skirmish/pkg/core"
)

// Team overrides the attribute formulas of one team. Keys are attribute
// names as accepted by curve.ParseAttribute.
type Team struct {
	ID       core.TeamID       `yaml:"id"`
	Color    string            `yaml:"color"`
	Formulas map[string]string `yaml:"formulas"`
}

// Position is a spawn point. YAML accepts a pair ([3, 4]) or a string
// ("3,4").
type Position geom.XY

func (p *Position) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		xy, err := geo.PointFromString(n.Value)
		if err != nil {
			return fmt.Errorf("line %d: %q: %w", n.Line, n.Value, err)
		}
		*p = Position(xy)
	case yaml.SequenceNode:
		var v []float64
		if err := n.Decode(&v); err != nil {
			return err
		}
		if len(v) != 2 {
			return fmt.Errorf("line %d: position needs 2 values, got %d", n.Line, len(v))
		}
		*p = Position{X: v[0], Y: v[1]}
	default:
		return fmt.Errorf("line %d: position must be a pair or \"x,y\"", n.Line)
	}
	return nil
}

// Placement is one unit spawned at match start.
type Placement struct {
	Team  core.TeamID `yaml:"team"`
	Pos   Position    `yaml:"pos"`
	Count int         `yaml:"count"`
}

// Scenario is a complete match setup.
type Scenario struct {
	Name      string      `yaml:"name"`
	MaxLevels int         `yaml:"max_levels"`
	Teams     []Team      `yaml:"teams"`
	Units     []Placement `yaml:"units"`
}

// Spawner is satisfied by *replication.Node.
type Spawner interface {
	Spawn(team core.TeamID, pos geom.XY) (core.UnitID, error)
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes and validates a scenario document.
func Parse(b []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if s.MaxLevels == 0 {
		s.MaxLevels = curve.DefaultMaxLevels
	}
	for i := range s.Units {
		if s.Units[i].Count == 0 {
			s.Units[i].Count = 1
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks attribute names, colors and counts. Formulas are
// checked when Curves compiles them.
func (s *Scenario) Validate() error {
	var errs []error
	if s.MaxLevels < 1 {
		errs = append(errs, fmt.Errorf("max_levels must be positive, got %d", s.MaxLevels))
	}
	seen := make(map[core.TeamID]bool)
	for _, t := range s.Teams {
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("team %d listed twice", t.ID))
		}
		seen[t.ID] = true
		if t.Color != "" {
			if _, err := colorful.Hex(t.Color); err != nil {
				errs = append(errs, fmt.Errorf("team %d: color %q: %w", t.ID, t.Color, err))
			}
		}
		for name := range t.Formulas {
			if _, err := curve.ParseAttribute(name); err != nil {
				errs = append(errs, fmt.Errorf("team %d: %w", t.ID, err))
			}
		}
	}
	for i, u := range s.Units {
		if u.Count < 0 {
			errs = append(errs, fmt.Errorf("units[%d]: negative count", i))
		}
	}
	return errors.Join(errs...)
}

// Curves builds the attribute tables for every team.
func (s *Scenario) Curves() (*curve.Set, error) {
	set := curve.NewSet(s.MaxLevels)
	for _, t := range s.Teams {
		names := make([]string, 0, len(t.Formulas))
		for name := range t.Formulas {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			attr, err := curve.ParseAttribute(name)
			if err != nil {
				return nil, fmt.Errorf("team %d: %w", t.ID, err)
			}
			if err := set.SetFormula(t.ID, attr, t.Formulas[name]); err != nil {
				return nil, err
			}
		}
	}
	return set, nil
}

// TeamColor returns the configured color of team, or the default.
func (s *Scenario) TeamColor(team core.TeamID) colorful.Color {
	for _, t := range s.Teams {
		if t.ID == team && t.Color != "" {
			if c, err := colorful.Hex(t.Color); err == nil {
				return c
			}
		}
	}
	return core.TeamColor(team)
}

// Apply spawns every placement in order and returns the ids the
// authority assigned.
func (s *Scenario) Apply(sp Spawner) ([]core.UnitID, error) {
	var ids []core.UnitID
	for _, u := range s.Units {
		pos := geom.XY(u.Pos)
		for range u.Count {
			id, err := sp.Spawn(u.Team, pos)
			if err != nil {
				return ids, fmt.Errorf("spawn team %d at %s: %w", u.Team, geo.Point(pos).AsText(), err)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
