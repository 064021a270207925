package curve

import (
	"fmt"
	"strings"
	"sync"

	"github.com/quickrts/skirmish/pkg/core"
)

// Attribute names a per-level unit attribute.
type Attribute uint8

const (
	Health Attribute = iota
	Attack
	Speed
	Split
	Merge
	AttackCooldown
)

// Attributes lists every attribute in table order.
var Attributes = []Attribute{Health, Attack, Speed, Split, Merge, AttackCooldown}

var attributeNames = map[Attribute]string{
	Health:         "health",
	Attack:         "attack",
	Speed:          "speed",
	Split:          "split",
	Merge:          "merge",
	AttackCooldown: "attackCooldown",
}

func (a Attribute) String() string {
	if n, ok := attributeNames[a]; ok {
		return n
	}
	return fmt.Sprintf("attribute(%d)", uint8(a))
}

// ParseAttribute maps a name (case-insensitive) to an Attribute.
func ParseAttribute(name string) (Attribute, error) {
	for a, n := range attributeNames {
		if strings.EqualFold(n, name) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown attribute %q", name)
}

// Set holds the attribute tables of every team. Each team starts with the
// default formula for every attribute.
type Set struct {
	mu        sync.RWMutex
	maxLevels int
	tables    map[core.TeamID]map[Attribute]Table
	formulas  map[core.TeamID]map[Attribute]string
}

// NewSet creates an empty set whose tables cover maxLevels levels.
func NewSet(maxLevels int) *Set {
	if maxLevels < 1 {
		maxLevels = DefaultMaxLevels
	}
	return &Set{
		maxLevels: maxLevels,
		tables:    make(map[core.TeamID]map[Attribute]Table),
		formulas:  make(map[core.TeamID]map[Attribute]string),
	}
}

// MaxLevels returns the number of levels of every table.
func (s *Set) MaxLevels() int {
	return s.maxLevels
}

// SetFormula compiles and evaluates formula for one attribute of one team.
// On error the previous table is kept.
func (s *Set) SetFormula(team core.TeamID, attr Attribute, formula string) error {
	f, err := Compile(formula)
	if err != nil {
		return fmt.Errorf("team %d %s: %w", team, attr, err)
	}
	table, err := Evaluate(f, s.maxLevels)
	if err != nil {
		return fmt.Errorf("team %d %s: %w", team, attr, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureTeam(team)
	s.tables[team][attr] = table
	s.formulas[team][attr] = formula
	return nil
}

// Table returns the table of one attribute of one team.
func (s *Set) Table(team core.TeamID, attr Attribute) Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureTeam(team)
	return s.tables[team][attr]
}

// Formula returns the formula source of one attribute of one team.
func (s *Set) Formula(team core.TeamID, attr Attribute) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureTeam(team)
	return s.formulas[team][attr]
}

// Value returns an attribute of a team at level.
func (s *Set) Value(team core.TeamID, attr Attribute, level int) float64 {
	return s.Table(team, attr).At(level)
}

// Cooldown returns the attack cooldown of a team at level.
func (s *Set) Cooldown(team core.TeamID, level int) float64 {
	return s.Value(team, AttackCooldown, level)
}

// ensureTeam fills in default tables. Caller holds the write lock.
func (s *Set) ensureTeam(team core.TeamID) {
	if _, ok := s.tables[team]; ok {
		return
	}
	def, err := Evaluate(defaultFormula, s.maxLevels)
	if err != nil {
		// the default formula is a constant
		panic(err)
	}
	s.tables[team] = make(map[Attribute]Table, len(Attributes))
	s.formulas[team] = make(map[Attribute]string, len(Attributes))
	for _, a := range Attributes {
		s.tables[team][a] = def
		s.formulas[team][a] = DefaultFormula
	}
}

var defaultFormula = MustCompile(DefaultFormula)
