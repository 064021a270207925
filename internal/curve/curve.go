// Package curve evaluates per-level attribute formulas.
package curve

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultMaxLevels is the number of levels a table covers unless configured.
const DefaultMaxLevels = 10

// DefaultFormula is used for every attribute that has no formula of its own.
const DefaultFormula = "y=1"

// Epsilon is the largest increase between two levels still reported as Approximate.
const Epsilon = 1e-6

var ErrEmptyFormula = errors.New("empty formula")

// Comparison classifies a level value against the previous level.
type Comparison uint8

const (
	Approximate Comparison = 0x00
	Smaller     Comparison = 0x0F
	Larger      Comparison = 0xF0
	Invalid     Comparison = 0xFF
)

func (c Comparison) String() string {
	switch c {
	case Approximate:
		return "approximate"
	case Smaller:
		return "smaller"
	case Larger:
		return "larger"
	default:
		return "invalid"
	}
}

// Compare returns how cur relates to prev. Any decrease is Smaller, however
// tiny; only increases within Epsilon count as Approximate.
func Compare(prev, cur float64) Comparison {
	switch {
	case cur < prev:
		return Smaller
	case math.Abs(cur-prev) <= Epsilon:
		return Approximate
	default:
		return Larger
	}
}

// env is the variable set visible to a formula.
type env struct {
	X         float64 `expr:"x"`
	Level     float64 `expr:"level"`
	PrevLevel float64 `expr:"prevLevel"`
	Prev      float64 `expr:"prev"`
}

// Formula is a compiled attribute formula.
type Formula struct {
	source  string
	program *vm.Program
}

// Compile parses a formula such as "y=2*level+1". The "y=" prefix is optional.
// Variables: level (also x), prevLevel, prev (value at the previous level).
func Compile(source string) (*Formula, error) {
	rhs := strings.TrimSpace(source)
	if lhs, rest, ok := strings.Cut(rhs, "="); ok && strings.TrimSpace(lhs) == "y" {
		rhs = strings.TrimSpace(rest)
	}
	if rhs == "" {
		return nil, ErrEmptyFormula
	}

	program, err := expr.Compile(rhs, expr.Env(env{}), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	return &Formula{source: source, program: program}, nil
}

// MustCompile is like Compile but panics on error. For package-level defaults only.
func MustCompile(source string) *Formula {
	f, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return f
}

// Source returns the formula text as given.
func (f *Formula) Source() string {
	return f.source
}

// Evaluate returns the value at level given the previous level's value.
func (f *Formula) Evaluate(level int, prev float64) (float64, error) {
	out, err := expr.Run(f.program, env{
		X:         float64(level),
		Level:     float64(level),
		PrevLevel: float64(level - 1),
		Prev:      prev,
	})
	if err != nil {
		return 0, fmt.Errorf("evaluate %q at level %d: %w", f.source, level, err)
	}
	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("evaluate %q at level %d: result %T is not a number", f.source, level, out)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("evaluate %q at level %d: result %v is not finite", f.source, level, v)
	}
	return v, nil
}

// Row is one level of a table.
type Row struct {
	Level      int
	Value      float64
	Comparison Comparison
}

// Table holds an attribute's value for levels 1..N.
type Table struct {
	rows []Row
}

// Evaluate builds a table for levels 1..maxLevels.
func Evaluate(f *Formula, maxLevels int) (Table, error) {
	if maxLevels < 1 {
		maxLevels = 1
	}
	rows := make([]Row, 0, maxLevels)
	prev := 0.0
	for level := 1; level <= maxLevels; level++ {
		v, err := f.Evaluate(level, prev)
		if err != nil {
			return Table{}, err
		}
		cmp := Invalid
		if level > 1 {
			cmp = Compare(prev, v)
		}
		rows = append(rows, Row{Level: level, Value: v, Comparison: cmp})
		prev = v
	}
	return Table{rows: rows}, nil
}

// Len returns the number of levels.
func (t Table) Len() int {
	return len(t.rows)
}

// Rows returns a copy of the table rows.
func (t Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	copy(out, t.rows)
	return out
}

// Values returns the value column.
func (t Table) Values() []float64 {
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Value
	}
	return out
}

// At returns the value for level, clamped to the table range.
func (t Table) At(level int) float64 {
	if len(t.rows) == 0 {
		return 0
	}
	switch {
	case level < 1:
		level = 1
	case level > len(t.rows):
		level = len(t.rows)
	}
	return t.rows[level-1].Value
}
