package knowledge

import (
	"fmt"
	"strconv"
)

// Op is a comparison operator in a dimension predicate.
type Op string

const (
	OpEq Op = "eq"
	OpNe Op = "ne"
	OpLt Op = "lt"
	OpLe Op = "le"
	OpGt Op = "gt"
	OpGe Op = "ge"
)

// Predicate is a single dimension comparison. Catalog requires/blocks
// clauses, mapping disambiguators, and cooldown overrides are all
// conjunctions of these.
type Predicate struct {
	Dimension string `yaml:"dimension"`
	Op        Op     `yaml:"op"`
	Value     any    `yaml:"value"`
}

// Validate checks that the predicate names a declared dimension and uses
// an operator compatible with that dimension's kind.
func (p Predicate) Validate() error {
	reg, ok := registry[p.Dimension]
	if !ok {
		return fmt.Errorf("predicate names undeclared dimension %q", p.Dimension)
	}
	switch p.Op {
	case OpEq, OpNe:
		// All kinds support equality.
	case OpLt, OpLe, OpGt, OpGe:
		if reg.Kind == KindBool || reg.Kind == KindString {
			return fmt.Errorf("predicate on %q: ordering operator %q requires a numeric dimension", p.Dimension, p.Op)
		}
	default:
		return fmt.Errorf("predicate on %q: unknown operator %q", p.Dimension, p.Op)
	}
	if _, err := coerce(reg.Kind, p.Value); err != nil {
		return fmt.Errorf("predicate on %q: %w", p.Dimension, err)
	}
	return nil
}

// Eval evaluates the predicate against a snapshot. Undeclared dimensions
// evaluate false: catalogs are validated at startup, so this only arises
// for hand-built predicates in tests.
func (snap Snapshot) Eval(p Predicate) bool {
	cur, ok := snap.Dims[p.Dimension]
	if !ok {
		return false
	}
	reg := registry[p.Dimension]
	want, err := coerce(reg.Kind, p.Value)
	if err != nil {
		return false
	}

	switch reg.Kind {
	case KindBool, KindString:
		switch p.Op {
		case OpEq:
			return cur == want
		case OpNe:
			return cur != want
		}
		return false
	case KindInt:
		return compareFloat(float64(cur.(int)), float64(want.(int)), p.Op)
	case KindFloat:
		return compareFloat(cur.(float64), want.(float64), p.Op)
	}
	return false
}

// EvalAll reports whether every predicate in the conjunction holds.
func (snap Snapshot) EvalAll(preds []Predicate) bool {
	for _, p := range preds {
		if !snap.Eval(p) {
			return false
		}
	}
	return true
}

// EvalNone reports whether no predicate in the set holds. Used for
// `blocks` clauses: each must be false.
func (snap Snapshot) EvalNone(preds []Predicate) bool {
	for _, p := range preds {
		if snap.Eval(p) {
			return false
		}
	}
	return true
}

func compareFloat(a, b float64, op Op) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	}
	return false
}

// formatValue renders a dimension value for the flat codec.
func formatValue(kind Kind, val any) string {
	switch kind {
	case KindBool:
		return strconv.FormatBool(val.(bool))
	case KindInt:
		return strconv.Itoa(val.(int))
	case KindFloat:
		return strconv.FormatFloat(val.(float64), 'g', -1, 64)
	default:
		return val.(string)
	}
}

// parseValue parses a flat codec value back to the dimension's kind.
func parseValue(kind Kind, raw string) (any, error) {
	switch kind {
	case KindBool:
		return strconv.ParseBool(raw)
	case KindInt:
		return strconv.Atoi(raw)
	case KindFloat:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}
