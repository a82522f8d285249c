// Package knowledge tracks structured per-conversation memory across four
// categories: what the user understands, what the system has captured,
// conversation-state signals, and quality counters. Every dimension is
// declared in a registry; pattern mutations may only write dimensions they
// declared, which keeps all side effects auditable.
package knowledge

import (
	"fmt"
	"strings"

	"counsel/internal/logging"
)

// Kind is the value type of a knowledge dimension.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindString
)

// SchemaVersion identifies the current dimension schema. Persisted
// snapshots carry it so older snapshots can be default-filled on load.
const SchemaVersion = 2

// dimension describes one declared knowledge dimension.
type dimension struct {
	Kind    Kind
	Default any
}

// registry declares every knowledge dimension the engine knows about.
// Catalog predicates and mutation declarations are validated against this
// at startup.
var registry = map[string]dimension{
	// User knowledge: what the user understands.
	"user.understands_assessment": {KindBool, false},
	"user.understands_scoring":    {KindBool, false},
	"user.expertise_level":        {KindString, "novice"},

	// System knowledge: structured facts the system has captured.
	"system.business_type":       {KindString, ""},
	"system.assessed_components": {KindInt, 0},
	"system.budget_known":        {KindBool, false},

	// Conversation state.
	"conversation.frustration_level":    {KindFloat, 0.0},
	"conversation.confusion_level":      {KindFloat, 0.0},
	"conversation.turns_since_progress": {KindInt, 0},
	"conversation.turn":                 {KindInt, 0},

	// Quality metrics.
	"quality.fallbacks":         {KindInt, 0},
	"quality.contradictions":    {KindInt, 0},
	"quality.extreme_intensity": {KindInt, 0},
	"quality.patterns_fired":    {KindInt, 0},
}

// Declared reports whether dim names a registered knowledge dimension.
func Declared(dim string) bool {
	_, ok := registry[dim]
	return ok
}

// DeclaredDimensions returns the names of all registered dimensions.
func DeclaredDimensions() []string {
	dims := make([]string, 0, len(registry))
	for d := range registry {
		dims = append(dims, d)
	}
	return dims
}

// PatternUse records one pattern firing, ordered by turn.
type PatternUse struct {
	PatternID string
	Turn      int
}

// State is the mutable per-conversation knowledge store. Single writer:
// exactly one turn of one conversation touches it at a time.
type State struct {
	dims    map[string]any
	facts   map[string]string // entity.attribute -> value
	history []PatternUse

	// progressed marks that a user/system dimension changed this turn,
	// so the next decay pass resets turns_since_progress.
	progressed bool
}

// New creates a fresh state with every dimension at its default.
func New() *State {
	s := &State{
		dims:  make(map[string]any, len(registry)),
		facts: make(map[string]string),
	}
	for dim, d := range registry {
		s.dims[dim] = d.Default
	}
	return s
}

// Snapshot is a defensive, read-only copy of the state handed to pure
// components (trigger detection, selection, assembly).
type Snapshot struct {
	Dims    map[string]any
	Facts   map[string]string
	History []PatternUse
}

// Snapshot returns a deep copy. Callers never receive a live reference.
func (s *State) Snapshot() Snapshot {
	dims := make(map[string]any, len(s.dims))
	for k, v := range s.dims {
		dims[k] = v
	}
	facts := make(map[string]string, len(s.facts))
	for k, v := range s.facts {
		facts[k] = v
	}
	history := make([]PatternUse, len(s.history))
	copy(history, s.history)
	return Snapshot{Dims: dims, Facts: facts, History: history}
}

// Get returns a dimension's current value.
func (s *State) Get(dim string) (any, bool) {
	v, ok := s.dims[dim]
	return v, ok
}

// Fact returns a stored system fact for entity.attribute.
func (snap Snapshot) Fact(entity, attribute string) (string, bool) {
	v, ok := snap.Facts[entity+"."+attribute]
	return v, ok
}

// SetFact stores a system fact keyed by entity.attribute.
func (s *State) SetFact(entity, attribute, value string) {
	s.facts[entity+"."+attribute] = value
	s.progressed = true
}

// Apply writes a set of mutations, enforcing the firing pattern's declared
// write set. A write to an undeclared or unregistered dimension rejects the
// whole mutation set — mutations are applied all-or-nothing.
func (s *State) Apply(mutations map[string]any, declared []string) error {
	allowed := make(map[string]bool, len(declared))
	for _, d := range declared {
		allowed[d] = true
	}

	// Validate everything before touching state.
	for dim, val := range mutations {
		if !allowed[dim] {
			return fmt.Errorf("mutation to %q not in declared write set %v", dim, declared)
		}
		reg, ok := registry[dim]
		if !ok {
			return fmt.Errorf("mutation names unknown dimension %q", dim)
		}
		if _, err := coerce(reg.Kind, val); err != nil {
			return fmt.Errorf("mutation to %q: %w", dim, err)
		}
	}

	for dim, val := range mutations {
		coerced, _ := coerce(registry[dim].Kind, val)
		s.dims[dim] = coerced
		if strings.HasPrefix(dim, "user.") || strings.HasPrefix(dim, "system.") {
			s.progressed = true
		}
		logging.Get(logging.CategoryKnowledge).Debugw("dimension written",
			"dim", dim, "value", coerced)
	}
	return nil
}

// set writes an engine-owned dimension directly (turn counters, decay,
// quality metrics). Not subject to pattern declarations.
func (s *State) set(dim string, val any) {
	coerced, err := coerce(registry[dim].Kind, val)
	if err != nil {
		// Engine-internal writes always carry the right type.
		panic(fmt.Sprintf("knowledge: bad internal write to %s: %v", dim, err))
	}
	s.dims[dim] = coerced
}

// BeginTurn advances the turn counter and returns the new turn number.
func (s *State) BeginTurn() int {
	turn := s.dims["conversation.turn"].(int) + 1
	s.set("conversation.turn", turn)
	return turn
}

// Turn returns the current turn number.
func (s *State) Turn() int {
	return s.dims["conversation.turn"].(int)
}

// Decay runs the per-turn decay step before detection: frustration and
// confusion decay multiplicatively toward zero absent reinforcement, and
// turns_since_progress increments unless progress was recorded.
func (s *State) Decay(frustrationDecay, confusionDecay float64) {
	frust := s.dims["conversation.frustration_level"].(float64) * frustrationDecay
	conf := s.dims["conversation.confusion_level"].(float64) * confusionDecay
	if frust < 1e-3 {
		frust = 0
	}
	if conf < 1e-3 {
		conf = 0
	}
	s.set("conversation.frustration_level", frust)
	s.set("conversation.confusion_level", conf)

	if s.progressed {
		s.set("conversation.turns_since_progress", 0)
	} else {
		s.set("conversation.turns_since_progress",
			s.dims["conversation.turns_since_progress"].(int)+1)
	}
	s.progressed = false
}

// RaiseSignal bumps an emotional signal level (frustration/confusion),
// clamped to [0,1]. Used by the engine when implicit triggers fire.
func (s *State) RaiseSignal(dim string, amount float64) {
	cur, ok := s.dims[dim]
	if !ok {
		return
	}
	level, ok := cur.(float64)
	if !ok {
		return
	}
	level += amount
	if level > 1 {
		level = 1
	}
	s.set(dim, level)
}

// IncrementCounter bumps an integer quality counter.
func (s *State) IncrementCounter(dim string) {
	if cur, ok := s.dims[dim].(int); ok {
		s.set(dim, cur+1)
	}
}

// RecordPattern appends a pattern firing to the history.
func (s *State) RecordPattern(patternID string, turn int) {
	s.history = append(s.history, PatternUse{PatternID: patternID, Turn: turn})
	s.IncrementCounter("quality.patterns_fired")
}

// coerce normalizes a mutation value to the dimension's declared kind.
// YAML catalogs deliver ints where floats are declared and vice versa.
func coerce(kind Kind, val any) (any, error) {
	switch kind {
	case KindBool:
		if b, ok := val.(bool); ok {
			return b, nil
		}
	case KindInt:
		switch v := val.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			return int(v), nil
		}
	case KindFloat:
		switch v := val.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case KindString:
		if str, ok := val.(string); ok {
			return str, nil
		}
	}
	return nil, fmt.Errorf("value %v (%T) does not match declared kind", val, val)
}
