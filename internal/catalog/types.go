// Package catalog holds the static trigger and behavior definitions the
// engine interprets. Definitions load from declarative YAML at process
// start, are validated for referential integrity, and are immutable
// afterwards — one catalog is safely shared read-only by every
// conversation worker.
package catalog

import (
	"counsel/internal/composition"
	"counsel/internal/knowledge"
)

// TriggerType classifies how a trigger is detected.
type TriggerType string

const (
	UserExplicit   TriggerType = "user_explicit"   // Keyword/intent rules
	UserImplicit   TriggerType = "user_implicit"   // Signal heuristics
	SystemProactive TriggerType = "system_proactive" // Opportunity predicates
	SystemReactive  TriggerType = "system_reactive"  // State-transition predicates
)

// Priority is a trigger/behavior priority class.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// priorityRank orders priority classes for comparison and tie-breaking.
var priorityRank = map[Priority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

// Rank returns the numeric rank of the priority class (higher is more
// urgent). Unknown classes rank below low.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return -1
}

// Escalate raises the priority one tier. Critical stays critical.
func (p Priority) Escalate() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return PriorityCritical
	}
}

// Valid reports whether p names a known priority class.
func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Affinity maps composition dimensions to weights in [0,1]. Dimensions
// absent from the map weigh zero.
type Affinity map[string]float64

// Dominant returns the dimension with the highest affinity, resolving
// ties by canonical dimension order.
func (a Affinity) Dominant() composition.Dimension {
	best := composition.Dimensions[0]
	bestW := a[string(best)]
	for _, d := range composition.Dimensions[1:] {
		if a[string(d)] > bestW {
			best = d
			bestW = a[string(d)]
		}
	}
	return best
}

// MatchRule defines how a trigger fires. Fields combine conjunctively:
// a rule with both keywords and state predicates requires both.
type MatchRule struct {
	// Keywords fire on any case-insensitive substring match.
	Keywords []string `yaml:"keywords"`

	// Signal names a detector heuristic: frustration, confusion, pain,
	// satisfaction, contradiction, profanity_only, intense_pain,
	// first_turn, repetition, stuck.
	Signal string `yaml:"signal"`

	// State predicates over the knowledge snapshot, all of which must
	// hold. Used by system_proactive/system_reactive triggers.
	State []knowledge.Predicate `yaml:"state"`
}

// BehaviorMapping links a trigger to a behavior it makes eligible. When a
// trigger maps to several behaviors, each mapping's When predicate
// disambiguates which are candidates this turn.
type BehaviorMapping struct {
	Behavior string                `yaml:"behavior"`
	When     []knowledge.Predicate `yaml:"when"`
}

// TriggerDef is an immutable trigger definition.
type TriggerDef struct {
	ID       string            `yaml:"id"`
	Type     TriggerType       `yaml:"type"`
	Priority Priority          `yaml:"priority"`
	Match    MatchRule         `yaml:"match"`
	Affinity Affinity          `yaml:"affinity"`
	Mappings []BehaviorMapping `yaml:"mappings"`
}

// Constraints bound a behavior's rendered response.
type Constraints struct {
	MaxChars int    `yaml:"max_chars"`
	Tone     string `yaml:"tone"`
}

// Cooldown prevents a behavior (or its whole category) from re-firing
// within Window turns of its last use.
type Cooldown struct {
	// Category widens the cooldown to every behavior in that category.
	// Empty means the cooldown applies to this behavior id only.
	Category string `yaml:"category"`
	Window   int    `yaml:"window"`
}

// MutationIncrement is the sentinel mutation value meaning "add one" to
// an integer dimension instead of overwriting it.
const MutationIncrement = "$increment"

// BehaviorDef is an immutable behavior/pattern definition.
type BehaviorDef struct {
	ID          string      `yaml:"id"`
	Category    string      `yaml:"category"`
	Goal        string      `yaml:"goal"`
	Template    string      `yaml:"template"`
	Constraints Constraints `yaml:"constraints"`
	Affinity    Affinity    `yaml:"affinity"`

	// Requires must all hold; Blocks must all be false.
	Requires []knowledge.Predicate `yaml:"requires"`
	Blocks   []knowledge.Predicate `yaml:"blocks"`

	Cooldown Cooldown `yaml:"cooldown"`

	// Override lets the behavior bypass its cooldown when the
	// conjunction holds (e.g. rising frustration).
	Override []knowledge.Predicate `yaml:"override"`

	// Mutations is the declared knowledge write-set: dimension name to
	// value, or MutationIncrement for counters. A behavior may never
	// write a dimension it did not declare here.
	Mutations map[string]any `yaml:"mutations"`

	// Fallback marks the single reserved always-eligible behavior the
	// engine fires when nothing survives selection.
	Fallback bool `yaml:"fallback"`
}

// DeclaredMutations returns the dimension names this behavior may write.
func (b *BehaviorDef) DeclaredMutations() []string {
	dims := make([]string, 0, len(b.Mutations))
	for d := range b.Mutations {
		dims = append(dims, d)
	}
	return dims
}

// Incompatibility names a pair of behavior categories that never co-fire.
// Either side may be "*" to match every category.
type Incompatibility struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
}

// Matches reports whether the pair of categories is covered by this rule.
func (inc Incompatibility) Matches(catA, catB string) bool {
	if catA == catB {
		return false
	}
	direct := (inc.A == catA || inc.A == "*") && (inc.B == catB || inc.B == "*")
	reverse := (inc.A == catB || inc.A == "*") && (inc.B == catA || inc.B == "*")
	return direct || reverse
}

// Catalog is the validated, immutable definition set.
type Catalog struct {
	Triggers          map[string]*TriggerDef
	Behaviors         map[string]*BehaviorDef
	Incompatibilities []Incompatibility

	// FallbackID is the reserved always-eligible behavior.
	FallbackID string
}

// Trigger returns a trigger definition by id.
func (c *Catalog) Trigger(id string) (*TriggerDef, bool) {
	t, ok := c.Triggers[id]
	return t, ok
}

// Behavior returns a behavior definition by id.
func (c *Catalog) Behavior(id string) (*BehaviorDef, bool) {
	b, ok := c.Behaviors[id]
	return b, ok
}

// Fallback returns the reserved fallback behavior.
func (c *Catalog) Fallback() *BehaviorDef {
	return c.Behaviors[c.FallbackID]
}

// Incompatible reports whether two categories may not co-fire.
func (c *Catalog) Incompatible(catA, catB string) bool {
	for _, inc := range c.Incompatibilities {
		if inc.Matches(catA, catB) {
			return true
		}
	}
	return false
}
