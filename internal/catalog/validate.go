package catalog

import (
	"fmt"
	"strings"

	"counsel/internal/composition"
	"counsel/internal/knowledge"
)

// ValidationError reports every integrity violation found in a definition
// set. Fatal at load time: a process never starts on a broken catalog.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog validation failed with %d violation(s):\n  %s",
		len(e.Violations), strings.Join(e.Violations, "\n  "))
}

// validate checks the full definition set and collects every violation
// rather than stopping at the first, so a broken catalog is fixable in
// one pass.
func (c *Catalog) validate() error {
	var violations []string
	add := func(format string, args ...any) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	if len(c.Triggers) == 0 {
		add("catalog declares no triggers")
	}
	if len(c.Behaviors) == 0 {
		add("catalog declares no behaviors")
	}

	categories := make(map[string]bool)
	for id, b := range c.Behaviors {
		if b.ID != id {
			add("behavior map key %q does not match id %q", id, b.ID)
		}
		if b.Category == "" {
			add("behavior %s: missing category", id)
		}
		categories[b.Category] = true

		validateAffinity(add, "behavior "+id, b.Affinity)
		validatePredicates(add, "behavior "+id+" requires", b.Requires)
		validatePredicates(add, "behavior "+id+" blocks", b.Blocks)
		validatePredicates(add, "behavior "+id+" override", b.Override)

		if b.Cooldown.Window < 0 {
			add("behavior %s: negative cooldown window %d", id, b.Cooldown.Window)
		}
		if b.Template == "" {
			add("behavior %s: missing response template", id)
		}

		for dim, val := range b.Mutations {
			if !knowledge.Declared(dim) {
				add("behavior %s: mutation names undeclared dimension %q", id, dim)
				continue
			}
			if val == MutationIncrement {
				continue
			}
			probe := knowledge.Predicate{Dimension: dim, Op: knowledge.OpEq, Value: val}
			if err := probe.Validate(); err != nil {
				add("behavior %s: mutation value for %s has wrong type: %v", id, dim, err)
			}
		}

		if b.Fallback {
			if c.FallbackID != "" {
				add("multiple fallback behaviors: %s and %s", c.FallbackID, id)
			}
			c.FallbackID = id
			if len(b.Requires) > 0 || len(b.Blocks) > 0 || b.Cooldown.Window > 0 {
				add("fallback behavior %s must be unconditionally eligible", id)
			}
		}
	}
	if c.FallbackID == "" {
		add("no behavior is marked as the fallback")
	}

	for id, t := range c.Triggers {
		if t.ID != id {
			add("trigger map key %q does not match id %q", id, t.ID)
		}
		switch t.Type {
		case UserExplicit, UserImplicit, SystemProactive, SystemReactive:
		default:
			add("trigger %s: unknown type %q", id, t.Type)
		}
		if !t.Priority.Valid() {
			add("trigger %s: unknown priority %q", id, t.Priority)
		}
		if len(t.Match.Keywords) == 0 && t.Match.Signal == "" && len(t.Match.State) == 0 {
			add("trigger %s: empty match rule", id)
		}
		validateAffinity(add, "trigger "+id, t.Affinity)
		validatePredicates(add, "trigger "+id+" state", t.Match.State)

		if len(t.Mappings) == 0 {
			add("trigger %s: maps to no behaviors", id)
		}
		for _, m := range t.Mappings {
			if _, ok := c.Behaviors[m.Behavior]; !ok {
				add("trigger %s: maps to undeclared behavior %q", id, m.Behavior)
			}
			validatePredicates(add, fmt.Sprintf("trigger %s mapping %s", id, m.Behavior), m.When)
		}
	}

	for _, inc := range c.Incompatibilities {
		if inc.A != "*" && !categories[inc.A] {
			add("incompatibility references unknown category %q", inc.A)
		}
		if inc.B != "*" && !categories[inc.B] {
			add("incompatibility references unknown category %q", inc.B)
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func validateAffinity(add func(string, ...any), ctx string, a Affinity) {
	for dim, w := range a {
		if !composition.Valid(composition.Dimension(dim)) {
			add("%s: affinity names unknown dimension %q", ctx, dim)
		}
		if w < 0 || w > 1 {
			add("%s: affinity[%s]=%f outside [0,1]", ctx, dim, w)
		}
	}
}

func validatePredicates(add func(string, ...any), ctx string, preds []knowledge.Predicate) {
	for _, p := range preds {
		if err := p.Validate(); err != nil {
			add("%s: %v", ctx, err)
		}
	}
}
