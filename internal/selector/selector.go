// Package selector implements the pattern selection pipeline: candidate
// expansion from fired triggers, prerequisite and cooldown filtering,
// affinity scoring against the situational composition, critical-priority
// override, anti-pattern pruning, and a fully deterministic final ranking
// capped at two patterns.
//
// The selector is pure: side effects (history push, knowledge mutations)
// belong to the caller, and only happen once a selection is actually used.
package selector

import (
	"errors"
	"sort"

	"counsel/internal/catalog"
	"counsel/internal/composition"
	"counsel/internal/config"
	"counsel/internal/knowledge"
	"counsel/internal/logging"
	"counsel/internal/trigger"
)

// ErrNoEligiblePattern is the explicit no-op sentinel returned when
// nothing survives filtering. The caller must fire the reserved fallback
// pattern so the conversation never stalls.
var ErrNoEligiblePattern = errors.New("no eligible pattern survived selection")

// Selected is one ranked selection result.
type Selected struct {
	Behavior *catalog.BehaviorDef
	Score    float64
	Priority catalog.Priority

	// TriggerIDs are the fired triggers that made this behavior a
	// candidate.
	TriggerIDs []string

	// Forced marks a critical-priority selection that bypassed scoring.
	Forced bool
}

// candidate is a behavior under consideration, merged across every
// trigger that mapped to it.
type candidate struct {
	behavior   *catalog.BehaviorDef
	priority   catalog.Priority
	strength   float64
	triggerIDs []string
	score      float64
	forced     bool
}

// Select runs the full pipeline. Returns at most cfg.MaxSelected ranked
// patterns, or ErrNoEligiblePattern when the caller must fall back.
func Select(
	matches []trigger.Match,
	snap knowledge.Snapshot,
	comp composition.Vector,
	cat *catalog.Catalog,
	cfg config.SelectorConfig,
) ([]Selected, error) {
	log := logging.Get(logging.CategorySelector)

	// 1. Candidate expansion: union of behaviors mapped from fired
	// triggers, disambiguated by mapping predicates. Merged candidates
	// take the strongest priority of their triggers.
	byID := make(map[string]*candidate)
	for _, m := range matches {
		def, ok := cat.Trigger(m.TriggerID)
		if !ok {
			continue
		}
		for _, mapping := range def.Mappings {
			if len(mapping.When) > 0 && !snap.EvalAll(mapping.When) {
				continue
			}
			b, ok := cat.Behavior(mapping.Behavior)
			if !ok {
				continue
			}
			c, seen := byID[b.ID]
			if !seen {
				c = &candidate{behavior: b, priority: m.Priority}
				byID[b.ID] = c
			}
			if m.Priority.Rank() > c.priority.Rank() {
				c.priority = m.Priority
			}
			if m.Strength > c.strength {
				c.strength = m.Strength
			}
			c.triggerIDs = append(c.triggerIDs, m.TriggerID)
		}
	}

	candidates := make([]*candidate, 0, len(byID))
	for _, c := range byID {
		candidates = append(candidates, c)
	}
	expanded := len(candidates)

	// 2. Prerequisite filter.
	candidates = filter(candidates, func(c *candidate) bool {
		return snap.EvalAll(c.behavior.Requires) && snap.EvalNone(c.behavior.Blocks)
	})
	afterPrereq := len(candidates)

	// 3. Cooldown filter, with per-behavior override predicates.
	turn := currentTurn(snap)
	candidates = filter(candidates, func(c *candidate) bool {
		if !inCooldown(c.behavior, snap.History, turn, cat) {
			return true
		}
		return len(c.behavior.Override) > 0 && snap.EvalAll(c.behavior.Override)
	})
	afterCooldown := len(candidates)

	// 4. Affinity scoring. Behaviors whose own dominant dimension is
	// essentially absent from the current composition are dropped: the
	// dominant-dimension score is normalized against the uniform weight
	// so the default threshold reads naturally.
	uniform := float64(len(composition.Dimensions))
	candidates = filter(candidates, func(c *candidate) bool {
		c.score = score(c.behavior.Affinity, comp) * c.strength
		dom := c.behavior.Affinity.Dominant()
		dominantScore := comp[dom] * c.behavior.Affinity[string(dom)] * uniform
		if c.priority == catalog.PriorityCritical {
			// 5. Priority override: critical-triggered behaviors bypass
			// the scoring floor entirely.
			c.forced = true
			return true
		}
		return dominantScore >= cfg.MinDominantAffinity
	})

	if len(candidates) == 0 {
		log.Debugw("selection empty",
			"expanded", expanded,
			"after_prereq", afterPrereq,
			"after_cooldown", afterCooldown)
		return nil, ErrNoEligiblePattern
	}

	// Deterministic processing order: forced first, then score, then
	// priority class, then id.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.forced != b.forced {
			return a.forced
		}
		if a.score != b.score {
			return a.score > b.score
		}
		if a.priority.Rank() != b.priority.Rank() {
			return a.priority.Rank() > b.priority.Rank()
		}
		return a.behavior.ID < b.behavior.ID
	})

	if len(candidates) > cfg.MaxSelected {
		candidates = candidates[:cfg.MaxSelected]
	}

	// 6. Anti-pattern pruning: the lower-priority member of any
	// incompatible pair is removed from the tentative set.
	candidates = pruneIncompatible(candidates, cat)

	// 7. Final ranking is the processing order minus pruned entries;
	// already capped.
	selected := make([]Selected, 0, len(candidates))
	for _, c := range candidates {
		sort.Strings(c.triggerIDs)
		selected = append(selected, Selected{
			Behavior:   c.behavior,
			Score:      c.score,
			Priority:   c.priority,
			TriggerIDs: c.triggerIDs,
			Forced:     c.forced,
		})
	}

	log.Debugw("selection complete",
		"expanded", expanded,
		"after_prereq", afterPrereq,
		"after_cooldown", afterCooldown,
		"selected", ids(selected))
	return selected, nil
}

// score is the affinity dot product against the composition.
func score(a catalog.Affinity, comp composition.Vector) float64 {
	total := 0.0
	for _, d := range composition.Dimensions {
		total += comp[d] * a[string(d)]
	}
	return total
}

// inCooldown reports whether the behavior (or its cooldown category)
// fired within its window. A window of 0 disables the cooldown.
func inCooldown(b *catalog.BehaviorDef, history []knowledge.PatternUse, turn int, cat *catalog.Catalog) bool {
	if b.Cooldown.Window <= 0 {
		return false
	}
	for i := len(history) - 1; i >= 0; i-- {
		use := history[i]
		if turn-use.Turn >= b.Cooldown.Window {
			break // History is turn-ordered; everything earlier is older.
		}
		if use.PatternID == b.ID {
			return true
		}
		if b.Cooldown.Category != "" {
			if fired, ok := cat.Behavior(use.PatternID); ok &&
				sameCooldownCategory(fired, b.Cooldown.Category) {
				return true
			}
		}
	}
	return false
}

// sameCooldownCategory matches a previously fired behavior against a
// category-wide cooldown.
func sameCooldownCategory(fired *catalog.BehaviorDef, category string) bool {
	return fired.Category == category || fired.Cooldown.Category == category
}

// pruneIncompatible removes the lower-priority member of each
// incompatible pair. Ties fall to score, then behavior id, so the result
// is deterministic.
func pruneIncompatible(candidates []*candidate, cat *catalog.Catalog) []*candidate {
	removed := make(map[string]bool)
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if removed[a.behavior.ID] || removed[b.behavior.ID] {
				continue
			}
			if !cat.Incompatible(a.behavior.Category, b.behavior.Category) {
				continue
			}
			removed[loser(a, b).behavior.ID] = true
		}
	}
	return filter(candidates, func(c *candidate) bool {
		return !removed[c.behavior.ID]
	})
}

// loser picks the candidate to prune from an incompatible pair.
func loser(a, b *candidate) *candidate {
	if a.priority.Rank() != b.priority.Rank() {
		if a.priority.Rank() < b.priority.Rank() {
			return a
		}
		return b
	}
	if a.score != b.score {
		if a.score < b.score {
			return a
		}
		return b
	}
	if a.behavior.ID > b.behavior.ID {
		return a
	}
	return b
}

func currentTurn(snap knowledge.Snapshot) int {
	if v, ok := snap.Dims["conversation.turn"].(int); ok {
		return v
	}
	return 0
}

func filter(in []*candidate, keep func(*candidate) bool) []*candidate {
	out := in[:0]
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func ids(selected []Selected) []string {
	out := make([]string, len(selected))
	for i, s := range selected {
		out[i] = s.Behavior.ID
	}
	return out
}
