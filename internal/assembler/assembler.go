// Package assembler extracts the minimal, size-bounded payload handed to
// the external text generator: the selected patterns' goals and
// templates, only the knowledge dimensions those patterns reference, and
// a short history window. A two-tier token ceiling warns first and then
// fails closed — the generator is never invoked with an oversized
// context.
package assembler

import (
	"fmt"
	"sort"
	"strings"

	"counsel/internal/catalog"
	"counsel/internal/config"
	"counsel/internal/knowledge"
	"counsel/internal/logging"
	"counsel/internal/selector"
)

// TruncationMarker replaces the tail of any single knowledge value that
// exceeds the per-field length limit. Truncation is always explicit.
const TruncationMarker = "…[truncated]"

// Turn is one prior conversation turn included in the payload.
type Turn struct {
	Role string // "user" or "assistant"
	Text string
}

// PatternContext is the per-pattern slice of the payload.
type PatternContext struct {
	ID          string
	Category    string
	Goal        string
	Template    string
	Constraints catalog.Constraints

	// Knowledge holds only the dimensions this pattern's requires and
	// mutation declarations reference — never the full state.
	Knowledge map[string]string
}

// Payload is the bounded context handed to the caller for generation.
type Payload struct {
	Patterns []PatternContext
	History  []Turn

	// Tokens is the estimated size; always below the reject ceiling.
	Tokens int
}

// OversizedContextError reports a payload at or above the hard ceiling.
// Fail closed: the caller must abort the turn, shrink history, or alert
// operators — the generator is never invoked.
type OversizedContextError struct {
	Caller   string
	Tokens   int
	Limit    int
	Overflow int
	Preview  string
}

func (e *OversizedContextError) Error() string {
	return fmt.Sprintf("oversized context from %s: %d tokens (limit %d, overflow %d); preview: %s",
		e.Caller, e.Tokens, e.Limit, e.Overflow, e.Preview)
}

// Assemble builds the bounded payload. caller names the invoking
// component for warnings and errors.
func Assemble(
	caller string,
	selected []selector.Selected,
	snap knowledge.Snapshot,
	history []Turn,
	cfg config.ContextConfig,
) (*Payload, error) {
	log := logging.Get(logging.CategoryAssembler)

	payload := &Payload{}

	for _, sel := range selected {
		b := sel.Behavior
		pc := PatternContext{
			ID:          b.ID,
			Category:    b.Category,
			Goal:        b.Goal,
			Template:    b.Template,
			Constraints: b.Constraints,
			Knowledge:   make(map[string]string),
		}
		for _, dim := range referencedDimensions(b) {
			val, ok := snap.Dims[dim]
			if !ok {
				continue
			}
			pc.Knowledge[dim] = boundField(fmt.Sprintf("%v", val), cfg.MaxFieldChars)
		}
		payload.Patterns = append(payload.Patterns, pc)
	}

	// Last N turns only, most recent last.
	if n := cfg.HistoryTurns; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	} else if cfg.HistoryTurns == 0 {
		history = nil
	}
	for _, turn := range history {
		payload.History = append(payload.History, Turn{
			Role: turn.Role,
			Text: boundField(turn.Text, cfg.MaxFieldChars),
		})
	}

	tc := NewTokenCounter()
	payload.Tokens = tc.CountPayload(payload)

	switch {
	case payload.Tokens >= cfg.RejectTokens:
		err := &OversizedContextError{
			Caller:   caller,
			Tokens:   payload.Tokens,
			Limit:    cfg.RejectTokens,
			Overflow: payload.Tokens - cfg.RejectTokens,
			Preview:  preview(payload),
		}
		log.Errorw("context rejected",
			"caller", caller,
			"tokens", payload.Tokens,
			"limit", cfg.RejectTokens,
			"overflow", err.Overflow)
		return nil, err
	case payload.Tokens >= cfg.WarnTokens:
		log.Warnw("context above warn threshold",
			"caller", caller,
			"tokens", payload.Tokens,
			"warn", cfg.WarnTokens,
			"reject", cfg.RejectTokens)
	}

	return payload, nil
}

// referencedDimensions returns the knowledge dimensions a behavior's
// requires clauses and mutation declarations name, sorted for
// deterministic payloads.
func referencedDimensions(b *catalog.BehaviorDef) []string {
	seen := make(map[string]bool)
	for _, p := range b.Requires {
		seen[p.Dimension] = true
	}
	for dim := range b.Mutations {
		seen[dim] = true
	}
	dims := make([]string, 0, len(seen))
	for dim := range seen {
		dims = append(dims, dim)
	}
	sort.Strings(dims)
	return dims
}

// boundField enforces the per-field length limit with an explicit marker,
// never a silent cut.
func boundField(val string, maxChars int) string {
	if maxChars <= 0 {
		return val
	}
	runes := []rune(val)
	if len(runes) <= maxChars {
		return val
	}
	keep := maxChars - len([]rune(TruncationMarker))
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + TruncationMarker
}

// preview renders a short digest of the payload for oversize errors.
func preview(p *Payload) string {
	var parts []string
	for _, pat := range p.Patterns {
		goal := pat.Goal
		if len(goal) > 60 {
			goal = goal[:60] + "…"
		}
		parts = append(parts, pat.ID+": "+goal)
	}
	return strings.Join(parts, " | ")
}
