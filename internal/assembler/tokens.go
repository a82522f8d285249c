package assembler

import "unicode/utf8"

// Token estimation for context budgeting. The heuristic is calibrated for
// common LLM tokenizers at ~4 characters per token; the budget ceilings
// are set with that margin of error in mind.

// TokenCounter estimates token counts for payload components.
type TokenCounter struct {
	charsPerToken float64
}

// NewTokenCounter returns a counter with default calibration.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{charsPerToken: 4.0}
}

// CountString estimates tokens in a string.
func (tc *TokenCounter) CountString(s string) int {
	if s == "" {
		return 0
	}
	return int(float64(utf8.RuneCountInString(s)) / tc.charsPerToken)
}

// CountPattern estimates tokens for one pattern context.
func (tc *TokenCounter) CountPattern(p PatternContext) int {
	// Structural overhead for labels and separators.
	tokens := 8
	tokens += tc.CountString(p.ID)
	tokens += tc.CountString(p.Goal)
	tokens += tc.CountString(p.Template)
	tokens += tc.CountString(p.Constraints.Tone)
	for dim, val := range p.Knowledge {
		tokens += 2 + tc.CountString(dim) + tc.CountString(val)
	}
	return tokens
}

// CountPayload estimates total tokens for an assembled payload.
func (tc *TokenCounter) CountPayload(p *Payload) int {
	total := 0
	for _, pat := range p.Patterns {
		total += tc.CountPattern(pat)
	}
	for _, turn := range p.History {
		total += 4 + tc.CountString(turn.Text)
	}
	return total
}
