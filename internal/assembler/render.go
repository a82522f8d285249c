package assembler

import (
	"fmt"
	"sort"
	"strings"
)

// Render flattens the payload into the prompt text handed to the
// generator. The engine never renders; the caller decides when (and
// whether) to generate.
func (p *Payload) Render() string {
	var sb strings.Builder

	for i, pat := range p.Patterns {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "## Pattern %s (%s)\n", pat.ID, pat.Category)
		fmt.Fprintf(&sb, "Goal: %s\n", pat.Goal)
		fmt.Fprintf(&sb, "Instructions: %s\n", pat.Template)
		if pat.Constraints.Tone != "" {
			fmt.Fprintf(&sb, "Tone: %s\n", pat.Constraints.Tone)
		}
		if pat.Constraints.MaxChars > 0 {
			fmt.Fprintf(&sb, "Max length: %d characters\n", pat.Constraints.MaxChars)
		}
		if len(pat.Knowledge) > 0 {
			sb.WriteString("Known state:\n")
			for _, dim := range sortedKeys(pat.Knowledge) {
				fmt.Fprintf(&sb, "  %s = %s\n", dim, pat.Knowledge[dim])
			}
		}
	}

	if len(p.History) > 0 {
		sb.WriteString("\n## Recent turns\n")
		for _, turn := range p.History {
			fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Text)
		}
	}

	return sb.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
