// Package trigger detects conversational signals. Detection is a pure
// function of (message, knowledge snapshot, catalog): identical inputs
// always produce identical candidate matches, and nothing is mutated.
package trigger

import (
	"regexp"
	"sort"
	"strings"

	"counsel/internal/catalog"
	"counsel/internal/knowledge"
	"counsel/internal/logging"
)

// Intensity tags carried on escalated matches.
const IntensityExtreme = "extreme"

// Match is a candidate trigger firing for this turn.
type Match struct {
	TriggerID string
	Strength  float64 // [0,1]

	// Priority is the trigger's class, possibly escalated one tier by
	// profanity intensity.
	Priority catalog.Priority

	// EmotionalIntensity is set to IntensityExtreme when profanity
	// escalated the match.
	EmotionalIntensity string

	// Payload carries extracted signal details (contradiction old/new
	// values, matched keyword).
	Payload map[string]string
}

// Extraction is an entity attribute captured from the message, stored as
// a system fact once the turn commits.
type Extraction struct {
	Entity    string
	Attribute string
	Value     string
}

// Thresholds for reactive heuristics. The stuck threshold lives in the
// catalog's state predicate; repetition is computed from history here.
type Options struct {
	RepetitionThreshold int
}

// factExtractors pull entity attributes from user statements for
// contradiction detection and fact capture.
var factExtractors = []struct {
	entity    string
	attribute string
	re        *regexp.Regexp
}{
	{"business", "type", regexp.MustCompile(`(?i)\b(?:we(?:'re| are) a|my business is a|i run a|i own a)\s+([a-z][a-z\- ]{2,30}?)\s+(?:business|company|shop|firm|agency)`)},
	{"business", "employees", regexp.MustCompile(`(?i)\b(?:we have|i have|there are)\s+(\d+)\s+employees`)},
	{"business", "revenue", regexp.MustCompile(`(?i)\brevenue (?:is|of)(?: about| around)?\s+\$?([\d,.]+[km]?)`)},
}

// Detect evaluates every catalog trigger against the message and
// knowledge snapshot. Returns candidate matches (sorted by trigger id for
// determinism) and any extracted facts. Pure and side-effect-free.
func Detect(message string, snap knowledge.Snapshot, cat *catalog.Catalog, opts Options) ([]Match, []Extraction) {
	lower := strings.ToLower(message)

	profanity := containsAny(lower, profanityKeywords)
	frustration := containsAny(lower, frustrationKeywords)
	confusion := containsAny(lower, confusionKeywords)
	pain := containsAny(lower, painKeywords)
	satisfaction := containsAny(lower, satisfactionKeywords)
	domain := containsAny(lower, domainKeywords)

	extractions := extractFacts(message)
	contradictionPayload := detectContradiction(snap, extractions)

	// Profanity is an intensity multiplier, never a standalone trigger.
	// With pain and domain content it upgrades to the critical discovery
	// trigger; with any other signal (or a domain-relevant demand) it
	// escalates frustration; alone it is low-value misuse.
	intensePain := profanity && pain && domain
	escalated := profanity && !intensePain && (frustration || confusion || domain)
	profanityOnly := profanity && !intensePain && !escalated
	if escalated && !frustration {
		// A profane domain-relevant demand reads as frustration even
		// without a frustration keyword.
		frustration = true
	}

	var matches []Match
	for _, def := range cat.Triggers {
		m, ok := evalTrigger(def, lower, snap, opts, signalSet{
			frustration:   frustration,
			confusion:     confusion,
			pain:          pain && !intensePain,
			intensePain:   intensePain,
			satisfaction:  satisfaction,
			profanityOnly: profanityOnly,
			contradiction: contradictionPayload,
		})
		if !ok {
			continue
		}
		if escalated && def.Match.Signal == "frustration" {
			m.Priority = m.Priority.Escalate()
			m.EmotionalIntensity = IntensityExtreme
		}
		matches = append(matches, m)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].TriggerID < matches[j].TriggerID
	})

	logging.Get(logging.CategoryTrigger).Debugw("detection complete",
		"matches", len(matches),
		"profanity", profanity,
		"domain_relevant", domain)
	return matches, extractions
}

type signalSet struct {
	frustration   bool
	confusion     bool
	pain          bool
	intensePain   bool
	satisfaction  bool
	profanityOnly bool
	contradiction map[string]string
}

// evalTrigger checks one trigger definition. All present rule parts must
// hold: keywords, signal, and state predicates combine conjunctively.
func evalTrigger(def *catalog.TriggerDef, lower string, snap knowledge.Snapshot, opts Options, sig signalSet) (Match, bool) {
	m := Match{
		TriggerID: def.ID,
		Strength:  1.0,
		Priority:  def.Priority,
	}

	if len(def.Match.Keywords) > 0 {
		kw, ok := firstMatch(lower, def.Match.Keywords)
		if !ok {
			return Match{}, false
		}
		m.Payload = map[string]string{"keyword": kw}
	}

	if def.Match.Signal != "" {
		switch def.Match.Signal {
		case "frustration":
			if !sig.frustration {
				return Match{}, false
			}
		case "confusion":
			if !sig.confusion {
				return Match{}, false
			}
		case "pain":
			if !sig.pain {
				return Match{}, false
			}
		case "intense_pain":
			if !sig.intensePain {
				return Match{}, false
			}
			m.EmotionalIntensity = IntensityExtreme
		case "satisfaction":
			if !sig.satisfaction {
				return Match{}, false
			}
			m.Strength = 0.7
		case "profanity_only":
			if !sig.profanityOnly {
				return Match{}, false
			}
			m.Strength = 0.4
		case "contradiction":
			if sig.contradiction == nil {
				return Match{}, false
			}
			m.Payload = sig.contradiction
		case "first_turn", "stuck":
			// Pure state-transition signals: the state predicates below
			// carry the whole condition.
		case "repetition":
			if !repeating(snap.History, opts.RepetitionThreshold) {
				return Match{}, false
			}
		default:
			// Unknown signal names never fire. Catalog validation keeps
			// built-ins honest; external catalogs may probe signals this
			// build does not implement.
			return Match{}, false
		}
	}

	if len(def.Match.State) > 0 && !snap.EvalAll(def.Match.State) {
		return Match{}, false
	}

	return m, true
}

// repeating reports whether the same pattern fired in each of the last
// threshold consecutive turns.
func repeating(history []knowledge.PatternUse, threshold int) bool {
	if threshold <= 1 || len(history) < threshold {
		return false
	}
	tail := history[len(history)-threshold:]
	for i := 1; i < len(tail); i++ {
		if tail[i].PatternID != tail[0].PatternID {
			return false
		}
		if tail[i].Turn != tail[i-1].Turn+1 {
			return false
		}
	}
	return true
}

// extractFacts runs the extraction rules over the raw message.
func extractFacts(message string) []Extraction {
	var out []Extraction
	for _, ex := range factExtractors {
		if sub := ex.re.FindStringSubmatch(message); sub != nil {
			out = append(out, Extraction{
				Entity:    ex.entity,
				Attribute: ex.attribute,
				Value:     strings.ToLower(strings.TrimSpace(sub[1])),
			})
		}
	}
	return out
}

// detectContradiction compares freshly extracted facts against what the
// system already captured. Returns a payload describing the first
// conflict, or nil.
func detectContradiction(snap knowledge.Snapshot, extractions []Extraction) map[string]string {
	for _, ex := range extractions {
		stored, ok := snap.Fact(ex.Entity, ex.Attribute)
		if ok && stored != "" && stored != ex.Value {
			return map[string]string{
				"entity":    ex.Entity,
				"attribute": ex.Attribute,
				"stored":    stored,
				"claimed":   ex.Value,
			}
		}
	}
	return nil
}

func containsAny(lower string, keywords []string) bool {
	_, ok := firstMatch(lower, keywords)
	return ok
}

func firstMatch(lower string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}
