package trigger

// Keyword families for implicit signal detection. Matching is
// case-insensitive substring matching, same as the catalog's explicit
// keyword rules. Families are heuristics owned by the detector; explicit
// trigger keywords live in the catalog.

var frustrationKeywords = []string{
	"frustrat",
	"annoying",
	"annoyed",
	"ridiculous",
	"waste of time",
	"wasting my time",
	"this is useless",
	"not working",
	"doesn't work",
	"fed up",
	"sick of",
	"still waiting",
	"again?",
	"come on",
}

var confusionKeywords = []string{
	"confus",
	"don't understand",
	"dont understand",
	"don't get it",
	"what do you mean",
	"makes no sense",
	"lost me",
	"i'm lost",
	"unclear",
	"huh",
}

var painKeywords = []string{
	"losing money",
	"bleeding money",
	"killing us",
	"killing me",
	"struggling",
	"can't keep up",
	"cant keep up",
	"falling behind",
	"biggest problem",
	"pain point",
	"nightmare",
	"drowning in",
	"costing us",
	"churn",
	"losing customers",
}

var satisfactionKeywords = []string{
	"thank",
	"great",
	"helpful",
	"perfect",
	"awesome",
	"exactly what i needed",
	"love it",
	"makes sense now",
}

// Substring matching, so entries must not be prefixes of common words
// ("hell" would match "hello").
var profanityKeywords = []string{
	"fuck",
	"shit",
	"damn",
	"wtf",
}

// domainKeywords mark business-assessment-relevant content. Profanity
// co-occurring with these is a strong signal, not misuse.
var domainKeywords = []string{
	"business",
	"assessment",
	"report",
	"score",
	"component",
	"revenue",
	"customer",
	"cost",
	"budget",
	"marketing",
	"sales",
	"operations",
	"recommendation",
	"employees",
	"profit",
}
