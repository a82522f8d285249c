// Package composition maintains the situational composition: a continuous
// 8-dimensional mixture describing what kind of conversation this
// currently is. There is no discrete "current phase" — reinforcing signals
// bump dimensions, everything decays multiplicatively, and the vector is
// renormalized so it always sums to 1.0.
package composition

import (
	"fmt"
	"math"

	"counsel/internal/logging"
)

// Dimension names the 8 conversational modes.
type Dimension string

const (
	Discovery      Dimension = "discovery"
	Education      Dimension = "education"
	Assessment     Dimension = "assessment"
	Recommendation Dimension = "recommendation"
	Navigation     Dimension = "navigation"
	ErrorRecovery  Dimension = "error_recovery"
	Clarification  Dimension = "clarification"
	Rapport        Dimension = "rapport"
)

// Dimensions lists all composition dimensions in canonical order.
var Dimensions = []Dimension{
	Discovery,
	Education,
	Assessment,
	Recommendation,
	Navigation,
	ErrorRecovery,
	Clarification,
	Rapport,
}

// Valid reports whether d names a declared dimension.
func Valid(d Dimension) bool {
	for _, dim := range Dimensions {
		if d == dim {
			return true
		}
	}
	return false
}

// Vector is a normalized mixture over the 8 dimensions.
// Invariant: values sum to 1.0 ± 1e-6 at all times.
type Vector map[Dimension]float64

// Signal is a reinforcement request for one dimension.
type Signal struct {
	Dimension Dimension
	Strength  float64 // [0,1]; scaled by the configured reinforce cap
}

// Initial returns the fixed turn-1 prior: discovery and education split
// evenly, all else zero.
func Initial() Vector {
	v := make(Vector, len(Dimensions))
	for _, d := range Dimensions {
		v[d] = 0
	}
	v[Discovery] = 0.5
	v[Education] = 0.5
	return v
}

// Clone returns a copy of the vector.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for d, w := range v {
		out[d] = w
	}
	return out
}

// Sum returns the total weight. Useful for invariant checks.
func (v Vector) Sum() float64 {
	total := 0.0
	for _, w := range v {
		total += w
	}
	return total
}

// Dominant returns the dimension with the highest weight. Ties resolve to
// the earliest dimension in canonical order, keeping the result
// deterministic.
func (v Vector) Dominant() Dimension {
	best := Dimensions[0]
	bestW := v[best]
	for _, d := range Dimensions[1:] {
		if v[d] > bestW {
			best = d
			bestW = v[d]
		}
	}
	return best
}

// Update applies one turn of evolution: each reinforcing signal adds a
// bounded increment (clamped at 1.0 before normalization), every dimension
// decays by its configured factor, and the vector is renormalized.
// Returns a new vector; the input is not mutated.
func Update(v Vector, signals []Signal, decay map[string]float64, reinforceCap float64) (Vector, error) {
	out := v.Clone()

	for _, sig := range signals {
		if !Valid(sig.Dimension) {
			return nil, fmt.Errorf("unknown composition dimension %q", sig.Dimension)
		}
		strength := math.Max(0, math.Min(1, sig.Strength))
		out[sig.Dimension] = math.Min(1.0, out[sig.Dimension]+strength*reinforceCap)
	}

	for _, d := range Dimensions {
		f, ok := decay[string(d)]
		if !ok {
			f = 0.90
		}
		out[d] *= f
	}

	if err := normalize(out); err != nil {
		return nil, err
	}

	logging.Get(logging.CategoryComposition).Debugw("composition updated",
		"dominant", string(out.Dominant()),
		"signals", len(signals))
	return out, nil
}

// normalize rescales the vector to sum to 1.0. A fully-decayed vector with
// no mass left falls back to the initial prior rather than dividing by
// zero.
func normalize(v Vector) error {
	total := v.Sum()
	if total <= 1e-12 {
		init := Initial()
		for d, w := range init {
			v[d] = w
		}
		return nil
	}
	for d := range v {
		v[d] /= total
	}
	// Guard the invariant after floating-point division.
	if math.Abs(v.Sum()-1.0) > 1e-6 {
		return fmt.Errorf("composition failed to normalize: sum=%f", v.Sum())
	}
	return nil
}
