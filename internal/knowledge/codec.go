package knowledge

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"counsel/internal/logging"
)

// The flat codec serializes state to a string key-value map so the engine
// stays indifferent to storage technology. Key namespaces:
//
//	schema_version        codec schema version
//	dim.<dimension>       declared dimension values
//	fact.<entity>.<attr>  captured system facts
//	history.<index>       "<patternID>:<turn>" pairs, ordered
//
// Decoding is forward-compatible: dimensions absent from an older snapshot
// are default-filled and reported via SchemaMismatch. This is the one
// place recoverable errors are swallowed rather than raised.

// SchemaMismatch reports the schema-evolution repairs made while decoding
// an older or newer snapshot. It is a report, not a failure.
type SchemaMismatch struct {
	SnapshotVersion int
	Defaulted       []string // dimensions filled with defaults
	Dropped         []string // keys the current schema no longer declares
}

func (m *SchemaMismatch) String() string {
	return fmt.Sprintf("schema v%d: defaulted %d dimension(s), dropped %d key(s)",
		m.SnapshotVersion, len(m.Defaulted), len(m.Dropped))
}

// Encode serializes the state to the flat key-value form. Round-trips
// losslessly through Decode for all declared dimensions.
func Encode(s *State) map[string]string {
	kv := make(map[string]string, len(s.dims)+len(s.facts)+len(s.history)+1)
	kv["schema_version"] = strconv.Itoa(SchemaVersion)

	for dim, val := range s.dims {
		kv["dim."+dim] = formatValue(registry[dim].Kind, val)
	}
	for key, val := range s.facts {
		kv["fact."+key] = val
	}
	for i, use := range s.history {
		kv[fmt.Sprintf("history.%06d", i)] = fmt.Sprintf("%s:%d", use.PatternID, use.Turn)
	}
	return kv
}

// Decode rebuilds a state from the flat form. Missing dimensions are
// default-filled and malformed values fall back to defaults; both are
// reported in the returned SchemaMismatch (nil when the snapshot matched
// the current schema exactly) and logged as warnings, never raised.
func Decode(kv map[string]string) (*State, *SchemaMismatch) {
	s := New()
	mismatch := &SchemaMismatch{SnapshotVersion: SchemaVersion}

	if raw, ok := kv["schema_version"]; ok {
		if v, err := strconv.Atoi(raw); err == nil {
			mismatch.SnapshotVersion = v
		}
	}

	seen := make(map[string]bool, len(registry))
	historyKeys := make([]string, 0)

	for key, raw := range kv {
		switch {
		case key == "schema_version":
			// Handled above.
		case strings.HasPrefix(key, "dim."):
			dim := strings.TrimPrefix(key, "dim.")
			reg, ok := registry[dim]
			if !ok {
				mismatch.Dropped = append(mismatch.Dropped, dim)
				continue
			}
			val, err := parseValue(reg.Kind, raw)
			if err != nil {
				mismatch.Defaulted = append(mismatch.Defaulted, dim)
				continue
			}
			s.dims[dim] = val
			seen[dim] = true
		case strings.HasPrefix(key, "fact."):
			s.facts[strings.TrimPrefix(key, "fact.")] = raw
		case strings.HasPrefix(key, "history."):
			historyKeys = append(historyKeys, key)
		default:
			mismatch.Dropped = append(mismatch.Dropped, key)
		}
	}

	// History entries must come back in firing order.
	sort.Strings(historyKeys)
	for _, key := range historyKeys {
		raw := kv[key]
		idx := strings.LastIndex(raw, ":")
		if idx <= 0 {
			mismatch.Dropped = append(mismatch.Dropped, key)
			continue
		}
		turn, err := strconv.Atoi(raw[idx+1:])
		if err != nil {
			mismatch.Dropped = append(mismatch.Dropped, key)
			continue
		}
		s.history = append(s.history, PatternUse{PatternID: raw[:idx], Turn: turn})
	}

	for dim := range registry {
		if !seen[dim] {
			mismatch.Defaulted = append(mismatch.Defaulted, dim)
		}
	}

	if len(mismatch.Defaulted) == 0 && len(mismatch.Dropped) == 0 &&
		mismatch.SnapshotVersion == SchemaVersion {
		return s, nil
	}

	sort.Strings(mismatch.Defaulted)
	sort.Strings(mismatch.Dropped)
	logging.Get(logging.CategoryKnowledge).Warnw("snapshot schema mismatch repaired",
		"snapshot_version", mismatch.SnapshotVersion,
		"current_version", SchemaVersion,
		"defaulted", mismatch.Defaulted,
		"dropped", mismatch.Dropped)
	return s, mismatch
}
