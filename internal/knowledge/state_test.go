package knowledge

import (
	"testing"
)

func TestSnapshotIsDefensive(t *testing.T) {
	s := New()
	s.SetFact("business", "type", "bakery")

	snap := s.Snapshot()
	snap.Dims["system.budget_known"] = true
	snap.Facts["business.type"] = "tampered"
	snap.History = append(snap.History, PatternUse{PatternID: "x", Turn: 1})

	fresh := s.Snapshot()
	if fresh.Dims["system.budget_known"] != false {
		t.Error("mutating a snapshot leaked into live state")
	}
	if got, _ := fresh.Fact("business", "type"); got != "bakery" {
		t.Errorf("fact changed through snapshot: %q", got)
	}
	if len(fresh.History) != 0 {
		t.Error("history grew through snapshot mutation")
	}
}

func TestApplyEnforcesDeclaredSet(t *testing.T) {
	s := New()

	err := s.Apply(map[string]any{"user.understands_assessment": true},
		[]string{"user.understands_scoring"})
	if err == nil {
		t.Fatal("write outside declared set should be rejected")
	}
	if v, _ := s.Get("user.understands_assessment"); v != false {
		t.Error("rejected mutation must not be applied")
	}

	err = s.Apply(map[string]any{"user.understands_assessment": true},
		[]string{"user.understands_assessment"})
	if err != nil {
		t.Fatalf("declared write rejected: %v", err)
	}
	if v, _ := s.Get("user.understands_assessment"); v != true {
		t.Error("declared mutation was not applied")
	}
}

func TestApplyIsAllOrNothing(t *testing.T) {
	s := New()
	err := s.Apply(map[string]any{
		"user.understands_assessment": true,
		"system.made_up_dimension":    1,
	}, []string{"user.understands_assessment", "system.made_up_dimension"})
	if err == nil {
		t.Fatal("unknown dimension should reject the mutation set")
	}
	if v, _ := s.Get("user.understands_assessment"); v != false {
		t.Error("partial mutation applied despite rejection")
	}
}

func TestApplyRejectsWrongKind(t *testing.T) {
	s := New()
	err := s.Apply(map[string]any{"system.assessed_components": "three"},
		[]string{"system.assessed_components"})
	if err == nil {
		t.Error("string into int dimension should be rejected")
	}
}

func TestDecaySignalsAndProgress(t *testing.T) {
	s := New()
	s.RaiseSignal("conversation.frustration_level", 1.0)
	s.RaiseSignal("conversation.confusion_level", 0.8)

	s.Decay(0.8, 0.75)

	if v, _ := s.Get("conversation.frustration_level"); v.(float64) != 0.8 {
		t.Errorf("frustration after decay = %v, want 0.8", v)
	}
	if v, _ := s.Get("conversation.confusion_level"); v.(float64) != 0.6 {
		t.Errorf("confusion after decay = %v, want 0.6", v)
	}
	if v, _ := s.Get("conversation.turns_since_progress"); v.(int) != 1 {
		t.Errorf("turns_since_progress = %v, want 1 after no-progress turn", v)
	}

	// Progress resets the counter on the next decay pass.
	if err := s.Apply(map[string]any{"system.budget_known": true},
		[]string{"system.budget_known"}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	s.Decay(0.8, 0.75)
	if v, _ := s.Get("conversation.turns_since_progress"); v.(int) != 0 {
		t.Errorf("turns_since_progress = %v, want 0 after progress", v)
	}
}

func TestDecaySnapsSmallLevelsToZero(t *testing.T) {
	s := New()
	s.RaiseSignal("conversation.frustration_level", 0.002)
	s.Decay(0.5, 0.5)
	if v, _ := s.Get("conversation.frustration_level"); v.(float64) != 0 {
		t.Errorf("tiny frustration should snap to zero, got %v", v)
	}
}

func TestRaiseSignalClamps(t *testing.T) {
	s := New()
	s.RaiseSignal("conversation.frustration_level", 0.9)
	s.RaiseSignal("conversation.frustration_level", 0.9)
	if v, _ := s.Get("conversation.frustration_level"); v.(float64) != 1.0 {
		t.Errorf("frustration = %v, want clamp at 1.0", v)
	}
}

func TestPredicateEval(t *testing.T) {
	s := New()
	if err := s.Apply(map[string]any{
		"system.assessed_components":     2,
		"user.expertise_level":           "expert",
		"conversation.frustration_level": 0.5,
	}, []string{"system.assessed_components", "user.expertise_level", "conversation.frustration_level"}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	snap := s.Snapshot()

	cases := []struct {
		name string
		pred Predicate
		want bool
	}{
		{"int ge true", Predicate{"system.assessed_components", OpGe, 1}, true},
		{"int ge false", Predicate{"system.assessed_components", OpGe, 3}, false},
		{"int lt", Predicate{"system.assessed_components", OpLt, 3}, true},
		{"bool eq", Predicate{"system.budget_known", OpEq, false}, true},
		{"bool ne", Predicate{"system.budget_known", OpNe, false}, false},
		{"string eq", Predicate{"user.expertise_level", OpEq, "expert"}, true},
		{"float ge", Predicate{"conversation.frustration_level", OpGe, 0.5}, true},
		{"float gt false", Predicate{"conversation.frustration_level", OpGt, 0.5}, false},
		{"undeclared dim", Predicate{"system.nope", OpEq, 1}, false},
	}
	for _, tc := range cases {
		if got := snap.Eval(tc.pred); got != tc.want {
			t.Errorf("%s: Eval = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestPredicateValidate(t *testing.T) {
	if err := (Predicate{"system.assessed_components", OpGe, 1}).Validate(); err != nil {
		t.Errorf("valid predicate rejected: %v", err)
	}
	if err := (Predicate{"system.nope", OpEq, 1}).Validate(); err == nil {
		t.Error("undeclared dimension should fail validation")
	}
	if err := (Predicate{"system.budget_known", OpGt, true}).Validate(); err == nil {
		t.Error("ordering operator on bool should fail validation")
	}
	if err := (Predicate{"system.assessed_components", Op("like"), 1}).Validate(); err == nil {
		t.Error("unknown operator should fail validation")
	}
}

func TestEvalAllAndNone(t *testing.T) {
	snap := New().Snapshot()

	all := []Predicate{
		{"system.budget_known", OpEq, false},
		{"system.assessed_components", OpEq, 0},
	}
	if !snap.EvalAll(all) {
		t.Error("EvalAll should hold for default state")
	}
	if !snap.EvalNone([]Predicate{{"system.budget_known", OpEq, true}}) {
		t.Error("EvalNone should hold when predicate is false")
	}
	if snap.EvalNone(all) {
		t.Error("EvalNone should fail when any predicate holds")
	}
}

func TestBeginTurn(t *testing.T) {
	s := New()
	if turn := s.BeginTurn(); turn != 1 {
		t.Errorf("first BeginTurn = %d, want 1", turn)
	}
	if turn := s.BeginTurn(); turn != 2 {
		t.Errorf("second BeginTurn = %d, want 2", turn)
	}
}
