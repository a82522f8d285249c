package selector

import (
	"errors"
	"testing"

	"counsel/internal/catalog"
	"counsel/internal/composition"
	"counsel/internal/config"
	"counsel/internal/knowledge"
	"counsel/internal/trigger"
)

func loadCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog load failed: %v", err)
	}
	return cat
}

func selectorConfig() config.SelectorConfig {
	return config.DefaultConfig().Selector
}

// stateAt returns a knowledge state advanced to the given turn.
func stateAt(t *testing.T, turn int) *knowledge.State {
	t.Helper()
	s := knowledge.New()
	for i := 0; i < turn; i++ {
		s.BeginTurn()
	}
	return s
}

// compLeaning returns a normalized composition leaning toward one
// dimension.
func compLeaning(dim composition.Dimension) composition.Vector {
	v := make(composition.Vector)
	rest := 0.6 / float64(len(composition.Dimensions)-1)
	for _, d := range composition.Dimensions {
		v[d] = rest
	}
	v[dim] = 0.4
	return v
}

func match(id string, priority catalog.Priority) trigger.Match {
	return trigger.Match{TriggerID: id, Strength: 1.0, Priority: priority}
}

func TestScenarioProgressQuerySelectsOneNavigationPattern(t *testing.T) {
	cat := loadCatalog(t)
	snap := stateAt(t, 3).Snapshot()

	selected, err := Select(
		[]trigger.Match{match("progress_query", catalog.PriorityMedium)},
		snap, compLeaning(composition.Navigation), cat, selectorConfig())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if len(selected) != 1 {
		t.Fatalf("selected %d patterns, want exactly 1", len(selected))
	}
	if selected[0].Behavior.Category != "navigation" {
		t.Errorf("category = %s, want navigation", selected[0].Behavior.Category)
	}
	if selected[0].Behavior.ID != "progress_summary" {
		t.Errorf("behavior = %s, want progress_summary", selected[0].Behavior.ID)
	}
}

func TestScenarioEscalatedFrustrationSelectsErrorRecoveryOnly(t *testing.T) {
	cat := loadCatalog(t)
	snap := stateAt(t, 3).Snapshot()

	// Profanity escalated the frustration trigger to critical; the
	// domain keyword also fired report_request.
	matches := []trigger.Match{
		{TriggerID: "user_frustration", Strength: 1.0,
			Priority: catalog.PriorityCritical, EmotionalIntensity: trigger.IntensityExtreme},
		match("report_request", catalog.PriorityMedium),
	}

	selected, err := Select(matches, snap, compLeaning(composition.Navigation), cat, selectorConfig())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	if len(selected) != 1 {
		t.Fatalf("selected %d patterns, want 1 after anti-pattern pruning: %+v", len(selected), ids(selected))
	}
	if selected[0].Behavior.ID != "recover_frustration" {
		t.Errorf("behavior = %s, want recover_frustration", selected[0].Behavior.ID)
	}
	if !selected[0].Forced {
		t.Error("critical selection should be marked forced")
	}
}

func TestScenarioRecommendationWithoutAssessmentFallsThrough(t *testing.T) {
	cat := loadCatalog(t)
	snap := stateAt(t, 3).Snapshot() // assessed_components == 0

	_, err := Select(
		[]trigger.Match{match("recommendation_request", catalog.PriorityMedium)},
		snap, compLeaning(composition.Recommendation), cat, selectorConfig())

	if !errors.Is(err, ErrNoEligiblePattern) {
		t.Fatalf("err = %v, want ErrNoEligiblePattern", err)
	}
}

func TestRecommendationEligibleAfterAssessment(t *testing.T) {
	cat := loadCatalog(t)
	s := stateAt(t, 3)
	if err := s.Apply(map[string]any{"system.assessed_components": 2},
		[]string{"system.assessed_components"}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	selected, err := Select(
		[]trigger.Match{match("recommendation_request", catalog.PriorityMedium)},
		s.Snapshot(), compLeaning(composition.Recommendation), cat, selectorConfig())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if selected[0].Behavior.ID != "give_recommendation" {
		t.Errorf("behavior = %s, want give_recommendation", selected[0].Behavior.ID)
	}
}

func TestCooldownLaw(t *testing.T) {
	cat := loadCatalog(t)
	cfg := selectorConfig()
	comp := compLeaning(composition.Navigation)

	// progress_summary fired at turn 4 with a window of 2.
	fire := func(turn int) ([]Selected, error) {
		s := stateAt(t, turn)
		s.RecordPattern("progress_summary", 4)
		return Select([]trigger.Match{match("progress_query", catalog.PriorityMedium)},
			s.Snapshot(), comp, cat, cfg)
	}

	// Turn 5: inside the window, nothing else eligible.
	if _, err := fire(5); !errors.Is(err, ErrNoEligiblePattern) {
		t.Errorf("turn 5 err = %v, want ErrNoEligiblePattern (cooldown)", err)
	}

	// Turn 6: window elapsed.
	selected, err := fire(6)
	if err != nil {
		t.Fatalf("turn 6 Select failed: %v", err)
	}
	if selected[0].Behavior.ID != "progress_summary" {
		t.Errorf("turn 6 behavior = %s, want progress_summary", selected[0].Behavior.ID)
	}
}

func TestCooldownOverrideOnRisingFrustration(t *testing.T) {
	cat := loadCatalog(t)
	cfg := selectorConfig()

	s := stateAt(t, 5)
	s.RecordPattern("recover_frustration", 4) // inside the 3-turn category window

	matches := []trigger.Match{match("user_frustration", catalog.PriorityHigh)}

	// Below the override threshold the cooldown holds.
	if _, err := Select(matches, s.Snapshot(), compLeaning(composition.ErrorRecovery), cat, cfg); !errors.Is(err, ErrNoEligiblePattern) {
		t.Errorf("err = %v, want cooldown to block re-fire", err)
	}

	// Rising frustration satisfies the override predicate.
	s.RaiseSignal("conversation.frustration_level", 0.7)
	selected, err := Select(matches, s.Snapshot(), compLeaning(composition.ErrorRecovery), cat, cfg)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if selected[0].Behavior.ID != "recover_frustration" {
		t.Errorf("behavior = %s, want recover_frustration via override", selected[0].Behavior.ID)
	}
}

func TestCategoryCooldownCoversSiblings(t *testing.T) {
	cat := loadCatalog(t)
	cfg := selectorConfig()

	// vary_approach fired at turn 4; reorient_user shares the
	// error_recovery category cooldown.
	s := stateAt(t, 5)
	s.RecordPattern("vary_approach", 4)
	if err := s.Apply(map[string]any{"conversation.turns_since_progress": 4},
		[]string{"conversation.turns_since_progress"}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	_, err := Select([]trigger.Match{match("user_stuck", catalog.PriorityHigh)},
		s.Snapshot(), compLeaning(composition.ErrorRecovery), cat, cfg)
	if !errors.Is(err, ErrNoEligiblePattern) {
		t.Errorf("err = %v, want category cooldown to block sibling", err)
	}
}

func TestPriorityLawCriticalAlwaysInTopTwo(t *testing.T) {
	cat := loadCatalog(t)
	snap := stateAt(t, 3).Snapshot()

	// Critical frustration fires alongside two well-scoring triggers in
	// a composition that heavily favors the others.
	matches := []trigger.Match{
		match("progress_query", catalog.PriorityMedium),
		match("help_request", catalog.PriorityMedium),
		{TriggerID: "user_frustration", Strength: 1.0, Priority: catalog.PriorityCritical},
	}

	selected, err := Select(matches, snap, compLeaning(composition.Navigation), cat, selectorConfig())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	found := false
	for _, sel := range selected {
		if sel.Behavior.ID == "recover_frustration" {
			found = true
		}
	}
	if !found {
		t.Errorf("critical-triggered behavior missing from top-2: %v", ids(selected))
	}
}

func TestSelectionCapAtTwo(t *testing.T) {
	cat := loadCatalog(t)
	snap := stateAt(t, 3).Snapshot()

	matches := []trigger.Match{
		match("progress_query", catalog.PriorityMedium),
		match("help_request", catalog.PriorityMedium),
		match("assessment_request", catalog.PriorityMedium),
		match("pain_point", catalog.PriorityMedium),
	}

	selected, err := Select(matches, snap, compLeaning(composition.Discovery), cat, selectorConfig())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(selected) > 2 {
		t.Errorf("selected %d patterns, cap is 2: %v", len(selected), ids(selected))
	}
}

func TestEducationNeverCoFiresWithAssessment(t *testing.T) {
	cat := loadCatalog(t)

	// understands_assessment must be true for assess_component's
	// prerequisite and false for explain_process's mapping — use
	// explain_scoring instead, whose mapping wants it true.
	s := stateAt(t, 3)
	if err := s.Apply(map[string]any{"user.understands_assessment": true},
		[]string{"user.understands_assessment"}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	matches := []trigger.Match{
		match("help_request", catalog.PriorityMedium),
		match("assessment_request", catalog.PriorityMedium),
	}

	comp := make(composition.Vector)
	for _, d := range composition.Dimensions {
		comp[d] = 0.05
	}
	comp[composition.Education] = 0.35
	comp[composition.Assessment] = 0.35

	selected, err := Select(matches, s.Snapshot(), comp, cat, selectorConfig())
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	hasEducation, hasAssessment := false, false
	for _, sel := range selected {
		switch sel.Behavior.Category {
		case "education":
			hasEducation = true
		case "assessment":
			hasAssessment = true
		}
	}
	if hasEducation && hasAssessment {
		t.Errorf("education and assessment co-fired: %v", ids(selected))
	}
}

func TestDeterministicTieBreakByID(t *testing.T) {
	cat := loadCatalog(t)
	snap := stateAt(t, 3).Snapshot()
	comp := compLeaning(composition.Discovery)
	cfg := selectorConfig()

	matches := []trigger.Match{
		match("progress_query", catalog.PriorityMedium),
		match("pain_point", catalog.PriorityMedium),
	}

	first, err := Select(matches, snap, comp, cat, cfg)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	for i := 0; i < 20; i++ {
		again, err := Select(matches, snap, comp, cat, cfg)
		if err != nil {
			t.Fatalf("Select failed on repeat %d: %v", i, err)
		}
		if len(again) != len(first) {
			t.Fatalf("selection count changed across runs")
		}
		for j := range again {
			if again[j].Behavior.ID != first[j].Behavior.ID {
				t.Fatalf("selection order changed: run %d got %v, first run %v",
					i, ids(again), ids(first))
			}
		}
	}
}

func TestNoTriggersYieldsSentinel(t *testing.T) {
	cat := loadCatalog(t)
	_, err := Select(nil, stateAt(t, 3).Snapshot(), compLeaning(composition.Discovery), cat, selectorConfig())
	if !errors.Is(err, ErrNoEligiblePattern) {
		t.Errorf("err = %v, want ErrNoEligiblePattern", err)
	}
}

func TestMappingDisambiguation(t *testing.T) {
	cat := loadCatalog(t)
	cfg := selectorConfig()
	comp := compLeaning(composition.Education)

	// Fresh user: help explains the process.
	s := stateAt(t, 3)
	selected, err := Select([]trigger.Match{match("help_request", catalog.PriorityMedium)},
		s.Snapshot(), comp, cat, cfg)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if selected[0].Behavior.ID != "explain_process" {
		t.Errorf("behavior = %s, want explain_process for a fresh user", selected[0].Behavior.ID)
	}

	// Process understood: the same trigger now explains scoring.
	if err := s.Apply(map[string]any{"user.understands_assessment": true},
		[]string{"user.understands_assessment"}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	selected, err = Select([]trigger.Match{match("help_request", catalog.PriorityMedium)},
		s.Snapshot(), comp, cat, cfg)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if selected[0].Behavior.ID != "explain_scoring" {
		t.Errorf("behavior = %s, want explain_scoring once the process is understood", selected[0].Behavior.ID)
	}
}

func TestDominantDimensionFloor(t *testing.T) {
	cat := loadCatalog(t)
	cfg := selectorConfig()

	// A composition with essentially no navigation interest drops the
	// navigation pattern.
	comp := make(composition.Vector)
	for _, d := range composition.Dimensions {
		comp[d] = 0.14
	}
	comp[composition.Navigation] = 0.02
	// Keep the vector normalized.
	comp[composition.Discovery] = 1.0 - 0.14*6 - 0.02

	_, err := Select([]trigger.Match{match("progress_query", catalog.PriorityMedium)},
		stateAt(t, 3).Snapshot(), comp, cat, cfg)
	if !errors.Is(err, ErrNoEligiblePattern) {
		t.Errorf("err = %v, want dominant-dimension floor to drop the pattern", err)
	}
}
