package rules

import (
	"context"
	"fmt"
	"testing"

	"github.com/opensurvey/kestrel/internal/domain"
)

func verdictFixture() *domain.CompositeVerdict {
	return &domain.CompositeVerdict{
		ID:         "verdict-1",
		TenantID:   "tenant-001",
		SessionID:  "sess-001",
		IsBot:      false,
		Confidence: 0.65,
		RiskLevel:  domain.RiskMedium,
		GroupScores: map[domain.SignalGroup]float64{
			domain.GroupBehavioral:  0.7,
			domain.GroupTextQuality: 0.5,
			domain.GroupFraud:       0.72,
		},
	}
}

func fraudFixture() *domain.FraudIndicatorRecord {
	return &domain.FraudIndicatorRecord{
		SessionID:               "sess-001",
		IPRiskScore:             0.8,
		FingerprintRiskScore:    0.4,
		ResponseSimilarityScore: 0.9,
		DuplicateResponseCount:  4,
		GeolocationConsistent:   false,
		VelocityRiskScore:       0.5,
		ResponsesPerHour:        85,
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(nil, 5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.FlagRule{
		ID:         "test-rule-001",
		Name:       "Test Rule",
		Expression: "confidence > 0.5",
		Flag:       "elevated_confidence",
		Enabled:    true,
	}

	err := engine.LoadRule(rule)
	if err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}

	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.FlagRule{
		ID:         "invalid-rule",
		Name:       "Invalid Rule",
		Expression: "this is not valid CEL !!!",
		Flag:       "broken",
		Enabled:    true,
	}

	err := engine.LoadRule(rule)
	if err == nil {
		t.Error("expected error for invalid CEL expression")
	}
}

func TestLoadRuleRejectsNonBool(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.FlagRule{
		ID:         "numeric-rule",
		Expression: "confidence * 2.0",
		Flag:       "doubled",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err == nil {
		t.Error("expected error for non-bool expression")
	}
}

func TestLoadRuleRequiresFlag(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.FlagRule{
		ID:         "flagless",
		Expression: "confidence > 0.5",
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err == nil {
		t.Error("expected error for rule without a flag name")
	}
}

func TestEvaluateFiresOnSignals(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.FlagRule{
		ID:         "geo-and-similarity",
		Name:       "Geo and Similarity",
		Expression: "!geo_consistent && similarity_score > 0.85",
		Flag:       "geo_similarity_combo",
		Enabled:    true,
	}
	engine.LoadRule(rule)

	ctx := context.Background()
	input := &EvaluateInput{
		TenantID:  "tenant-001",
		SessionID: "sess-001",
		Verdict:   verdictFixture(),
		Fraud:     fraudFixture(),
	}

	results, err := engine.EvaluateAll(ctx, input)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].Fired {
		t.Error("expected rule to fire on inconsistent geo with high similarity")
	}
	if results[0].Flag != "geo_similarity_combo" {
		t.Errorf("flag = %q, want geo_similarity_combo", results[0].Flag)
	}

	// Consistent geo must not fire.
	input.Fraud.GeolocationConsistent = true
	results, _ = engine.EvaluateAll(ctx, input)
	if results[0].Fired {
		t.Error("rule must not fire when geo is consistent")
	}
}

func TestEvaluateGroupScoreVariables(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.FlagRule{
		ID:         "fraud-dominant",
		Expression: "fraud_score > behavioral_score",
		Flag:       "fraud_dominant",
		Enabled:    true,
	}
	engine.LoadRule(rule)

	input := &EvaluateInput{
		TenantID:  "tenant-001",
		SessionID: "sess-001",
		Verdict:   verdictFixture(), // fraud 0.72 > behavioral 0.7
	}

	results, _ := engine.EvaluateAll(context.Background(), input)
	if !results[0].Fired {
		t.Error("expected rule to fire when fraud score exceeds behavioral")
	}
}

func TestVelocityCountVariable(t *testing.T) {
	velocityGetter := func(ctx context.Context, tenantID, entityID string, windowSecs int) (int64, error) {
		return 15, nil
	}

	engine, _ := NewEngine(velocityGetter, 5)
	defer engine.Close()

	rule := &domain.FlagRule{
		ID:          "velocity-check-001",
		Name:        "Session Velocity Check",
		Description: "Flags respondents with unusually many sessions in the window",
		Version:     "1.0.0",
		Expression:  "velocity_count > 10",
		Flag:        "session_burst",
		Enabled:     true,
	}
	engine.LoadRule(rule)

	input := &EvaluateInput{
		TenantID:         "tenant-001",
		SessionID:        "sess-001",
		VelocityEntityID: "resp-001",
		VelocityWindow:   3600,
	}

	results, _ := engine.EvaluateAll(context.Background(), input)
	if !results[0].Fired {
		t.Error("expected rule to fire at 15 sessions in window")
	}
}

func TestEvaluateWithoutSignalsUsesDefaults(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	rule := &domain.FlagRule{
		ID:         "defaults",
		Expression: "geo_consistent && confidence == 0.0",
		Flag:       "no_signals",
		Enabled:    true,
	}
	engine.LoadRule(rule)

	results, _ := engine.EvaluateAll(context.Background(), &EvaluateInput{
		TenantID:  "tenant-001",
		SessionID: "sess-001",
	})
	if !results[0].Fired {
		t.Error("missing verdict/fraud must evaluate against neutral defaults")
	}
}

func TestParallelExecution(t *testing.T) {
	engine, _ := NewEngine(nil, 3)
	defer engine.Close()

	for i := 0; i < 10; i++ {
		rule := &domain.FlagRule{
			ID:         fmt.Sprintf("rule-%d", i),
			Name:       fmt.Sprintf("Rule %d", i),
			Expression: "confidence >= 0.0",
			Flag:       fmt.Sprintf("flag-%d", i),
			Enabled:    true,
		}
		engine.LoadRule(rule)
	}

	if engine.RulesCount() != 10 {
		t.Fatalf("expected 10 rules, got %d", engine.RulesCount())
	}

	results, err := engine.EvaluateAll(context.Background(), &EvaluateInput{
		TenantID:  "tenant-001",
		SessionID: "sess-001",
		Verdict:   verdictFixture(),
	})
	if err != nil {
		t.Fatalf("parallel evaluation failed: %v", err)
	}

	if len(results) != 10 {
		t.Errorf("expected 10 results, got %d", len(results))
	}
	for i, r := range results {
		if !r.Fired {
			t.Errorf("rule %d: expected to fire", i)
		}
	}
}

func TestReloadRulesReplacesSet(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	engine.LoadRule(&domain.FlagRule{
		ID: "old", Expression: "is_bot", Flag: "old_flag", Enabled: true,
	})

	err := engine.ReloadRules([]*domain.FlagRule{
		{ID: "new-1", Expression: "confidence > 0.9", Flag: "very_high", Enabled: true},
		{ID: "new-2", Expression: "duplicate_count > 0", Flag: "any_duplicate", Enabled: true},
		{ID: "disabled", Expression: "is_bot", Flag: "skip", Enabled: false},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if engine.RulesCount() != 2 {
		t.Errorf("expected 2 rules after reload, got %d", engine.RulesCount())
	}
	for _, r := range engine.GetLoadedRules() {
		if r.ID == "old" {
			t.Error("old rule must be gone after reload")
		}
	}
}

func TestFlagsHelper(t *testing.T) {
	results := []domain.FlagRuleResult{
		{RuleID: "a", Fired: true, Flag: "one"},
		{RuleID: "b", Fired: false, Flag: "two"},
		{RuleID: "c", Fired: true, Flag: "three"},
	}

	flags := Flags(results)
	if len(flags) != 2 || flags[0] != "one" || flags[1] != "three" {
		t.Errorf("flags = %v, want [one three]", flags)
	}
}

func TestRuleResultMetadata(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	engine.LoadRule(&domain.FlagRule{
		ID:         "meta-test",
		Expression: "confidence >= 0.0",
		Flag:       "meta_flag",
		Enabled:    true,
	})

	results, _ := engine.EvaluateAll(context.Background(), &EvaluateInput{
		TenantID:  "tenant-123",
		SessionID: "sess-456",
	})

	if results[0].RuleID != "meta-test" {
		t.Errorf("expected RuleID 'meta-test', got '%s'", results[0].RuleID)
	}
	if results[0].TenantID != "tenant-123" {
		t.Errorf("expected TenantID 'tenant-123', got '%s'", results[0].TenantID)
	}
	if results[0].SessionID != "sess-456" {
		t.Errorf("expected SessionID 'sess-456', got '%s'", results[0].SessionID)
	}
	if results[0].ProcessMs < 0 {
		t.Error("ProcessMs should be non-negative")
	}
}

func TestBuiltinRulesCompile(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	if err := engine.LoadRules(BuiltinRules()); err != nil {
		t.Fatalf("builtin rules must compile: %v", err)
	}
	if engine.RulesCount() != len(BuiltinRules()) {
		t.Errorf("loaded %d rules, want %d", engine.RulesCount(), len(BuiltinRules()))
	}
}
