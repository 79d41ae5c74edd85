// Package rules provides the CEL-Go based flag rule engine.
//
// Flag rules are tenant-configurable boolean expressions over the
// signals computed during analysis. A rule that fires appends its flag
// to the verdict's contributing flags for audit purposes; rules never
// change the bot/human classification or the confidence value.
package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensurvey/kestrel/internal/domain"
)

// Engine compiles and evaluates flag rules.
type Engine struct {
	mu             sync.RWMutex
	env            *cel.Env
	compiledRules  map[string]*CompiledRule
	velocityGetter VelocityGetter
	maxWorkers     int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.FlagRule
	Program cel.Program
}

// VelocityGetter returns the session count for an entity in a time window.
type VelocityGetter func(ctx context.Context, tenantID, entityID string, windowSecs int) (int64, error)

// NewEngine creates a flag rule engine.
func NewEngine(velocityGetter VelocityGetter, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// The CEL environment exposes every signal computed during an
	// analysis run, so rules can express conditions like
	// `fraud_score > 0.5 && !geo_consistent`.
	env, err := cel.NewEnv(
		cel.Variable("session", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("is_bot", cel.BoolType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("behavioral_score", cel.DoubleType),
		cel.Variable("text_quality_score", cel.DoubleType),
		cel.Variable("fraud_score", cel.DoubleType),
		cel.Variable("ip_risk", cel.DoubleType),
		cel.Variable("fingerprint_risk", cel.DoubleType),
		cel.Variable("similarity_score", cel.DoubleType),
		cel.Variable("duplicate_count", cel.IntType),
		cel.Variable("geo_consistent", cel.BoolType),
		cel.Variable("velocity_risk", cel.DoubleType),
		cel.Variable("responses_per_hour", cel.DoubleType),
		cel.Variable("velocity_count", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:            env,
		compiledRules:  make(map[string]*CompiledRule),
		velocityGetter: velocityGetter,
		maxWorkers:     maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.FlagRule) error {
	if cfg == nil {
		return fmt.Errorf("flag rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.FlagRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.FlagRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput holds the analysis signals for rule evaluation.
type EvaluateInput struct {
	TenantID  string
	SessionID string

	Verdict *domain.CompositeVerdict
	Fraud   *domain.FraudIndicatorRecord

	// VelocityEntityID and VelocityWindow feed the velocity_count
	// variable; zero window disables the lookup.
	VelocityEntityID string
	VelocityWindow   int // seconds

	AdditionalData map[string]any
}

// EvaluateAll evaluates all loaded rules in parallel and returns the
// per-rule results. Rules that error are reported, not fatal.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.FlagRuleResult, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	var velocityCount int64
	if e.velocityGetter != nil && input.VelocityWindow > 0 && input.VelocityEntityID != "" {
		count, err := e.velocityGetter(ctx, input.TenantID, input.VelocityEntityID, input.VelocityWindow)
		if err == nil {
			velocityCount = count
		}
	}

	activation := e.buildActivation(input, velocityCount)

	// Parallel evaluation using worker pool pattern
	results := make([]domain.FlagRuleResult, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(r, activation, input)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

func (e *Engine) buildActivation(input *EvaluateInput, velocityCount int64) map[string]any {
	activation := map[string]any{
		"session":            map[string]any{},
		"confidence":         0.0,
		"is_bot":             false,
		"risk_level":         "",
		"behavioral_score":   0.0,
		"text_quality_score": 0.0,
		"fraud_score":        0.0,
		"ip_risk":            0.0,
		"fingerprint_risk":   0.0,
		"similarity_score":   0.0,
		"duplicate_count":    int64(0),
		"geo_consistent":     true,
		"velocity_risk":      0.0,
		"responses_per_hour": 0.0,
		"velocity_count":     velocityCount,
	}

	if v := input.Verdict; v != nil {
		activation["session"] = map[string]any{
			"id":        v.SessionID,
			"tenant_id": v.TenantID,
		}
		activation["confidence"] = v.Confidence
		activation["is_bot"] = v.IsBot
		activation["risk_level"] = string(v.RiskLevel)
		activation["behavioral_score"] = v.GroupScores[domain.GroupBehavioral]
		activation["text_quality_score"] = v.GroupScores[domain.GroupTextQuality]
		activation["fraud_score"] = v.GroupScores[domain.GroupFraud]
	}

	if f := input.Fraud; f != nil {
		activation["ip_risk"] = f.IPRiskScore
		activation["fingerprint_risk"] = f.FingerprintRiskScore
		activation["similarity_score"] = f.ResponseSimilarityScore
		activation["duplicate_count"] = int64(f.DuplicateResponseCount)
		activation["geo_consistent"] = f.GeolocationConsistent
		activation["velocity_risk"] = f.VelocityRiskScore
		activation["responses_per_hour"] = f.ResponsesPerHour
	}

	for k, v := range input.AdditionalData {
		activation[k] = v
	}

	return activation
}

// evaluateRule evaluates a single rule and returns the result.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any, input *EvaluateInput) domain.FlagRuleResult {
	start := time.Now()

	result := domain.FlagRuleResult{
		RuleID:    rule.Config.ID,
		TenantID:  input.TenantID,
		SessionID: input.SessionID,
		Flag:      rule.Config.Flag,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	if fired, ok := out.(types.Bool); ok {
		result.Fired = bool(fired)
	}
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// Flags collects the flag names of every fired rule, in result order.
func Flags(results []domain.FlagRuleResult) []string {
	var flags []string
	for _, r := range results {
		if r.Fired && r.Flag != "" {
			flags = append(flags, r.Flag)
		}
	}
	return flags
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.FlagRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.FlagRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.FlagRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.FlagRule) (*CompiledRule, error) {
	if cfg.Flag == "" {
		return nil, fmt.Errorf("rule %s: flag name is required", cfg.ID)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
