package domain

// FlagRule defines a tenant-configurable audit flag rule.
// The CEL expression is evaluated over the computed signal variables
// (confidence, group scores, fraud sub-scores, velocity counts) after
// scoring; a rule that fires appends its flag to the verdict's
// contributing flags. Flag rules annotate verdicts, they never change
// the classification itself.
type FlagRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression; must evaluate to bool.
	Expression string `json:"expression"`

	// Flag appended to the verdict when the expression is true.
	Flag string `json:"flag"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// FlagRuleResult is the output of evaluating a single flag rule.
type FlagRuleResult struct {
	RuleID    string `json:"ruleId"`
	TenantID  string `json:"tenantId"`
	SessionID string `json:"sessionId"`
	Fired     bool   `json:"fired"`
	Flag      string `json:"flag,omitempty"`
	Err       string `json:"error,omitempty"`
	ProcessMs int64  `json:"processMs"`
}
