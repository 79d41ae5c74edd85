package domain

import (
	"time"
)

// RiskLevel buckets a composite confidence into a discrete severity.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// CompositeVerdict is the final fused bot/human judgment for one
// analysis run. Created once, immutable; prior verdicts are never
// merged or recomputed.
type CompositeVerdict struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`

	IsBot      bool      `json:"isBot"`
	Confidence float64   `json:"confidence"` // [0,1]
	RiskLevel  RiskLevel `json:"riskLevel"`

	// Per-group scores that entered the weighted sum. A group absent
	// from the map produced no available signals.
	GroupScores map[SignalGroup]float64 `json:"groupScores"`

	// Renormalized weights actually used; always sum to 1.0.
	GroupWeights map[SignalGroup]float64 `json:"groupWeights"`

	// ProfileVersion identifies the weight profile the verdict was
	// computed under. Historical verdicts are not recomputed when the
	// profile changes.
	ProfileVersion string `json:"profileVersion"`

	// Every method-level flag collected during the run, regardless of
	// the overall verdict. Kept for audit.
	ContributingFlags []string `json:"contributingFlags,omitempty"`

	// Processing metadata
	Metadata VerdictMetadata `json:"metadata"`
}

// VerdictMetadata contains processing information.
type VerdictMetadata struct {
	TraceID          string `json:"traceId"`
	FraudMs          int64  `json:"fraudMs"`
	CompositeMs      int64  `json:"compositeMs"`
	TotalMs          int64  `json:"totalMs"`
	SignalsEvaluated int    `json:"signalsEvaluated"`
	GroupsAvailable  int    `json:"groupsAvailable"`
	EngineVersion    string `json:"engineVersion"`
}

// Classification constants for the API boundary.
const (
	ClassificationBot   = "BOT"
	ClassificationHuman = "HUMAN"
)

// VerdictResponse is the API response for a session analysis.
type VerdictResponse struct {
	VerdictID      string                  `json:"verdictId"`
	SessionID      string                  `json:"sessionId"`
	TenantID       string                  `json:"tenantId"`
	Classification string                  `json:"classification"` // "BOT" or "HUMAN"
	Confidence     float64                 `json:"confidence"`
	RiskLevel      RiskLevel               `json:"riskLevel"`
	GroupScores    map[SignalGroup]float64 `json:"groupScores"`
	Flags          []string                `json:"flags,omitempty"`
	Metadata       VerdictMetadata         `json:"metadata"`
}

// ToResponse converts a CompositeVerdict to an API response.
func (v *CompositeVerdict) ToResponse() *VerdictResponse {
	classification := ClassificationHuman
	if v.IsBot {
		classification = ClassificationBot
	}

	return &VerdictResponse{
		VerdictID:      v.ID,
		SessionID:      v.SessionID,
		TenantID:       v.TenantID,
		Classification: classification,
		Confidence:     v.Confidence,
		RiskLevel:      v.RiskLevel,
		GroupScores:    v.GroupScores,
		Flags:          v.ContributingFlags,
		Metadata:       v.Metadata,
	}
}
