package domain

import "time"

// FraudIndicatorRecord holds the five fraud sub-scores and their
// combination for one analysis of a session. Records are append-only:
// re-analysis inserts a new record for the same session, preserving
// audit history. Never mutated after creation.
type FraudIndicatorRecord struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	SessionID    string `json:"sessionId"`
	SurveyID     string `json:"surveyId"`
	RespondentID string `json:"respondentId"`

	// IP reuse
	IPAddress    string  `json:"ipAddress"`
	IPUsageCount int     `json:"ipUsageCount"`
	IPRiskScore  float64 `json:"ipRiskScore"`

	// Device fingerprint reuse
	DeviceFingerprint     string  `json:"deviceFingerprint"`
	FingerprintUsageCount int     `json:"fingerprintUsageCount"`
	FingerprintRiskScore  float64 `json:"fingerprintRiskScore"`

	// Duplicate response similarity
	ResponseSimilarityScore float64 `json:"responseSimilarityScore"`
	DuplicateResponseCount  int     `json:"duplicateResponseCount"`

	// Geolocation consistency
	GeolocationConsistent bool    `json:"geolocationConsistent"`
	GeolocationRiskScore  float64 `json:"geolocationRiskScore"`

	// Submission velocity
	ResponsesPerHour  float64 `json:"responsesPerHour"`
	VelocityRiskScore float64 `json:"velocityRiskScore"`

	// Combination
	OverallFraudScore float64  `json:"overallFraudScore"`
	IsDuplicate       bool     `json:"isDuplicate"`
	FraudConfidence   float64  `json:"fraudConfidence"`
	FlagReasons       []string `json:"flagReasons,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Flag reasons emitted when an individual fraud sub-score exceeds its
// own threshold, independently of the overall duplicate decision.
const (
	FlagIPReuse            = "ip_reuse"
	FlagFingerprintReuse   = "fingerprint_reuse"
	FlagDuplicateResponses = "duplicate_responses"
	FlagGeoInconsistent    = "geo_inconsistent"
	FlagHighVelocity       = "high_velocity"
)
