// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"time"
)

// Session represents a completed survey session submitted for analysis.
type Session struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Hierarchical scope, denormalized for aggregation queries
	SurveyID     string `json:"surveyId"`
	RespondentID string `json:"respondentId"`

	// Network and device attributes
	IPAddress   string           `json:"ipAddress"`
	Device      DeviceAttributes `json:"device"`
	Fingerprint string           `json:"fingerprint"` // stable hash, computed at analysis time

	// Geolocation
	Country         string `json:"country,omitempty"`         // resolved from IP at analysis time
	DeclaredCountry string `json:"declaredCountry,omitempty"` // respondent's self-reported location

	// Temporal
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
	CreatedAt   time.Time `json:"createdAt"`

	// Open-text responses
	Responses     []Response `json:"responses,omitempty"`
	ResponseCount int        `json:"responseCount"`

	// Optional metadata
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Response is a single open-text answer within a session.
type Response struct {
	SessionID   string    `json:"sessionId"`
	QuestionID  string    `json:"questionId"`
	Text        string    `json:"text"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// DeviceAttributes holds the client-side characteristics used for
// device fingerprinting. The attribute set fed into the fingerprint
// hash is a configuration concern, not fixed here.
type DeviceAttributes struct {
	UserAgent    string `json:"userAgent"`
	ScreenWidth  int    `json:"screenWidth"`
	ScreenHeight int    `json:"screenHeight"`
	Timezone     string `json:"timezone"`
	Language     string `json:"language"`
	Platform     string `json:"platform"`
	ColorDepth   int    `json:"colorDepth"`
	TouchSupport bool   `json:"touchSupport"`
}

// Location is a coarse geolocation resolved from an IP address.
type Location struct {
	Country string `json:"country"` // ISO-3166-1 alpha-2
	City    string `json:"city,omitempty"`
}

// AnalyzeRequest is the API request payload for session analysis.
// Behavioral method scores and the text-quality score are produced by
// upstream collectors and arrive here as opaque bounded values.
type AnalyzeRequest struct {
	SurveyID     string           `json:"surveyId"`
	RespondentID string           `json:"respondentId"`
	IPAddress    string           `json:"ipAddress"`
	Device       DeviceAttributes `json:"device"`

	DeclaredCountry string `json:"declaredCountry,omitempty"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt time.Time  `json:"completedAt"`
	Responses   []Response `json:"responses,omitempty"`

	// Per-method behavioral scores, keyed by method name
	// (keystroke, mouse, timing, device, network). Missing methods are
	// treated as unavailable, never as zero.
	BehavioralScores map[string]float64 `json:"behavioralScores,omitempty"`

	// TextQualityScore is the LLM-backed text-quality aggregate.
	// nil means the collector was unavailable.
	TextQualityScore *float64 `json:"textQualityScore,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToSession converts a request to a Session domain object.
func (r *AnalyzeRequest) ToSession(tenantID string) *Session {
	now := time.Now().UTC()
	return &Session{
		TenantID:        tenantID,
		SurveyID:        r.SurveyID,
		RespondentID:    r.RespondentID,
		IPAddress:       r.IPAddress,
		Device:          r.Device,
		DeclaredCountry: r.DeclaredCountry,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
		CreatedAt:       now,
		Responses:       r.Responses,
		ResponseCount:   len(r.Responses),
		Metadata:        r.Metadata,
	}
}
