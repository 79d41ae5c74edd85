// Package composite implements the composite scoring engine.
// It fuses the behavioral, text-quality, and fraud group scores into a
// single bot/human verdict with a risk level, redistributing weight
// away from groups that produced no signals.
package composite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensurvey/kestrel/internal/domain"
)

// ErrNoSignals indicates that every signal group was unavailable.
// No verdict is fabricated from nothing; the caller maps this to an
// explicit "insufficient data" response.
var ErrNoSignals = errors.New("no signal groups available")

// EngineVersion is recorded in verdict metadata.
const EngineVersion = "kestrel-1.0"

// Scorer fuses group scores into a composite verdict.
// It is synchronous and side-effect-free given its inputs: collectors
// run (and time out) under the caller's control before Score is called.
type Scorer struct {
	cfg domain.ScoringConfig
}

// NewScorer creates a composite scorer. The scoring policy is
// validated up front so a bad weight table fails here, not mid-analysis.
func NewScorer(cfg domain.ScoringConfig) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Input contains everything needed for one verdict.
type Input struct {
	TenantID  string
	SessionID string
	TraceID   string

	// Groups holds the available group scores, at most one per group.
	// A group whose collector failed or produced no signals is simply
	// absent; its weight is redistributed.
	Groups []domain.GroupScore

	StartTime time.Time
	FraudMs   int64
}

// Score computes the composite verdict from the available groups.
// Returns ErrNoSignals when no group is available.
func (s *Scorer) Score(ctx context.Context, input *Input) (*domain.CompositeVerdict, error) {
	start := time.Now()

	if len(input.Groups) == 0 {
		return nil, fmt.Errorf("%w: session %s", ErrNoSignals, input.SessionID)
	}

	// Renormalize nominal weights over the available groups so the
	// weights used in the sum always total 1.0.
	var nominalTotal float64
	seen := make(map[domain.SignalGroup]bool, len(input.Groups))
	for _, g := range input.Groups {
		if seen[g.Group] {
			return nil, fmt.Errorf("duplicate group score for %s", g.Group)
		}
		seen[g.Group] = true
		nominalTotal += s.cfg.Profile.Groups[g.Group]
	}
	if nominalTotal <= 0 {
		return nil, fmt.Errorf("%w: available groups carry zero nominal weight", ErrNoSignals)
	}

	var confidence float64
	var signalCount int
	groupScores := make(map[domain.SignalGroup]float64, len(input.Groups))
	groupWeights := make(map[domain.SignalGroup]float64, len(input.Groups))
	var flags []string

	for _, g := range input.Groups {
		w := s.cfg.Profile.Groups[g.Group] / nominalTotal
		confidence += w * g.Score
		groupScores[g.Group] = g.Score
		groupWeights[g.Group] = w
		signalCount += len(g.Signals)
		flags = append(flags, g.Flags...)
	}

	verdict := &domain.CompositeVerdict{
		ID:                uuid.New().String(),
		TenantID:          input.TenantID,
		SessionID:         input.SessionID,
		Timestamp:         time.Now().UTC(),
		IsBot:             confidence > s.cfg.BotThreshold,
		Confidence:        confidence,
		RiskLevel:         s.riskLevel(confidence),
		GroupScores:       groupScores,
		GroupWeights:      groupWeights,
		ProfileVersion:    s.cfg.Profile.Version,
		ContributingFlags: dedupeFlags(flags),
	}

	verdict.Metadata = domain.VerdictMetadata{
		TraceID:          input.TraceID,
		FraudMs:          input.FraudMs,
		CompositeMs:      time.Since(start).Milliseconds(),
		SignalsEvaluated: signalCount,
		GroupsAvailable:  len(input.Groups),
		EngineVersion:    EngineVersion,
	}
	if !input.StartTime.IsZero() {
		verdict.Metadata.TotalMs = time.Since(input.StartTime).Milliseconds()
	}

	return verdict, nil
}

// riskLevel buckets a confidence value. Intervals are half-open on the
// low side; 1.0 lands in critical.
func (s *Scorer) riskLevel(confidence float64) domain.RiskLevel {
	r := s.cfg.Risk
	switch {
	case confidence >= r.Critical:
		return domain.RiskCritical
	case confidence >= r.High:
		return domain.RiskHigh
	case confidence >= r.Medium:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// Profile returns the weight profile in effect.
func (s *Scorer) Profile() domain.WeightProfile {
	return s.cfg.Profile
}

func dedupeFlags(flags []string) []string {
	if len(flags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(flags))
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
