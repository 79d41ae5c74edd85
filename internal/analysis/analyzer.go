// Package analysis orchestrates a full session analysis run: device
// fingerprinting, geolocation, fraud indicators, composite scoring,
// flag rule evaluation, persistence, and event publication. The sync
// API path and the async worker share this pipeline.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensurvey/kestrel/internal/composite"
	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/fraud"
	"github.com/opensurvey/kestrel/internal/geo"
	"github.com/opensurvey/kestrel/internal/rules"
	"github.com/opensurvey/kestrel/internal/velocity"
)

// defaultVelocityWindowSecs feeds the velocity_count rule variable when
// the caller does not override the window.
const defaultVelocityWindowSecs = 3600

// Deps holds the analyzer's collaborators. Repo, Bus, Rules, Velocity
// and Geo may be nil; the corresponding step is skipped.
type Deps struct {
	Repo     domain.Repository
	Bus      domain.EventBus
	Fraud    *fraud.Calculator
	Scorer   *composite.Scorer
	Rules    *rules.Engine
	Velocity *velocity.Service
	Geo      geo.Resolver

	// CollectorTimeout bounds each signal group collector. Zero means
	// no bound beyond the request context.
	CollectorTimeout time.Duration

	Logger *slog.Logger
}

// Analyzer runs the end-to-end analysis pipeline for one session.
type Analyzer struct {
	deps Deps
	fp   fraud.Fingerprinter
}

// NewAnalyzer creates an analyzer. Fraud and Scorer are required.
func NewAnalyzer(deps Deps) (*Analyzer, error) {
	if deps.Fraud == nil {
		return nil, fmt.Errorf("fraud calculator is required")
	}
	if deps.Scorer == nil {
		return nil, fmt.Errorf("composite scorer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Analyzer{deps: deps, fp: fraud.SHA256Fingerprinter{}}, nil
}

// Result is the outcome of one analysis run.
type Result struct {
	Session *domain.Session
	Fraud   *domain.FraudIndicatorRecord
	Verdict *domain.CompositeVerdict
}

// Analyze runs the pipeline for a session. Returns
// composite.ErrNoSignals when no signal group produced evidence.
func (a *Analyzer) Analyze(ctx context.Context, tenantID, traceID string, req *domain.AnalyzeRequest) (*Result, error) {
	start := time.Now()

	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	session := req.ToSession(tenantID)
	session.ID = uuid.New().String()
	for i := range session.Responses {
		session.Responses[i].SessionID = session.ID
	}
	session.Fingerprint = a.fp.Fingerprint(session.Device)

	if a.deps.Geo != nil && session.IPAddress != "" {
		if loc, err := a.deps.Geo.Resolve(ctx, session.IPAddress); err == nil && loc != nil {
			session.Country = loc.Country
		}
	}

	// The session row must exist before its responses: response rows
	// denormalize survey_id from it.
	if a.deps.Repo != nil {
		if err := a.deps.Repo.SaveSession(ctx, tenantID, session); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		if len(session.Responses) > 0 {
			if err := a.deps.Repo.SaveResponses(ctx, tenantID, session.Responses); err != nil {
				a.deps.Logger.Warn("failed to save responses",
					"session_id", session.ID, "error", err)
			}
		}
	}

	if a.deps.Velocity != nil && session.RespondentID != "" {
		if _, err := a.deps.Velocity.RecordSession(ctx, tenantID, session.RespondentID, time.Hour); err != nil {
			a.deps.Logger.Warn("failed to record session velocity",
				"session_id", session.ID, "error", err)
		}
	}

	fraudStart := time.Now()
	record := a.deps.Fraud.Calculate(ctx, session)
	fraudMs := time.Since(fraudStart).Milliseconds()

	if a.deps.Repo != nil {
		if err := a.deps.Repo.SaveFraudRecord(ctx, tenantID, record); err != nil {
			a.deps.Logger.Error("failed to save fraud record",
				"session_id", session.ID, "error", err)
		}
	}

	collectors := []composite.Collector{
		&composite.BehavioralCollector{Profile: a.deps.Scorer.Profile(), Scores: req.BehavioralScores},
		&composite.TextQualityCollector{Score: req.TextQualityScore},
		&FraudCollector{Record: record},
	}
	pipeline := composite.NewPipeline(collectors, a.deps.CollectorTimeout, a.deps.Logger)
	groups := pipeline.Collect(ctx, session)

	verdict, err := a.deps.Scorer.Score(ctx, &composite.Input{
		TenantID:  tenantID,
		SessionID: session.ID,
		TraceID:   traceID,
		Groups:    groups,
		StartTime: start,
		FraudMs:   fraudMs,
	})
	if err != nil {
		return nil, err
	}

	if a.deps.Rules != nil && a.deps.Rules.RulesCount() > 0 {
		results, err := a.deps.Rules.EvaluateAll(ctx, &rules.EvaluateInput{
			TenantID:         tenantID,
			SessionID:        session.ID,
			Verdict:          verdict,
			Fraud:            record,
			VelocityEntityID: session.RespondentID,
			VelocityWindow:   defaultVelocityWindowSecs,
		})
		if err != nil {
			a.deps.Logger.Error("flag rule evaluation failed",
				"session_id", session.ID, "error", err)
		} else {
			verdict.ContributingFlags = mergeFlags(verdict.ContributingFlags, rules.Flags(results))
		}
	}

	if a.deps.Repo != nil {
		if err := a.deps.Repo.SaveVerdict(ctx, tenantID, verdict); err != nil {
			a.deps.Logger.Error("failed to save verdict",
				"session_id", session.ID, "error", err)
		}
	}

	a.publish(ctx, tenantID, verdict)

	a.deps.Logger.Info("session analyzed",
		"session_id", session.ID,
		"tenant_id", tenantID,
		"is_bot", verdict.IsBot,
		"confidence", verdict.Confidence,
		"risk_level", string(verdict.RiskLevel),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{Session: session, Fraud: record, Verdict: verdict}, nil
}

// ShouldFlag reports whether a verdict warrants a session.flagged
// event: a bot classification or any audit flag.
func ShouldFlag(v *domain.CompositeVerdict) bool {
	return v.IsBot || len(v.ContributingFlags) > 0
}

func (a *Analyzer) publish(ctx context.Context, tenantID string, verdict *domain.CompositeVerdict) {
	if a.deps.Bus == nil {
		return
	}

	payload, err := json.Marshal(verdict)
	if err != nil {
		a.deps.Logger.Error("failed to marshal verdict", "verdict_id", verdict.ID, "error", err)
		return
	}

	if err := a.deps.Bus.Publish(ctx, tenantID, domain.TopicVerdict, payload); err != nil {
		a.deps.Logger.Error("failed to publish verdict",
			"verdict_id", verdict.ID, "error", err)
	}

	if ShouldFlag(verdict) {
		if err := a.deps.Bus.Publish(ctx, tenantID, domain.TopicFlagged, payload); err != nil {
			a.deps.Logger.Error("failed to publish flagged session",
				"verdict_id", verdict.ID, "error", err)
		}
	}
}

// FraudCollector adapts a fraud indicator record into the fraud signal
// group. Unavailable when no sub-score had evidence to evaluate.
type FraudCollector struct {
	Record *domain.FraudIndicatorRecord
}

func (c *FraudCollector) Group() domain.SignalGroup { return domain.GroupFraud }

func (c *FraudCollector) Collect(_ context.Context, _ *domain.Session) (domain.GroupScore, error) {
	r := c.Record
	if r == nil || r.FraudConfidence == 0 {
		return domain.GroupScore{}, composite.ErrUnavailable
	}
	return domain.GroupScore{
		Group: domain.GroupFraud,
		Score: r.OverallFraudScore,
		Signals: []domain.SignalScore{{
			Method:    "fraud_composite",
			Value:     r.OverallFraudScore,
			Weight:    1,
			Available: true,
		}},
		Flags: r.FlagReasons,
	}, nil
}

func mergeFlags(existing, extra []string) []string {
	if len(extra) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing)+len(extra))
	out := make([]string, 0, len(existing)+len(extra))
	for _, f := range append(existing, extra...) {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
