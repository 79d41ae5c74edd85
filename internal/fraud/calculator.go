// Package fraud implements the fraud indicator calculator: five
// independent risk sub-scores (IP reuse, device-fingerprint reuse,
// duplicate-response similarity, geolocation consistency, submission
// velocity) combined into one overall fraud score.
//
// The calculator is stateless. It reads session history through an
// injected lookup but never writes; persisting the resulting record is
// the caller's job, which also keeps the current session from being
// counted against itself.
package fraud

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensurvey/kestrel/internal/domain"
)

// History is the session-history lookup the calculator queries.
// Satisfied by domain.Repository.
type History interface {
	GetSessionsByIP(ctx context.Context, tenantID string, surveyID string, ip string, since time.Time) ([]*domain.Session, error)
	GetSessionsByFingerprint(ctx context.Context, tenantID string, surveyID string, fingerprint string, since time.Time) ([]*domain.Session, error)
	GetSessionsByRespondent(ctx context.Context, tenantID string, respondentID string, since time.Time) ([]*domain.Session, error)
	GetResponsesByQuestion(ctx context.Context, tenantID string, surveyID string, questionID string, since time.Time) ([]*domain.Response, error)
}

// GeoResolver resolves an IP address to a coarse location.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (*domain.Location, error)
}

// Calculator computes fraud indicator records.
type Calculator struct {
	cfg        domain.FraudConfig
	history    History
	geo        GeoResolver
	fp         Fingerprinter
	similarity Similarity
	logger     *slog.Logger
}

// NewCalculator creates a fraud calculator. History and geo may be nil,
// in which case the affected sub-scores fall back to their no-evidence
// defaults. Fingerprinting and similarity default to SHA-256 and
// Jaccard when not overridden.
func NewCalculator(cfg domain.FraudConfig, history History, geo GeoResolver, logger *slog.Logger) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{
		cfg:        cfg,
		history:    history,
		geo:        geo,
		fp:         SHA256Fingerprinter{},
		similarity: JaccardSimilarity{},
		logger:     logger,
	}, nil
}

// WithFingerprinter overrides the fingerprint strategy.
func (c *Calculator) WithFingerprinter(fp Fingerprinter) *Calculator {
	c.fp = fp
	return c
}

// WithSimilarity overrides the text-similarity strategy.
func (c *Calculator) WithSimilarity(s Similarity) *Calculator {
	c.similarity = s
	return c
}

// subScore is one of the five indicators. Undefined sub-scores (input
// genuinely absent, e.g. no IP on the session) have their weight
// redistributed; a failed history lookup instead degrades to the
// no-evidence default of zero risk.
type subScore struct {
	value   float64
	weight  float64
	defined bool
	flag    string
}

// Calculate computes a fraud indicator record for the session.
// Pure given its inputs: identical session and history yield an
// identical record (modulo ID and timestamp). Never returns an error
// for history failures; fraud signals are best-effort.
func (c *Calculator) Calculate(ctx context.Context, session *domain.Session) *domain.FraudIndicatorRecord {
	record := &domain.FraudIndicatorRecord{
		ID:                    uuid.New().String(),
		TenantID:              session.TenantID,
		SessionID:             session.ID,
		SurveyID:              session.SurveyID,
		RespondentID:          session.RespondentID,
		IPAddress:             session.IPAddress,
		GeolocationConsistent: true,
		CreatedAt:             time.Now().UTC(),
	}

	since := time.Time{}
	if c.cfg.LookbackWindow > 0 {
		since = time.Now().UTC().Add(-c.cfg.LookbackWindow)
	}

	scores := []subScore{
		c.ipRisk(ctx, session, since, record),
		c.fingerprintRisk(ctx, session, since, record),
		c.duplicateRisk(ctx, session, since, record),
		c.geoRisk(ctx, session, since, record),
		c.velocityRisk(ctx, session, record),
	}

	c.combine(scores, record)
	return record
}

// ipRisk scores reuse of the session IP within the survey scope.
func (c *Calculator) ipRisk(ctx context.Context, session *domain.Session, since time.Time, record *domain.FraudIndicatorRecord) subScore {
	s := subScore{weight: c.cfg.Weights.IP, flag: domain.FlagIPReuse}
	if session.IPAddress == "" {
		return s
	}
	s.defined = true

	if c.history == nil {
		return s
	}
	sessions, err := c.history.GetSessionsByIP(ctx, session.TenantID, session.SurveyID, session.IPAddress, since)
	if err != nil {
		c.logger.Warn("ip history lookup failed, defaulting to zero risk",
			"session_id", session.ID, "error", err)
		return s
	}

	record.IPUsageCount = countOthers(sessions, session.ID)
	s.value = c.saturate(record.IPUsageCount)
	record.IPRiskScore = s.value
	return s
}

// fingerprintRisk scores reuse of the device fingerprint, computed
// independently of IP risk: a shared network with distinct devices
// scores high on one and low on the other.
func (c *Calculator) fingerprintRisk(ctx context.Context, session *domain.Session, since time.Time, record *domain.FraudIndicatorRecord) subScore {
	s := subScore{weight: c.cfg.Weights.Fingerprint, flag: domain.FlagFingerprintReuse}

	fingerprint := session.Fingerprint
	if fingerprint == "" {
		fingerprint = c.fp.Fingerprint(session.Device)
	}
	if fingerprint == "" {
		return s
	}
	record.DeviceFingerprint = fingerprint
	s.defined = true

	if c.history == nil {
		return s
	}
	sessions, err := c.history.GetSessionsByFingerprint(ctx, session.TenantID, session.SurveyID, fingerprint, since)
	if err != nil {
		c.logger.Warn("fingerprint history lookup failed, defaulting to zero risk",
			"session_id", session.ID, "error", err)
		return s
	}

	record.FingerprintUsageCount = countOthers(sessions, session.ID)
	s.value = c.saturate(record.FingerprintUsageCount)
	record.FingerprintRiskScore = s.value
	return s
}

// duplicateRisk compares each open-text response against prior
// responses to the same question. The sub-score is the maximum
// pairwise similarity seen; pairs at or above the similarity threshold
// count as duplicates.
func (c *Calculator) duplicateRisk(ctx context.Context, session *domain.Session, since time.Time, record *domain.FraudIndicatorRecord) subScore {
	s := subScore{weight: c.cfg.Weights.Duplicate, flag: domain.FlagDuplicateResponses}

	var texts []domain.Response
	for _, r := range session.Responses {
		if r.Text != "" {
			texts = append(texts, r)
		}
	}
	if len(texts) == 0 {
		return s
	}
	s.defined = true

	if c.history == nil {
		return s
	}

	var maxSim float64
	var duplicates int
	for _, resp := range texts {
		prior, err := c.history.GetResponsesByQuestion(ctx, session.TenantID, session.SurveyID, resp.QuestionID, since)
		if err != nil {
			c.logger.Warn("response history lookup failed, defaulting to zero risk",
				"session_id", session.ID, "question_id", resp.QuestionID, "error", err)
			return s
		}
		for _, other := range prior {
			if other.SessionID == session.ID {
				continue
			}
			sim := c.similarity.Compare(resp.Text, other.Text)
			if sim > maxSim {
				maxSim = sim
			}
			if sim >= c.cfg.SimilarityThreshold {
				duplicates++
			}
		}
	}

	record.ResponseSimilarityScore = maxSim
	record.DuplicateResponseCount = duplicates
	s.value = maxSim
	return s
}

// geoRisk checks the session's resolved location against the declared
// country and the respondent's recent history. Consistent by default:
// absence of evidence is never penalized.
func (c *Calculator) geoRisk(ctx context.Context, session *domain.Session, since time.Time, record *domain.FraudIndicatorRecord) subScore {
	s := subScore{weight: c.cfg.Weights.Geolocation, flag: domain.FlagGeoInconsistent}
	if session.IPAddress == "" || c.geo == nil {
		return s
	}

	loc, err := c.geo.Resolve(ctx, session.IPAddress)
	if err != nil || loc == nil || loc.Country == "" {
		if err != nil {
			c.logger.Warn("geolocation resolution failed, defaulting to consistent",
				"session_id", session.ID, "error", err)
		}
		return s
	}
	s.defined = true

	consistent := true
	if session.DeclaredCountry != "" && !equalCountry(session.DeclaredCountry, loc.Country) {
		consistent = false
	}

	// Conflict with the respondent's recent observed countries also
	// counts, e.g. an IP that jumps continents between sessions.
	if consistent && c.history != nil && session.RespondentID != "" {
		prior, err := c.history.GetSessionsByRespondent(ctx, session.TenantID, session.RespondentID, since)
		if err != nil {
			c.logger.Warn("respondent history lookup failed, defaulting to consistent",
				"session_id", session.ID, "error", err)
		} else {
			for _, p := range prior {
				if p.ID == session.ID || p.Country == "" {
					continue
				}
				if !equalCountry(p.Country, loc.Country) {
					consistent = false
					break
				}
			}
		}
	}

	record.GeolocationConsistent = consistent
	if !consistent {
		s.value = 1.0
	}
	record.GeolocationRiskScore = s.value
	return s
}

// velocityRisk scores the submission rate from the session's own
// response timing plus near-concurrent sessions by the same
// respondent. Risk rises linearly above the rate threshold and
// saturates at twice the threshold.
func (c *Calculator) velocityRisk(ctx context.Context, session *domain.Session, record *domain.FraudIndicatorRecord) subScore {
	s := subScore{weight: c.cfg.Weights.Velocity, flag: domain.FlagHighVelocity}
	if session.ResponseCount == 0 || session.CompletedAt.IsZero() || session.StartedAt.IsZero() {
		return s
	}
	s.defined = true

	duration := session.CompletedAt.Sub(session.StartedAt)
	if duration < time.Minute {
		duration = time.Minute
	}
	rate := float64(session.ResponseCount) / duration.Hours()

	if c.history != nil && session.RespondentID != "" && c.cfg.ConcurrencyWindow > 0 {
		windowStart := session.CompletedAt.Add(-c.cfg.ConcurrencyWindow)
		concurrent, err := c.history.GetSessionsByRespondent(ctx, session.TenantID, session.RespondentID, windowStart)
		if err != nil {
			c.logger.Warn("concurrent session lookup failed, using session rate only",
				"session_id", session.ID, "error", err)
		} else {
			extra := 0
			for _, p := range concurrent {
				if p.ID != session.ID {
					extra += p.ResponseCount
				}
			}
			rate += float64(extra) / c.cfg.ConcurrencyWindow.Hours()
		}
	}

	record.ResponsesPerHour = rate
	if rate > c.cfg.RateThreshold {
		s.value = clamp01((rate - c.cfg.RateThreshold) / c.cfg.RateThreshold)
	}
	record.VelocityRiskScore = s.value
	return s
}

// combine folds the sub-scores into the overall fraud score with
// proportional weight redistribution over the defined ones. An
// undefined sub-score never counts as zero risk; its weight moves to
// the sub-scores that had evidence to evaluate.
func (c *Calculator) combine(scores []subScore, record *domain.FraudIndicatorRecord) {
	var definedWeight float64
	for _, s := range scores {
		if s.defined {
			definedWeight += s.weight
		}
	}

	if definedWeight > 0 {
		var overall float64
		for _, s := range scores {
			if s.defined {
				overall += (s.weight / definedWeight) * s.value
			}
		}
		record.OverallFraudScore = overall
	}

	// Confidence reflects evidence coverage: the share of nominal
	// weight backed by a defined sub-score.
	record.FraudConfidence = definedWeight
	record.IsDuplicate = definedWeight > 0 && record.OverallFraudScore >= c.cfg.DuplicateThreshold

	for _, s := range scores {
		if s.defined && s.value > c.cfg.FlagThreshold {
			record.FlagReasons = append(record.FlagReasons, s.flag)
		}
	}
}

// saturate maps a prior-usage count to [0,1] via capped linear growth:
// count/saturation, flat at 1.0 from the saturation count upward. One
// prior use contributes materially less than five.
func (c *Calculator) saturate(count int) float64 {
	if count <= 0 {
		return 0
	}
	return clamp01(float64(count) / float64(c.cfg.SaturationCount))
}

func countOthers(sessions []*domain.Session, selfID string) int {
	n := 0
	for _, s := range sessions {
		if s.ID != selfID {
			n++
		}
	}
	return n
}

func equalCountry(a, b string) bool {
	return normalizeCountry(a) == normalizeCountry(b)
}

func normalizeCountry(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
