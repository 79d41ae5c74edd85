package analysis

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensurvey/kestrel/internal/bus"
	"github.com/opensurvey/kestrel/internal/composite"
	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/fraud"
	"github.com/opensurvey/kestrel/internal/geo"
	"github.com/opensurvey/kestrel/internal/repository"
	"github.com/opensurvey/kestrel/internal/rules"
)

func newTestAnalyzer(t *testing.T) (*Analyzer, domain.Repository, *bus.ChannelBus) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-analysis-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	cfg := domain.DefaultConfig()

	resolver, err := geo.NewStaticResolver(map[string]domain.Location{
		"203.0.113.0/24": {Country: "US"},
		"198.51.100.0/24": {Country: "DE"},
	})
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	calc, err := fraud.NewCalculator(cfg.Fraud, repo, resolver, nil)
	if err != nil {
		t.Fatalf("failed to create calculator: %v", err)
	}

	scorer, err := composite.NewScorer(cfg.Scoring)
	if err != nil {
		t.Fatalf("failed to create scorer: %v", err)
	}

	engine, err := rules.NewEngine(nil, 4)
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("failed to load builtin rules: %v", err)
	}

	analyzer, err := NewAnalyzer(Deps{
		Repo:   repo,
		Bus:    eventBus,
		Fraud:  calc,
		Scorer: scorer,
		Rules:  engine,
		Geo:    resolver,
	})
	if err != nil {
		t.Fatalf("failed to create analyzer: %v", err)
	}

	return analyzer, repo, eventBus
}

func baseRequest() *domain.AnalyzeRequest {
	now := time.Now().UTC()
	textScore := 0.2
	return &domain.AnalyzeRequest{
		SurveyID:        "survey-001",
		RespondentID:    "resp-001",
		IPAddress:       "203.0.113.10",
		DeclaredCountry: "US",
		Device: domain.DeviceAttributes{
			UserAgent:    "Mozilla/5.0",
			ScreenWidth:  1920,
			ScreenHeight: 1080,
			Timezone:     "America/Chicago",
			Language:     "en-US",
			Platform:     "Win32",
			ColorDepth:   24,
		},
		StartedAt:   now.Add(-15 * time.Minute),
		CompletedAt: now,
		Responses: []domain.Response{
			{QuestionID: "q1", Text: "I generally prefer products that are easy to use.", SubmittedAt: now},
		},
		BehavioralScores: map[string]float64{
			"keystroke": 0.1,
			"mouse":     0.15,
			"timing":    0.1,
			"device":    0.2,
			"network":   0.1,
		},
		TextQualityScore: &textScore,
	}
}

func TestAnalyzeHumanSession(t *testing.T) {
	analyzer, repo, _ := newTestAnalyzer(t)
	ctx := context.Background()

	result, err := analyzer.Analyze(ctx, "tenant-001", "trace-1", baseRequest())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	v := result.Verdict
	if v.IsBot {
		t.Errorf("expected human verdict, got bot with confidence %v", v.Confidence)
	}
	if v.RiskLevel != domain.RiskLow {
		t.Errorf("expected low risk, got %s", v.RiskLevel)
	}
	if v.Metadata.GroupsAvailable != 3 {
		t.Errorf("expected 3 groups available, got %d", v.Metadata.GroupsAvailable)
	}
	if v.Metadata.TraceID != "trace-1" {
		t.Errorf("expected trace id to propagate, got %q", v.Metadata.TraceID)
	}

	// Weights over all three groups are the nominal profile weights.
	var sum float64
	for _, w := range v.GroupWeights {
		sum += w
	}
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected group weights to sum to 1.0, got %v", sum)
	}

	// Session, fraud record, and verdict are all persisted.
	saved, err := repo.GetSession(ctx, "tenant-001", result.Session.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if saved.Fingerprint == "" {
		t.Error("expected fingerprint to be computed and persisted")
	}
	if saved.Country != "US" {
		t.Errorf("expected resolved country US, got %q", saved.Country)
	}

	fr, err := repo.GetLatestFraudRecord(ctx, "tenant-001", result.Session.ID)
	if err != nil {
		t.Fatalf("GetLatestFraudRecord failed: %v", err)
	}
	if fr.FraudConfidence == 0 {
		t.Error("expected fraud sub-scores to be defined")
	}

	if _, err := repo.GetVerdict(ctx, "tenant-001", v.ID); err != nil {
		t.Fatalf("GetVerdict failed: %v", err)
	}
}

func TestAnalyzeBotSession(t *testing.T) {
	analyzer, _, eventBus := newTestAnalyzer(t)
	ctx := context.Background()

	var flagged atomic.Bool
	_, err := eventBus.Subscribe(ctx, "tenant-001", domain.TopicFlagged, func(ctx context.Context, msg *domain.Message) error {
		flagged.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// No IP, device, or responses: the clean fraud group drops out and
	// its weight shifts to the two suspicious groups.
	req := baseRequest()
	req.IPAddress = ""
	req.Device = domain.DeviceAttributes{}
	req.Responses = nil
	textScore := 0.95
	req.TextQualityScore = &textScore
	req.BehavioralScores = map[string]float64{
		"keystroke": 0.95,
		"mouse":     0.95,
		"timing":    0.9,
		"device":    0.9,
		"network":   0.95,
	}

	result, err := analyzer.Analyze(ctx, "tenant-001", "", req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if !result.Verdict.IsBot {
		t.Errorf("expected bot verdict, got confidence %v", result.Verdict.Confidence)
	}

	deadline := time.Now().Add(time.Second)
	for !flagged.Load() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !flagged.Load() {
		t.Error("expected a flagged session event")
	}
}

func TestAnalyzeNoSignals(t *testing.T) {
	analyzer, _, _ := newTestAnalyzer(t)

	// No behavioral scores, no text score, and a session with nothing
	// the fraud calculator can evaluate.
	req := &domain.AnalyzeRequest{
		SurveyID:     "survey-001",
		RespondentID: "resp-002",
	}

	_, err := analyzer.Analyze(context.Background(), "tenant-001", "", req)
	if !errors.Is(err, composite.ErrNoSignals) {
		t.Fatalf("expected ErrNoSignals, got %v", err)
	}
}

func TestAnalyzeRequiresTenant(t *testing.T) {
	analyzer, _, _ := newTestAnalyzer(t)

	if _, err := analyzer.Analyze(context.Background(), "", "", baseRequest()); err == nil {
		t.Error("expected error for empty tenantID")
	}
}

func TestFraudCollectorUnavailable(t *testing.T) {
	c := &FraudCollector{Record: &domain.FraudIndicatorRecord{FraudConfidence: 0}}
	if _, err := c.Collect(context.Background(), nil); !errors.Is(err, composite.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for zero-confidence record, got %v", err)
	}

	c = &FraudCollector{}
	if _, err := c.Collect(context.Background(), nil); !errors.Is(err, composite.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for nil record, got %v", err)
	}
}

func TestShouldFlag(t *testing.T) {
	if ShouldFlag(&domain.CompositeVerdict{IsBot: false}) {
		t.Error("clean human verdict should not flag")
	}
	if !ShouldFlag(&domain.CompositeVerdict{IsBot: true}) {
		t.Error("bot verdict should flag")
	}
	if !ShouldFlag(&domain.CompositeVerdict{ContributingFlags: []string{"manual_review"}}) {
		t.Error("verdict with audit flags should flag")
	}
}
