package composite

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensurvey/kestrel/internal/domain"
)

// ErrUnavailable is returned by a Collector that has no signals for
// the session. It is not a failure: the group is skipped and its
// weight redistributed.
var ErrUnavailable = errors.New("signal group unavailable")

// Collector produces one group score for a session. Implementations
// exist for the behavioral, text-quality, and fraud groups; the
// pipeline treats them uniformly.
type Collector interface {
	Group() domain.SignalGroup
	Collect(ctx context.Context, session *domain.Session) (domain.GroupScore, error)
}

// Pipeline runs collectors concurrently and gathers the group scores
// that are actually available. A collector error degrades the verdict
// rather than failing the analysis: the group is dropped and the drop
// is logged.
type Pipeline struct {
	collectors []Collector
	timeout    time.Duration
	logger     *slog.Logger
}

// NewPipeline creates a collection pipeline. Timeout bounds each
// collector individually; zero means no bound beyond the caller's
// context.
func NewPipeline(collectors []Collector, timeout time.Duration, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{collectors: collectors, timeout: timeout, logger: logger}
}

// Collect runs every collector and returns the available group scores
// in collector order.
func (p *Pipeline) Collect(ctx context.Context, session *domain.Session) []domain.GroupScore {
	results := make([]*domain.GroupScore, len(p.collectors))

	var wg sync.WaitGroup
	for i, c := range p.collectors {
		wg.Add(1)
		go func(i int, c Collector) {
			defer wg.Done()

			cctx := ctx
			if p.timeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, p.timeout)
				defer cancel()
			}

			gs, err := c.Collect(cctx, session)
			if err != nil {
				if !errors.Is(err, ErrUnavailable) {
					p.logger.Warn("signal group collection failed",
						"group", string(c.Group()),
						"session_id", session.ID,
						"error", err)
				}
				return
			}
			results[i] = &gs
		}(i, c)
	}
	wg.Wait()

	groups := make([]domain.GroupScore, 0, len(p.collectors))
	for _, r := range results {
		if r != nil {
			groups = append(groups, *r)
		}
	}
	return groups
}

// BehavioralCollector scores the behavioral group from the per-method
// scores supplied with the analysis request.
type BehavioralCollector struct {
	Profile domain.WeightProfile
	Scores  map[string]float64
}

func (c *BehavioralCollector) Group() domain.SignalGroup { return domain.GroupBehavioral }

func (c *BehavioralCollector) Collect(_ context.Context, _ *domain.Session) (domain.GroupScore, error) {
	signals, err := BehavioralSignals(c.Scores, c.Profile)
	if err != nil {
		return domain.GroupScore{}, err
	}
	gs, ok := AggregateSignals(domain.GroupBehavioral, signals)
	if !ok {
		return domain.GroupScore{}, ErrUnavailable
	}
	return gs, nil
}

// TextQualityCollector passes through the externally computed text
// quality score. A nil score means the group is unavailable, e.g. a
// survey with no free-text questions.
type TextQualityCollector struct {
	Score *float64
}

func (c *TextQualityCollector) Group() domain.SignalGroup { return domain.GroupTextQuality }

func (c *TextQualityCollector) Collect(_ context.Context, _ *domain.Session) (domain.GroupScore, error) {
	if c.Score == nil {
		return domain.GroupScore{}, ErrUnavailable
	}
	return domain.GroupScore{
		Group: domain.GroupTextQuality,
		Score: clamp01(*c.Score),
		Signals: []domain.SignalScore{{
			Method:    "text_quality",
			Value:     clamp01(*c.Score),
			Weight:    1,
			Available: true,
		}},
	}, nil
}
