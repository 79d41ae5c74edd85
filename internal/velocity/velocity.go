// Package velocity provides session velocity calculation.
package velocity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opensurvey/kestrel/internal/domain"
)

// Service counts recent sessions per respondent, feeding the
// velocity_count variable of the flag rule engine. The shared cache
// keeps a sliding counter per entity so hot respondents do not hammer
// the repository.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	db    *sql.DB // Direct DB access for custom queries
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// GetSessionCount returns the number of sessions for a respondent within a time window.
// This is the VelocityGetter function signature expected by the rule engine.
func (s *Service) GetSessionCount(ctx context.Context, tenantID, entityID string, windowSecs int) (int64, error) {
	if tenantID == "" || entityID == "" {
		return 0, fmt.Errorf("tenantID and entityID are required")
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second)

	if s.db != nil {
		return s.countFromDB(ctx, tenantID, entityID, since)
	}

	if s.repo != nil {
		return s.countFromRepo(ctx, tenantID, entityID, since)
	}

	return 0, fmt.Errorf("no data source available")
}

// RecordSession bumps the sliding counter for a respondent and returns
// the new count within the window. Best-effort: a nil cache returns 0.
func (s *Service) RecordSession(ctx context.Context, tenantID, respondentID string, window time.Duration) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	key := "velocity:respondent:" + respondentID
	return s.cache.IncrementCounter(ctx, tenantID, key, window)
}

// countFromDB queries the database directly for session count.
func (s *Service) countFromDB(ctx context.Context, tenantID, entityID string, since time.Time) (int64, error) {
	query := `
		SELECT COUNT(*) FROM sessions
		WHERE tenant_id = ?
		AND respondent_id = ?
		AND created_at >= ?
	`

	var count int64
	err := s.db.QueryRowContext(ctx, query, tenantID, entityID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	return count, nil
}

// countFromRepo uses the repository to get sessions and count them.
func (s *Service) countFromRepo(ctx context.Context, tenantID, entityID string, since time.Time) (int64, error) {
	sessions, err := s.repo.GetSessionsByRespondent(ctx, tenantID, entityID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to get sessions: %w", err)
	}
	return int64(len(sessions)), nil
}

// GetVelocityGetter returns a VelocityGetter function for the rule engine.
func (s *Service) GetVelocityGetter() func(ctx context.Context, tenantID, entityID string, windowSecs int) (int64, error) {
	return s.GetSessionCount
}
