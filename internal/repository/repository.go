// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensurvey/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveSession stores a session with tenant isolation.
func (r *SQLRepository) SaveSession(ctx context.Context, tenantID string, session *domain.Session) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	device, _ := json.Marshal(session.Device)
	metadata, _ := json.Marshal(session.Metadata)

	query := `
		INSERT INTO sessions (
			id, tenant_id, survey_id, respondent_id, ip_address,
			fingerprint, device, country, declared_country,
			started_at, completed_at, created_at, response_count, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		session.ID, tenantID, session.SurveyID, session.RespondentID,
		session.IPAddress, session.Fingerprint, string(device),
		session.Country, session.DeclaredCountry,
		session.StartedAt, session.CompletedAt, session.CreatedAt,
		session.ResponseCount, string(metadata),
	)
	return err
}

// GetSession retrieves a session by ID with tenant isolation.
func (r *SQLRepository) GetSession(ctx context.Context, tenantID string, sessionID string) (*domain.Session, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := sessionSelect + ` WHERE tenant_id = ? AND id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return session, err
}

// GetSessionsByIP retrieves sessions sharing an IP within a survey.
func (r *SQLRepository) GetSessionsByIP(ctx context.Context, tenantID string, surveyID string, ip string, since time.Time) ([]*domain.Session, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := sessionSelect + `
		WHERE tenant_id = ? AND survey_id = ? AND ip_address = ? AND created_at >= ?
		ORDER BY created_at DESC
	`
	return r.querySessions(ctx, r.rebind(query), tenantID, surveyID, ip, since)
}

// GetSessionsByFingerprint retrieves sessions sharing a device fingerprint within a survey.
func (r *SQLRepository) GetSessionsByFingerprint(ctx context.Context, tenantID string, surveyID string, fingerprint string, since time.Time) ([]*domain.Session, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := sessionSelect + `
		WHERE tenant_id = ? AND survey_id = ? AND fingerprint = ? AND created_at >= ?
		ORDER BY created_at DESC
	`
	return r.querySessions(ctx, r.rebind(query), tenantID, surveyID, fingerprint, since)
}

// GetSessionsByRespondent retrieves a respondent's recent sessions across surveys.
func (r *SQLRepository) GetSessionsByRespondent(ctx context.Context, tenantID string, respondentID string, since time.Time) ([]*domain.Session, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := sessionSelect + `
		WHERE tenant_id = ? AND respondent_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`
	return r.querySessions(ctx, r.rebind(query), tenantID, respondentID, since)
}

const sessionSelect = `
	SELECT id, tenant_id, survey_id, respondent_id, ip_address,
		   fingerprint, device, country, declared_country,
		   started_at, completed_at, created_at, response_count, metadata
	FROM sessions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var device, metadata string

	err := row.Scan(
		&s.ID, &s.TenantID, &s.SurveyID, &s.RespondentID, &s.IPAddress,
		&s.Fingerprint, &device, &s.Country, &s.DeclaredCountry,
		&s.StartedAt, &s.CompletedAt, &s.CreatedAt, &s.ResponseCount, &metadata,
	)
	if err != nil {
		return nil, err
	}

	if device != "" {
		json.Unmarshal([]byte(device), &s.Device)
	}
	if metadata != "" {
		json.Unmarshal([]byte(metadata), &s.Metadata)
	}
	return &s, nil
}

func (r *SQLRepository) querySessions(ctx context.Context, query string, args ...any) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SaveResponses stores a batch of responses with tenant isolation.
// The survey scope is denormalized onto each row for question-level lookups.
func (r *SQLRepository) SaveResponses(ctx context.Context, tenantID string, responses []domain.Response) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if len(responses) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.rebind(`
		INSERT INTO responses (session_id, tenant_id, survey_id, question_id, text, submitted_at)
		SELECT ?, ?, survey_id, ?, ?, ?
		FROM sessions WHERE tenant_id = ? AND id = ?
	`)

	for _, resp := range responses {
		if _, err := tx.ExecContext(ctx, query,
			resp.SessionID, tenantID, resp.QuestionID, resp.Text, resp.SubmittedAt,
			tenantID, resp.SessionID,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetResponsesByQuestion retrieves prior responses to a question within a survey.
func (r *SQLRepository) GetResponsesByQuestion(ctx context.Context, tenantID string, surveyID string, questionID string, since time.Time) ([]*domain.Response, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT session_id, question_id, text, submitted_at
		FROM responses
		WHERE tenant_id = ? AND survey_id = ? AND question_id = ? AND submitted_at >= ?
		ORDER BY submitted_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, surveyID, questionID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []*domain.Response
	for rows.Next() {
		var resp domain.Response
		if err := rows.Scan(&resp.SessionID, &resp.QuestionID, &resp.Text, &resp.SubmittedAt); err != nil {
			return nil, err
		}
		responses = append(responses, &resp)
	}
	return responses, rows.Err()
}

// SaveFraudRecord appends a fraud indicator record. Records are never
// updated in place; each analysis run inserts a fresh row.
func (r *SQLRepository) SaveFraudRecord(ctx context.Context, tenantID string, record *domain.FraudIndicatorRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	flagReasons, _ := json.Marshal(record.FlagReasons)

	query := `
		INSERT INTO fraud_indicators (
			id, tenant_id, session_id, survey_id, respondent_id,
			ip_address, ip_usage_count, ip_risk_score,
			device_fingerprint, fingerprint_usage_count, fingerprint_risk_score,
			response_similarity_score, duplicate_response_count,
			geolocation_consistent, geolocation_risk_score,
			responses_per_hour, velocity_risk_score,
			overall_fraud_score, is_duplicate, fraud_confidence,
			flag_reasons, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		record.ID, tenantID, record.SessionID, record.SurveyID, record.RespondentID,
		record.IPAddress, record.IPUsageCount, record.IPRiskScore,
		record.DeviceFingerprint, record.FingerprintUsageCount, record.FingerprintRiskScore,
		record.ResponseSimilarityScore, record.DuplicateResponseCount,
		boolToInt(record.GeolocationConsistent), record.GeolocationRiskScore,
		record.ResponsesPerHour, record.VelocityRiskScore,
		record.OverallFraudScore, boolToInt(record.IsDuplicate), record.FraudConfidence,
		string(flagReasons), record.CreatedAt,
	)
	return err
}

const fraudSelect = `
	SELECT id, tenant_id, session_id, survey_id, respondent_id,
		   ip_address, ip_usage_count, ip_risk_score,
		   device_fingerprint, fingerprint_usage_count, fingerprint_risk_score,
		   response_similarity_score, duplicate_response_count,
		   geolocation_consistent, geolocation_risk_score,
		   responses_per_hour, velocity_risk_score,
		   overall_fraud_score, is_duplicate, fraud_confidence,
		   flag_reasons, created_at
	FROM fraud_indicators
`

func scanFraudRecord(row rowScanner) (*domain.FraudIndicatorRecord, error) {
	var rec domain.FraudIndicatorRecord
	var geoConsistent, isDuplicate int
	var flagReasons string

	err := row.Scan(
		&rec.ID, &rec.TenantID, &rec.SessionID, &rec.SurveyID, &rec.RespondentID,
		&rec.IPAddress, &rec.IPUsageCount, &rec.IPRiskScore,
		&rec.DeviceFingerprint, &rec.FingerprintUsageCount, &rec.FingerprintRiskScore,
		&rec.ResponseSimilarityScore, &rec.DuplicateResponseCount,
		&geoConsistent, &rec.GeolocationRiskScore,
		&rec.ResponsesPerHour, &rec.VelocityRiskScore,
		&rec.OverallFraudScore, &isDuplicate, &rec.FraudConfidence,
		&flagReasons, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.GeolocationConsistent = geoConsistent == 1
	rec.IsDuplicate = isDuplicate == 1
	if flagReasons != "" {
		json.Unmarshal([]byte(flagReasons), &rec.FlagReasons)
	}
	return &rec, nil
}

// GetLatestFraudRecord retrieves the most recent fraud record for a session.
func (r *SQLRepository) GetLatestFraudRecord(ctx context.Context, tenantID string, sessionID string) (*domain.FraudIndicatorRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := fraudSelect + `
		WHERE tenant_id = ? AND session_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, sessionID)
	rec, err := scanFraudRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListFraudRecords retrieves the full audit trail of fraud records for a session.
func (r *SQLRepository) ListFraudRecords(ctx context.Context, tenantID string, sessionID string) ([]*domain.FraudIndicatorRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := fraudSelect + `
		WHERE tenant_id = ? AND session_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.FraudIndicatorRecord
	for rows.Next() {
		rec, err := scanFraudRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveVerdict stores a composite verdict with tenant isolation.
func (r *SQLRepository) SaveVerdict(ctx context.Context, tenantID string, verdict *domain.CompositeVerdict) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	groupScores, _ := json.Marshal(verdict.GroupScores)
	groupWeights, _ := json.Marshal(verdict.GroupWeights)
	flags, _ := json.Marshal(verdict.ContributingFlags)
	metadata, _ := json.Marshal(verdict.Metadata)

	query := `
		INSERT INTO verdicts (
			id, tenant_id, session_id, timestamp, is_bot, confidence,
			risk_level, group_scores, group_weights, profile_version,
			contributing_flags, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		verdict.ID, tenantID, verdict.SessionID, verdict.Timestamp,
		boolToInt(verdict.IsBot), verdict.Confidence, string(verdict.RiskLevel),
		string(groupScores), string(groupWeights), verdict.ProfileVersion,
		string(flags), string(metadata),
	)
	return err
}

// GetVerdict retrieves a verdict by ID with tenant isolation.
func (r *SQLRepository) GetVerdict(ctx context.Context, tenantID string, verdictID string) (*domain.CompositeVerdict, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, session_id, timestamp, is_bot, confidence,
			   risk_level, group_scores, group_weights, profile_version,
			   contributing_flags, metadata
		FROM verdicts
		WHERE tenant_id = ? AND id = ?
	`

	var v domain.CompositeVerdict
	var isBot int
	var riskLevel, groupScores, groupWeights, flags, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, verdictID).Scan(
		&v.ID, &v.TenantID, &v.SessionID, &v.Timestamp, &isBot, &v.Confidence,
		&riskLevel, &groupScores, &groupWeights, &v.ProfileVersion,
		&flags, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	v.IsBot = isBot == 1
	v.RiskLevel = domain.RiskLevel(riskLevel)
	json.Unmarshal([]byte(groupScores), &v.GroupScores)
	json.Unmarshal([]byte(groupWeights), &v.GroupWeights)
	json.Unmarshal([]byte(flags), &v.ContributingFlags)
	json.Unmarshal([]byte(metadata), &v.Metadata)

	return &v, nil
}

// SaveFlagRule stores a flag rule with tenant isolation.
func (r *SQLRepository) SaveFlagRule(ctx context.Context, tenantID string, rule *domain.FlagRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO flag_rules (
			id, tenant_id, name, description, version, expression, flag, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			flag = excluded.flag,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, rule.Flag, boolToInt(rule.Enabled),
		now, now,
	)
	return err
}

// GetFlagRule retrieves the latest enabled version of a flag rule.
func (r *SQLRepository) GetFlagRule(ctx context.Context, tenantID string, ruleID string) (*domain.FlagRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, flag, enabled
		FROM flag_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.FlagRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression, &rule.Flag, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListFlagRules retrieves all enabled flag rules for a tenant.
func (r *SQLRepository) ListFlagRules(ctx context.Context, tenantID string) ([]*domain.FlagRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, flag, enabled
		FROM flag_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.FlagRule
	for rows.Next() {
		var rule domain.FlagRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression, &rule.Flag, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
