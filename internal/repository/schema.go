package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    survey_id TEXT NOT NULL,
    respondent_id TEXT NOT NULL,
    ip_address TEXT,
    fingerprint TEXT,
    device TEXT,
    country TEXT,
    declared_country TEXT,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    response_count INTEGER NOT NULL DEFAULT 0,
    metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_tenant ON sessions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_sessions_ip ON sessions(tenant_id, survey_id, ip_address);
CREATE INDEX IF NOT EXISTS idx_sessions_fingerprint ON sessions(tenant_id, survey_id, fingerprint);
CREATE INDEX IF NOT EXISTS idx_sessions_respondent ON sessions(tenant_id, respondent_id);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(tenant_id, created_at);
`

const schemaResponses = `
CREATE TABLE IF NOT EXISTS responses (
    session_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    survey_id TEXT NOT NULL,
    question_id TEXT NOT NULL,
    text TEXT NOT NULL,
    submitted_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_responses_session ON responses(tenant_id, session_id);
CREATE INDEX IF NOT EXISTS idx_responses_question ON responses(tenant_id, survey_id, question_id);
`

// schemaFraudIndicators is append-only: re-analysis inserts a new row
// for the same session to preserve the audit trail.
const schemaFraudIndicators = `
CREATE TABLE IF NOT EXISTS fraud_indicators (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    survey_id TEXT NOT NULL,
    respondent_id TEXT NOT NULL,
    ip_address TEXT,
    ip_usage_count INTEGER NOT NULL DEFAULT 0,
    ip_risk_score REAL NOT NULL DEFAULT 0,
    device_fingerprint TEXT,
    fingerprint_usage_count INTEGER NOT NULL DEFAULT 0,
    fingerprint_risk_score REAL NOT NULL DEFAULT 0,
    response_similarity_score REAL NOT NULL DEFAULT 0,
    duplicate_response_count INTEGER NOT NULL DEFAULT 0,
    geolocation_consistent INTEGER NOT NULL DEFAULT 1,
    geolocation_risk_score REAL NOT NULL DEFAULT 0,
    responses_per_hour REAL NOT NULL DEFAULT 0,
    velocity_risk_score REAL NOT NULL DEFAULT 0,
    overall_fraud_score REAL NOT NULL DEFAULT 0,
    is_duplicate INTEGER NOT NULL DEFAULT 0,
    fraud_confidence REAL NOT NULL DEFAULT 0,
    flag_reasons TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fraud_tenant ON fraud_indicators(tenant_id);
CREATE INDEX IF NOT EXISTS idx_fraud_session ON fraud_indicators(tenant_id, session_id);
CREATE INDEX IF NOT EXISTS idx_fraud_survey ON fraud_indicators(tenant_id, survey_id);
CREATE INDEX IF NOT EXISTS idx_fraud_respondent ON fraud_indicators(tenant_id, respondent_id);
`

const schemaVerdicts = `
CREATE TABLE IF NOT EXISTS verdicts (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    is_bot INTEGER NOT NULL,
    confidence REAL NOT NULL,
    risk_level TEXT NOT NULL,
    group_scores TEXT NOT NULL,
    group_weights TEXT NOT NULL,
    profile_version TEXT NOT NULL,
    contributing_flags TEXT,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_verdicts_tenant ON verdicts(tenant_id);
CREATE INDEX IF NOT EXISTS idx_verdicts_session ON verdicts(tenant_id, session_id);
CREATE INDEX IF NOT EXISTS idx_verdicts_risk ON verdicts(tenant_id, risk_level);
CREATE INDEX IF NOT EXISTS idx_verdicts_timestamp ON verdicts(tenant_id, timestamp);
`

const schemaFlagRules = `
CREATE TABLE IF NOT EXISTS flag_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    flag TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_flag_rules_tenant ON flag_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_flag_rules_enabled ON flag_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSessions,
		schemaResponses,
		schemaFraudIndicators,
		schemaVerdicts,
		schemaFlagRules,
	}
}
