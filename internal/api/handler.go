package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opensurvey/kestrel/internal/analysis"
	"github.com/opensurvey/kestrel/internal/composite"
	"github.com/opensurvey/kestrel/internal/domain"
	"github.com/opensurvey/kestrel/internal/repository"
	"github.com/opensurvey/kestrel/internal/rules"
	"github.com/opensurvey/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	engine   *rules.Engine
	analyzer *analysis.Analyzer
	scorer   *composite.Scorer
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, analyzer *analysis.Analyzer, scorer *composite.Scorer, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		engine:   engine,
		analyzer: analyzer,
		scorer:   scorer,
		version:  version,
	}
}

// Analyze handles POST /analyze requests.
// Synchronous by default; mode=async enqueues the session for the
// worker and returns 202.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req domain.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.SurveyID == "" || req.RespondentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "surveyId and respondentId are required",
		})
		return
	}
	if !req.CompletedAt.IsZero() && !req.StartedAt.IsZero() && req.CompletedAt.Before(req.StartedAt) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "completedAt must not precede startedAt",
		})
		return
	}

	if r.URL.Query().Get("mode") == "async" {
		h.analyzeAsync(w, r, tenantID, traceID, &req)
		return
	}

	result, err := h.analyzer.Analyze(ctx, tenantID, traceID, &req)
	if err != nil {
		if errors.Is(err, composite.ErrNoSignals) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": "no signal groups available for this session",
			})
			return
		}
		slog.Error("session analysis failed", "trace_id", traceID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "session analysis failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result.Verdict.ToResponse())
}

// analyzeAsync publishes the session for worker processing.
func (h *Handler) analyzeAsync(w http.ResponseWriter, r *http.Request, tenantID, traceID string, req *domain.AnalyzeRequest) {
	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	msg := worker.SessionMessage{
		TenantID: tenantID,
		TraceID:  traceID,
		Request:  *req,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode session message",
		})
		return
	}

	if err := h.bus.Publish(r.Context(), tenantID, domain.TopicSessionCompleted, payload); err != nil {
		slog.Error("failed to enqueue session", "trace_id", traceID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to enqueue session",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"traceId": traceID,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetVerdict retrieves a verdict by ID.
func (h *Handler) GetVerdict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	verdictID := chi.URLParam(r, "id")

	if verdictID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "verdict id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	verdict, err := h.repo.GetVerdict(ctx, tenantID, verdictID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get verdict", "id", verdictID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "verdict not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, verdict)
}

// GetSession retrieves a session by ID.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	sessionID := chi.URLParam(r, "id")

	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "session id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	session, err := h.repo.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get session", "id", sessionID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "session not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// GetSessionFraud retrieves the fraud indicator history for a session.
// Records are append-only; the newest comes first.
func (h *Handler) GetSessionFraud(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	sessionID := chi.URLParam(r, "id")

	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "session id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	records, err := h.repo.ListFraudRecords(ctx, tenantID, sessionID)
	if err != nil {
		slog.Error("failed to list fraud records", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list fraud records",
		})
		return
	}
	if len(records) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no fraud records for session",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// GetProfile returns the weight profile in effect.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	if h.scorer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "scorer not available",
		})
		return
	}
	writeJSON(w, http.StatusOK, h.scorer.Profile())
}

// ListFlagRules returns all loaded flag rules from the engine.
func (h *Handler) ListFlagRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loadedRules,
		"count": len(loadedRules),
	})
}

// GetFlagRule retrieves a flag rule by ID from the loaded engine rules.
func (h *Handler) GetFlagRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateFlagRuleRequest is the request body for creating a flag rule.
type CreateFlagRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Flag        string `json:"flag"`
	Enabled     bool   `json:"enabled"`
}

// CreateFlagRule creates a tenant flag rule, loads it into the engine,
// and persists it.
func (h *Handler) CreateFlagRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateFlagRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" || req.Flag == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, expression, and flag are required",
		})
		return
	}

	rule := &domain.FlagRule{
		ID:          req.ID,
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Flag:        req.Flag,
		Enabled:     req.Enabled,
	}

	// Compiling doubles as validation of the CEL expression.
	if err := h.engine.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule expression: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveFlagRule(ctx, tenantID, rule); err != nil {
			slog.Error("failed to save flag rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("flag rule created", "id", rule.ID, "tenant_id", tenantID, "flag", rule.Flag)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule": rule,
	})
}

// ReloadFlagRules reloads the builtin rules plus the tenant's stored
// rules into the engine. This enables hot-reloading without restart.
func (h *Handler) ReloadFlagRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListFlagRules(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list flag rules", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	ruleSet := append(rules.BuiltinRules(), dbRules...)
	if err := h.engine.ReloadRules(ruleSet); err != nil {
		slog.Error("failed to reload flag rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("flag rules reloaded", "tenant_id", tenantID, "count", h.engine.RulesCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.engine.RulesCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
