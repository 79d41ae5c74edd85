// Package worker provides async session processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensurvey/kestrel/internal/analysis"
	"github.com/opensurvey/kestrel/internal/composite"
	"github.com/opensurvey/kestrel/internal/domain"
)

// Worker processes completed sessions asynchronously from the EventBus.
type Worker struct {
	bus      domain.EventBus
	analyzer *analysis.Analyzer

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via the
	// global subscription)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, analyzer *analysis.Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		analyzer: analyzer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicSessionCompleted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicSessionCompleted, func(ctx context.Context, msg *domain.Message) error {
		return w.processSession(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicSessionCompleted,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processSession(ctx, msg.TenantID, msg)
}

// SessionMessage is the message payload for async session analysis.
type SessionMessage struct {
	TenantID string                `json:"tenantId"`
	TraceID  string                `json:"traceId,omitempty"`
	Request  domain.AnalyzeRequest `json:"request"`
}

// processSession runs a session through the analysis pipeline.
func (w *Worker) processSession(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var sessionMsg SessionMessage
	if err := json.Unmarshal(msg.Payload, &sessionMsg); err != nil {
		slog.Error("failed to parse session message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if sessionMsg.TenantID != "" {
		tenantID = sessionMsg.TenantID
	}

	traceID := sessionMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing session",
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	result, err := w.analyzer.Analyze(ctx, tenantID, traceID, &sessionMsg.Request)
	if err != nil {
		// A session with no usable signals is a terminal outcome, not a
		// reason to redeliver.
		if errors.Is(err, composite.ErrNoSignals) {
			slog.Warn("session has no usable signals",
				"tenant_id", tenantID,
				"trace_id", traceID,
			)
			return nil
		}
		slog.Error("session analysis failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	slog.Info("session processed",
		"session_id", result.Session.ID,
		"tenant_id", tenantID,
		"is_bot", result.Verdict.IsBot,
		"confidence", result.Verdict.Confidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
