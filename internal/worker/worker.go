// Package worker provides async case processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/underwriting"
)

// Worker evaluates cases delivered over the EventBus. It subscribes to
// the case-received topic, runs the decision pipeline, persists the
// result, and publishes it on the decision topic.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	cache  domain.Cache
	engine *underwriting.Engine

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// resultCacheTTL bounds how long a decision stays hot for the read path.
const resultCacheTTL = 15 * time.Minute

// NewWorker creates a new async worker. cache may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, engine *underwriting.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		cache:  cache,
		engine: engine,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes the worker to the case-received topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicCaseReceived, w.processCase)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicCaseReceived,
	)

	return nil
}

// processCase evaluates one submitted case end to end.
func (w *Worker) processCase(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var raw domain.Case
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		slog.Error("failed to parse case message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	result := w.engine.Evaluate(raw)

	slog.Debug("case evaluated",
		"case_id", result.CaseID,
		"decision", result.Decision,
	)

	if w.repo != nil {
		if err := w.repo.SaveResult(ctx, result); err != nil {
			slog.Error("failed to save result",
				"case_id", result.CaseID,
				"error", err,
			)
			return err
		}
	}

	if w.cache != nil {
		if err := w.cache.SetResult(ctx, result.CaseID, result, resultCacheTTL); err != nil {
			slog.Warn("failed to cache result",
				"case_id", result.CaseID,
				"error", err,
			)
		}
	}

	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, domain.TopicDecision, resultPayload); err != nil {
		slog.Error("failed to publish decision",
			"case_id", result.CaseID,
			"error", err,
		)
	}

	slog.Info("case processed",
		"case_id", result.CaseID,
		"decision", result.Decision,
		"risk_score", result.RiskScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}
