// Package worker provides async event processing off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/peregrine/internal/config"
	"github.com/opensource-finance/peregrine/internal/domain"
	"github.com/opensource-finance/peregrine/internal/engine"
)

// Worker consumes transaction events from the bus and runs each one
// through the decision pipeline. The HTTP ingest path and the worker
// share the same engine, so both paths produce identical outcomes.
type Worker struct {
	bus    domain.EventBus
	engine *engine.Engine
	topics config.Topics

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, eng *engine.Engine, topics config.Topics) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		engine: eng,
		topics: topics,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the transactions topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, w.topics.Transactions, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.topics.Transactions, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", w.topics.Transactions,
	)
	return nil
}

// handleMessage decodes a transaction event and processes it. The error
// return lets the bus log failures with the message ID; the pipeline has
// already recorded the failure stage in its own metrics.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var evt domain.TransactionEvent
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		slog.Error("failed to parse transaction event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if evt.EventID == "" {
		slog.Error("transaction event missing event_id",
			"message_id", msg.ID,
		)
		return fmt.Errorf("event_id is required")
	}

	outcome, err := w.engine.Process(ctx, &evt)
	if err != nil {
		slog.Error("event processing failed",
			"event_id", evt.EventID,
			"error", err,
		)
		return err
	}

	slog.Debug("worker processed event",
		"event_id", evt.EventID,
		"action", outcome.Action,
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
