// Package dispatch persists decision outcomes, derives alerts and hands
// both off to the messaging collaborator.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/peregrine/internal/config"
	"github.com/opensource-finance/peregrine/internal/domain"
	"github.com/opensource-finance/peregrine/internal/metrics"
)

// Dispatcher owns the DecisionOutcome → Alert derivation and the handoff
// to persistence and publish collaborators.
type Dispatcher struct {
	repo   domain.Repository
	bus    domain.EventBus
	topics config.Topics
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(repo domain.Repository, bus domain.EventBus, topics config.Topics) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		bus:    bus,
		topics: topics,
	}
}

// ToAlerts derives zero or one alert from a decision: HIGH for BLOCK,
// MEDIUM for CHALLENGE, nothing for ALLOW.
func ToAlerts(dec *domain.DecisionOutcome) []domain.Alert {
	if dec.Action != domain.ActionChallenge && dec.Action != domain.ActionBlock {
		return nil
	}

	severity := domain.SeverityMedium
	if dec.Action == domain.ActionBlock {
		severity = domain.SeverityHigh
	}

	return []domain.Alert{{
		AlertID:     uuid.New().String(),
		EventID:     dec.EventID,
		Severity:    severity,
		Title:       fmt.Sprintf("Decision: %s (risk=%g)", dec.Action, dec.RiskScore),
		Description: strings.Join(dec.Reasons, "; "),
		RiskScore:   dec.RiskScore,
		CreatedAt:   time.Now().UTC(),
		Tags:        []string{"fraud", "decision", strings.ToLower(dec.Action)},
	}}
}

// Dispatch persists the decision and its alerts, then publishes both.
// Persistence failures are fatal for the invocation so the transport can
// redeliver; the repository tolerates the resulting duplicate ids.
// Publishing is fire-and-forget: failures are logged, never fatal.
func (d *Dispatcher) Dispatch(ctx context.Context, dec *domain.DecisionOutcome) error {
	if err := d.repo.InsertDecision(ctx, dec); err != nil {
		return fmt.Errorf("dispatch decision %s: %w", dec.DecisionID, err)
	}

	alerts := ToAlerts(dec)
	if len(alerts) > 0 {
		if err := d.repo.InsertAlerts(ctx, alerts); err != nil {
			return fmt.Errorf("dispatch alerts for %s: %w", dec.DecisionID, err)
		}
	}

	d.publishDecision(ctx, dec)
	for i := range alerts {
		d.publishAlert(ctx, &alerts[i])
		metrics.AlertsTotal.WithLabelValues(alerts[i].Severity).Inc()
	}
	metrics.DecisionsTotal.WithLabelValues(dec.Action).Inc()

	return nil
}

func (d *Dispatcher) publishDecision(ctx context.Context, dec *domain.DecisionOutcome) {
	payload, err := json.Marshal(dec)
	if err != nil {
		slog.Error("failed to marshal decision", "decision_id", dec.DecisionID, "error", err)
		return
	}
	if err := d.bus.Publish(ctx, d.topics.Decisions, dec.EventID, payload); err != nil {
		slog.Error("failed to publish decision",
			"decision_id", dec.DecisionID,
			"topic", d.topics.Decisions,
			"error", err,
		)
	}
}

func (d *Dispatcher) publishAlert(ctx context.Context, alert *domain.Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		slog.Error("failed to marshal alert", "alert_id", alert.AlertID, "error", err)
		return
	}
	if err := d.bus.Publish(ctx, d.topics.Alerts, alert.AlertID, payload); err != nil {
		slog.Error("failed to publish alert",
			"alert_id", alert.AlertID,
			"topic", d.topics.Alerts,
			"error", err,
		)
	}
}
