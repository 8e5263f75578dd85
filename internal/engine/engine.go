// Package engine runs the synchronous per-event decision pipeline:
// perceive, score, classify, dispatch. Each invocation is independent and
// stateless apart from reads and writes against external collaborators.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/peregrine/internal/advisor"
	"github.com/opensource-finance/peregrine/internal/decision"
	"github.com/opensource-finance/peregrine/internal/dispatch"
	"github.com/opensource-finance/peregrine/internal/domain"
	"github.com/opensource-finance/peregrine/internal/metrics"
	"github.com/opensource-finance/peregrine/internal/perception"
	"github.com/opensource-finance/peregrine/internal/planner"
	"github.com/opensource-finance/peregrine/internal/rules"
)

// Engine wires the pipeline stages together.
type Engine struct {
	perceiver  *perception.Perceiver
	scorer     *rules.Scorer
	advisor    advisor.Advisor
	planner    planner.Planner
	classifier *decision.Classifier
	dispatcher *dispatch.Dispatcher
	repo       domain.Repository
}

// New creates an engine. pl may be nil when workflow planning is not
// configured.
func New(
	perceiver *perception.Perceiver,
	scorer *rules.Scorer,
	adv advisor.Advisor,
	pl planner.Planner,
	classifier *decision.Classifier,
	dispatcher *dispatch.Dispatcher,
	repo domain.Repository,
) *Engine {
	return &Engine{
		perceiver:  perceiver,
		scorer:     scorer,
		advisor:    adv,
		planner:    pl,
		classifier: classifier,
		dispatcher: dispatcher,
		repo:       repo,
	}
}

// Process runs one event through the full pipeline and returns the
// dispatched outcome. A failed invocation produces no partial outcome:
// history or persistence failures abort before dispatch, and dispatch
// itself persists before it publishes.
func (e *Engine) Process(ctx context.Context, evt *domain.TransactionEvent) (*domain.DecisionOutcome, error) {
	start := time.Now()

	perceived, err := e.perceiver.Perceive(ctx, evt)
	if err != nil {
		metrics.PipelineFailures.WithLabelValues("perception").Inc()
		return nil, err
	}

	// Record the event after perception so the current event does not
	// count against its own velocity features.
	if err := e.repo.InsertEvent(ctx, evt); err != nil {
		metrics.PipelineFailures.WithLabelValues("record").Inc()
		return nil, err
	}
	if err := e.repo.UpsertDeviceSeen(ctx, evt.AccountID, evt.DeviceID); err != nil {
		metrics.PipelineFailures.WithLabelValues("record").Inc()
		return nil, err
	}

	outcome, err := e.Decide(ctx, perceived)
	if err != nil {
		metrics.PipelineFailures.WithLabelValues("scoring").Inc()
		return nil, err
	}

	if err := e.dispatcher.Dispatch(ctx, outcome); err != nil {
		metrics.PipelineFailures.WithLabelValues("dispatch").Inc()
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.PipelineDuration.Observe(float64(elapsed.Milliseconds()))

	slog.Info("event processed",
		"event_id", evt.EventID,
		"account_id", evt.AccountID,
		"action", outcome.Action,
		"score", outcome.RiskScore,
		"duration_ms", elapsed.Milliseconds(),
	)

	return outcome, nil
}

// Decide scores a perceived event and classifies it, without dispatching.
func (e *Engine) Decide(ctx context.Context, p *domain.PerceivedEvent) (*domain.DecisionOutcome, error) {
	score, reasons, err := e.scorer.Score(ctx, p)
	if err != nil {
		return nil, err
	}

	delta, rationale := e.advisor.Adjust(ctx, p)
	if delta != 0 {
		score += delta
		reasons = append(reasons, fmt.Sprintf("Advisor adjustment +%.1f: %s", delta, rationale))
	}

	// Best effort: a plan describes the workflow but never moves the score.
	if e.planner != nil {
		plan, err := e.planner.Plan(ctx, p)
		if err != nil {
			slog.Debug("workflow planning failed", "event_id", p.Event.EventID, "error", err)
		} else if plan != nil && len(plan.Workflow) > 0 {
			reasons = append(reasons, fmt.Sprintf("Workflow plan expected_action=%s :: steps=%d",
				plan.ExpectedAction, len(plan.Workflow)))
		}
	}

	final := decision.Round2(score)
	return &domain.DecisionOutcome{
		DecisionID: uuid.New().String(),
		EventID:    p.Event.EventID,
		Action:     e.classifier.Classify(final),
		RiskScore:  final,
		Reasons:    reasons,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Perceive computes the feature set for an event without scoring it.
func (e *Engine) Perceive(ctx context.Context, evt *domain.TransactionEvent) (*domain.PerceivedEvent, error) {
	return e.perceiver.Perceive(ctx, evt)
}

// RuleScore perceives and rule-scores an event without advisor input or
// dispatch. Used by the on-demand fusion entry point, which blends this
// fresh rule score with a previously stored model score.
func (e *Engine) RuleScore(ctx context.Context, evt *domain.TransactionEvent) (*domain.PerceivedEvent, float64, []string, error) {
	perceived, err := e.perceiver.Perceive(ctx, evt)
	if err != nil {
		return nil, 0, nil, err
	}
	score, reasons, err := e.scorer.Score(ctx, perceived)
	if err != nil {
		return nil, 0, nil, err
	}
	return perceived, score, reasons, nil
}
