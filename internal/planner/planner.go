// Package planner produces a tool workflow description for a perceived
// event: the ordered list of steps a downstream orchestrator would run
// to reach and act on a decision. The plan is a side-channel; it is
// surfaced as a decision reason and never influences the score or the
// action.
package planner

import (
	"context"

	"github.com/opensource-finance/peregrine/internal/domain"
)

// Step is one tool invocation in a workflow.
type Step struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Plan is a proposed tool workflow for one event.
type Plan struct {
	Workflow       []Step `json:"workflow"`
	ExpectedAction string `json:"expectedAction"`
	Rationale      string `json:"rationale"`
}

// Planner proposes a workflow for a perceived event. Implementations
// must be best effort: an error or empty plan leaves the decision
// untouched.
type Planner interface {
	Plan(ctx context.Context, p *domain.PerceivedEvent) (*Plan, error)
}

// StaticPlanner builds a deterministic workflow from the feature set.
// It stands in for a model-backed planner behind the same interface.
type StaticPlanner struct{}

// NewStaticPlanner creates the deterministic planner.
func NewStaticPlanner() *StaticPlanner {
	return &StaticPlanner{}
}

// Plan lays out the standard pipeline steps and anticipates a CHALLENGE
// for large amounts or impossible travel. The expectation is advisory
// only; the rule scorer remains the source of truth.
func (s *StaticPlanner) Plan(ctx context.Context, p *domain.PerceivedEvent) (*Plan, error) {
	evt := p.Event

	expected := domain.ActionAllow
	if p.Features.Amount >= 100000 || p.Features.GeoVelocityKmPerMin >= 50 {
		expected = domain.ActionChallenge
	}

	steps := []Step{
		{Tool: "recent_events", Args: map[string]any{
			"account_id": evt.AccountID,
			"window_sec": 60,
		}},
		{Tool: "device_seen", Args: map[string]any{
			"account_id": evt.AccountID,
			"device_id":  evt.DeviceID,
		}},
		{Tool: "merchant_blacklist", Args: map[string]any{
			"merchant_id": evt.MerchantID,
		}},
		{Tool: "score_rules", Args: map[string]any{
			"features": p.Features,
		}},
		{Tool: "persist_decision", Args: map[string]any{
			"event_id": evt.EventID,
			"action":   expected,
		}},
		{Tool: "publish_message", Args: map[string]any{
			"topic": domain.TopicDecisions,
			"key":   evt.EventID,
		}},
	}

	if expected != domain.ActionAllow {
		severity := domain.SeverityMedium
		if expected == domain.ActionBlock {
			severity = domain.SeverityHigh
		}
		steps = append(steps,
			Step{Tool: "create_alert", Args: map[string]any{
				"event_id": evt.EventID,
				"severity": severity,
				"tags":     []string{"fraud", "decision"},
			}},
			Step{Tool: "publish_message", Args: map[string]any{
				"topic": domain.TopicAlerts,
				"key":   evt.EventID,
			}},
		)
	}

	return &Plan{
		Workflow:       steps,
		ExpectedAction: expected,
		Rationale:      "deterministic plan",
	}, nil
}
