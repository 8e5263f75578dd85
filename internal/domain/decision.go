package domain

import (
	"time"
)

// Decision actions, ordered by increasing severity.
const (
	ActionAllow     = "ALLOW"
	ActionChallenge = "CHALLENGE"
	ActionBlock     = "BLOCK"
)

// Alert severities.
const (
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// DecisionOutcome is the result of one pipeline invocation. Immutable once
// constructed. RiskScore is rounded to 2 decimals before classification, so
// the stored score and the action never disagree.
type DecisionOutcome struct {
	DecisionID string    `json:"decisionId"`
	EventID    string    `json:"eventId"`
	Action     string    `json:"action"`
	RiskScore  float64   `json:"riskScore"`
	Reasons    []string  `json:"reasons"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Alert is derived from a CHALLENGE or BLOCK decision. ALLOW decisions
// produce no alert. Never mutated after creation.
type Alert struct {
	AlertID     string    `json:"alertId"`
	EventID     string    `json:"eventId"`
	Severity    string    `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	RiskScore   float64   `json:"riskScore"`
	CreatedAt   time.Time `json:"createdAt"`
	Tags        []string  `json:"tags,omitempty"`
}

// ModelScore is a persisted model inference result for one event. The
// fusion entry point reads the latest score for an event; a missing score
// contributes 0.
type ModelScore struct {
	EventID     string         `json:"eventId"`
	ModelID     string         `json:"modelId"`
	RiskScore   float64        `json:"riskScore"`
	Threshold   float64        `json:"threshold"`
	InferenceMs int64          `json:"inferenceMs"`
	Explain     map[string]any `json:"explain,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// FusionResult is the output of the combine entry point.
type FusionResult struct {
	FinalScore float64  `json:"finalScore"`
	Action     string   `json:"action"`
	Reasons    []string `json:"reasons"`
	ModelScore float64  `json:"modelScore"`
	RuleScore  float64  `json:"ruleScore"`
}
