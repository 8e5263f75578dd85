// Package modelscore runs the stand-in model inference and keeps the
// persisted score registry used by the fusion entry point.
package modelscore

import (
	"context"
	"errors"
	"time"

	"github.com/opensource-finance/peregrine/internal/domain"
)

// DefaultModelID names the built-in heuristic model. A real deployment
// would resolve this from a model registry.
const DefaultModelID = "gbm_txn-builtin"

// DefaultThreshold is the model threshold applied when the caller does
// not supply one.
const DefaultThreshold = 75.0

// Service scores events and persists the results.
type Service struct {
	repo domain.Repository
}

// NewService creates a model score service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// Score runs inference over the feature set, persists the result and
// returns it.
func (s *Service) Score(ctx context.Context, eventID string, feats domain.FeatureSet, threshold float64) (*domain.ModelScore, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	start := time.Now()
	riskScore, explain := predict(feats)

	score := &domain.ModelScore{
		EventID:     eventID,
		ModelID:     DefaultModelID,
		RiskScore:   riskScore,
		Threshold:   threshold,
		InferenceMs: time.Since(start).Milliseconds(),
		Explain:     explain,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.InsertModelScore(ctx, score); err != nil {
		return nil, err
	}
	return score, nil
}

// Latest returns the newest stored score for an event. A missing score is
// not an error: the fusion path treats it as 0.
func (s *Service) Latest(ctx context.Context, eventID string) (*domain.ModelScore, error) {
	score, err := s.repo.LatestModelScore(ctx, eventID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return score, nil
}

// predict is a placeholder for real model inference (a REST call to a
// serving endpoint in production).
func predict(feats domain.FeatureSet) (float64, map[string]any) {
	score := 20.0
	if feats.Amount >= 100000 {
		score += 35
	}
	if feats.TxCountLastWindow >= 3 {
		score += 18
	}
	if feats.GeoVelocityKmPerMin >= 50 {
		score += 20
	}
	if feats.IsNewDevice {
		score += 10
	}
	if score > 99.9 {
		score = 99.9
	}
	explain := map[string]any{
		"top_factors": []string{"amount", "velocity", "geo", "device"},
	}
	return score, explain
}
