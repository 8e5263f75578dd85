package decision

import (
	"fmt"

	"github.com/opensource-finance/peregrine/internal/domain"
)

// Fusion weights: the model score dominates the blend.
const (
	modelWeight = 0.6
	ruleWeight  = 0.4
)

// challengeBand is the width of the CHALLENGE band above the model
// threshold; at or beyond threshold+challengeBand the action is BLOCK.
const challengeBand = 15.0

// Combine blends a previously computed model score with a fresh rule
// score. Classification here is banded around the model threshold, a
// separate policy from Classifier's fixed action thresholds.
func Combine(ruleScore, modelScore, modelThreshold float64, reasons []string) *domain.FusionResult {
	final := Round2(modelWeight*modelScore + ruleWeight*ruleScore)

	action := domain.ActionAllow
	switch {
	case final >= modelThreshold+challengeBand:
		action = domain.ActionBlock
	case final >= modelThreshold:
		action = domain.ActionChallenge
	}

	combined := make([]string, len(reasons), len(reasons)+1)
	copy(combined, reasons)
	combined = append(combined, fmt.Sprintf("Model score=%g, Rule score=%g, Combined=%g", modelScore, ruleScore, final))

	return &domain.FusionResult{
		FinalScore: final,
		Action:     action,
		Reasons:    combined,
		ModelScore: modelScore,
		RuleScore:  ruleScore,
	}
}
