// Package decision maps risk scores to actions: the threshold classifier
// for the rule path and the independent fusion policy for pre-computed
// model scores.
package decision

import (
	"fmt"
	"math"

	"github.com/opensource-finance/peregrine/internal/domain"
)

// Classifier maps a final score to an action via two fixed thresholds.
// Pure and stateless after construction.
type Classifier struct {
	blockThreshold     float64
	challengeThreshold float64
}

// NewClassifier creates a classifier. blockThreshold must be strictly
// greater than challengeThreshold; this is validated at startup.
func NewClassifier(blockThreshold, challengeThreshold float64) (*Classifier, error) {
	if blockThreshold <= challengeThreshold {
		return nil, fmt.Errorf("%w: block threshold %.2f must be greater than challenge threshold %.2f",
			domain.ErrConfigInvalid, blockThreshold, challengeThreshold)
	}
	return &Classifier{
		blockThreshold:     blockThreshold,
		challengeThreshold: challengeThreshold,
	}, nil
}

// Classify maps a score to an action. Threshold comparisons are
// inclusive: a score exactly at a threshold takes the stronger action.
func (c *Classifier) Classify(score float64) string {
	switch {
	case score >= c.blockThreshold:
		return domain.ActionBlock
	case score >= c.challengeThreshold:
		return domain.ActionChallenge
	default:
		return domain.ActionAllow
	}
}

// Round2 rounds a score to 2 decimal places. Applied before both
// classification and storage so the persisted score and the action never
// disagree.
func Round2(score float64) float64 {
	return math.Round(score*100) / 100
}
