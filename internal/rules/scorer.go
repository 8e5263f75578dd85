// Package rules implements the deterministic risk scorer and the optional
// CEL-based score boosts.
package rules

import (
	"context"
	"fmt"

	"github.com/opensource-finance/peregrine/internal/domain"
)

// Contribution magnitudes. Bands within a category are exclusive: only the
// highest applicable band fires.
const (
	amountHighScore = 30 // >= 100k
	amountMidScore  = 18 // >= 50k
	amountLowScore  = 10 // >= 20k

	velocityHighScore = 25 // >= 5 events in window
	velocityMidScore  = 12 // >= 3 events in window

	geoHighScore = 30 // >= 50 km/min
	geoMidScore  = 12 // >= 10 km/min

	nightScore     = 8
	newDeviceScore = 15
	blacklistScore = 40
)

// BlacklistChecker answers whether a merchant has an active block rule.
// Backed by the Event History View; a failure fails the invocation.
type BlacklistChecker func(ctx context.Context, merchantID string) (bool, error)

// Scorer is the deterministic additive rule scorer. Contributions are
// strictly additive and each triggered contribution appends exactly one
// reason string, in evaluation order.
type Scorer struct {
	blacklisted BlacklistChecker
	boosts      *BoostEngine // optional
}

// NewScorer creates a scorer. boosts may be nil.
func NewScorer(blacklisted BlacklistChecker, boosts *BoostEngine) *Scorer {
	return &Scorer{
		blacklisted: blacklisted,
		boosts:      boosts,
	}
}

// Score computes the rule score and its ordered reasons for a perceived
// event. The total is not clamped here; classification happens later.
func (s *Scorer) Score(ctx context.Context, p *domain.PerceivedEvent) (float64, []string, error) {
	f := p.Features
	evt := p.Event
	score := 0.0
	var reasons []string

	if f.ChannelBaseRisk > 0 {
		score += f.ChannelBaseRisk
		reasons = append(reasons, fmt.Sprintf("Channel risk +%g (%s)", f.ChannelBaseRisk, evt.Channel))
	}
	if f.MCCRisk > 0 {
		score += f.MCCRisk
		reasons = append(reasons, fmt.Sprintf("MCC risk +%g (%s)", f.MCCRisk, evt.MCC))
	}

	switch {
	case f.Amount >= 100000:
		score += amountHighScore
		reasons = append(reasons, fmt.Sprintf("High amount (>=100k) +%d", amountHighScore))
	case f.Amount >= 50000:
		score += amountMidScore
		reasons = append(reasons, fmt.Sprintf("Mid-high amount (>=50k) +%d", amountMidScore))
	case f.Amount >= 20000:
		score += amountLowScore
		reasons = append(reasons, fmt.Sprintf("Moderate amount (>=20k) +%d", amountLowScore))
	}

	switch {
	case f.TxCountLastWindow >= 5:
		score += velocityHighScore
		reasons = append(reasons, fmt.Sprintf("High burst velocity %d in window +%d", f.TxCountLastWindow, velocityHighScore))
	case f.TxCountLastWindow >= 3:
		score += velocityMidScore
		reasons = append(reasons, fmt.Sprintf("Elevated velocity %d in window +%d", f.TxCountLastWindow, velocityMidScore))
	}

	switch {
	case f.GeoVelocityKmPerMin >= 50:
		score += geoHighScore
		reasons = append(reasons, fmt.Sprintf("Impossible travel %.1f km/min +%d", f.GeoVelocityKmPerMin, geoHighScore))
	case f.GeoVelocityKmPerMin >= 10:
		score += geoMidScore
		reasons = append(reasons, fmt.Sprintf("Suspicious travel %.1f km/min +%d", f.GeoVelocityKmPerMin, geoMidScore))
	}

	if f.IsNight {
		score += nightScore
		reasons = append(reasons, fmt.Sprintf("Nighttime +%d", nightScore))
	}

	if f.IsNewDevice {
		score += newDeviceScore
		reasons = append(reasons, fmt.Sprintf("New/unknown device +%d", newDeviceScore))
	}

	// Blacklist is queried directly, not a precomputed feature.
	blocked, err := s.blacklisted(ctx, evt.MerchantID)
	if err != nil {
		return 0, nil, fmt.Errorf("blacklist lookup for %q: %w", evt.MerchantID, err)
	}
	if blocked {
		score += blacklistScore
		reasons = append(reasons, fmt.Sprintf("Blacklisted merchant +%d (%s)", blacklistScore, evt.MerchantID))
	}

	if s.boosts != nil {
		boostScore, boostReasons := s.boosts.Evaluate(p)
		score += boostScore
		reasons = append(reasons, boostReasons...)
	}

	return score, reasons, nil
}
