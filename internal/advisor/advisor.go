// Package advisor supplies the optional additive risk adjustment from an
// external signal. Advisors never fail the pipeline: every failure
// degrades to a zero delta with a diagnostic rationale.
package advisor

import (
	"context"

	"github.com/opensource-finance/peregrine/internal/config"
	"github.com/opensource-finance/peregrine/internal/domain"
)

// MaxDelta is the upper bound on an advisor contribution.
const MaxDelta = 40.0

// Advisor returns an additive score delta in [0, MaxDelta] plus a
// rationale. Implementations must not return errors; graceful degradation
// is part of the contract.
type Advisor interface {
	Adjust(ctx context.Context, p *domain.PerceivedEvent) (delta float64, rationale string)
}

// New builds an advisor from configuration. A disabled advisor
// deterministically returns (0, "disabled").
func New(cfg config.AdvisorConfig) Advisor {
	if !cfg.Enabled {
		return disabledAdvisor{}
	}
	switch cfg.Provider {
	case config.AdvisorProviderExternal:
		return NewExternalAdvisor(cfg.URL, cfg.Timeout)
	default:
		return NewMockAdvisor()
	}
}

type disabledAdvisor struct{}

func (disabledAdvisor) Adjust(ctx context.Context, p *domain.PerceivedEvent) (float64, string) {
	return 0, "disabled"
}

// clampDelta forces a delta into [0, MaxDelta].
func clampDelta(delta float64) float64 {
	if delta < 0 {
		return 0
	}
	if delta > MaxDelta {
		return MaxDelta
	}
	return delta
}
