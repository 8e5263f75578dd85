package advisor

import (
	"context"
	"fmt"

	"github.com/opensource-finance/peregrine/internal/domain"
)

// MockAdvisor is a deterministic stand-in for the external advisory
// signal, useful for local runs and tests.
type MockAdvisor struct{}

// NewMockAdvisor creates a mock advisor.
func NewMockAdvisor() *MockAdvisor {
	return &MockAdvisor{}
}

// Adjust derives a small delta from the riskier feature combinations.
func (a *MockAdvisor) Adjust(ctx context.Context, p *domain.PerceivedEvent) (float64, string) {
	f := p.Features

	delta := 0.0
	if f.IsNewDevice && f.Amount >= 50000 {
		delta += 10
	}
	if f.GeoVelocityKmPerMin >= 50 && f.TxCountLastWindow >= 3 {
		delta += 8
	}
	if f.IsNight && f.MCCRisk >= 15 {
		delta += 5
	}
	delta = clampDelta(delta)

	if delta == 0 {
		return 0, "no adjustment"
	}
	return delta, fmt.Sprintf("heuristic adjustment for %s", p.Event.Channel)
}
