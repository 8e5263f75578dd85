package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opensource-finance/peregrine/internal/domain"
	"github.com/opensource-finance/peregrine/internal/metrics"
)

// ExternalAdvisor calls an HTTP advisory collaborator. The wire contract:
// request carries features plus event basics, response carries
// {"delta": <number>, "rationale": "<string>"}. Any failure degrades to a
// zero delta with the failure as rationale.
type ExternalAdvisor struct {
	url    string
	client *http.Client
}

// NewExternalAdvisor creates an advisor against the given endpoint.
func NewExternalAdvisor(url string, timeout time.Duration) *ExternalAdvisor {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ExternalAdvisor{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type adjustRequest struct {
	Features  domain.FeatureSet `json:"features"`
	Channel   string            `json:"channel"`
	Category  string            `json:"category,omitempty"`
	Amount    float64           `json:"amount"`
	Timestamp time.Time         `json:"timestamp"`
}

type adjustResponse struct {
	Delta     float64 `json:"delta"`
	Rationale string  `json:"rationale"`
}

// Adjust performs the advisory call.
func (a *ExternalAdvisor) Adjust(ctx context.Context, p *domain.PerceivedEvent) (float64, string) {
	body, err := json.Marshal(adjustRequest{
		Features:  p.Features,
		Channel:   p.Event.Channel,
		Category:  p.Event.MCC,
		Amount:    p.Event.Amount,
		Timestamp: p.Event.Timestamp,
	})
	if err != nil {
		return a.degrade(fmt.Sprintf("advisor request encode failed: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return a.degrade(fmt.Sprintf("advisor request build failed: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return a.degrade(fmt.Sprintf("advisor unavailable: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return a.degrade(fmt.Sprintf("advisor returned status %d", resp.StatusCode))
	}

	var out adjustResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return a.degrade(fmt.Sprintf("advisor response decode failed: %v", err))
	}

	return clampDelta(out.Delta), out.Rationale
}

func (a *ExternalAdvisor) degrade(rationale string) (float64, string) {
	metrics.AdvisorFallbacks.Inc()
	return 0, rationale
}
