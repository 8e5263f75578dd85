package advisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/peregrine/internal/config"
	"github.com/opensource-finance/peregrine/internal/domain"
)

func input(f domain.FeatureSet) *domain.PerceivedEvent {
	return &domain.PerceivedEvent{
		Event: &domain.TransactionEvent{
			EventID:   "evt-001",
			AccountID: "acc-001",
			Channel:   domain.ChannelCard,
			Amount:    f.Amount,
			Timestamp: time.Now().UTC(),
		},
		Features: f,
	}
}

func TestDisabledAdvisor(t *testing.T) {
	adv := New(config.AdvisorConfig{Enabled: false})

	delta, rationale := adv.Adjust(context.Background(), input(domain.FeatureSet{
		Amount:      200000,
		IsNewDevice: true,
	}))
	if delta != 0 {
		t.Errorf("disabled advisor must return 0, got %g", delta)
	}
	if rationale != "disabled" {
		t.Errorf("expected rationale 'disabled', got %q", rationale)
	}
}

func TestMockAdvisor(t *testing.T) {
	adv := NewMockAdvisor()
	ctx := context.Background()

	t.Run("NoTriggers", func(t *testing.T) {
		delta, rationale := adv.Adjust(ctx, input(domain.FeatureSet{Amount: 100}))
		if delta != 0 {
			t.Errorf("expected 0, got %g", delta)
		}
		if rationale != "no adjustment" {
			t.Errorf("expected 'no adjustment', got %q", rationale)
		}
	})

	t.Run("NewDeviceHighAmount", func(t *testing.T) {
		delta, _ := adv.Adjust(ctx, input(domain.FeatureSet{
			Amount:      60000,
			IsNewDevice: true,
		}))
		if delta != 10 {
			t.Errorf("expected 10, got %g", delta)
		}
	})

	t.Run("AllTriggers", func(t *testing.T) {
		delta, _ := adv.Adjust(ctx, input(domain.FeatureSet{
			Amount:              60000,
			IsNewDevice:         true,
			GeoVelocityKmPerMin: 60,
			TxCountLastWindow:   4,
			IsNight:             true,
			MCCRisk:             20,
		}))
		if delta != 23 {
			t.Errorf("expected 23, got %g", delta)
		}
	})
}

func TestExternalAdvisor(t *testing.T) {
	ctx := context.Background()

	t.Run("SuccessfulAdjust", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"delta": 12.5, "rationale": "shared device cluster"}`))
		}))
		defer srv.Close()

		adv := NewExternalAdvisor(srv.URL, time.Second)
		delta, rationale := adv.Adjust(ctx, input(domain.FeatureSet{Amount: 1000}))
		if delta != 12.5 {
			t.Errorf("expected 12.5, got %g", delta)
		}
		if rationale != "shared device cluster" {
			t.Errorf("unexpected rationale: %q", rationale)
		}
	})

	t.Run("DeltaClamped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"delta": 500, "rationale": "overeager"}`))
		}))
		defer srv.Close()

		adv := NewExternalAdvisor(srv.URL, time.Second)
		delta, _ := adv.Adjust(ctx, input(domain.FeatureSet{}))
		if delta != MaxDelta {
			t.Errorf("expected clamp to %g, got %g", MaxDelta, delta)
		}
	})

	t.Run("NegativeDeltaClampedToZero", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"delta": -20, "rationale": "trusted"}`))
		}))
		defer srv.Close()

		adv := NewExternalAdvisor(srv.URL, time.Second)
		delta, _ := adv.Adjust(ctx, input(domain.FeatureSet{}))
		if delta != 0 {
			t.Errorf("expected 0, got %g", delta)
		}
	})

	t.Run("ServerErrorDegrades", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		adv := NewExternalAdvisor(srv.URL, time.Second)
		delta, rationale := adv.Adjust(ctx, input(domain.FeatureSet{}))
		if delta != 0 {
			t.Errorf("expected 0 on server error, got %g", delta)
		}
		if !strings.Contains(rationale, "500") {
			t.Errorf("rationale should mention status, got %q", rationale)
		}
	})

	t.Run("UnreachableDegrades", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // connection refused from here on

		adv := NewExternalAdvisor(srv.URL, time.Second)
		delta, rationale := adv.Adjust(ctx, input(domain.FeatureSet{}))
		if delta != 0 {
			t.Errorf("expected 0 when unreachable, got %g", delta)
		}
		if rationale == "" {
			t.Error("expected diagnostic rationale")
		}
	})
}
