package rules

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/opensource-finance/peregrine/internal/domain"
)

func noBlacklist(ctx context.Context, merchantID string) (bool, error) {
	return false, nil
}

func perceived(f domain.FeatureSet, evt *domain.TransactionEvent) *domain.PerceivedEvent {
	if evt == nil {
		evt = &domain.TransactionEvent{EventID: "evt-001", AccountID: "acc-001"}
	}
	return &domain.PerceivedEvent{Event: evt, Features: f}
}

func TestScorerAmountBands(t *testing.T) {
	s := NewScorer(noBlacklist, nil)
	ctx := context.Background()

	cases := []struct {
		amount float64
		want   float64
		reason string
	}{
		{100000, 30, "High amount (>=100k) +30"},
		{250000, 30, "High amount (>=100k) +30"},
		{50000, 18, "Mid-high amount (>=50k) +18"},
		{20000, 10, "Moderate amount (>=20k) +10"},
		{19999, 0, ""},
	}

	for _, tc := range cases {
		score, reasons, err := s.Score(ctx, perceived(domain.FeatureSet{Amount: tc.amount}, nil))
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if score != tc.want {
			t.Errorf("amount %g: expected score %g, got %g", tc.amount, tc.want, score)
		}
		if tc.reason == "" {
			if len(reasons) != 0 {
				t.Errorf("amount %g: expected no reasons, got %v", tc.amount, reasons)
			}
			continue
		}
		if len(reasons) != 1 || reasons[0] != tc.reason {
			t.Errorf("amount %g: expected reason %q, got %v", tc.amount, tc.reason, reasons)
		}
	}
}

func TestScorerVelocityBands(t *testing.T) {
	s := NewScorer(noBlacklist, nil)
	ctx := context.Background()

	cases := []struct {
		count  int
		want   float64
		reason string
	}{
		{6, 25, "High burst velocity 6 in window +25"},
		{5, 25, "High burst velocity 5 in window +25"},
		{4, 12, "Elevated velocity 4 in window +12"},
		{3, 12, "Elevated velocity 3 in window +12"},
		{2, 0, ""},
	}

	for _, tc := range cases {
		score, reasons, err := s.Score(ctx, perceived(domain.FeatureSet{TxCountLastWindow: tc.count}, nil))
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if score != tc.want {
			t.Errorf("count %d: expected score %g, got %g", tc.count, tc.want, score)
		}
		if tc.reason != "" && (len(reasons) != 1 || reasons[0] != tc.reason) {
			t.Errorf("count %d: expected reason %q, got %v", tc.count, tc.reason, reasons)
		}
	}
}

func TestScorerGeoBands(t *testing.T) {
	s := NewScorer(noBlacklist, nil)
	ctx := context.Background()

	cases := []struct {
		velocity float64
		want     float64
	}{
		{80, 30},
		{50, 30},
		{10, 12},
		{9.9, 0},
	}

	for _, tc := range cases {
		score, _, err := s.Score(ctx, perceived(domain.FeatureSet{GeoVelocityKmPerMin: tc.velocity}, nil))
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if score != tc.want {
			t.Errorf("velocity %g: expected score %g, got %g", tc.velocity, tc.want, score)
		}
	}
}

func TestScorerHighRiskScenario(t *testing.T) {
	blacklist := func(ctx context.Context, merchantID string) (bool, error) {
		return merchantID == "mx-bad", nil
	}
	s := NewScorer(blacklist, nil)

	evt := &domain.TransactionEvent{
		EventID:    "evt-010",
		AccountID:  "acc-001",
		MerchantID: "mx-bad",
	}
	f := domain.FeatureSet{
		Amount:              20000, // +10
		GeoVelocityKmPerMin: 120,   // +30
		IsNewDevice:         true,  // +15
	}

	score, reasons, err := s.Score(context.Background(), perceived(f, evt))
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	// 10 + 30 + 15 + 40 (blacklist)
	if score != 95 {
		t.Errorf("expected 95, got %g", score)
	}

	want := []string{
		"Moderate amount (>=20k) +10",
		"Impossible travel 120.0 km/min +30",
		"New/unknown device +15",
		"Blacklisted merchant +40 (mx-bad)",
	}
	if len(reasons) != len(want) {
		t.Fatalf("expected %d reasons, got %v", len(want), reasons)
	}
	for i := range want {
		if reasons[i] != want[i] {
			t.Errorf("reason[%d]: expected %q, got %q", i, want[i], reasons[i])
		}
	}
}

func TestScorerLowRiskScenario(t *testing.T) {
	s := NewScorer(noBlacklist, nil)

	evt := &domain.TransactionEvent{
		EventID:   "evt-011",
		AccountID: "acc-001",
		Channel:   domain.ChannelNEFT,
	}
	f := domain.FeatureSet{
		Amount:              5000,
		ChannelBaseRisk:     6,
		GeoVelocityKmPerMin: 11,
	}

	score, reasons, err := s.Score(context.Background(), perceived(f, evt))
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	// 6 (channel) + 12 (geo mid)
	if score != 18 {
		t.Errorf("expected 18, got %g", score)
	}
	if reasons[0] != "Channel risk +6 (NEFT)" {
		t.Errorf("unexpected first reason: %q", reasons[0])
	}
}

func TestScorerNightAndDevice(t *testing.T) {
	s := NewScorer(noBlacklist, nil)

	f := domain.FeatureSet{IsNight: true, IsNewDevice: true}
	score, reasons, err := s.Score(context.Background(), perceived(f, nil))
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score != 23 {
		t.Errorf("expected 23, got %g", score)
	}
	if reasons[0] != "Nighttime +8" || reasons[1] != "New/unknown device +15" {
		t.Errorf("unexpected reasons: %v", reasons)
	}
}

func TestScorerBlacklistFailure(t *testing.T) {
	failing := func(ctx context.Context, merchantID string) (bool, error) {
		return false, fmt.Errorf("%w: store down", domain.ErrHistoryUnavailable)
	}
	s := NewScorer(failing, nil)

	evt := &domain.TransactionEvent{EventID: "evt-012", AccountID: "acc-001", MerchantID: "mx-1"}
	_, _, err := s.Score(context.Background(), perceived(domain.FeatureSet{}, evt))
	if !errors.Is(err, domain.ErrHistoryUnavailable) {
		t.Errorf("expected ErrHistoryUnavailable, got %v", err)
	}
}

func TestScorerBoostsAppendedLast(t *testing.T) {
	boosts, err := NewBoostEngine()
	if err != nil {
		t.Fatalf("NewBoostEngine failed: %v", err)
	}
	err = boosts.Reload([]BoostConfig{
		{ID: "b1", Expression: "amount >= 1000.0 ? 7.0 : 0.0", Reason: "Round amount pattern", Enabled: true},
	})
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	s := NewScorer(noBlacklist, boosts)
	f := domain.FeatureSet{Amount: 20000, IsNight: true}
	score, reasons, err := s.Score(context.Background(), perceived(f, nil))
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	// 10 (amount) + 8 (night) + 7 (boost)
	if score != 25 {
		t.Errorf("expected 25, got %g", score)
	}
	last := reasons[len(reasons)-1]
	if last != "Round amount pattern +7" {
		t.Errorf("expected boost reason last, got %q", last)
	}
}
