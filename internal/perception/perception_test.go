package perception

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/peregrine/internal/domain"
)

type fakeHistory struct {
	recent    []domain.EventHistoryRecord
	recentErr error
	seen      bool
	seenErr   error
	blocked   bool
}

func (f *fakeHistory) Recent(ctx context.Context, accountID string, window time.Duration) ([]domain.EventHistoryRecord, error) {
	return f.recent, f.recentErr
}

func (f *fakeHistory) DeviceSeen(ctx context.Context, accountID, deviceID string) (bool, error) {
	return f.seen, f.seenErr
}

func (f *fakeHistory) MerchantBlacklisted(ctx context.Context, merchantID string) (bool, error) {
	return f.blocked, nil
}

func ptr(v float64) *float64 { return &v }

func TestHaversine(t *testing.T) {
	t.Run("ZeroDistance", func(t *testing.T) {
		if d := Haversine(12.9716, 77.5946, 12.9716, 77.5946); d != 0 {
			t.Errorf("expected 0 distance, got %f", d)
		}
	})

	t.Run("OneDegreeLongitudeAtEquator", func(t *testing.T) {
		d := Haversine(0, 0, 0, 1)
		if math.Abs(d-111.19) > 0.5 {
			t.Errorf("expected ~111.19 km, got %f", d)
		}
	})

	t.Run("Symmetric", func(t *testing.T) {
		a := Haversine(28.7041, 77.1025, 19.0760, 72.8777)
		b := Haversine(19.0760, 72.8777, 28.7041, 77.1025)
		if math.Abs(a-b) > 1e-9 {
			t.Errorf("distance not symmetric: %f vs %f", a, b)
		}
	})
}

func TestPerceive(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("NoHistory", func(t *testing.T) {
		p := NewPerceiver(&fakeHistory{}, time.Minute)
		evt := &domain.TransactionEvent{
			EventID:   "evt-001",
			AccountID: "acc-001",
			Amount:    1500,
			Channel:   "UNKNOWN_CHANNEL",
			DeviceID:  "dev-001",
			Timestamp: base,
		}

		perceived, err := p.Perceive(ctx, evt)
		if err != nil {
			t.Fatalf("Perceive failed: %v", err)
		}

		f := perceived.Features
		if f.TxCountLastWindow != 0 {
			t.Errorf("expected 0 count, got %d", f.TxCountLastWindow)
		}
		if f.TxSumLastWindow != 0 {
			t.Errorf("expected 0 sum, got %f", f.TxSumLastWindow)
		}
		if f.GeoVelocityKmPerMin != 0 {
			t.Errorf("expected 0 geo velocity, got %f", f.GeoVelocityKmPerMin)
		}
		if !f.IsNewDevice {
			t.Error("expected new device")
		}
		if f.ChannelBaseRisk != 5 {
			t.Errorf("expected default channel risk 5, got %f", f.ChannelBaseRisk)
		}
		if f.MCCRisk != 0 {
			t.Errorf("expected 0 MCC risk, got %f", f.MCCRisk)
		}
		if f.IsNight {
			t.Error("noon should not be night")
		}
		if f.Amount != 1500 {
			t.Errorf("expected amount 1500, got %f", f.Amount)
		}
	})

	t.Run("ChannelAndMCCRisk", func(t *testing.T) {
		p := NewPerceiver(&fakeHistory{seen: true}, time.Minute)
		evt := &domain.TransactionEvent{
			EventID:   "evt-002",
			AccountID: "acc-001",
			Amount:    100,
			Channel:   domain.ChannelCard,
			MCC:       "7995",
			Timestamp: base,
		}

		perceived, err := p.Perceive(ctx, evt)
		if err != nil {
			t.Fatalf("Perceive failed: %v", err)
		}
		if perceived.Features.ChannelBaseRisk != 10 {
			t.Errorf("expected CARD risk 10, got %f", perceived.Features.ChannelBaseRisk)
		}
		if perceived.Features.MCCRisk != 20 {
			t.Errorf("expected MCC 7995 risk 20, got %f", perceived.Features.MCCRisk)
		}
		if perceived.Features.IsNewDevice {
			t.Error("seen device should not be new")
		}
	})

	t.Run("VelocityFeatures", func(t *testing.T) {
		history := &fakeHistory{
			recent: []domain.EventHistoryRecord{
				{Timestamp: base.Add(-50 * time.Second), Amount: 100},
				{Timestamp: base.Add(-40 * time.Second), Amount: 200},
				{Timestamp: base.Add(-30 * time.Second), Amount: 300},
			},
			seen: true,
		}
		p := NewPerceiver(history, time.Minute)
		evt := &domain.TransactionEvent{
			EventID:   "evt-003",
			AccountID: "acc-001",
			Amount:    50,
			Channel:   domain.ChannelUPI,
			Timestamp: base,
		}

		perceived, err := p.Perceive(ctx, evt)
		if err != nil {
			t.Fatalf("Perceive failed: %v", err)
		}
		if perceived.Features.TxCountLastWindow != 3 {
			t.Errorf("expected count 3, got %d", perceived.Features.TxCountLastWindow)
		}
		if perceived.Features.TxSumLastWindow != 600 {
			t.Errorf("expected sum 600, got %f", perceived.Features.TxSumLastWindow)
		}
	})

	t.Run("GeoVelocityAgainstLastRecord", func(t *testing.T) {
		history := &fakeHistory{
			recent: []domain.EventHistoryRecord{
				{Timestamp: base.Add(-10 * time.Minute), Lat: ptr(0), Lon: ptr(0)},
				{Timestamp: base.Add(-1 * time.Minute), Lat: ptr(0), Lon: ptr(1)},
			},
			seen: true,
		}
		p := NewPerceiver(history, 15*time.Minute)
		evt := &domain.TransactionEvent{
			EventID:   "evt-004",
			AccountID: "acc-001",
			Amount:    50,
			Channel:   domain.ChannelUPI,
			Timestamp: base,
			Lat:       ptr(0),
			Lon:       ptr(2),
		}

		perceived, err := p.Perceive(ctx, evt)
		if err != nil {
			t.Fatalf("Perceive failed: %v", err)
		}

		// One degree of longitude covered in one minute against the most
		// recent record, not the farther older one.
		want := Haversine(0, 1, 0, 2)
		if math.Abs(perceived.Features.GeoVelocityKmPerMin-want) > 0.5 {
			t.Errorf("expected ~%f km/min, got %f", want, perceived.Features.GeoVelocityKmPerMin)
		}
	})

	t.Run("GeoVelocityFloorsElapsedTime", func(t *testing.T) {
		history := &fakeHistory{
			recent: []domain.EventHistoryRecord{
				{Timestamp: base, Lat: ptr(0), Lon: ptr(0)},
			},
			seen: true,
		}
		p := NewPerceiver(history, time.Minute)
		evt := &domain.TransactionEvent{
			EventID:   "evt-005",
			AccountID: "acc-001",
			Amount:    50,
			Channel:   domain.ChannelUPI,
			Timestamp: base, // same instant
			Lat:       ptr(0),
			Lon:       ptr(1),
		}

		perceived, err := p.Perceive(ctx, evt)
		if err != nil {
			t.Fatalf("Perceive failed: %v", err)
		}
		want := Haversine(0, 0, 0, 1) / 0.001
		if math.Abs(perceived.Features.GeoVelocityKmPerMin-want) > 1 {
			t.Errorf("expected floored velocity ~%f, got %f", want, perceived.Features.GeoVelocityKmPerMin)
		}
	})

	t.Run("GeoVelocityZeroWithoutCoordinates", func(t *testing.T) {
		history := &fakeHistory{
			recent: []domain.EventHistoryRecord{
				{Timestamp: base.Add(-time.Minute)}, // no coords
			},
			seen: true,
		}
		p := NewPerceiver(history, time.Minute)
		evt := &domain.TransactionEvent{
			EventID:   "evt-006",
			AccountID: "acc-001",
			Amount:    50,
			Channel:   domain.ChannelUPI,
			Timestamp: base,
			Lat:       ptr(12.97),
			Lon:       ptr(77.59),
		}

		perceived, err := p.Perceive(ctx, evt)
		if err != nil {
			t.Fatalf("Perceive failed: %v", err)
		}
		if perceived.Features.GeoVelocityKmPerMin != 0 {
			t.Errorf("expected 0 velocity, got %f", perceived.Features.GeoVelocityKmPerMin)
		}
	})

	t.Run("NightWindow", func(t *testing.T) {
		cases := []struct {
			hour  int
			night bool
		}{
			{22, true},
			{23, true},
			{0, true},
			{5, true},
			{6, false},
			{21, false},
		}
		p := NewPerceiver(&fakeHistory{seen: true}, time.Minute)
		for _, tc := range cases {
			evt := &domain.TransactionEvent{
				EventID:   "evt-night",
				AccountID: "acc-001",
				Amount:    50,
				Channel:   domain.ChannelUPI,
				Timestamp: time.Date(2025, 6, 15, tc.hour, 30, 0, 0, time.UTC),
			}
			perceived, err := p.Perceive(ctx, evt)
			if err != nil {
				t.Fatalf("Perceive failed: %v", err)
			}
			if perceived.Features.IsNight != tc.night {
				t.Errorf("hour %d: expected night=%v, got %v", tc.hour, tc.night, perceived.Features.IsNight)
			}
		}
	})

	t.Run("HistoryFailureFailsPerception", func(t *testing.T) {
		history := &fakeHistory{
			recentErr: domain.ErrHistoryUnavailable,
		}
		p := NewPerceiver(history, time.Minute)
		evt := &domain.TransactionEvent{
			EventID:   "evt-007",
			AccountID: "acc-001",
			Amount:    50,
			Channel:   domain.ChannelUPI,
			Timestamp: base,
		}

		_, err := p.Perceive(ctx, evt)
		if !errors.Is(err, domain.ErrHistoryUnavailable) {
			t.Errorf("expected ErrHistoryUnavailable, got %v", err)
		}
	})
}
