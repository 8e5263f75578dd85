// Package perception derives the feature set for one incoming event from
// the account's recent history.
package perception

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/opensource-finance/peregrine/internal/domain"
)

const earthRadiusKm = 6371

// Floor on elapsed minutes when computing geo-velocity, so two events in
// the same instant do not divide by zero.
const minElapsedMinutes = 0.001

// channelBaseRisk maps a transaction channel to its base risk score.
// Unknown channels fall back to a default of 5.
var channelBaseRisk = map[string]float64{
	domain.ChannelCard:       10,
	domain.ChannelUPI:        8,
	domain.ChannelIMPS:       12,
	domain.ChannelNEFT:       6,
	domain.ChannelNetBanking: 7,
	domain.ChannelATM:        9,
}

const unknownChannelRisk = 5

// mccRisk maps merchant category codes to risk hints. Unlisted codes
// contribute 0.
var mccRisk = map[string]float64{
	"4829": 15, // money transfer
	"7995": 20, // betting
	"5699": 5,  // apparel
}

// Perceiver derives features using the Event History View.
type Perceiver struct {
	history domain.HistoryView
	window  time.Duration
}

// NewPerceiver creates a perceiver reading history over the given
// velocity window.
func NewPerceiver(history domain.HistoryView, window time.Duration) *Perceiver {
	return &Perceiver{
		history: history,
		window:  window,
	}
}

// Perceive derives the feature set for one event. A history read failure
// fails the whole invocation with ErrHistoryUnavailable: substituting
// zeros would silently under-score the transaction.
func (p *Perceiver) Perceive(ctx context.Context, evt *domain.TransactionEvent) (*domain.PerceivedEvent, error) {
	var feats domain.FeatureSet

	recent, err := p.history.Recent(ctx, evt.AccountID, p.window)
	if err != nil {
		return nil, fmt.Errorf("recent events for %s: %w", evt.AccountID, err)
	}
	feats.TxCountLastWindow = len(recent)
	for _, r := range recent {
		feats.TxSumLastWindow += r.Amount
	}

	feats.GeoVelocityKmPerMin = geoVelocity(evt, recent)

	seen, err := p.history.DeviceSeen(ctx, evt.AccountID, evt.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("device lookup for %s: %w", evt.AccountID, err)
	}
	feats.IsNewDevice = !seen

	feats.ChannelBaseRisk = unknownChannelRisk
	if risk, ok := channelBaseRisk[evt.Channel]; ok {
		feats.ChannelBaseRisk = risk
	}
	feats.MCCRisk = mccRisk[evt.MCC]

	hour := evt.Timestamp.UTC().Hour()
	feats.IsNight = hour >= 22 || hour <= 5

	// Currency is assumed pre-normalized upstream.
	feats.Amount = evt.Amount

	slog.Debug("event perceived",
		"event_id", evt.EventID,
		"account_id", evt.AccountID,
		"tx_count", feats.TxCountLastWindow,
		"geo_velocity", feats.GeoVelocityKmPerMin,
		"new_device", feats.IsNewDevice,
	)

	return &domain.PerceivedEvent{Event: evt, Features: feats}, nil
}

// geoVelocity computes the implied travel speed in km/min against the
// most recent historical record. Zero when either side lacks coordinates
// or there is no history.
func geoVelocity(evt *domain.TransactionEvent, recent []domain.EventHistoryRecord) float64 {
	if len(recent) == 0 || !evt.HasGeo() {
		return 0
	}
	last := recent[len(recent)-1]
	if !last.HasGeo() {
		return 0
	}
	dist := Haversine(*last.Lat, *last.Lon, *evt.Lat, *evt.Lon)
	minutes := evt.Timestamp.Sub(last.Timestamp).Minutes()
	if minutes < minElapsedMinutes {
		minutes = minElapsedMinutes
	}
	return dist / minutes
}

// Haversine returns the great-circle distance in kilometers between two
// coordinate pairs.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dlat := radians(lat2 - lat1)
	dlon := radians(lon2 - lon1)
	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dlon/2)*math.Sin(dlon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
