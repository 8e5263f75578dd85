package domain

// FeatureSet is the fixed feature vocabulary produced by perception for
// one event. Fields default to their zero value when a feature cannot be
// derived, so consumers never need to distinguish "absent" from "zero".
type FeatureSet struct {
	// Velocity over the trailing window
	TxCountLastWindow int     `json:"tx_count_last_window"`
	TxSumLastWindow   float64 `json:"tx_sum_last_window"`

	// Implied travel speed against the most recent geolocated event
	GeoVelocityKmPerMin float64 `json:"geo_velocity_km_per_min"`

	// Device novelty
	IsNewDevice bool `json:"is_new_device"`

	// Static risk hints
	ChannelBaseRisk float64 `json:"channel_base_risk"`
	MCCRisk         float64 `json:"mcc_risk"`

	// Time of day (UTC hour >= 22 or <= 5)
	IsNight bool `json:"is_night"`

	// Amount passed through unchanged; currency is normalized upstream.
	Amount float64 `json:"amount"`
}

// PerceivedEvent is an event together with its derived features. It lives
// only for the duration of one pipeline invocation.
type PerceivedEvent struct {
	Event    *TransactionEvent `json:"event"`
	Features FeatureSet        `json:"features"`
}
