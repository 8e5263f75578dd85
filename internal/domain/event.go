// Package domain defines the core interfaces and types for Peregrine.
package domain

import (
	"time"
)

// Channel names commonly seen on ingested events. Unknown channels are
// accepted and scored with a default base risk.
const (
	ChannelCard       = "CARD"
	ChannelUPI        = "UPI"
	ChannelIMPS       = "IMPS"
	ChannelNEFT       = "NEFT"
	ChannelNetBanking = "NETBANKING"
	ChannelATM        = "ATM"
)

// TransactionEvent is an immutable fact describing one transaction.
// It is created once at ingestion and never mutated afterwards.
type TransactionEvent struct {
	// Core identifiers
	EventID   string `json:"eventId"`
	AccountID string `json:"accountId"`
	UserID    string `json:"userId"`

	// Financial details
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Channel is CARD/UPI/IMPS/NEFT/NETBANKING/ATM or any other value.
	Channel string `json:"channel"`

	// Merchant details
	MCC        string `json:"mcc,omitempty"`
	MerchantID string `json:"merchantId,omitempty"`

	// Temporal (UTC)
	Timestamp time.Time `json:"timestamp"`

	// Geolocation: both present or both absent.
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`

	// Device and network metadata
	DeviceID string `json:"deviceId,omitempty"`
	IP       string `json:"ip,omitempty"`
	Country  string `json:"country,omitempty"`
	State    string `json:"state,omitempty"`
	City     string `json:"city,omitempty"`

	// Extra carries fields not otherwise modeled.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// HasGeo reports whether the event carries a complete coordinate pair.
func (e *TransactionEvent) HasGeo() bool {
	return e.Lat != nil && e.Lon != nil
}

// EventHistoryRecord is a projection of a past TransactionEvent as
// returned by the Event History View. Records in a query result are
// ordered ascending by timestamp.
type EventHistoryRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Amount     float64   `json:"amount"`
	Lat        *float64  `json:"lat,omitempty"`
	Lon        *float64  `json:"lon,omitempty"`
	DeviceID   string    `json:"deviceId,omitempty"`
	MerchantID string    `json:"merchantId,omitempty"`
	Channel    string    `json:"channel,omitempty"`
}

// HasGeo reports whether the record carries a complete coordinate pair.
func (r *EventHistoryRecord) HasGeo() bool {
	return r.Lat != nil && r.Lon != nil
}
