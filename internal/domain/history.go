package domain

import (
	"context"
	"time"
)

// HistoryView is the read-only query interface over an account's past
// activity, consumed by perception and the rule scorer. All methods are
// idempotent reads with no side effects. Failures surface as
// ErrHistoryUnavailable so the invocation fails instead of silently
// under-scoring.
type HistoryView interface {
	// Recent returns the account's events inside the trailing window,
	// ordered ascending by timestamp. A fresh query on each call.
	Recent(ctx context.Context, accountID string, window time.Duration) ([]EventHistoryRecord, error)

	// DeviceSeen reports whether the device has been seen for the
	// account before. False when deviceID is empty.
	DeviceSeen(ctx context.Context, accountID, deviceID string) (bool, error)

	// MerchantBlacklisted reports whether an active block rule matches
	// the merchant. False when merchantID is empty; true only while the
	// rule has no expiry or a future expiry.
	MerchantBlacklisted(ctx context.Context, merchantID string) (bool, error)
}
