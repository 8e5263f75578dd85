// Package history implements the Event History View over the repository:
// idempotent, side-effect-free reads of an account's recent activity.
// Storage failures surface as domain.ErrHistoryUnavailable so the pipeline
// fails the invocation instead of silently substituting zeros.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/peregrine/internal/domain"
)

// Lookup cache TTLs. Short on purpose: a blacklist change must take
// effect quickly, and a device becomes "seen" as soon as its first event
// is recorded.
const (
	blacklistTTL  = 30 * time.Second
	deviceSeenTTL = 5 * time.Minute
)

// View implements domain.HistoryView. cache may be nil, in which case
// every lookup hits the repository.
type View struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewView creates a history view over the repository with an optional
// lookup cache.
func NewView(repo domain.Repository, cache domain.Cache) *View {
	return &View{
		repo:  repo,
		cache: cache,
	}
}

// Recent returns the account's events within the trailing window, ordered
// ascending by timestamp. Always a fresh query.
func (v *View) Recent(ctx context.Context, accountID string, window time.Duration) ([]domain.EventHistoryRecord, error) {
	since := time.Now().UTC().Add(-window)
	records, err := v.repo.RecentEvents(ctx, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: recent events: %v", domain.ErrHistoryUnavailable, err)
	}
	return records, nil
}

// DeviceSeen reports whether the device is known for the account. A
// positive result is cached: once seen, a device stays seen.
func (v *View) DeviceSeen(ctx context.Context, accountID, deviceID string) (bool, error) {
	if deviceID == "" {
		return false, nil
	}

	key := "device:" + accountID + ":" + deviceID
	if v.cacheHit(ctx, key) {
		return true, nil
	}

	seen, err := v.repo.IsDeviceSeen(ctx, accountID, deviceID)
	if err != nil {
		return false, fmt.Errorf("%w: device lookup: %v", domain.ErrHistoryUnavailable, err)
	}
	if seen {
		v.cachePut(ctx, key, deviceSeenTTL)
	}
	return seen, nil
}

// MerchantBlacklisted reports whether an active block rule matches the
// merchant. Positive results are cached briefly; negatives are not, so a
// freshly added block rule is honored on the next event.
func (v *View) MerchantBlacklisted(ctx context.Context, merchantID string) (bool, error) {
	if merchantID == "" {
		return false, nil
	}

	key := "blacklist:" + merchantID
	if v.cacheHit(ctx, key) {
		return true, nil
	}

	blocked, err := v.repo.IsMerchantBlacklisted(ctx, merchantID)
	if err != nil {
		return false, fmt.Errorf("%w: blacklist lookup: %v", domain.ErrHistoryUnavailable, err)
	}
	if blocked {
		v.cachePut(ctx, key, blacklistTTL)
	}
	return blocked, nil
}

// cacheHit is best effort: cache failures fall through to the repository.
func (v *View) cacheHit(ctx context.Context, key string) bool {
	if v.cache == nil {
		return false
	}
	val, err := v.cache.Get(ctx, key)
	return err == nil && val != nil
}

func (v *View) cachePut(ctx context.Context, key string, ttl time.Duration) {
	if v.cache == nil {
		return
	}
	_ = v.cache.Set(ctx, key, []byte("1"), ttl)
}
