// Package quota bounds daily channel acquisition per account. Counters are
// keyed by (account, UTC calendar date); rolling to a new date implicitly
// resets the count, so no explicit reset exists. Counts are never refunded
// when a channel is released.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ChannelPilot/internal/storage"
)

// ErrExhausted reports a consume attempt beyond the day's remaining quota.
// Expected under normal operation; callers skip, never treat as fatal.
var ErrExhausted = errors.New("daily quota exhausted")

// DefaultDailyLimit matches the original scrapers' per-account join cap.
const DefaultDailyLimit = 10

// DayKey formats the quota epoch for a point in time.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Tracker enforces the per-account daily limit against the store.
type Tracker struct {
	store *storage.Store
	limit int
}

// New builds a tracker; limit <= 0 falls back to DefaultDailyLimit.
func New(store *storage.Store, limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &Tracker{store: store, limit: limit}
}

// Limit returns the configured daily cap.
func (t *Tracker) Limit() int { return t.limit }

// Remaining returns the account's unused quota for the given day, the full
// limit when no counter row exists.
func (t *Tracker) Remaining(ctx context.Context, accountID string, asOf time.Time) (int, error) {
	used, err := t.store.QuotaCount(ctx, accountID, DayKey(asOf))
	if err != nil {
		return 0, fmt.Errorf("quota remaining: %w", err)
	}
	remaining := t.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// TryConsume atomically checks and takes n units inside tx. It returns
// ErrExhausted, and changes nothing, when n would exceed the remainder; two
// racing consumers can never both take the last unit.
func (t *Tracker) TryConsume(ctx context.Context, tx *sql.Tx, accountID string, asOf time.Time, n int) error {
	if n <= 0 {
		return nil
	}
	ok, err := t.store.ConsumeQuota(ctx, tx, accountID, DayKey(asOf), n, t.limit)
	if err != nil {
		return fmt.Errorf("consume quota: %w", err)
	}
	if !ok {
		return ErrExhausted
	}
	return nil
}
