package quota

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ChannelPilot/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return storage.New(db)
}

func consume(ctx context.Context, store *storage.Store, tracker *Tracker, accountID string, asOf time.Time, n int) error {
	return store.WithTx(ctx, func(tx *sql.Tx) error {
		return tracker.TryConsume(ctx, tx, accountID, asOf, n)
	})
}

func TestRemainingDefaultsToFullLimit(t *testing.T) {
	t.Parallel()

	tracker := New(newTestStore(t), 10)
	remaining, err := tracker.Remaining(context.Background(), "acc-1", time.Now())
	require.NoError(t, err)
	require.Equal(t, 10, remaining)
}

func TestTryConsumeDecrements(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	tracker := New(store, 10)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, consume(ctx, store, tracker, "acc-1", now, 3))

	remaining, err := tracker.Remaining(ctx, "acc-1", now)
	require.NoError(t, err)
	require.Equal(t, 7, remaining)
}

func TestTryConsumeRejectsOverdraft(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	tracker := New(store, 5)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, consume(ctx, store, tracker, "acc-1", now, 4))

	err := consume(ctx, store, tracker, "acc-1", now, 2)
	require.ErrorIs(t, err, ErrExhausted)

	// Failed consume changes nothing.
	remaining, err := tracker.Remaining(ctx, "acc-1", now)
	require.NoError(t, err)
	require.Equal(t, 1, remaining)
}

func TestQuotaEpochRollsWithDate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	tracker := New(store, 10)
	ctx := context.Background()

	today := time.Date(2026, 8, 30, 23, 0, 0, 0, time.UTC)
	tomorrow := today.Add(2 * time.Hour)

	require.NoError(t, consume(ctx, store, tracker, "acc-1", today, 10))

	remaining, err := tracker.Remaining(ctx, "acc-1", tomorrow)
	require.NoError(t, err)
	require.Equal(t, 10, remaining)
}

func TestConcurrentConsumersNeverBothWinLastUnit(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	tracker := New(store, 1)
	ctx := context.Background()
	now := time.Now()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consume(ctx, store, tracker, "acc-1", now, 1); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)

	remaining, err := tracker.Remaining(ctx, "acc-1", now)
	require.NoError(t, err)
	require.Zero(t, remaining)
}

func TestDayKeyIsUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+5", 5*3600)
	local := time.Date(2026, 8, 31, 2, 0, 0, 0, loc)
	require.Equal(t, "2026-08-30", DayKey(local))
}
