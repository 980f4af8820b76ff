package assignment

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ChannelPilot/internal/catalog"
	"ChannelPilot/internal/domain"
	"ChannelPilot/internal/quota"
	"ChannelPilot/internal/storage"
)

type engineFixture struct {
	store   *storage.Store
	catalog *catalog.Catalog
	engine  *Engine
}

func newFixture(t *testing.T, dailyLimit int) engineFixture {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := storage.New(db)
	cat := catalog.New(store, nil)
	tracker := quota.New(store, dailyLimit)
	return engineFixture{
		store:   store,
		catalog: cat,
		engine:  New(store, cat, tracker, nil),
	}
}

func (f engineFixture) seedAccounts(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.store.UpsertAccount(context.Background(), domain.Account{
			ID:          id,
			DisplayName: id,
			Status:      domain.AccountActive,
		}))
	}
}

func (f engineFixture) seedChannels(t *testing.T, n int) []domain.Channel {
	t.Helper()
	out := make([]domain.Channel, 0, n)
	for i := 0; i < n; i++ {
		ch, err := f.catalog.Upsert(context.Background(), domain.Channel{
			Name: fmt.Sprintf("channel-%d", i),
			Link: fmt.Sprintf("https://t.me/channel_%d", i),
		})
		require.NoError(t, err)
		out = append(out, ch)
	}
	return out
}

func TestSelectAndBindRespectsQuota(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	f.seedAccounts(t, "acc-1")
	f.seedChannels(t, 5)
	ctx := context.Background()

	bound, err := f.engine.SelectAndBind(ctx, "acc-1", 10)
	require.NoError(t, err)
	require.Len(t, bound, 3)

	status, err := f.engine.QuotaStatusFor(ctx, "acc-1")
	require.NoError(t, err)
	require.Zero(t, status.Remaining)
	require.Equal(t, 3, status.Used)

	// Nothing left today.
	more, err := f.engine.SelectAndBind(ctx, "acc-1", 1)
	require.NoError(t, err)
	require.Empty(t, more)
}

func TestSelectAndBindFollowsCatalogOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	f.seedAccounts(t, "acc-1")
	ctx := context.Background()

	low, err := f.catalog.Upsert(ctx, domain.Channel{Name: "low", Link: "https://t.me/low", Priority: domain.PriorityLow})
	require.NoError(t, err)
	high, err := f.catalog.Upsert(ctx, domain.Channel{Name: "high", Link: "https://t.me/high", Priority: domain.PriorityHigh})
	require.NoError(t, err)

	bound, err := f.engine.SelectAndBind(ctx, "acc-1", 1)
	require.NoError(t, err)
	require.Len(t, bound, 1)
	require.Equal(t, high.ID, bound[0].ChannelID)

	holder, held, err := f.engine.HolderOf(ctx, low.ID)
	require.NoError(t, err)
	require.False(t, held)
	require.Empty(t, holder)
}

func TestBindRejectsHeldChannel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	f.seedAccounts(t, "acc-1", "acc-2")
	channels := f.seedChannels(t, 1)
	ctx := context.Background()

	_, err := f.engine.Bind(ctx, "acc-1", channels[0].ID, "first")
	require.NoError(t, err)

	_, err = f.engine.Bind(ctx, "acc-2", channels[0].ID, "second")
	require.ErrorIs(t, err, ErrChannelHeld)

	holder, held, err := f.engine.HolderOf(ctx, channels[0].ID)
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, "acc-1", holder)
}

func TestConcurrentSelectAndBindSingleChannel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	f.seedAccounts(t, "acc-1", "acc-2")
	channels := f.seedChannels(t, 1)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
		errs  []error
	)
	for _, acc := range []string{"acc-1", "acc-2"} {
		acc := acc
		wg.Add(1)
		go func() {
			defer wg.Done()
			bound, err := f.engine.SelectAndBind(ctx, acc, 5)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			total += len(bound)
		}()
	}
	wg.Wait()
	require.Empty(t, errs)

	// Exactly one account won the only channel.
	require.Equal(t, 1, total)

	_, held, err := f.engine.HolderOf(ctx, channels[0].ID)
	require.NoError(t, err)
	require.True(t, held)

	// The loser sees the channel filtered out of its candidate list.
	available, err := f.catalog.ListAvailable(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, available)
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	f.seedAccounts(t, "acc-1")
	channels := f.seedChannels(t, 1)
	ctx := context.Background()

	_, err := f.engine.Bind(ctx, "acc-1", channels[0].ID, "bind")
	require.NoError(t, err)

	require.NoError(t, f.engine.Release(ctx, "acc-1", channels[0].ID, "done"))
	require.NoError(t, f.engine.Release(ctx, "acc-1", channels[0].ID, "done again"))

	history, err := f.engine.History(ctx, channels[0].ID)
	require.NoError(t, err)

	released := 0
	for _, h := range history {
		if h.Action == domain.ActionReleased {
			released++
		}
	}
	require.Equal(t, 1, released)
}

func TestRebindAfterReleaseIsReassignment(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 10)
	f.seedAccounts(t, "acc-1", "acc-2")
	channels := f.seedChannels(t, 1)
	ctx := context.Background()

	first, err := f.engine.Bind(ctx, "acc-1", channels[0].ID, "initial")
	require.NoError(t, err)
	require.NoError(t, f.engine.Release(ctx, "acc-1", channels[0].ID, "rotating"))

	second, err := f.engine.Bind(ctx, "acc-2", channels[0].ID, "takeover")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	history, err := f.engine.History(ctx, channels[0].ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, domain.ActionBound, history[0].Action)
	require.Equal(t, domain.ActionReleased, history[1].Action)
	require.Equal(t, domain.ActionReassigned, history[2].Action)

	// The released row stays released; only the new pair is active.
	active, err := f.engine.ActiveAssignmentsFor(ctx, "acc-1")
	require.NoError(t, err)
	require.Empty(t, active)

	active, err = f.engine.ActiveAssignmentsFor(ctx, "acc-2")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, second.ID, active[0].ID)
}

func TestDailyAcquisitionsNeverExceedQuota(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 4)
	f.seedAccounts(t, "acc-1")
	channels := f.seedChannels(t, 10)
	ctx := context.Background()

	bound, err := f.engine.SelectAndBind(ctx, "acc-1", 3)
	require.NoError(t, err)
	require.Len(t, bound, 3)

	// Releasing does not refund the day's quota.
	require.NoError(t, f.engine.Release(ctx, "acc-1", channels[0].ID, "cleanup"))

	more, err := f.engine.SelectAndBind(ctx, "acc-1", 5)
	require.NoError(t, err)
	require.Len(t, more, 1)

	count, err := f.store.CountAssignmentsForDay(ctx, "acc-1", quota.DayKey(time.Now()))
	require.NoError(t, err)
	require.LessOrEqual(t, count, 4)
	require.Equal(t, 4, count)
}
