package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"ChannelPilot/internal/domain"
	"ChannelPilot/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return storage.New(db)
}

func TestUpsertIsIdempotentByLink(t *testing.T) {
	t.Parallel()

	cat := New(newTestStore(t), nil)
	ctx := context.Background()

	first, err := cat.Upsert(ctx, domain.Channel{Name: "go jobs", Link: "https://t.me/gojobs"})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	require.NoError(t, cat.UpdateCredibility(ctx, first.ID, 7.5))

	// Re-discovering the same link neither duplicates nor resets credibility.
	again, err := cat.Upsert(ctx, domain.Channel{Name: "go jobs renamed", Link: "https://t.me/gojobs"})
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)

	stored, err := cat.ByID(ctx, first.ID)
	require.NoError(t, err)
	require.InDelta(t, 7.5, stored.CredibilityScore, 1e-9)
}

func TestUpsertDuplicateLinkConflict(t *testing.T) {
	t.Parallel()

	cat := New(newTestStore(t), nil)
	ctx := context.Background()

	_, err := cat.Upsert(ctx, domain.Channel{ID: "ch-1", Name: "a", Link: "https://t.me/dup"})
	require.NoError(t, err)

	_, err = cat.Upsert(ctx, domain.Channel{ID: "ch-2", Name: "b", Link: "https://t.me/dup"})
	require.ErrorIs(t, err, ErrDuplicateLink)
}

func TestUpsertConcurrentSameLink(t *testing.T) {
	t.Parallel()

	cat := New(newTestStore(t), nil)
	ctx := context.Background()

	// Two discoveries of the same new link race; both must resolve to the
	// single inserted channel instead of one surfacing a constraint error.
	const workers = 4
	results := make(chan domain.Channel, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			ch, err := cat.Upsert(ctx, domain.Channel{Name: "raced", Link: "https://t.me/raced"})
			results <- ch
			errs <- err
		}()
	}

	var ids []string
	for i := 0; i < workers; i++ {
		require.NoError(t, <-errs)
		ids = append(ids, (<-results).ID)
	}
	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}

	listed, err := cat.ListAvailable(ctx, nil)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestListAvailableOrdering(t *testing.T) {
	t.Parallel()

	cat := New(newTestStore(t), nil)
	ctx := context.Background()

	seed := []domain.Channel{
		{Name: "low", Link: "https://t.me/low", Priority: domain.PriorityLow},
		{Name: "med-first", Link: "https://t.me/med1", Priority: domain.PriorityMedium},
		{Name: "med-second", Link: "https://t.me/med2", Priority: domain.PriorityMedium},
		{Name: "high", Link: "https://t.me/high", Priority: domain.PriorityHigh},
	}
	ids := map[string]string{}
	for _, ch := range seed {
		created, err := cat.Upsert(ctx, ch)
		require.NoError(t, err)
		ids[ch.Name] = created.ID
	}

	// Credibility reorders within a priority tier.
	require.NoError(t, cat.UpdateCredibility(ctx, ids["med-second"], 5.0))

	available, err := cat.ListAvailable(ctx, nil)
	require.NoError(t, err)

	names := make([]string, 0, len(available))
	for _, ch := range available {
		names = append(names, ch.Name)
	}
	require.Equal(t, []string{"high", "med-second", "med-first", "low"}, names)

	// Ties keep insertion order: same priority, same credibility.
	require.NoError(t, cat.UpdateCredibility(ctx, ids["med-second"], 0.0))
	available, err = cat.ListAvailable(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, "med-first", available[1].Name)
	require.Equal(t, "med-second", available[2].Name)
}

func TestListAvailableExcludesHeldAndListed(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	cat := New(store, nil)
	ctx := context.Background()

	first, err := cat.Upsert(ctx, domain.Channel{Name: "a", Link: "https://t.me/a"})
	require.NoError(t, err)
	second, err := cat.Upsert(ctx, domain.Channel{Name: "b", Link: "https://t.me/b"})
	require.NoError(t, err)
	third, err := cat.Upsert(ctx, domain.Channel{Name: "c", Link: "https://t.me/c"})
	require.NoError(t, err)

	require.NoError(t, store.UpsertAccount(ctx, domain.Account{ID: "acc-1", Status: domain.AccountActive}))
	require.NoError(t, store.InsertAssignment(ctx, nil, domain.Assignment{
		ID:         uuid.NewString(),
		AccountID:  "acc-1",
		ChannelID:  first.ID,
		AssignedAt: time.Now().UTC(),
		Status:     domain.AssignmentActive,
	}))

	available, err := cat.ListAvailable(ctx, []string{second.ID})
	require.NoError(t, err)
	require.Len(t, available, 1)
	require.Equal(t, third.ID, available[0].ID)
}

func TestUpdateCredibilityClamps(t *testing.T) {
	t.Parallel()

	cat := New(newTestStore(t), nil)
	ctx := context.Background()

	ch, err := cat.Upsert(ctx, domain.Channel{Name: "x", Link: "https://t.me/x"})
	require.NoError(t, err)

	require.NoError(t, cat.UpdateCredibility(ctx, ch.ID, 15.0))
	stored, err := cat.ByID(ctx, ch.ID)
	require.NoError(t, err)
	require.InDelta(t, 10.0, stored.CredibilityScore, 1e-9)

	require.NoError(t, cat.UpdateCredibility(ctx, ch.ID, -3.0))
	stored, err = cat.ByID(ctx, ch.ID)
	require.NoError(t, err)
	require.Zero(t, stored.CredibilityScore)
}

func TestRetireHidesChannel(t *testing.T) {
	t.Parallel()

	cat := New(newTestStore(t), nil)
	ctx := context.Background()

	ch, err := cat.Upsert(ctx, domain.Channel{Name: "old", Link: "https://t.me/old"})
	require.NoError(t, err)
	require.NoError(t, cat.Retire(ctx, ch.ID))

	available, err := cat.ListAvailable(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, available)

	// Retired, not deleted.
	stored, err := cat.ByID(ctx, ch.ID)
	require.NoError(t, err)
	require.False(t, stored.IsActive)
}

func TestListHighValue(t *testing.T) {
	t.Parallel()

	cat := New(newTestStore(t), nil)
	ctx := context.Background()

	good, err := cat.Upsert(ctx, domain.Channel{Name: "good", Link: "https://t.me/good"})
	require.NoError(t, err)
	_, err = cat.Upsert(ctx, domain.Channel{Name: "meh", Link: "https://t.me/meh"})
	require.NoError(t, err)

	require.NoError(t, cat.UpdateCredibility(ctx, good.ID, 8.2))

	highValue, err := cat.ListHighValue(ctx, 7.0)
	require.NoError(t, err)
	require.Len(t, highValue, 1)
	require.Equal(t, good.ID, highValue[0].ID)
}
