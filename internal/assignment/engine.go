// Package assignment implements the persistent binding engine. Each channel
// is held by at most one account at a time; every transition is recorded in
// the append-only history. The store, not process memory, is the single
// source of truth for holdings and quota.
package assignment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ChannelPilot/internal/catalog"
	"ChannelPilot/internal/domain"
	"ChannelPilot/internal/quota"
	"ChannelPilot/internal/storage"
)

// ErrChannelHeld reports a bind attempt on a channel that already has an
// active assignment. Expected under races; callers skip the candidate.
var ErrChannelHeld = errors.New("channel already held by an active assignment")

// Engine binds accounts to channels within store transactions.
type Engine struct {
	store   *storage.Store
	catalog *catalog.Catalog
	quota   *quota.Tracker
	logger  *slog.Logger
	now     func() time.Time
}

// New wires the engine. The quota tracker shares the engine's store so
// consumption joins the bind transaction.
func New(store *storage.Store, cat *catalog.Catalog, tracker *quota.Tracker, logger *slog.Logger) *Engine {
	return &Engine{
		store:   store,
		catalog: cat,
		quota:   tracker,
		logger:  logger,
		now:     time.Now,
	}
}

// Bind creates an active assignment for (account, channel) inside one
// transaction: holder re-check, quota consume, assignment insert, history
// append. Any failure rolls the whole candidate back.
func (e *Engine) Bind(ctx context.Context, accountID, channelID, reason string) (domain.Assignment, error) {
	now := e.now().UTC()
	a := domain.Assignment{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		ChannelID:  channelID,
		AssignedAt: now,
		Status:     domain.AssignmentActive,
	}

	err := e.store.WithTx(ctx, func(tx *sql.Tx) error {
		holder, err := e.store.ActiveAssignmentForChannel(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if holder != nil {
			return fmt.Errorf("channel %s: %w", channelID, ErrChannelHeld)
		}

		if err := e.quota.TryConsume(ctx, tx, accountID, now, 1); err != nil {
			return err
		}

		if err := e.store.InsertAssignment(ctx, tx, a); err != nil {
			return err
		}

		action := domain.ActionBound
		released, err := e.store.CountReleasedForChannel(ctx, tx, channelID)
		if err != nil {
			return err
		}
		if released > 0 {
			action = domain.ActionReassigned
		}

		return e.store.InsertHistory(ctx, tx, domain.HistoryEntry{
			ID:        uuid.NewString(),
			AccountID: accountID,
			ChannelID: channelID,
			Action:    action,
			Timestamp: now,
			Reason:    reason,
		})
	})
	if err != nil {
		return domain.Assignment{}, err
	}

	e.debug("channel bound", "account", accountID, "channel", channelID)
	return a, nil
}

// SelectAndBind picks up to maxCount available channels in catalog order and
// binds each in its own transaction. Held channels and exhausted quota are
// skipped, not errors; partial batches are normal. Persistence failures abort
// only the candidate they hit.
func (e *Engine) SelectAndBind(ctx context.Context, accountID string, maxCount int) ([]domain.Assignment, error) {
	now := e.now().UTC()
	remaining, err := e.quota.Remaining(ctx, accountID, now)
	if err != nil {
		return nil, fmt.Errorf("select and bind: %w", err)
	}

	n := maxCount
	if remaining < n {
		n = remaining
	}
	if n <= 0 {
		return nil, nil
	}

	candidates, err := e.catalog.ListAvailable(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("select and bind: %w", err)
	}

	var bound []domain.Assignment
	for _, ch := range candidates {
		if len(bound) >= n {
			break
		}

		a, err := e.Bind(ctx, accountID, ch.ID, "selected by catalog order")
		switch {
		case errors.Is(err, ErrChannelHeld):
			continue
		case errors.Is(err, quota.ErrExhausted):
			e.debug("quota exhausted mid-batch", "account", accountID, "bound", len(bound))
			return bound, nil
		case err != nil:
			return bound, fmt.Errorf("bind channel %s: %w", ch.ID, err)
		}
		bound = append(bound, a)
	}
	return bound, nil
}

// Release transitions the matching active assignment to released and appends
// history. Releasing an unheld channel is a no-op, not an error.
func (e *Engine) Release(ctx context.Context, accountID, channelID, reason string) error {
	now := e.now().UTC()
	return e.store.WithTx(ctx, func(tx *sql.Tx) error {
		changed, err := e.store.ReleaseAssignment(ctx, tx, accountID, channelID)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return e.store.InsertHistory(ctx, tx, domain.HistoryEntry{
			ID:        uuid.NewString(),
			AccountID: accountID,
			ChannelID: channelID,
			Action:    domain.ActionReleased,
			Timestamp: now,
			Reason:    reason,
		})
	})
}

// ActiveAssignmentsFor lists the account's current holdings.
func (e *Engine) ActiveAssignmentsFor(ctx context.Context, accountID string) ([]domain.Assignment, error) {
	return e.store.ListActiveAssignmentsByAccount(ctx, accountID)
}

// HolderOf reports which account currently holds the channel.
func (e *Engine) HolderOf(ctx context.Context, channelID string) (string, bool, error) {
	a, err := e.store.ActiveAssignmentForChannel(ctx, nil, channelID)
	if err != nil {
		return "", false, err
	}
	if a == nil {
		return "", false, nil
	}
	return a.AccountID, true, nil
}

// History returns the channel's audit trail, oldest first.
func (e *Engine) History(ctx context.Context, channelID string) ([]domain.HistoryEntry, error) {
	return e.store.HistoryForChannel(ctx, channelID)
}

// QuotaStatus summarizes today's quota for the reporting surface.
type QuotaStatus struct {
	AccountID string
	Day       string
	Used      int
	Remaining int
	Limit     int
}

// QuotaStatusFor returns the account's current-epoch quota usage.
func (e *Engine) QuotaStatusFor(ctx context.Context, accountID string) (QuotaStatus, error) {
	now := e.now().UTC()
	remaining, err := e.quota.Remaining(ctx, accountID, now)
	if err != nil {
		return QuotaStatus{}, err
	}
	return QuotaStatus{
		AccountID: accountID,
		Day:       quota.DayKey(now),
		Used:      e.quota.Limit() - remaining,
		Remaining: remaining,
		Limit:     e.quota.Limit(),
	}, nil
}

func (e *Engine) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
