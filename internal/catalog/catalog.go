// Package catalog holds the universe of known channels and their static
// metadata. Credibility is the only score it mutates, and only through
// UpdateCredibility.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ChannelPilot/internal/domain"
	"ChannelPilot/internal/storage"
)

// ErrDuplicateLink reports an upsert whose link already belongs to a channel
// with a different id.
var ErrDuplicateLink = errors.New("link already registered to another channel")

const (
	minCredibility = 0.0
	maxCredibility = 10.0
)

// Catalog is the channel data store facade.
type Catalog struct {
	store  *storage.Store
	logger *slog.Logger
}

// New wires the catalog over the persistent store.
func New(store *storage.Store, logger *slog.Logger) *Catalog {
	return &Catalog{store: store, logger: logger}
}

// Upsert inserts a discovered channel, keyed by link. Existing channels are
// left untouched (credibility included). An id mismatch on the same link is
// the only failure mode.
func (c *Catalog) Upsert(ctx context.Context, ch domain.Channel) (domain.Channel, error) {
	providedID := ch.ID

	existing, err := c.store.ChannelByLink(ctx, ch.Link)
	if err != nil {
		return domain.Channel{}, fmt.Errorf("lookup link %s: %w", ch.Link, err)
	}
	if existing != nil {
		return c.reconcile(ch.Link, providedID, existing)
	}

	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	ch.IsActive = true
	if ch.Priority == "" {
		ch.Priority = domain.PriorityMedium
	}
	if err := c.store.InsertChannel(ctx, ch); err != nil {
		// A concurrent upsert may have won the unique link between the
		// lookup and the insert; defer to whoever got the row in.
		winner, lookupErr := c.store.ChannelByLink(ctx, ch.Link)
		if lookupErr != nil || winner == nil {
			return domain.Channel{}, fmt.Errorf("insert channel %s: %w", ch.Link, err)
		}
		return c.reconcile(ch.Link, providedID, winner)
	}
	c.debug("channel registered", "name", ch.Name, "link", ch.Link, "priority", string(ch.Priority))
	return ch, nil
}

// reconcile resolves an upsert against the channel already holding the link.
// Only a caller-provided id that disagrees with the stored one is an error.
func (c *Catalog) reconcile(link, providedID string, existing *domain.Channel) (domain.Channel, error) {
	if providedID != "" && providedID != existing.ID {
		return domain.Channel{}, fmt.Errorf("upsert %s: %w", link, ErrDuplicateLink)
	}
	return *existing, nil
}

// ListAvailable returns channels with no active assignment, excluding the
// given ids, ordered by (priority desc, credibility desc, insertion order).
// The ordering is the sole prioritization rule and is deterministic.
func (c *Catalog) ListAvailable(ctx context.Context, excluding []string) ([]domain.Channel, error) {
	channels, err := c.store.ListAvailableChannels(ctx, excluding)
	if err != nil {
		return nil, fmt.Errorf("list available: %w", err)
	}
	return channels, nil
}

// UpdateCredibility clamps the score to [0,10] and overwrites; last write
// wins, no history kept at this layer.
func (c *Catalog) UpdateCredibility(ctx context.Context, channelID string, score float64) error {
	if score < minCredibility {
		score = minCredibility
	}
	if score > maxCredibility {
		score = maxCredibility
	}
	if err := c.store.UpdateChannelCredibility(ctx, channelID, score); err != nil {
		return fmt.Errorf("update credibility %s: %w", channelID, err)
	}
	return nil
}

// ByID fetches a channel, or nil when unknown.
func (c *Catalog) ByID(ctx context.Context, channelID string) (*domain.Channel, error) {
	return c.store.ChannelByID(ctx, channelID)
}

// ListHighValue returns active channels at or above the credibility threshold.
func (c *Catalog) ListHighValue(ctx context.Context, threshold float64) ([]domain.Channel, error) {
	channels, err := c.store.ListHighValueChannels(ctx, threshold)
	if err != nil {
		return nil, fmt.Errorf("list high value: %w", err)
	}
	return channels, nil
}

// Retire marks a channel inactive; rows are never deleted.
func (c *Catalog) Retire(ctx context.Context, channelID string) error {
	if err := c.store.MarkChannelInactive(ctx, channelID); err != nil {
		return fmt.Errorf("retire %s: %w", channelID, err)
	}
	return nil
}

func (c *Catalog) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
