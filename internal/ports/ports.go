package ports

import (
	"context"

	"ChannelPilot/internal/domain"
)

// Handle identifies a joined channel on the remote side.
type Handle struct {
	ChannelID string
	Ref       string
}

// ChannelClient performs the actual network join/leave/fetch operations.
// Any error means the operation did not happen; callers perform no state
// mutation on failure.
type ChannelClient interface {
	Join(ctx context.Context, channel domain.Channel) (Handle, error)
	Leave(ctx context.Context, handle Handle) error
	FetchMessages(ctx context.Context, handle Handle, limit int) ([]domain.RawMessage, error)
}

// DiscoverySource supplies candidate channel records for the catalog.
type DiscoverySource interface {
	Discover(ctx context.Context) ([]domain.Channel, error)
}

// Classifier scores a message text for job-signal content. The deterministic
// keyword model is the default implementation; an external model can swap in
// behind the same interface.
type Classifier interface {
	Classify(ctx context.Context, msg domain.RawMessage) (domain.SignalScore, error)
}

// Notifier delivers cycle digests to an operator channel.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when harvest cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func()) error
	Stop(ctx context.Context) error
}
