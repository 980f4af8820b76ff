package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ChannelPilot/internal/assignment"
	"ChannelPilot/internal/catalog"
	"ChannelPilot/internal/domain"
	"ChannelPilot/internal/ports"
	"ChannelPilot/internal/quota"
	"ChannelPilot/internal/signal"
	"ChannelPilot/internal/storage"
)

// HarvestDeps wires all collaborators into the harvest workflow.
type HarvestDeps struct {
	Store      *storage.Store
	Catalog    *catalog.Catalog
	Engine     *assignment.Engine
	Client     ports.ChannelClient
	Classifier ports.Classifier
	Evaluator  *signal.Evaluator
	Discovery  ports.DiscoverySource
	Notifier   ports.Notifier
	SampleSize int
	Logger     *slog.Logger
}

// Harvest runs the acquire-fetch-score-evaluate cycle for every active
// account. Variant behaviors of the workflow (sample size, quota, thresholds)
// are configuration, not separate code paths.
type Harvest struct {
	store      *storage.Store
	catalog    *catalog.Catalog
	engine     *assignment.Engine
	client     ports.ChannelClient
	classifier ports.Classifier
	evaluator  *signal.Evaluator
	discovery  ports.DiscoverySource
	notifier   ports.Notifier
	sampleSize int
	logger     *slog.Logger
}

// NewHarvest constructs the workflow.
func NewHarvest(deps HarvestDeps) *Harvest {
	sample := deps.SampleSize
	if sample <= 0 {
		sample = 100
	}
	return &Harvest{
		store:      deps.Store,
		catalog:    deps.Catalog,
		engine:     deps.Engine,
		client:     deps.Client,
		classifier: deps.Classifier,
		evaluator:  deps.Evaluator,
		discovery:  deps.Discovery,
		notifier:   deps.Notifier,
		sampleSize: sample,
		logger:     deps.Logger,
	}
}

// CycleSummary counts one account's outcomes for a harvest cycle. Failures
// are per-channel and never abort the batch.
type CycleSummary struct {
	AccountID string
	Bound     int
	Skipped   int
	Failed    int
	HighValue int
}

// SyncCatalog pulls discovered channels into the catalog. Duplicate-link
// conflicts are logged and skipped; discovery never blocks harvesting.
func (h *Harvest) SyncCatalog(ctx context.Context) error {
	if h.discovery == nil {
		return nil
	}

	discovered, err := h.discovery.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover channels: %w", err)
	}

	for _, ch := range discovered {
		if _, err := h.catalog.Upsert(ctx, ch); err != nil {
			if errors.Is(err, catalog.ErrDuplicateLink) {
				h.warn("conflicting seed record", "link", ch.Link, "error", err)
				continue
			}
			return fmt.Errorf("upsert %s: %w", ch.Link, err)
		}
	}
	return nil
}

// RunAccount performs one harvest cycle for a single account: up to the
// quota headroom, join a candidate channel, bind it only after the join
// succeeded, fetch a message window, score, persist and evaluate it.
func (h *Harvest) RunAccount(ctx context.Context, account domain.Account) (CycleSummary, error) {
	summary := CycleSummary{AccountID: account.ID}
	if account.Status != domain.AccountActive {
		return summary, nil
	}

	status, err := h.engine.QuotaStatusFor(ctx, account.ID)
	if err != nil {
		return summary, fmt.Errorf("quota status %s: %w", account.ID, err)
	}
	if status.Remaining <= 0 {
		h.debug("no quota headroom", "account", account.ID)
		return summary, nil
	}

	candidates, err := h.catalog.ListAvailable(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("list candidates: %w", err)
	}

	for _, ch := range candidates {
		if summary.Bound >= status.Remaining {
			break
		}

		// Join first: a channel becomes Active in the store only after the
		// remote join reports success, so a failed join leaves no phantom hold.
		handle, err := h.client.Join(ctx, ch)
		if err != nil {
			h.warn("join failed", "account", account.ID, "channel", ch.Name, "error", err)
			summary.Failed++
			continue
		}

		bound, err := h.engine.Bind(ctx, account.ID, ch.ID, "harvest cycle")
		switch {
		case errors.Is(err, assignment.ErrChannelHeld):
			// Lost the race to another account; give the channel back.
			if leaveErr := h.client.Leave(ctx, handle); leaveErr != nil {
				h.warn("leave after lost race failed", "channel", ch.Name, "error", leaveErr)
			}
			summary.Skipped++
			continue
		case errors.Is(err, quota.ErrExhausted):
			if leaveErr := h.client.Leave(ctx, handle); leaveErr != nil {
				h.warn("leave after quota stop failed", "channel", ch.Name, "error", leaveErr)
			}
			summary.Skipped++
			return summary, nil
		case err != nil:
			return summary, fmt.Errorf("bind %s: %w", ch.ID, err)
		}
		summary.Bound++

		highValue, err := h.harvestChannel(ctx, account, ch, bound, handle)
		if err != nil {
			return summary, err
		}
		if highValue {
			summary.HighValue++
		}
	}

	return summary, nil
}

// harvestChannel fetches, scores and evaluates one bound channel. Fetch
// failures are recoverable (the assignment stays for the next cycle);
// persistence failures propagate.
func (h *Harvest) harvestChannel(ctx context.Context, account domain.Account, ch domain.Channel, bound domain.Assignment, handle ports.Handle) (bool, error) {
	messages, err := h.client.FetchMessages(ctx, handle, h.sampleSize)
	if err != nil {
		h.warn("fetch failed", "account", account.ID, "channel", ch.Name, "error", err)
		return false, nil
	}

	var scores []domain.SignalScore
	for _, msg := range messages {
		if !msg.Valid() {
			h.debug("malformed message skipped", "channel", ch.Name)
			continue
		}

		score, err := h.classifier.Classify(ctx, msg)
		if err != nil {
			h.warn("classify failed", "channel", ch.Name, "message", msg.ID, "error", err)
			continue
		}
		if err := h.store.SaveMessage(ctx, ch.ID, account.ID, msg, score); err != nil {
			return false, fmt.Errorf("save message %s: %w", msg.ID, err)
		}
		scores = append(scores, score)
	}

	if err := h.store.RecordFetch(ctx, bound.ID, time.Now().UTC(), len(scores)); err != nil {
		return false, fmt.Errorf("record fetch %s: %w", bound.ID, err)
	}

	verdict, err := h.evaluator.Evaluate(ctx, ch.ID, scores)
	if err != nil {
		return false, err
	}
	return verdict.IsHighValue, nil
}

// RunCycle syncs the catalog, fans the harvest out across all active
// accounts and publishes a digest of the results.
func (h *Harvest) RunCycle(ctx context.Context) ([]CycleSummary, error) {
	if err := h.SyncCatalog(ctx); err != nil {
		return nil, err
	}

	accounts, err := h.store.ListAccounts(ctx, domain.AccountActive)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	var (
		mu        sync.Mutex
		summaries []CycleSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, account := range accounts {
		account := account
		g.Go(func() error {
			summary, err := h.RunAccount(gctx, account)
			if err != nil {
				return err
			}
			mu.Lock()
			summaries = append(summaries, summary)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summaries, err
	}

	if h.notifier != nil && len(summaries) > 0 {
		if err := h.notifier.PublishDigest(ctx, buildDigest(summaries)); err != nil {
			h.warn("publish digest failed", "error", err)
		}
	}
	return summaries, nil
}

func buildDigest(summaries []CycleSummary) string {
	var formatted string
	for _, s := range summaries {
		formatted += fmt.Sprintf("- %s\nBound: %d Skipped: %d Failed: %d High-value: %d\n\n",
			s.AccountID, s.Bound, s.Skipped, s.Failed, s.HighValue)
	}
	return formatted
}

func (h *Harvest) debug(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Debug(msg, args...)
	}
}

func (h *Harvest) warn(msg string, args ...any) {
	if h.logger != nil {
		h.logger.Warn(msg, args...)
	}
}
