package signal

import (
	"context"
	"fmt"
	"log/slog"

	"ChannelPilot/internal/catalog"
	"ChannelPilot/internal/domain"
)

// EvaluatorConfig carries the tunable verdict parameters. The sample window
// size is the caller's concern; only the thresholds live here.
type EvaluatorConfig struct {
	// MinJobMessages is the signal count that promotes a channel to
	// high-value, per sampled window (default 10 per 100 messages).
	MinJobMessages int
	// HitWeight is the flat per-signal weight feeding credibility.
	HitWeight float64
	// DecayFactor is applied to the previous credibility when a sampled
	// window comes back empty. 1.0 disables decay.
	DecayFactor float64
}

func (c EvaluatorConfig) withDefaults() EvaluatorConfig {
	if c.MinJobMessages <= 0 {
		c.MinJobMessages = 10
	}
	if c.HitWeight <= 0 {
		c.HitWeight = 5.0
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		c.DecayFactor = 1.0
	}
	return c
}

// Evaluator aggregates message scores into channel verdicts and owns
// credibility mutation.
type Evaluator struct {
	catalog *catalog.Catalog
	cfg     EvaluatorConfig
	logger  *slog.Logger
}

// NewEvaluator wires the evaluator onto the catalog it feeds.
func NewEvaluator(cat *catalog.Catalog, cfg EvaluatorConfig, logger *slog.Logger) *Evaluator {
	return &Evaluator{catalog: cat, cfg: cfg.withDefaults(), logger: logger}
}

// Evaluate condenses a sampled window of scored messages into a verdict and
// writes the derived credibility back to the catalog. Density is always in
// [0,1] and zero for an empty window. The credibility formula is monotonic in
// density and bounded to [0,10]; channels with no signal hits score zero.
func (e *Evaluator) Evaluate(ctx context.Context, channelID string, scores []domain.SignalScore) (domain.ChannelVerdict, error) {
	total := len(scores)
	jobCount := 0
	for _, s := range scores {
		if s.IsSignal {
			jobCount++
		}
	}

	verdict := domain.ChannelVerdict{
		ChannelID: channelID,
		JobCount:  jobCount,
		Total:     total,
	}

	if total == 0 {
		return verdict, e.decayStale(ctx, channelID, &verdict)
	}

	verdict.Density = float64(jobCount) / float64(total)
	verdict.IsHighValue = jobCount >= e.cfg.MinJobMessages

	credibility := 0.0
	if jobCount > 0 {
		credibility = float64(jobCount)*e.cfg.HitWeight/float64(total) + verdict.Density*3
		if credibility > 10.0 {
			credibility = 10.0
		}
	}
	verdict.Credibility = credibility

	if err := e.catalog.UpdateCredibility(ctx, channelID, credibility); err != nil {
		return domain.ChannelVerdict{}, fmt.Errorf("evaluate %s: %w", channelID, err)
	}

	e.debug("channel evaluated",
		"channel", channelID,
		"jobs", jobCount,
		"total", total,
		"density", verdict.Density,
		"high_value", verdict.IsHighValue,
	)
	return verdict, nil
}

// decayStale optionally shrinks credibility for channels whose window came
// back empty. Disabled unless DecayFactor < 1.
func (e *Evaluator) decayStale(ctx context.Context, channelID string, verdict *domain.ChannelVerdict) error {
	ch, err := e.catalog.ByID(ctx, channelID)
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", channelID, err)
	}
	if ch == nil {
		return nil
	}
	verdict.Credibility = ch.CredibilityScore

	if e.cfg.DecayFactor >= 1 {
		return nil
	}
	decayed := ch.CredibilityScore * e.cfg.DecayFactor
	verdict.Credibility = decayed
	if err := e.catalog.UpdateCredibility(ctx, channelID, decayed); err != nil {
		return fmt.Errorf("decay %s: %w", channelID, err)
	}
	return nil
}

func (e *Evaluator) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
