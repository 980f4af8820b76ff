package usecase

import (
	"context"
	"log/slog"

	"ChannelPilot/internal/ports"
)

// Scheduler wires the cron-like driver with the harvest workflow.
type Scheduler struct {
	driver  ports.Scheduler
	harvest *Harvest
	logger  *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring harvest cycles.
func NewScheduler(driver ports.Scheduler, harvest *Harvest, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, harvest: harvest, logger: logger}
}

// Start registers the harvest cycle with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.harvest == nil {
		return nil
	}

	job := func() {
		if _, err := s.harvest.RunCycle(ctx); err != nil && s.logger != nil {
			s.logger.Error("harvest cycle failed", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
