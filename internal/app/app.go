package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"ChannelPilot/internal/assignment"
	"ChannelPilot/internal/catalog"
	"ChannelPilot/internal/config"
	"ChannelPilot/internal/domain"
	"ChannelPilot/internal/infrastructure/discovery"
	"ChannelPilot/internal/infrastructure/llm"
	"ChannelPilot/internal/infrastructure/report"
	"ChannelPilot/internal/infrastructure/scheduler"
	"ChannelPilot/internal/infrastructure/telegram"
	"ChannelPilot/internal/logging"
	"ChannelPilot/internal/ports"
	"ChannelPilot/internal/quota"
	"ChannelPilot/internal/signal"
	"ChannelPilot/internal/storage"
	"ChannelPilot/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	store     *storage.Store
	catalog   *catalog.Catalog
	harvest   *usecase.Harvest
	scheduler *usecase.Scheduler
	logger    *slog.Logger
}

// New builds a runnable application instance over an opened database.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store := storage.New(db)

	for _, acc := range cfg.Accounts {
		status := domain.AccountStatus(acc.Status)
		if status == "" {
			status = domain.AccountActive
		}
		account := domain.Account{ID: acc.ID, DisplayName: acc.DisplayName, Status: status}
		if err := store.UpsertAccount(ctx, account); err != nil {
			return nil, fmt.Errorf("register account %s: %w", acc.ID, err)
		}
	}

	cat := catalog.New(store, baseLogger.With("component", "catalog"))
	tracker := quota.New(store, cfg.Quota.DailyLimit)
	engine := assignment.New(store, cat, tracker, baseLogger.With("component", "engine"))

	evaluator := signal.NewEvaluator(cat, signal.EvaluatorConfig{
		MinJobMessages: cfg.Evaluation.MinJobMessages,
		HitWeight:      cfg.Evaluation.HitWeight,
		DecayFactor:    cfg.Evaluation.DecayFactor,
	}, baseLogger.With("component", "evaluator"))

	var classifier ports.Classifier = signal.KeywordClassifier{}
	if cfg.Classifier.Strategy == "llm" && cfg.Classifier.APIKey != "" {
		classifier = llm.NewClassifier(cfg.Classifier)
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	var source ports.DiscoverySource
	if cfg.Discovery.SeedFile != "" {
		source = discovery.NewFileSource(cfg.Discovery.SeedFile, baseLogger.With("component", "discovery"))
	}

	client := telegram.NewPreviewClient("", nil, baseLogger.With("component", "client"))

	harvest := usecase.NewHarvest(usecase.HarvestDeps{
		Store:      store,
		Catalog:    cat,
		Engine:     engine,
		Client:     client,
		Classifier: classifier,
		Evaluator:  evaluator,
		Discovery:  source,
		Notifier:   notifier,
		SampleSize: cfg.Evaluation.SampleSize,
		Logger:     baseLogger.With("component", "harvest"),
	})

	driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location())

	return &Application{
		cfg:       cfg,
		store:     store,
		catalog:   cat,
		harvest:   harvest,
		scheduler: usecase.NewScheduler(driver, harvest, baseLogger.With("component", "scheduler")),
		logger:    baseLogger,
	}, nil
}

// Run performs a single harvest cycle.
func (a *Application) Run(ctx context.Context) error {
	summaries, err := a.harvest.RunCycle(ctx)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		a.logger.Info("harvest cycle done",
			"account", s.AccountID,
			"bound", s.Bound,
			"skipped", s.Skipped,
			"failed", s.Failed,
			"high_value", s.HighValue,
		)
	}
	return nil
}

// Start begins the recurring schedule; cycles run until ctx is cancelled.
func (a *Application) Start(ctx context.Context) error {
	return a.scheduler.Start(ctx)
}

// Stop tears the schedule down.
func (a *Application) Stop(ctx context.Context) error {
	return a.scheduler.Stop(ctx)
}

// ExportHighValue writes the high-value channel report as CSV.
func (a *Application) ExportHighValue(ctx context.Context, w io.Writer) error {
	channels, err := a.catalog.ListHighValue(ctx, a.cfg.Evaluation.HighValueThreshold)
	if err != nil {
		return err
	}
	return report.WriteHighValueCSV(w, channels)
}

// Close releases the database handle.
func (a *Application) Close() error {
	return a.store.DB().Close()
}
