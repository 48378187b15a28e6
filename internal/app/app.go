package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/averto"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/config"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/detector"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/domain"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/infrastructure/channels"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/infrastructure/cooldown"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/infrastructure/httpclient"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/infrastructure/llm"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/infrastructure/mediawiki"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/infrastructure/refcorpus"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/infrastructure/scheduler"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/infrastructure/storage"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/judgment"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/logging"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/maintenance"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/notify"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/ports"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/sensitive"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/typo"
	"github.com/Les-dev-de-bot-vikidiens/BotCelian/internal/usecase"
)

const (
	cooldownCapacity = 10_000
	// a run in progress may still be saving pages when watch mode stops
	stopTimeout = 5 * time.Minute
)

// Feature describes one optional component and whether it is wired.
type Feature struct {
	Name    string
	Enabled bool
	Detail  string
}

// Application wires configs to use cases and owns their lifetime.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	orchestrator *usecase.Orchestrator
	features     []Feature
	closers      []func() error
}

// New builds every component once. Close releases pools and connections.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	wikiHTTP := httpclient.New(cfg.Wiki.HTTPTimeout,
		httpclient.WithCookies(),
		httpclient.WithLogger(logging.Component(baseLogger, "http.wiki")))
	wiki := mediawiki.NewClient(mediawiki.Config{
		APIURL:   cfg.Wiki.APIURL,
		Username: cfg.Wiki.Username,
		Password: cfg.Wiki.Password,
	}, wikiHTTP, logging.Component(baseLogger, "mediawiki"))
	source := mediawiki.NewRecentNewPages(wiki, mediawiki.RecentOptions{
		Lookback:   cfg.Run.Lookback,
		Limit:      cfg.Run.Limit,
		Namespaces: cfg.Run.Namespaces,
	}, logging.Component(baseLogger, "recent"))

	chain, err := a.buildDetectors(cfg, baseLogger)
	if err != nil {
		return nil, err
	}

	notifier, err := a.buildNotifier(ctx, cfg, baseLogger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	store, err := OpenStorage(ctx, cfg, baseLogger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	a.features = append(a.features, Feature{Name: "storage", Enabled: true, Detail: cfg.Storage.Backend})

	var typography *typo.Engine
	if cfg.Typography.Enabled {
		typography = typo.NewEngine(typo.Options{
			MinRatio:  cfg.Typography.MinRatio,
			MaxRatio:  cfg.Typography.MaxRatio,
			MaxPasses: cfg.Typography.MaxPasses,
		})
	}
	a.features = append(a.features, Feature{Name: "typography", Enabled: typography != nil})

	a.orchestrator = usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Wiki:        wiki,
		Source:      source,
		Processed:   store.Processed,
		Checkpoints: store.Checkpoints,
		Events:      store.Events,
		Notifier:    notifier,
		Detectors:   chain,
		Heuristic:   maintenance.NewHeuristic(cfg.Maintenance.MinStubWords),
		Typography:  typography,
		Templates:   wiki,
		Logger:      logging.Component(baseLogger, "orchestrator"),
	}, usecase.Options{
		DryRun:           cfg.Run.DryRun,
		AutoDeletion:     cfg.Run.AutoDeletion,
		MaxEdits:         cfg.Run.MaxEdits,
		BotName:          cfg.Wiki.BotName,
		LongRunThreshold: cfg.Run.LongRunThreshold,
		SaveTimeout:      cfg.Run.SaveTimeout,
		WikiReport:       cfg.Run.WikiReport,
		ReportPage:       cfg.Run.ReportPage,
		StopPage:         cfg.Run.StopPage,
	})
	return a, nil
}

func (a *Application) buildDetectors(cfg config.Config, logger *slog.Logger) ([]detector.Detector, error) {
	table := sensitive.DefaultTable()
	if cfg.Sensitive.TermsFile != "" {
		loaded, err := sensitive.LoadTable(cfg.Sensitive.TermsFile)
		if err != nil {
			return nil, err
		}
		table = loaded
	}

	refHTTP := httpclient.New(cfg.Wiki.HTTPTimeout, httpclient.WithLogger(logging.Component(logger, "http.refcorpus")))
	sources := make([]refcorpus.Source, 0, len(cfg.Averto.Sources))
	for _, s := range cfg.Averto.Sources {
		sources = append(sources, refcorpus.Source{Name: s.Name, APIURL: s.APIURL, IntroOnly: s.IntroOnly})
	}

	registry := detector.NewRegistry()
	registry.Register(sensitive.NewMatcher(table, cfg.Sensitive.Threshold, logging.Component(logger, "sensitive")))
	registry.Register(averto.New(refcorpus.Build(sources, refHTTP), averto.Options{
		BaseThreshold: cfg.Averto.BaseThreshold,
		HighThreshold: cfg.Averto.HighThreshold,
		MinTextLength: cfg.Averto.MinTextLength,
		MaxRunes:      cfg.Averto.MaxRunes,
	}, logging.Component(logger, "averto")))

	if cfg.Model.Enabled() {
		client := llm.NewMistralClient(llm.Config{
			Endpoint:    cfg.Model.Endpoint,
			Model:       cfg.Model.Model,
			APIKey:      cfg.Model.APIKey,
			Temperature: cfg.Model.Temperature,
		}, httpclient.New(cfg.Model.AttemptTimeout,
			httpclient.WithMaxRetries(0),
			httpclient.WithLogger(logging.Component(logger, "http.model"))))
		registry.Register(judgment.New(client, judgment.Options{
			MinInterval:    cfg.Model.MinInterval,
			MaxAttempts:    cfg.Model.MaxAttempts,
			BaseBackoff:    cfg.Model.BaseBackoff,
			AttemptTimeout: cfg.Model.AttemptTimeout,
			SampleRunes:    cfg.Model.SampleRunes,
		}, logging.Component(logger, "judgment")))
	}
	a.features = append(a.features,
		Feature{Name: "sensitive", Enabled: true, Detail: fmt.Sprintf("threshold %d", cfg.Sensitive.Threshold)},
		Feature{Name: "averto", Enabled: true, Detail: fmt.Sprintf("%d sources", len(sources))},
		Feature{Name: "judgment", Enabled: cfg.Model.Enabled(), Detail: cfg.Model.Model},
	)

	chain, err := registry.Chain(cfg.Detectors.Order, "judgment")
	if err != nil {
		return nil, fmt.Errorf("build detector chain: %w", err)
	}
	return chain, nil
}

func (a *Application) buildNotifier(ctx context.Context, cfg config.Config, logger *slog.Logger) (*notify.Service, error) {
	n := cfg.Notifications

	var store ports.CooldownStore
	if n.RedisURL != "" {
		redisStore, err := cooldown.NewRedisStore(ctx, n.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, redisStore.Close)
		store = redisStore
		a.features = append(a.features, Feature{Name: "cooldown", Enabled: true, Detail: "redis"})
	} else {
		store = cooldown.NewMemoryStore(cooldownCapacity, max(n.PageCooldown, n.MessageCooldown))
		a.features = append(a.features, Feature{Name: "cooldown", Enabled: true, Detail: "memory"})
	}

	alertHTTP := httpclient.New(n.ChannelTimeout,
		httpclient.WithMaxRetries(1),
		httpclient.WithLogger(logging.Component(logger, "http.alerts")))
	var chs []ports.AlertChannel
	if n.Discord.Webhook != "" {
		chs = append(chs, channels.NewDiscord(alertHTTP, n.Discord.Webhook, n.Discord.Mentions))
	}
	if n.Ntfy.Topic != "" {
		chs = append(chs, channels.NewNtfy(alertHTTP, n.Ntfy.Server, n.Ntfy.Topic))
	}
	if n.Ntfy.SITopic != "" {
		chs = append(chs, channels.NewNtfy(alertHTTP, n.Ntfy.Server, n.Ntfy.SITopic, domain.CategoryDeletion))
	}
	if n.Pushover.Token != "" && n.Pushover.User != "" {
		chs = append(chs, channels.NewPushover(alertHTTP, n.Pushover.Token, n.Pushover.User))
	}
	a.features = append(a.features,
		Feature{Name: "discord", Enabled: n.Discord.Webhook != ""},
		Feature{Name: "ntfy", Enabled: n.Ntfy.Topic != "", Detail: n.Ntfy.Topic},
		Feature{Name: "ntfy-si", Enabled: n.Ntfy.SITopic != "", Detail: n.Ntfy.SITopic},
		Feature{Name: "pushover", Enabled: n.Pushover.Token != "" && n.Pushover.User != ""},
	)

	return notify.New(notify.Deps{
		Channels:  chs,
		Fallback:  channels.NewFileSink(n.FallbackFile),
		Cooldowns: store,
		Logger:    logging.Component(logger, "notify"),
	}, notify.Options{
		WikiBase:        cfg.Wiki.BaseURL,
		PageCooldown:    n.PageCooldown,
		MessageCooldown: n.MessageCooldown,
		ChannelTimeout:  n.ChannelTimeout,
	}), nil
}

// Storage groups the persistence ports of one backend.
type Storage struct {
	Processed   ports.ProcessedSet
	Events      ports.EventLog
	Checkpoints ports.Checkpoints
	Close       func() error
}

// OpenStorage opens the processed set, the event log and the checkpoints
// of the configured backend.
func OpenStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (Storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		repo, err := storage.OpenPostgres(ctx, cfg.Storage.DSN)
		if err != nil {
			return Storage{}, err
		}
		return Storage{Processed: repo, Events: repo, Checkpoints: repo, Close: repo.Close}, nil
	case config.BackendFile, "":
		set, err := storage.OpenProcessedSet(cfg.Storage.StateFile)
		if err != nil {
			return Storage{}, err
		}
		checkpoints, err := storage.OpenCheckpoints(cfg.Storage.CheckpointFile)
		if err != nil {
			return Storage{}, err
		}
		return Storage{
			Processed:   set,
			Events:      storage.NewFileEventLog(cfg.Storage.EventDir, logging.Component(logger, "events")),
			Checkpoints: checkpoints,
			Close:       func() error { return nil },
		}, nil
	default:
		return Storage{}, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Features lists optional components and whether they are wired.
func (a *Application) Features() []Feature {
	return a.features
}

// Run performs a single moderation pass.
func (a *Application) Run(ctx context.Context) (usecase.RunReport, error) {
	return a.orchestrator.Run(ctx)
}

// Watch runs a pass every interval until ctx is cancelled or a run fails
// fatally. The pass in progress is allowed to finish.
func (a *Application) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = a.cfg.Run.Interval
	}
	sched := usecase.NewScheduler(scheduler.NewIntervalScheduler(interval), a.orchestrator, logging.Component(a.logger, "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-sched.Fatal():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		a.logger.Warn("scheduler did not stop cleanly", "error", err)
	}
	return runErr
}

// Close releases the resources opened by New.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
