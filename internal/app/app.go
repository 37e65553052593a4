package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abdulachik/amplibot/internal/config"
	"github.com/abdulachik/amplibot/internal/cooldown"
	"github.com/abdulachik/amplibot/internal/db"
	"github.com/abdulachik/amplibot/internal/engage"
	"github.com/abdulachik/amplibot/internal/filter"
	"github.com/abdulachik/amplibot/internal/metrics"
	"github.com/abdulachik/amplibot/internal/notify"
	"github.com/abdulachik/amplibot/internal/scheduler"
	"github.com/abdulachik/amplibot/internal/state"
	"github.com/abdulachik/amplibot/internal/twitter"
)

// App is the main application container holding all dependencies.
type App struct {
	Config   *config.Config
	Store    state.Store
	Ledger   *state.Ledger
	Client   *twitter.Client
	Filter   *filter.Filter
	Metrics  *metrics.Metrics
	Health   *scheduler.Health
	Notifier notify.Notifier
}

// New creates a new application instance with the store loaded and the X
// client configured. The engine and scheduler are built later by Scheduler,
// once the bot's own account id is known.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ledger, err := state.Load(ctx, store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}

	m := metrics.New()

	client := NewClient(cfg, m.IncAPIRetry)

	var notifier notify.Notifier = notify.NewLogNotifier()
	if cfg.NotifyWebhookURL != "" {
		notifier = notify.NewWebhookNotifier(notify.WebhookConfig{URL: cfg.NotifyWebhookURL})
	}

	return &App{
		Config: cfg,
		Store:  store,
		Ledger: ledger,
		Client: client,
		Filter: filter.New(filter.Config{
			Languages:        cfg.TargetLanguages,
			NegativeKeywords: cfg.NegativeKeywords,
			BlockedUsers:     cfg.UserBlocklist,
		}),
		Metrics:  m,
		Health:   scheduler.NewHealth(),
		Notifier: notifier,
	}, nil
}

// NewClient creates the X API client from configuration.
func NewClient(cfg *config.Config, onRetry func(endpoint string)) *twitter.Client {
	return twitter.New(twitter.Config{
		BaseURL:           cfg.APIBaseURL,
		BearerToken:       cfg.BearerToken,
		ConsumerKey:       cfg.ConsumerKey,
		ConsumerSecret:    cfg.ConsumerSecret,
		AccessToken:       cfg.AccessToken,
		AccessTokenSecret: cfg.AccessTokenSecret,
		RPS:               cfg.APIRPS,
		Burst:             cfg.APIBurst,
		MaxRetries:        cfg.APIMaxRetries,
		OnRetry:           onRetry,
	})
}

// OpenStore opens the state backend selected by STATE_BACKEND.
func OpenStore(ctx context.Context, cfg *config.Config) (state.Store, error) {
	switch cfg.StateBackend {
	case config.BackendFile, "":
		slog.Debug("opening file state", "dir", cfg.StateDir)
		store, err := state.NewFileStore(cfg.StateDir)
		if err != nil {
			return nil, fmt.Errorf("open file state: %w", err)
		}
		return store, nil

	case config.BackendSQLite:
		slog.Debug("connecting to database", "path", cfg.DatabasePath)
		store, err := db.NewStore(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return store, nil

	case config.BackendLevelDB:
		slog.Debug("opening leveldb state", "path", cfg.LevelDBPath)
		store, err := state.NewLevelDBStore(cfg.LevelDBPath)
		if err != nil {
			return nil, fmt.Errorf("open leveldb state: %w", err)
		}
		return store, nil

	case config.BackendMemory:
		return state.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
}

// Engine builds the action engine for the bot account botID.
func (a *App) Engine(botID string) *engage.Engine {
	return engage.New(engage.Config{
		Enabled:   a.Config.Enabled(),
		BotID:     botID,
		Filter:    a.Filter,
		Cooldowns: cooldown.New(a.Config.Cooldowns()),
		Ledger:    a.Ledger,
		Actor:     a.Client,
		Metrics:   a.Metrics,
	})
}

// Scheduler builds the poll loop around the engine for botID.
func (a *App) Scheduler(botID string, sleep scheduler.Sleeper) *scheduler.Scheduler {
	cfg := a.Config
	return scheduler.New(scheduler.Config{
		Query:      cfg.Query,
		MaxResults: cfg.MaxResults,
		Intervals: scheduler.Intervals{
			Success:         cfg.SearchIntervalSuccess,
			NoResults:       cfg.SearchIntervalNoResults,
			AfterAction:     cfg.SleepBetweenActions,
			AfterNoAction:   cfg.SleepIfNoActions,
			APIError:        cfg.SleepAfterAPIError,
			RateLimitBuffer: cfg.RateLimitBuffer,
			CriticalError:   cfg.SleepAfterCriticalError,
		},
		Searcher:  a.Client,
		Processor: a.Engine(botID),
		Ledger:    a.Ledger,
		Notifier:  a.Notifier,
		Sleep:     sleep,
		Metrics:   a.Metrics,
		Health:    a.Health,
	})
}

// Close flushes the watermark and closes the store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	if a.Ledger != nil {
		if err := a.Ledger.Flush(context.Background()); err != nil {
			slog.Error("failed to flush state", "error", err)
		}
	}
	return a.Store.Close()
}
