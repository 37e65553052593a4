package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abdulachik/amplibot/internal/app"
	"github.com/abdulachik/amplibot/internal/config"
	"github.com/abdulachik/amplibot/internal/model"
	"github.com/abdulachik/amplibot/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engagement loop",
	Long: `Run the poll loop: search for new posts, filter them, and retweet,
like, and follow under per-action cooldowns until interrupted.`,
	RunE: runServe,
}

var serveFlags struct {
	query      string
	maxResults int
	retweet    bool
	like       bool
	follow     bool
	languages  string
	keywords   string
	blocklist  string
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.query, "query", "", "search query (overrides SEARCH_QUERY)")
	f.IntVar(&serveFlags.maxResults, "max-results", 0, "posts per search, 1-100 (overrides MAX_RESULTS_PER_SEARCH)")
	f.BoolVar(&serveFlags.retweet, "retweet", true, "retweet matching posts")
	f.BoolVar(&serveFlags.like, "like", true, "like matching posts")
	f.BoolVar(&serveFlags.follow, "follow", true, "follow authors of matching posts")
	f.StringVar(&serveFlags.languages, "languages", "", `comma-separated language allow-list, "-" to disable`)
	f.StringVar(&serveFlags.keywords, "keywords", "", `comma-separated negative keywords, "-" to disable`)
	f.StringVar(&serveFlags.blocklist, "blocklist", "", `comma-separated blocked usernames, "-" to disable`)

	rootCmd.AddCommand(serveCmd)
}

// applyServeFlags overrides cfg with the flags set on cmd.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("query") {
		cfg.Query = serveFlags.query
	}
	if f.Changed("max-results") {
		cfg.MaxResults = serveFlags.maxResults
	}
	if f.Changed("retweet") {
		cfg.PerformRetweet = serveFlags.retweet
	}
	if f.Changed("like") {
		cfg.PerformLike = serveFlags.like
	}
	if f.Changed("follow") {
		cfg.PerformFollow = serveFlags.follow
	}
	if f.Changed("languages") {
		cfg.TargetLanguages = flagList(serveFlags.languages)
	}
	if f.Changed("keywords") {
		cfg.NegativeKeywords = flagList(serveFlags.keywords)
	}
	if f.Changed("blocklist") {
		cfg.UserBlocklist = flagList(serveFlags.blocklist)
	}
}

func flagList(v string) []string {
	if v == "-" {
		return nil
	}
	return config.ParseList(v)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyServeFlags(cmd, cfg)

	if err := cfg.ValidateForServe(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if cfg.IsBroadQuery() {
		slog.Warn("query is a single word without # or @, results may be broad", "query", cfg.Query)
	}

	slog.SetDefault(slog.Default().With("run_id", uuid.NewString()))

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer a.Close()

	me, err := a.Client.Me(ctx)
	if err != nil {
		a.Health.SetUnhealthy(scheduler.ComponentAuth, err)
		return fmt.Errorf("verify credentials: %w", err)
	}
	a.Health.SetHealthy(scheduler.ComponentAuth, "@"+me.Username)

	a.Metrics.StartServer(ctx, cfg.MetricsAddr, a.Health.IsOverallHealthy)

	slog.Info("starting amplibot",
		"account", me.Username,
		"account_id", me.ID,
		"backend", cfg.StateBackend,
		"retweet", cfg.PerformRetweet,
		"like", cfg.PerformLike,
		"follow", cfg.PerformFollow,
		"languages", a.Filter.Languages(),
		"negative_keywords", len(cfg.NegativeKeywords),
		"blocked_users", len(cfg.UserBlocklist),
		"retweeted", a.Ledger.Len(model.KindRetweet),
		"liked", a.Ledger.Len(model.KindLike),
		"followed", a.Ledger.Len(model.KindFollow),
	)

	sched := a.Scheduler(me.ID, scheduler.Countdown(os.Stderr))
	if err := sched.Run(ctx); err != nil {
		return err
	}

	slog.Info("shutting down")
	return nil
}
