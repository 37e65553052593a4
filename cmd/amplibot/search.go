package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/abdulachik/amplibot/internal/app"
	"github.com/abdulachik/amplibot/internal/config"
	"github.com/abdulachik/amplibot/internal/engage"
	"github.com/abdulachik/amplibot/internal/model"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run one search without acting",
	Long: `Search once from the stored watermark and print each post with its
filter decision and resolved target. Nothing is retweeted, liked, or followed
and the watermark is not advanced.`,
	RunE: runSearch,
}

var searchFlags struct {
	query      string
	maxResults int
}

func init() {
	searchCmd.Flags().StringVar(&searchFlags.query, "query", "", "search query (overrides SEARCH_QUERY)")
	searchCmd.Flags().IntVar(&searchFlags.maxResults, "max-results", 0, "posts to fetch, 1-100 (overrides MAX_RESULTS_PER_SEARCH)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("query") {
		cfg.Query = searchFlags.query
	}
	if cmd.Flags().Changed("max-results") {
		cfg.MaxResults = searchFlags.maxResults
	}

	if err := cfg.ValidateForSearch(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer a.Close()

	// Without user context the self checks are skipped
	botID := ""
	if cfg.HasUserContext() {
		me, err := a.Client.Me(ctx)
		if err != nil {
			slog.Warn("failed to look up account, self checks disabled", "error", err)
		} else {
			botID = me.ID
		}
	}

	since := a.Ledger.Watermark()
	batch, err := a.Client.Search(ctx, cfg.Query, since, cfg.MaxResults)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if batch == nil || len(batch.Posts) == 0 {
		fmt.Printf("No new posts for %q since %q\n", cfg.Query, since)
		return nil
	}

	skip := color.New(color.FgYellow).SprintFunc()
	act := color.New(color.FgGreen).SprintFunc()

	fmt.Printf("=== %d posts for %q since %q ===\n\n", len(batch.Posts), cfg.Query, since)
	for _, post := range batch.Posts {
		username := batch.Username(post.AuthorID, engage.UnknownUser)
		fmt.Printf("%s @%s [%s]\n", post.ID, username, post.Lang)
		fmt.Printf("  %s\n", model.Preview(post.Text, 150))

		if botID != "" && post.AuthorID == botID {
			fmt.Printf("  %s\n\n", skip("skip: self-authored"))
			continue
		}
		if res := a.Filter.Check(post.Text, username, post.Lang); res.Skip {
			fmt.Printf("  %s\n\n", skip(fmt.Sprintf("filtered: %s (%s)", res.Rule, res.Detail)))
			continue
		}

		target := engage.Resolve(post, batch)
		if target.Post.ID != post.ID {
			fmt.Printf("  target: original %s by @%s\n", target.Post.ID, target.Post.AuthorUsername)
		} else if target.Unresolved {
			fmt.Printf("  target: retweet %s (original not in response)\n", post.ID)
		}

		var plan []string
		for _, kind := range model.Kinds {
			id := target.Post.ID
			if kind == model.KindFollow {
				id = target.Post.AuthorID
			}
			switch {
			case !cfg.Enabled()[kind]:
				plan = append(plan, string(kind)+": disabled")
			case kind == model.KindRetweet && target.AlreadyReshare:
				plan = append(plan, string(kind)+": already a retweet")
			case a.Ledger.Contains(kind, id):
				plan = append(plan, string(kind)+": duplicate")
			default:
				plan = append(plan, act(string(kind)))
			}
		}
		fmt.Printf("  %s\n\n", strings.Join(plan, ", "))
	}

	return nil
}
