package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/abdulachik/amplibot/internal/app"
	"github.com/abdulachik/amplibot/internal/config"
	"github.com/abdulachik/amplibot/internal/db"
	"github.com/abdulachik/amplibot/internal/model"
	"github.com/abdulachik/amplibot/internal/state"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show state statistics",
	Long:  `Display the number of recorded retweets, likes, and follows and the search watermark.`,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return printStats(ctx, os.Stdout, cfg.StateBackend, store)
}

// printStats writes id-set sizes and the watermark. SQLite counts come
// straight from the action_ids table.
func printStats(ctx context.Context, w io.Writer, backend string, store state.Store) error {
	ledger, err := state.Load(ctx, store)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	fmt.Fprintln(w, "=== Amplibot Statistics ===")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Backend: %s\n", backend)

	count := func(kind model.Kind) (int64, error) {
		return int64(ledger.Len(kind)), nil
	}
	switch s := store.(type) {
	case *state.FileStore:
		fmt.Fprintf(w, "Directory: %s\n", s.Dir())
	case *db.Store:
		count = func(kind model.Kind) (int64, error) {
			return s.CountActionIDs(ctx, string(kind))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Actions:")
	for _, kind := range model.Kinds {
		n, err := count(kind)
		if err != nil {
			return fmt.Errorf("count %s ids: %w", kind, err)
		}
		fmt.Fprintf(w, "  %s: %d\n", kind, n)
	}
	fmt.Fprintln(w)

	watermark := ledger.Watermark()
	if watermark == "" {
		watermark = "(none)"
	}
	fmt.Fprintf(w, "Watermark: %s\n", watermark)

	return nil
}
