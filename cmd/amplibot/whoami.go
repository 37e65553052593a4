package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdulachik/amplibot/internal/app"
	"github.com/abdulachik/amplibot/internal/config"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the authenticated account",
	Long:  `Verify the OAuth 1.0a user credentials and print the account they belong to.`,
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.ValidateForWhoami(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	me, err := app.NewClient(cfg, nil).Me(ctx)
	if err != nil {
		return fmt.Errorf("verify credentials: %w", err)
	}

	fmt.Printf("Authenticated as @%s (%s)\n", me.Username, me.Name)
	fmt.Printf("  ID: %s\n", me.ID)
	return nil
}
