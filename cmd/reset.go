package cmd

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dmschema/migrate/internal/config"
	"github.com/dmschema/migrate/internal/driver"
	"github.com/dmschema/migrate/internal/engine"
)

var (
	resetEnvironment string
	resetTarget      string
	resetYes         bool
)

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().StringVar(&resetEnvironment, "environment", "", "named environment from migrate.toml")
	resetCmd.Flags().StringVar(&resetTarget, "target", "", "target database URL (overrides the environment)")
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "skip the confirmation prompt")
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every table in the database and clear the migration log",
	Run:   runReset,
}

func runReset(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		fail("loading config: %v", err)
	}
	env, err := config.ResolveEnvironment(cfg, resetEnvironment)
	if err != nil {
		printConfigNotFound()
		fail("resolving environment: %v", err)
	}

	connStr := resetTarget
	if connStr == "" {
		connStr = env.DatabaseURL
	}

	if !resetYes {
		yellow := color.New(color.FgYellow, color.Bold)
		_, _ = yellow.Fprintf(os.Stderr, "This drops every table in %s. Re-run with --yes to confirm.\n", env.Name)
		return
	}

	db, dialect, err := driver.Open(ctx, connStr)
	if err != nil {
		fail("connecting to %s: %v", env.Name, err)
	}
	defer db.Close()

	eng := engine.New(db, dialect)
	if err := eng.Reset(ctx); err != nil {
		fail("resetting %s: %v", env.Name, err)
	}

	_, _ = color.New(color.FgGreen, color.Bold).Fprintln(os.Stderr, "Database reset.")
}
