package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dmschema/migrate/internal/config"
	"github.com/dmschema/migrate/internal/driver"
	"github.com/dmschema/migrate/internal/engine"
)

var (
	unapplyEnvironment string
	unapplyTarget      string
	unapplySchema      string
	unapplyForce       bool
)

func init() {
	rootCmd.AddCommand(unapplyCmd)
	unapplyCmd.Flags().StringVar(&unapplyEnvironment, "environment", "", "named environment from migrate.toml")
	unapplyCmd.Flags().StringVar(&unapplyTarget, "target", "", "target database URL (overrides the environment)")
	unapplyCmd.Flags().StringVar(&unapplySchema, "schema", "", "path to the previous datamodel JSON document")
	unapplyCmd.Flags().BoolVar(&unapplyForce, "force", false, "proceed past destructive-change warnings")
}

var unapplyCmd = &cobra.Command{
	Use:   "unapply",
	Short: "Migrate the database back down to a previous datamodel",
	Run:   runUnapply,
}

func runUnapply(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		fail("loading config: %v", err)
	}
	env, err := config.ResolveEnvironment(cfg, unapplyEnvironment)
	if err != nil {
		printConfigNotFound()
		fail("resolving environment: %v", err)
	}

	connStr := unapplyTarget
	if connStr == "" {
		connStr = env.DatabaseURL
	}

	if unapplySchema == "" {
		fail("unapply requires --schema pointing at the previous datamodel document")
	}

	previous, err := config.LoadDatamodel(unapplySchema)
	if err != nil {
		fail("loading datamodel: %v", err)
	}

	db, dialect, err := driver.Open(ctx, connStr)
	if err != nil {
		fail("connecting to %s: %v", env.Name, err)
	}
	defer db.Close()

	eng := engine.New(db, dialect)
	result, err := eng.UnapplyMigration(ctx, *previous, unapplyForce)
	if err != nil {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(os.Stderr, "Unapply failed: %v\n", err)
		if result != nil {
			for _, w := range result.Report.Warnings {
				fmt.Fprintf(os.Stderr, "  - %s\n", w.Message)
			}
			for _, u := range result.Report.Unexecutable {
				fmt.Fprintf(os.Stderr, "  - %s\n", u.Message)
			}
		}
		os.Exit(1)
	}

	green := color.New(color.FgGreen, color.Bold)
	if !result.Applied {
		_, _ = green.Fprintln(os.Stderr, "No changes — database already matches the previous datamodel.")
		return
	}
	_, _ = green.Fprintf(os.Stderr, "Rolled back successfully (revision %d).\n", result.Revision)
}
