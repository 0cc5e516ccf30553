package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dmschema/migrate/internal/config"
	"github.com/dmschema/migrate/internal/datamodel"
	"github.com/dmschema/migrate/internal/driver"
	"github.com/dmschema/migrate/internal/engine"
)

var (
	applyEnvironment string
	applyTarget      string
	applySchema      string
	applySQLSchema   string
	applyName        string
	applyForce       bool
)

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().StringVar(&applyEnvironment, "environment", "", "named environment from migrate.toml")
	applyCmd.Flags().StringVar(&applyTarget, "target", "", "target database URL (overrides the environment)")
	applyCmd.Flags().StringVar(&applySchema, "schema", "", "path to the desired datamodel JSON document")
	applyCmd.Flags().StringVar(&applySQLSchema, "sql-schema", "", "path to a CREATE TABLE .sql dump (alternative to --schema)")
	applyCmd.Flags().StringVar(&applyName, "name", "migration", "name recorded in the migration log")
	applyCmd.Flags().BoolVar(&applyForce, "force", false, "proceed past destructive-change warnings")
}

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the migration needed to reach the desired datamodel",
	Run:   runApply,
}

func runApply(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		fail("loading config: %v", err)
	}
	env, err := config.ResolveEnvironment(cfg, applyEnvironment)
	if err != nil {
		printConfigNotFound()
		fail("resolving environment: %v", err)
	}

	connStr := applyTarget
	if connStr == "" {
		connStr = env.DatabaseURL
	}

	var dm *datamodel.Datamodel
	switch {
	case applySQLSchema != "":
		dm, err = config.LoadSQLSchema(applySQLSchema)
	default:
		schemaPath := applySchema
		if schemaPath == "" {
			schemaPath = env.SchemaPath
		}
		if schemaPath == "" {
			fail("no datamodel document configured; pass --schema, --sql-schema, or set schema_path in migrate.toml")
		}
		dm, err = config.LoadDatamodel(schemaPath)
	}
	if err != nil {
		fail("loading datamodel: %v", err)
	}

	db, dialect, err := driver.Open(ctx, connStr)
	if err != nil {
		fail("connecting to %s: %v", env.Name, err)
	}
	defer db.Close()

	eng := engine.New(db, dialect)
	result, err := eng.ApplyMigration(ctx, applyName, *dm, applyForce)
	if err != nil {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(os.Stderr, "Migration failed: %v\n", err)
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
		_, _ = green.Fprintln(os.Stderr, "No changes — database already matches the datamodel.")
		return
	}
	_, _ = green.Fprintf(os.Stderr, "Migration applied successfully (revision %d).\n", result.Revision)
}
