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
	inferEnvironment string
	inferTarget      string
	inferSchema      string
	inferSQLSchema   string
)

func init() {
	rootCmd.AddCommand(inferCmd)
	inferCmd.Flags().StringVar(&inferEnvironment, "environment", "", "named environment from migrate.toml")
	inferCmd.Flags().StringVar(&inferTarget, "target", "", "target database URL (overrides the environment)")
	inferCmd.Flags().StringVar(&inferSchema, "schema", "", "path to the desired datamodel JSON document")
	inferCmd.Flags().StringVar(&inferSQLSchema, "sql-schema", "", "path to a CREATE TABLE .sql dump (alternative to --schema)")
}

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Compute the migration steps needed to reach the desired datamodel",
	Run:   runInfer,
}

func runInfer(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		fail("loading config: %v", err)
	}
	env, err := config.ResolveEnvironment(cfg, inferEnvironment)
	if err != nil {
		printConfigNotFound()
		fail("resolving environment: %v", err)
	}

	connStr := inferTarget
	if connStr == "" {
		connStr = env.DatabaseURL
	}

	var dm *datamodel.Datamodel
	switch {
	case inferSQLSchema != "":
		dm, err = config.LoadSQLSchema(inferSQLSchema)
	default:
		schemaPath := inferSchema
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
	result, err := eng.InferMigrationSteps(ctx, *dm, nil)
	if err != nil {
		fail("inferring migration steps: %v", err)
	}

	if len(result.Steps) == 0 {
		_, _ = color.New(color.FgGreen).Fprintln(os.Stderr, "No changes — database already matches the datamodel.")
		return
	}

	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Fprintf(os.Stderr, "Inferred %d migration step(s):\n\n", len(result.Steps))
	for i, step := range result.Steps {
		fmt.Fprintf(os.Stderr, "  %d. %s %s\n", i+1, step.Kind, step.TableName)
	}

	if len(result.Report.Warnings) > 0 {
		yellow := color.New(color.FgYellow)
		fmt.Fprintln(os.Stderr)
		_, _ = yellow.Fprintln(os.Stderr, "Warnings (re-run apply with --force to proceed anyway):")
		for _, w := range result.Report.Warnings {
			_, _ = yellow.Fprintf(os.Stderr, "  - %s\n", w.Message)
		}
	}
	if len(result.Report.Unexecutable) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stderr)
		_, _ = red.Fprintln(os.Stderr, "Unexecutable (cannot proceed even with --force):")
		for _, u := range result.Report.Unexecutable {
			_, _ = red.Fprintf(os.Stderr, "  - %s\n", u.Message)
		}
	}
}
