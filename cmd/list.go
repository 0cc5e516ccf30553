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
	listEnvironment string
	listTarget      string
)

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listEnvironment, "environment", "", "named environment from migrate.toml")
	listCmd.Flags().StringVar(&listTarget, "target", "", "target database URL (overrides the environment)")
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the migrations recorded in the database's migration log",
	Run:   runList,
}

func runList(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		fail("loading config: %v", err)
	}
	env, err := config.ResolveEnvironment(cfg, listEnvironment)
	if err != nil {
		printConfigNotFound()
		fail("resolving environment: %v", err)
	}

	connStr := listTarget
	if connStr == "" {
		connStr = env.DatabaseURL
	}

	db, dialect, err := driver.Open(ctx, connStr)
	if err != nil {
		fail("connecting to %s: %v", env.Name, err)
	}
	defer db.Close()

	eng := engine.New(db, dialect)
	records, err := eng.ListMigrations(ctx)
	if err != nil {
		fail("listing migrations: %v", err)
	}

	if len(records) == 0 {
		_, _ = color.New(color.FgYellow).Fprintln(os.Stderr, "No migrations recorded yet.")
		return
	}

	for _, rec := range records {
		status := color.New(color.FgGreen)
		if !rec.Applied || rec.RolledBack {
			status = color.New(color.FgRed)
		}
		fmt.Printf("%4d  %-30s  ", rec.Revision, rec.Name)
		_, _ = status.Printf("%s", rec.Status)
		fmt.Printf("  %s\n", rec.StartedAt.Format("2006-01-02 15:04:05"))
		for _, e := range rec.Errors {
			_, _ = color.New(color.FgRed).Printf("        error: %s\n", e)
		}
	}
}
