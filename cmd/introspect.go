package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dmschema/migrate/internal/config"
	"github.com/dmschema/migrate/internal/driver"
	"github.com/dmschema/migrate/internal/introspect"
)

var (
	introspectEnvironment string
	introspectTarget      string
	introspectJSON        bool
)

func init() {
	rootCmd.AddCommand(introspectCmd)
	introspectCmd.Flags().StringVar(&introspectEnvironment, "environment", "", "named environment from migrate.toml")
	introspectCmd.Flags().StringVar(&introspectTarget, "target", "", "target database URL (overrides the environment)")
	introspectCmd.Flags().BoolVar(&introspectJSON, "json", false, "print the introspected schema as JSON")
}

var introspectCmd = &cobra.Command{
	Use:   "introspect",
	Short: "Read the live schema straight from the database",
	Run:   runIntrospect,
}

func runIntrospect(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		fail("loading config: %v", err)
	}
	env, err := config.ResolveEnvironment(cfg, introspectEnvironment)
	if err != nil {
		printConfigNotFound()
		fail("resolving environment: %v", err)
	}

	connStr := introspectTarget
	if connStr == "" {
		connStr = env.DatabaseURL
	}

	db, dialect, err := driver.Open(ctx, connStr)
	if err != nil {
		fail("connecting to %s: %v", env.Name, err)
	}
	defer db.Close()

	insp, err := introspect.New(dialect, db)
	if err != nil {
		fail("%v", err)
	}

	schema, err := insp.Introspect(ctx)
	if err != nil {
		fail("introspecting %s: %v", env.Name, err)
	}

	if introspectJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(schema); err != nil {
			fail("encoding schema: %v", err)
		}
		return
	}

	cyan := color.New(color.FgCyan, color.Bold)
	for _, t := range schema.Tables {
		_, _ = cyan.Printf("%s\n", t.Name)
		for _, c := range t.Columns {
			nullable := ""
			if c.Type.Arity == "Nullable" {
				nullable = " nullable"
			}
			fmt.Printf("  %-24s %s%s\n", c.Name, c.Type, nullable)
		}
		for _, fk := range t.ForeignKeys {
			fmt.Printf("  FK %v -> %s(%v)\n", fk.Columns, fk.ReferencedTable, fk.ReferencedColumns)
		}
		fmt.Println()
	}
	if len(schema.Enums) > 0 {
		_, _ = cyan.Println("enums")
		for _, e := range schema.Enums {
			fmt.Printf("  %-24s %v\n", e.Name, e.Values)
		}
	}
}
