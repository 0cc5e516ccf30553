// Package config loads migrate.toml project configuration and resolves a
// named environment to a concrete connection string, walking up from the
// working directory to find the project's TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
)

// EnvironmentConfig describes a single named environment from migrate.toml.
type EnvironmentConfig struct {
	DatabaseURL       string `toml:"database_url"`
	ShadowDatabaseURL string `toml:"shadow_database_url"`
	SchemaPath        string `toml:"schema_path"`
}

// Config is the parsed contents of migrate.toml.
type Config struct {
	DefaultEnvironment string                       `toml:"default_environment"`
	SchemaPath         string                       `toml:"schema_path"`
	DatabaseURL        string                       `toml:"database_url"`
	ShadowDatabaseURL  string                       `toml:"shadow_database_url"`
	Environments       map[string]EnvironmentConfig `toml:"environments"`
	ConfigFilePath     string                       `toml:"-"`
}

// ConfigDir is the directory migrate.toml was loaded from, or "" if no
// config file was found.
func (c *Config) ConfigDir() string {
	if c.ConfigFilePath == "" {
		return ""
	}
	return filepath.Dir(c.ConfigFilePath)
}

// ProjectDir is an alias of ConfigDir today; kept distinct from it because
// ResolveEnvironment looks in both when locating a per-environment dotenv
// file, and a future multi-module layout could separate the two.
func (c *Config) ProjectDir() string {
	return c.ConfigDir()
}

// PrintLoadConfigErrorDetails surfaces a go-toml decode error's row/column,
// to stderr if t is nil or via t.Log otherwise.
func PrintLoadConfigErrorDetails(err error, t *testing.T) {
	var derr *toml.DecodeError
	if errors.As(err, &derr) {
		if t != nil {
			t.Log(derr.String())
			row, col := derr.Position()
			t.Logf("Error occurred at row %d, column %d", row, col)
		} else {
			fmt.Println(derr.String())
			row, col := derr.Position()
			fmt.Printf("Error occurred at row %d, column %d\n", row, col)
		}
	}
}

// LoadConfig searches the working directory and its ancestors for
// migrate.toml, stopping at the first project boundary (.git, go.mod,
// package.json). A missing config file is not an error — it returns a zero
// Config so callers can fall back to DATABASE_URL/flags.
func LoadConfig() (*Config, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return &Config{}, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ConfigFilePath = configPath
	return &cfg, nil
}

func getConfigPath() (string, error) {
	startDir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := startDir
	for {
		configPath := filepath.Join(dir, "migrate.toml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		if isProjectRoot(dir) {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("migrate.toml not found")
}

// isProjectRoot checks if the directory is a project root based on common markers
func isProjectRoot(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
		return true
	}
	return false
}

// GetSchemaDir returns the schema/ directory next to migrate.toml.
func GetSchemaDir() (string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return "", err
	}
	configDir := filepath.Dir(configPath)
	schemaDir := filepath.Join(configDir, "schema")
	if info, err := os.Stat(schemaDir); err == nil && info.IsDir() {
		return schemaDir, nil
	}
	return "", fmt.Errorf("schema directory not found. Try creating schema/ in the same directory as migrate.toml")
}
