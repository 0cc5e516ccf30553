package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultEnvironmentName  = "local"
	defaultDatabaseURL      = "sqlite://migrate.db"
	defaultShadowDatabaseURL = "sqlite://:memory:"
)

// ResolvedEnvironment is a fully-resolved environment: concrete connection
// strings with config-file, dotenv and built-in-default layers already
// flattened: dotenv connection strings take precedence over the config
// file's, the config file's schema path over the dotenv SCHEMA_PATH, and the
// built-in defaults fill whatever neither layer supplies.
type ResolvedEnvironment struct {
	Name              string
	DatabaseURL       string
	ShadowDatabaseURL string
	SchemaPath        string
	DotenvPath        string
	FromConfig        bool
	FromDotenv        bool
	ResolvedConfigDir string
}

// ResolveEnvironment resolves a named environment (or the config's default,
// or "local") into concrete connection strings, reading a per-environment
// .env.<name> file for DATABASE_URL/SHADOW_DATABASE_URL/SCHEMA_PATH when
// present, and otherwise falling back to SQLite defaults (a migrate.db file
// for the database, an in-memory shadow database) so the CLI has somewhere
// to work even outside a configured project.
func ResolveEnvironment(cfg *Config, name string) (*ResolvedEnvironment, error) {
	envName := strings.TrimSpace(name)
	if envName == "" {
		if cfg != nil && cfg.DefaultEnvironment != "" {
			envName = cfg.DefaultEnvironment
		} else {
			envName = defaultEnvironmentName
		}
	}

	var (
		envConfig EnvironmentConfig
		envExists bool
	)
	if cfg != nil && cfg.Environments != nil {
		if c, ok := cfg.Environments[envName]; ok {
			envConfig = c
			envExists = true
		}
	}

	resolved := &ResolvedEnvironment{Name: envName}

	if cfg != nil {
		resolved.ResolvedConfigDir = cfg.ConfigDir()
		if cfg.SchemaPath != "" {
			resolved.SchemaPath = cfg.SchemaPath
		}
		if cfg.DatabaseURL != "" && envConfig.DatabaseURL == "" {
			envConfig.DatabaseURL = cfg.DatabaseURL
		}
		if cfg.ShadowDatabaseURL != "" && envConfig.ShadowDatabaseURL == "" {
			envConfig.ShadowDatabaseURL = cfg.ShadowDatabaseURL
		}
	}
	if envConfig.SchemaPath != "" {
		resolved.SchemaPath = envConfig.SchemaPath
	}

	resolved.DatabaseURL = envConfig.DatabaseURL
	resolved.ShadowDatabaseURL = envConfig.ShadowDatabaseURL
	resolved.FromConfig = envExists

	var baseDir, projectDir string
	dotenvFileName := ".env." + envName
	if cfg != nil {
		baseDir = cfg.ConfigDir()
		projectDir = cfg.ProjectDir()
	} else if cwd, err := os.Getwd(); err == nil {
		baseDir = cwd
	}

	if baseDir != "" {
		resolved.DotenvPath = filepath.Join(baseDir, dotenvFileName)
	} else {
		resolved.DotenvPath = dotenvFileName
	}

	if _, err := os.Stat(resolved.DotenvPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing %s: %w", resolved.DotenvPath, err)
		}
		if projectDir != "" && projectDir != baseDir {
			if alt := filepath.Join(projectDir, dotenvFileName); fileExists(alt) {
				resolved.DotenvPath = alt
			}
		}
	}

	if fileExists(resolved.DotenvPath) {
		values, err := godotenv.Read(resolved.DotenvPath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", resolved.DotenvPath, err)
		}
		resolved.FromDotenv = true
		if v := values["DATABASE_URL"]; v != "" {
			resolved.DatabaseURL = v
		}
		if v := values["SHADOW_DATABASE_URL"]; v != "" {
			resolved.ShadowDatabaseURL = v
		}
		if resolved.SchemaPath == "" {
			if v := values["SCHEMA_PATH"]; v != "" {
				resolved.SchemaPath = v
			}
		}
	}

	if resolved.DatabaseURL == "" {
		resolved.DatabaseURL = defaultDatabaseURL
	}
	if resolved.ShadowDatabaseURL == "" {
		resolved.ShadowDatabaseURL = defaultShadowDatabaseURL
	}

	if resolved.SchemaPath != "" {
		base := resolved.ResolvedConfigDir
		if base == "" && cfg != nil {
			base = cfg.ConfigDir()
		}
		resolved.SchemaPath = resolveSchemaPath(resolved.SchemaPath, base)
	}

	if cfg != nil && len(cfg.Environments) > 0 && !envExists && !resolved.FromDotenv {
		return nil, fmt.Errorf("environment %q not defined in migrate.toml and %s not found", envName, resolved.DotenvPath)
	}

	return resolved, nil
}

func resolveSchemaPath(path, baseDir string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
