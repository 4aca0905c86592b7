// Package config loads the auditor configuration: YAML file first, then
// REPOAUDIT_* environment variables on top, then validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/repoaudit/repoaudit/internal/types"
)

// Config is the full auditor configuration.
type Config struct {
	// DBPath is the SQLite database location.
	// Default: ~/.repoaudit/repoaudit.db
	DBPath string `yaml:"db_path"`

	// Model overrides the analysis model (default: analyzer picks).
	Model string `yaml:"model"`

	// Depth is the default analysis depth.
	// Default: standard
	Depth types.Depth `yaml:"depth"`

	// BudgetUSD is the per-session spending cap in USD.
	// Default: 5.0, Range: > 0
	BudgetUSD float64 `yaml:"budget_usd"`

	// Workers bounds concurrent file analyses.
	// Default: 4, Range: 1-32
	Workers int `yaml:"workers"`

	// MaxFiles caps files considered per session (0 = all).
	MaxFiles int `yaml:"max_files"`

	// InputPerMTok / OutputPerMTok override token pricing in USD per
	// million tokens.
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`

	// RequestsPerSec is the client-side API rate limit.
	// Default: 2
	RequestsPerSec float64 `yaml:"requests_per_sec"`
}

// Default returns the default configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		DBPath:         filepath.Join(home, ".repoaudit", "repoaudit.db"),
		Depth:          types.DepthStandard,
		BudgetUSD:      5.0,
		Workers:        4,
		InputPerMTok:   3.0,
		OutputPerMTok:  15.0,
		RequestsPerSec: 2,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if !c.Depth.Valid() {
		return fmt.Errorf("depth must be one of quick, critical, standard, deep (got %q)", c.Depth)
	}
	if c.BudgetUSD <= 0 {
		return fmt.Errorf("budget_usd must be positive (got %g)", c.BudgetUSD)
	}
	if c.Workers < 1 || c.Workers > 32 {
		return fmt.Errorf("workers must be between 1 and 32 (got %d)", c.Workers)
	}
	if c.MaxFiles < 0 {
		return fmt.Errorf("max_files cannot be negative (got %d)", c.MaxFiles)
	}
	if c.InputPerMTok < 0 || c.OutputPerMTok < 0 {
		return fmt.Errorf("token pricing cannot be negative")
	}
	return nil
}

// Load reads configuration: defaults, then the YAML file at path (skipped
// when path is empty or the file does not exist), then environment
// overrides, then validation.
//
// Environment variables:
//   - REPOAUDIT_DB_PATH: database location
//   - REPOAUDIT_MODEL: analysis model
//   - REPOAUDIT_DEPTH: analysis depth (quick|critical|standard|deep)
//   - REPOAUDIT_BUDGET_USD: per-session spending cap
//   - REPOAUDIT_WORKERS: concurrent file analyses
//   - REPOAUDIT_MAX_FILES: file cap per session (0 = all)
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".repoaudit", "config.yaml")
}

func applyEnv(cfg *Config) error {
	parseEnvString("REPOAUDIT_DB_PATH", &cfg.DBPath)
	parseEnvString("REPOAUDIT_MODEL", &cfg.Model)

	var depth string
	parseEnvString("REPOAUDIT_DEPTH", &depth)
	if depth != "" {
		cfg.Depth = types.Depth(depth)
	}

	if err := parseEnvFloat("REPOAUDIT_BUDGET_USD", &cfg.BudgetUSD); err != nil {
		return err
	}
	if err := parseEnvInt("REPOAUDIT_WORKERS", &cfg.Workers); err != nil {
		return err
	}
	if err := parseEnvInt("REPOAUDIT_MAX_FILES", &cfg.MaxFiles); err != nil {
		return err
	}
	return nil
}

func parseEnvString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}

func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// FileBudget returns the per-session file cap implied by a depth when the
// explicit max_files setting is zero.
func (c Config) FileBudget() int {
	if c.MaxFiles > 0 {
		return c.MaxFiles
	}
	switch c.Depth {
	case types.DepthQuick:
		return 50
	case types.DepthCritical:
		return 100
	case types.DepthDeep:
		return 0 // no cap
	default:
		return 250
	}
}
