package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoaudit/repoaudit/internal/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, types.DepthStandard, cfg.Depth)
	assert.Equal(t, 5.0, cfg.BudgetUSD)
	assert.Equal(t, 4, cfg.Workers)
	assert.Contains(t, cfg.DBPath, ".repoaudit")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().BudgetUSD, cfg.BudgetUSD)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
depth: deep
budget_usd: 12.5
workers: 8
max_files: 40
model: test-model
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, types.DepthDeep, cfg.Depth)
	assert.Equal(t, 12.5, cfg.BudgetUSD)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 40, cfg.MaxFiles)
	assert.Equal(t, "test-model", cfg.Model)

	// Unset fields keep their defaults.
	assert.Equal(t, Default().DBPath, cfg.DBPath)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("depth: [not: valid"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("budget_usd: 2.0\nworkers: 2\n"), 0644))

	t.Setenv("REPOAUDIT_BUDGET_USD", "7.5")
	t.Setenv("REPOAUDIT_DEPTH", "quick")
	t.Setenv("REPOAUDIT_WORKERS", "16")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7.5, cfg.BudgetUSD)
	assert.Equal(t, types.DepthQuick, cfg.Depth)
	assert.Equal(t, 16, cfg.Workers)
}

func TestEnvRejectsGarbage(t *testing.T) {
	t.Setenv("REPOAUDIT_WORKERS", "many")
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"bad depth", func(c *Config) { c.Depth = "exhaustive" }},
		{"zero budget", func(c *Config) { c.BudgetUSD = 0 }},
		{"negative budget", func(c *Config) { c.BudgetUSD = -1 }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"too many workers", func(c *Config) { c.Workers = 33 }},
		{"negative max files", func(c *Config) { c.MaxFiles = -1 }},
		{"negative pricing", func(c *Config) { c.InputPerMTok = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFileBudget(t *testing.T) {
	cfg := Default()

	cfg.Depth = types.DepthQuick
	assert.Equal(t, 50, cfg.FileBudget())

	cfg.Depth = types.DepthCritical
	assert.Equal(t, 100, cfg.FileBudget())

	cfg.Depth = types.DepthStandard
	assert.Equal(t, 250, cfg.FileBudget())

	cfg.Depth = types.DepthDeep
	assert.Zero(t, cfg.FileBudget(), "deep scans are uncapped")

	// An explicit cap wins over the depth default.
	cfg.MaxFiles = 10
	assert.Equal(t, 10, cfg.FileBudget())
}
