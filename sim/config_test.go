package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestWriteAndReloadDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigRejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, `
simulation:
  duration: 100
  randm_seed: 42
`)
	_, err := LoadConfig(path)
	require.Error(t, err, "typoed keys must fail loudly")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative duration", func(c *Config) { c.Simulation.Duration = -1 }},
		{"unordered bounds", func(c *Config) { c.Region.Bounds.LatMin = 99 }},
		{"zero capacity", func(c *Config) { c.Carpooling.Capacity = 0 }},
		{"zero detour cap", func(c *Config) { c.Carpooling.DetourMax = 0 }},
		{"zero cluster radius", func(c *Config) { c.Carpooling.ClusterRadiusKm = 0 }},
		{"negative quit penalty", func(c *Config) { c.Costs.QuitPenalty = -1 }},
		{"no driver types", func(c *Config) { c.DriverTypes = nil }},
		{"duplicate driver type ids", func(c *Config) { c.DriverTypes[1].ID = c.DriverTypes[0].ID }},
		{"negative arrival rate", func(c *Config) { c.Requests.ArrivalRate = -0.1 }},
		{"zero weibull shape", func(c *Config) { c.Requests.WeibullShape = 0 }},
		{"zero cache size", func(c *Config) { c.OSRM.CacheSize = 0 }},
		{"negative update interval", func(c *Config) { c.Metrics.UpdateInterval = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDriverTypeByID(t *testing.T) {
	cfg := DefaultConfig()

	dt, ok := cfg.DriverTypeByID(2)
	require.True(t, ok)
	assert.Equal(t, "Normal", dt.Name)

	_, ok = cfg.DriverTypeByID(99)
	assert.False(t, ok)
}
