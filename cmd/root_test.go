package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpool-sim/carpool-sim/sim"
)

func TestInitConfigWritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	rootCmd.SetArgs([]string{"initconfig", path})
	require.NoError(t, rootCmd.Execute())

	cfg, err := sim.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, sim.DefaultConfig(), cfg)
}

func TestMetricsPathPrefersFlag(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Metrics.OutputFile = "from_config.json"

	outputFile = ""
	assert.Equal(t, "from_config.json", metricsPath(cfg))

	outputFile = "from_flag.json"
	defer func() { outputFile = "" }()
	assert.Equal(t, "from_flag.json", metricsPath(cfg))
}
