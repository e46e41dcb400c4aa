package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGrid(t *testing.T) {
	names, ranges, err := parseGrid([]string{"h=1,2", "e=0.5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e", "h"}, names)
	assert.Equal(t, [][]float64{{0.5}, {1, 2}}, ranges)

	_, _, err = parseGrid([]string{"h"})
	assert.Error(t, err)
	_, _, err = parseGrid([]string{"h=x"})
	assert.Error(t, err)
}

func newRunCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "run"}
	addRunFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestResolveConfig_FlagsOverridePreset(t *testing.T) {
	preset = "high"
	defer func() { preset = "" }()

	cfg, err := resolveConfig(newRunCmd(t, "--stop", "1.5", "--set", "e=0.4"))
	require.NoError(t, err)
	assert.Equal(t, 1.5, cfg.StopTime)
	assert.Equal(t, 10.0, cfg.StartValues["h"])
	assert.Equal(t, 0.4, cfg.StartValues["e"])
	assert.Equal(t, "rk4", cfg.Integrator)
}

func TestResolveConfig_Adaptive(t *testing.T) {
	cfg, err := resolveConfig(newRunCmd(t, "--adaptive"))
	require.NoError(t, err)
	assert.True(t, cfg.Adaptive)
	assert.Equal(t, "rk45", cfg.Integrator)
}

func TestResolveConfig_Errors(t *testing.T) {
	preset = "nope"
	_, err := resolveConfig(newRunCmd(t))
	preset = ""
	assert.Error(t, err)

	_, err = resolveConfig(newRunCmd(t, "--integrator", "verlet"))
	assert.Error(t, err)

	_, err = resolveConfig(newRunCmd(t, "--set", "h=abc"))
	assert.Error(t, err)
}

func TestFormatState(t *testing.T) {
	assert.Equal(t, "[1 -0.5]", formatState([]float64{1, -0.5}))
}
