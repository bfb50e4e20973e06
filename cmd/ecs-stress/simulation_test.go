package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/plus3/soloecs/ecs"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() config {
	return config{
		Duration:     time.Minute,
		Frames:       50,
		Entities:     200,
		Duplicates:   3,
		UnloadEvery:  20,
		CompactHoles: 16,
		Seed:         7,
		LogLevel:     "info",
	}
}

func TestSimulationKeepsOneInstancePerSingleton(t *testing.T) {
	sim := newSimulation(testConfig(), zap.NewNop())
	report := sim.Run(context.Background())

	assert.Equal(t, int64(50), report.TotalUpdates)
	assert.Len(t, report.UpdateTime.Samples, 50)
	assert.Equal(t, 2, report.Tally.Unloads)
	assert.Equal(t, 50, report.MixerFrames)

	for _, state := range report.Singletons {
		assert.True(t, state.Initialized, state.Name)
		assert.True(t, state.Instance.Valid(), state.Name)
		assert.True(t, sim.storage.IsPersistent(state.Instance.Id), state.Name)
	}

	mixers := 0
	for _, archetype := range sim.storage.GetArchetypes() {
		for _, typ := range archetype.Types() {
			if typ.Name() == "Mixer" {
				mixers += archetype.Len()
			}
		}
	}
	assert.Equal(t, 1, mixers)
	for _, archetype := range sim.storage.GetArchetypes() {
		assert.Less(t, archetype.Holes(), 16, "archetypes are compacted at frame end")
	}
	assert.Equal(t, 32, ecs.Instance[Mixer](sim.singletons).Channels)

	totals := map[string]float64{}
	for _, m := range report.Metrics {
		totals[m.Name] = m.Value
	}
	assert.Equal(t, 150.0, totals["soloecs_singletons_duplicates_destroyed_total"])
	assert.Equal(t, 2.0, totals["soloecs_singletons_created_total"])
	assert.Equal(t, 2.0, totals["soloecs_singletons_live"])
}

func TestSimulationStopsOnContext(t *testing.T) {
	cfg := testConfig()
	cfg.Frames = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := newSimulation(cfg, zap.NewNop()).Run(ctx)
	assert.Zero(t, report.TotalUpdates)
}

func TestReportGenerate(t *testing.T) {
	report := newSimulation(testConfig(), zap.NewNop()).Run(context.Background())

	var buf bytes.Buffer
	require.NoError(t, report.Generate(&buf))

	out := buf.String()
	assert.Contains(t, out, "**Total Updates:** 50")
	assert.Contains(t, out, "- Mixer: entity")
	assert.Contains(t, out, "- Tally: entity")
	assert.Contains(t, out, "soloecs_singletons_duplicates_destroyed_total: 150")
	assert.NotContains(t, out, "GC Pause")
}

func TestLoadConfig(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		cmd := &cobra.Command{Use: "test"}
		addFlags(cmd)
		require.NoError(t, cmd.ParseFlags(args))
		return cmd
	}

	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig(newCmd())
		require.NoError(t, err)
		assert.Equal(t, 10*time.Second, cfg.Duration)
		assert.Equal(t, 10000, cfg.Entities)
		assert.Equal(t, 120, cfg.UnloadEvery)
		assert.Equal(t, 256, cfg.CompactHoles)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("flags", func(t *testing.T) {
		cfg, err := loadConfig(newCmd("--frames", "12", "--unload-every", "0", "--duration", "2s"))
		require.NoError(t, err)
		assert.Equal(t, 12, cfg.Frames)
		assert.Equal(t, 0, cfg.UnloadEvery)
		assert.Equal(t, 2*time.Second, cfg.Duration)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("ECS_STRESS_ENTITIES", "42")
		t.Setenv("ECS_STRESS_LOG_LEVEL", "debug")
		cfg, err := loadConfig(newCmd())
		require.NoError(t, err)
		assert.Equal(t, 42, cfg.Entities)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := loadConfig(newCmd("--duplicates", "-1"))
		assert.ErrorContains(t, err, "duplicates must not be negative")

		_, err = loadConfig(newCmd("--compact-holes", "-4"))
		assert.ErrorContains(t, err, "compact-holes must not be negative")
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := loadConfig(newCmd("--config", t.TempDir()+"/absent.yaml"))
		assert.ErrorContains(t, err, "reading config file")
	})
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger("loud")
	assert.ErrorContains(t, err, "invalid log level")

	logger, err := newLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
}
