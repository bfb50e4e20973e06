package main

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "ECS_STRESS"

type config struct {
	Duration       time.Duration `mapstructure:"duration"`
	Frames         int           `mapstructure:"frames"`
	Entities       int           `mapstructure:"entities"`
	Duplicates     int           `mapstructure:"duplicates"`
	UnloadEvery    int           `mapstructure:"unload-every"`
	CompactHoles   int           `mapstructure:"compact-holes"`
	Seed           uint64        `mapstructure:"seed"`
	LogLevel       string        `mapstructure:"log-level"`
	GCPauseMetrics bool          `mapstructure:"gc-pause-metrics"`
}

func addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("config", "", "Path to a YAML config file")
	flags.Duration("duration", 10*time.Second, "Maximum run duration")
	flags.Int("frames", 0, "Stop after this many frames (0 runs until the duration elapses)")
	flags.Int("entities", 10000, "Target number of scene entities")
	flags.Int("duplicates", 2, "Duplicate singleton entities spawned per frame")
	flags.Int("unload-every", 120, "Unload the scene every N frames (0 disables)")
	flags.Int("compact-holes", 256, "Compact archetypes with at least this many freed slots at frame end (0 disables)")
	flags.Uint64("seed", 1, "Random seed")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("gc-pause-metrics", false, "Include GC pause metrics in the report")
}

// loadConfig merges flags, ECS_STRESS_* environment variables and an optional
// config file, in that order of precedence.
func loadConfig(cmd *cobra.Command) (config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return config{}, errors.Wrap(err, "binding flags")
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config{}, errors.Wrapf(err, "reading config file %s", path)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, errors.Wrap(err, "decoding config")
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	switch {
	case c.Duration <= 0:
		return errors.Newf("duration must be positive, got %s", c.Duration)
	case c.Frames < 0:
		return errors.Newf("frames must not be negative, got %d", c.Frames)
	case c.Entities < 0:
		return errors.Newf("entities must not be negative, got %d", c.Entities)
	case c.Duplicates < 0:
		return errors.Newf("duplicates must not be negative, got %d", c.Duplicates)
	case c.UnloadEvery < 0:
		return errors.Newf("unload-every must not be negative, got %d", c.UnloadEvery)
	case c.CompactHoles < 0:
		return errors.Newf("compact-holes must not be negative, got %d", c.CompactHoles)
	}
	return nil
}
