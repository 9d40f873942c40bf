package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// CHAIN_PLAYER_LOOP_ALL=true.
const EnvPrefix = "CHAIN_PLAYER"

// RunFunc receives the merged, validated configuration.
type RunFunc func(cmd *cobra.Command, cfg *Config) error

// UsageError marks a configuration problem the user has to fix, as opposed
// to a failure while playing.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

type flagGroup struct {
	title string
	set   *pflag.FlagSet
}

// flagGroups declares every flag, grouped the way the usage text prints them.
func flagGroups(cfg *Config) []flagGroup {
	playback := pflag.NewFlagSet("playback", pflag.ContinueOnError)
	playback.IntVarP(&cfg.Rotation, "rotate", "r", cfg.Rotation, "Rotate the picture by 0, 90, 180 or 270 degrees")
	playback.IntVarP(&cfg.Loop, "loop", "l", cfg.Loop, "Play each item N times (-l alone loops forever)")
	playback.Lookup("loop").NoOptDefVal = "-1"
	playback.BoolVarP(&cfg.LoopAll, "loop-all", "L", cfg.LoopAll, "Restart the list after the last item")
	playback.StringVar(&cfg.PlaylistFile, "playlist", cfg.PlaylistFile, "Read sources from a file, one per line")
	playback.BoolVar(&cfg.WatchPlaylist, "watch-playlist", cfg.WatchPlaylist, "Reload --playlist when it changes")
	playback.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, `Source switch: "rebuild" or "seamless"`)

	display := pflag.NewFlagSet("display", pflag.ContinueOnError)
	display.IntVar(&cfg.Layer, "layer", cfg.Layer, "Video layer")
	display.IntVar(&cfg.BackgroundLayer, "background-layer", cfg.BackgroundLayer, "Blank background layer")

	engine := pflag.NewFlagSet("engine", pflag.ContinueOnError)
	engine.IntVar(&cfg.BufferNum, "buffer-num", cfg.BufferNum, "Reader buffers")
	engine.IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "Reader buffer size in bytes")
	engine.IntVar(&cfg.FrameSize, "frame-size", cfg.FrameSize, "Decoded frame size in bytes")
	engine.DurationVar(&cfg.FrameInterval, "frame-interval", cfg.FrameInterval, "Presentation interval per frame (0 = as fast as possible)")

	restart := pflag.NewFlagSet("restart", pflag.ContinueOnError)
	restart.IntVar(&cfg.RestartOnError, "restart-on-error", cfg.RestartOnError, "Rebuild the session up to N times after an engine error")
	restart.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "First restart delay")
	restart.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Restart delay ceiling")
	restart.Float64Var(&cfg.BackoffMultiply, "backoff-multiply", cfg.BackoffMultiply, "Restart delay growth factor")

	observe := pflag.NewFlagSet("observability", pflag.ContinueOnError)
	observe.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	observe.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	observe.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	observe.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose logging")
	observe.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Live terminal dashboard")

	diag := pflag.NewFlagSet("diagnostics", pflag.ContinueOnError)
	diag.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	diag.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Config file (yaml, json or toml)")

	return []flagGroup{
		{"Playback", playback},
		{"Display", display},
		{"Engine", engine},
		{"Restart Policy", restart},
		{"Observability", observe},
		{"Safety & Diagnostics", diag},
	}
}

// NewCommand returns the root command. Flags are layered over the
// environment, an optional config file and the defaults, in that order.
func NewCommand(fs afero.Fs, version string, run RunFunc) *cobra.Command {
	cfg := DefaultConfig()
	groups := flagGroups(cfg)
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "chain-player [flags] <source>...",
		Short:         "Play media sources through a reader, decoder, scheduler and renderer chain",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			merged, err := Load(v, fs, cmd.Flags(), args)
			if err != nil {
				return &UsageError{Err: err}
			}
			if err := Validate(merged); err != nil {
				return &UsageError{Err: err}
			}
			return run(cmd, merged)
		},
	}

	for _, g := range groups {
		cmd.Flags().AddFlagSet(g.set)
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})
	cmd.SetUsageFunc(func(c *cobra.Command) error {
		printUsage(c.OutOrStderr(), c, groups)
		return nil
	})

	return cmd
}

// Load merges flags, environment and config file into a Config. Positional
// args are the sources; with none given, "sources" from the environment or
// config file is used.
func Load(v *viper.Viper, fs afero.Fs, flags *pflag.FlagSet, args []string) (*Config, error) {
	v.SetFs(fs)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags.VisitAll(func(f *pflag.Flag) {
		lo.Must0(v.BindPFlag(f.Name, f))
	})
	lo.Must0(v.BindEnv("sources"))

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("chain-player")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{
		Rotation:      v.GetInt("rotate"),
		Loop:          v.GetInt("loop"),
		LoopAll:       v.GetBool("loop-all"),
		PlaylistFile:  v.GetString("playlist"),
		WatchPlaylist: v.GetBool("watch-playlist"),
		Strategy:      v.GetString("strategy"),

		Layer:           v.GetInt("layer"),
		BackgroundLayer: v.GetInt("background-layer"),

		BufferNum:     v.GetInt("buffer-num"),
		BufferSize:    v.GetInt("buffer-size"),
		FrameSize:     v.GetInt("frame-size"),
		FrameInterval: v.GetDuration("frame-interval"),

		RestartOnError:  v.GetInt("restart-on-error"),
		BackoffInitial:  v.GetDuration("backoff-initial"),
		BackoffMax:      v.GetDuration("backoff-max"),
		BackoffMultiply: v.GetFloat64("backoff-multiply"),

		MetricsAddr: v.GetString("metrics"),
		LogFormat:   v.GetString("log-format"),
		LogLevel:    v.GetString("log-level"),
		Verbose:     v.GetBool("verbose"),
		TUIEnabled:  v.GetBool("tui"),

		SkipPreflight: v.GetBool("skip-preflight"),
		ConfigFile:    v.ConfigFileUsed(),
	}

	cfg.Sources = args
	if len(cfg.Sources) == 0 {
		cfg.Sources = lo.Compact(v.GetStringSlice("sources"))
	}

	return cfg, nil
}

func printUsage(w io.Writer, cmd *cobra.Command, groups []flagGroup) {
	fmt.Fprintf(w, `chain-player - play media through a four stage component chain

Usage:
  %s
`, cmd.UseLine())

	for _, g := range groups {
		fmt.Fprintf(w, "\n%s:\n%s", g.title, g.set.FlagUsages())
	}

	fmt.Fprintf(w, `
Environment:
  Every flag can be set as %s_<FLAG>, e.g. %s_LOOP_ALL=true.

Examples:
  # Play one file, looping it forever
  chain-player -l clip.h264

  # Play each item twice, starting over after the last one
  chain-player --loop=2 -L a.h264 b.h264

  # Follow a playlist file with a metrics endpoint
  chain-player --playlist list.txt --watch-playlist --metrics 127.0.0.1:17091

`, EnvPrefix, EnvPrefix)
}
