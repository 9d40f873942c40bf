// Package main provides the chain-player CLI entry point.
//
// chain-player plays a list of media sources through a reader, decoder,
// scheduler and renderer chain on a dedicated display layer, looping items
// or the whole playlist on request.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-chain-player/internal/config"
	"github.com/randomizedcoder/go-chain-player/internal/logging"
	"github.com/randomizedcoder/go-chain-player/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/chain-player
var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := afero.NewOsFs()

	cmd := config.NewCommand(fs, version, func(cmd *cobra.Command, cfg *config.Config) error {
		// With the dashboard up, logs only feed its event box.
		var forward slog.Handler
		if !cfg.TUIEnabled {
			forward = logging.NewHandler(stderr, cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
		}
		events := logging.NewEventLog(logging.DefaultEventLogSize, slog.LevelInfo, forward)
		logger := slog.New(events)
		logging.SetDefault(logger)

		logger.Info("starting",
			"version", version,
			"sources", len(cfg.Sources),
			"playlist", cfg.PlaylistFile,
			"strategy", cfg.Strategy,
			"loop", cfg.Loop,
			"loop_all", cfg.LoopAll,
			"metrics_addr", cfg.MetricsAddr,
		)

		if !cfg.TUIEnabled {
			printBanner(stdout, cfg)
		}

		orch := orchestrator.New(cfg, logger,
			orchestrator.WithFs(fs),
			orchestrator.WithOutput(stdout),
			orchestrator.WithEventLog(events),
			orchestrator.WithVersion(version),
		)
		return orch.Run(cmd.Context())
	})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		var usage *config.UsageError
		if errors.As(err, &usage) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			fmt.Fprintln(stderr, "Run 'chain-player --help' for usage.")
			return exitUsage
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                           chain-player                            ║")
	fmt.Fprintln(w, "║         Reader → Decoder → Scheduler → Renderer playback          ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	if cfg.PlaylistFile != "" {
		fmt.Fprintf(w, "  Playlist:    %s\n", cfg.PlaylistFile)
	} else {
		fmt.Fprintf(w, "  Sources:     %d\n", len(cfg.Sources))
	}
	fmt.Fprintf(w, "  Strategy:    %s\n", cfg.Strategy)
	fmt.Fprintf(w, "  Layer:       %d (background %d)\n", cfg.Layer, cfg.BackgroundLayer)
	switch {
	case cfg.Loop < 0:
		fmt.Fprintln(w, "  Loop:        forever")
	case cfg.Loop > 0:
		fmt.Fprintf(w, "  Loop:        %d plays per item\n", cfg.Loop)
	}
	if cfg.LoopAll {
		fmt.Fprintln(w, "  Loop all:    yes")
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}
