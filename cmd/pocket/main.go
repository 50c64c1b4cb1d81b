// Package main is the entry point for the Stellar Pocket player.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-pocket/internal/config"
	"github.com/edumarques81/stellar-pocket/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:           "pocket",
		Short:         "Portable Bluetooth audio source",
		Version:       version.GetInfo().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cfg.Debug)
			if err := cfg.Validate(); err != nil {
				log.Error().Err(err).Msg("Invalid configuration")
				return err
			}
			if err := run(cmd.Context(), cfg); err != nil {
				log.Error().Err(err).Msg("Player stopped with error")
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.LibraryDir, "library", cfg.LibraryDir, "Music library root (Artist/Album/Song)")
	f.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for the peer database")
	f.StringVar(&cfg.SampleSong, "sample", cfg.SampleSong, "Song played after auto-connect, relative to the library")
	f.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	f.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Orchestrator tick interval")
	f.IntVar(&cfg.RingCapacity, "ring-capacity", cfg.RingCapacity, "Ring buffer size in samples")
	f.Float64Var(&cfg.LowWaterRatio, "low-water", cfg.LowWaterRatio, "Ring occupancy that wakes the decoder")
	f.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Bytes read from storage per decode step")
	f.IntVar(&cfg.MinFree, "min-free", cfg.MinFree, "Free ring samples required before reading a chunk")
	f.IntVar(&cfg.SampleRate, "sample-rate", cfg.SampleRate, "Output sample rate")
	f.DurationVar(&cfg.OutputBuffer, "output-buffer", cfg.OutputBuffer, "Audio device buffer length")
	f.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "Speaker connect timeout")
	f.DurationVar(&cfg.ReconnectTimeout, "reconnect-timeout", cfg.ReconnectTimeout, "Speaker reconnect timeout")
	f.DurationVar(&cfg.SampleTimeout, "sample-timeout", cfg.SampleTimeout, "Longest time spent on the sample screen")
	f.StringVar(&cfg.Adapter, "adapter", cfg.Adapter, "BlueZ adapter")
	f.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")

	return cmd
}

func setupLogging(debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
