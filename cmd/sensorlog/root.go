package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/sensorlog/internal/config"
	"codeberg.org/mutker/sensorlog/internal/logger"
	"codeberg.org/mutker/sensorlog/internal/store"
	"github.com/spf13/cobra"
)

var (
	cfg *config.Config
	log logger.Logger = logger.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "sensorlog",
	Short: "Record and browse telemetry from a serial sensor device",
	Long: `sensorlog reads newline delimited JSON frames from a sensor device over a
serial port or a TCP bridge, stores every reading in sqlite and lets you
follow, query and export what was recorded.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cmd.Flags())
	if err != nil {
		log = logger.Init(logger.InfoLevel, logger.IsService())
		return err
	}

	log = logger.Init(cfg.Level(), logger.IsService())
	log.Debug().Str("command", cmd.Name()).Msg("Config loaded")

	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go handleSignals(ctx, cancel)
	return ctx, cancel
}

func handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		log.Info().Msg("Received termination signal.")
		cancel()
	case <-ctx.Done():
	}
}

func openStore() (*store.Store, error) {
	return store.Open(cfg.Store(), log)
}
