package main

import (
	"codeberg.org/mutker/sensorlog/internal/api"
	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/ingest"
	"codeberg.org/mutker/sensorlog/internal/link"
	"codeberg.org/mutker/sensorlog/internal/pid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Read frames from the device and store them",
	Long: `Connect to --endpoint and store every decoded reading until interrupted.

Malformed frames are logged and skipped. If the connection is lost the command
exits with an error; restarting it is left to the service manager. With
--listen set the HTTP API is served alongside.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	if cfg.Endpoint == "" {
		return errors.New().WithData(errors.ErrInvalidConfig, "endpoint is required")
	}

	lock, err := pid.Acquire("", cfg.Endpoint)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	reader := link.NewReader(link.NewDeviceOpener(cfg.Port), log)
	if err := reader.Connect(ctx, cfg.Endpoint); err != nil {
		return err
	}

	pump := ingest.NewPump(st, cfg.QueueSize, log)
	reader.SetConsumer(pump.Consume)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pump.Run(gctx)
	})
	g.Go(func() error {
		defer pump.Close()
		return reader.Run(gctx)
	})

	if cfg.Listen != "" {
		srv := api.New(st, api.Config{PollInterval: cfg.PollInterval}, log)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.Listen)
		})
	}

	log.Info().Str("endpoint", cfg.Endpoint).Str("session", reader.Session()).Msg("Recording telemetry")

	err = g.Wait()

	stats := pump.Stats()
	received, rejected := reader.Counts()
	log.Info().
		Uint64("received", received).
		Uint64("rejected", rejected).
		Uint64("inserted", stats.Inserted).
		Uint64("failed", stats.Failed).
		Uint64("dropped", stats.Dropped).
		Msg("Exiting...")

	return err
}
