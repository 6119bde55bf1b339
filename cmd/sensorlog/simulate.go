package main

import (
	"net"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/simulate"
	"github.com/spf13/cobra"
)

var (
	simulateAddr     string
	simulateInterval time.Duration
	simulateSeed     uint64
	simulateStdout   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Emulate a sensor device",
	Long: `Emit random readings as frames, either on stdout or to every client that
connects to --addr. Point "sensorlog run --endpoint tcp://<addr>" at it to
exercise the pipeline without hardware.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAddr, "addr", "127.0.0.1:7000", "TCP address to serve frames on")
	simulateCmd.Flags().DurationVar(&simulateInterval, "interval", simulate.DefaultInterval, "Time between frames")
	simulateCmd.Flags().Uint64Var(&simulateSeed, "seed", uint64(time.Now().UnixNano()), "Random seed")
	simulateCmd.Flags().BoolVar(&simulateStdout, "stdout", false, "Write frames to stdout instead of serving them")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if simulateStdout {
		return simulate.NewDevice(simulateSeed).Run(ctx, cmd.OutOrStdout(), simulateInterval)
	}

	ln, err := net.Listen("tcp", simulateAddr)
	if err != nil {
		return errors.New().Wrap(errors.ErrInitFailed, err)
	}

	log.Info().Str("addr", ln.Addr().String()).Dur("interval", simulateInterval).Msg("Simulating device")
	return simulate.Serve(ctx, ln, simulateInterval, simulateSeed, log)
}
