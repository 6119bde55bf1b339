package main

import (
	"codeberg.org/mutker/sensorlog/internal/tail"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	tailJSON  bool
	tailLimit int
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print new records as they are stored",
	Long: `Follow the database and print each record stored after the command starts.
The store is polled every --poll-interval. When more than --limit records
arrive between two polls only the newest --limit are printed.`,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().BoolVar(&tailJSON, "json", false, "Print records as JSON lines")
	tailCmd.Flags().IntVar(&tailLimit, "limit", tail.DefaultViewLimit, "Rows kept by the live view")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	cursor, err := tail.New(ctx, st, log)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	window := tail.NewWindow(tailLimit)
	log.Debug().Int64("last_id", cursor.LastSeen()).Msg("Following store")

	return cursor.Follow(ctx, cfg.PollInterval, func(records []telemetry.Record) error {
		for _, rec := range window.Push(records) {
			if err := printRecord(out, rec, tailJSON); err != nil {
				return err
			}
		}
		return nil
	})
}
