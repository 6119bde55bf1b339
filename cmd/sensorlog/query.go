package main

import (
	"time"

	"codeberg.org/mutker/sensorlog/internal/query"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
	"github.com/spf13/cobra"
)

type rangeFlags struct {
	from   string
	to     string
	preset string
	order  string
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "Range start (RFC3339)")
	cmd.Flags().StringVar(&f.to, "to", "", "Range end (RFC3339), defaults to now")
	cmd.Flags().StringVar(&f.preset, "preset", string(query.DefaultPreset), "Range preset when --from is not set: hour, day, week or month")
	cmd.Flags().StringVar(&f.order, "order", string(telemetry.OrderDescending), "Sort order by timestamp: asc or desc")
}

func (f *rangeFlags) bounds() (time.Time, time.Time, error) {
	return query.ParseBounds(f.from, f.to, f.preset, time.Now())
}

var (
	queryRange rangeFlags
	queryJSON  bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print stored records in a time range",
	RunE:  runQuery,
}

func init() {
	queryRange.register(queryCmd)
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Print records as JSON lines")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, _ []string) error {
	start, end, err := queryRange.bounds()
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	seq, err := query.New(st).Run(cmd.Context(), start, end, telemetry.Order(queryRange.order))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for rec, err := range seq {
		if err != nil {
			return err
		}
		if err := printRecord(out, rec, queryJSON); err != nil {
			return err
		}
	}

	return nil
}
