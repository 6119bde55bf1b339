package main

import (
	"os"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/export"
	"codeberg.org/mutker/sensorlog/internal/query"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	exportRange  rangeFlags
	exportFormat string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a time range to a CSV or XLSX file",
	RunE:  runExport,
}

func init() {
	exportRange.register(exportCmd)
	exportCmd.Flags().StringVar(&exportFormat, "format", string(export.CSV), "Output format: csv or xlsx")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file, defaults to sensor_data_<time>.<format>")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	start, end, err := exportRange.bounds()
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	seq, err := query.New(st).Run(cmd.Context(), start, end, telemetry.Order(exportRange.order))
	if err != nil {
		return err
	}

	path := exportOut
	if path == "" {
		path = export.FileName(format, time.Now())
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.New().Wrap(export.ErrWriteFailed, err)
	}

	rows, err := export.Write(f, format, seq)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.New().Wrap(export.ErrWriteFailed, cerr)
	}
	if err != nil {
		os.Remove(path)
		return err
	}

	log.Info().Str("file", path).Int("rows", rows).Msg("Export written")
	return nil
}
