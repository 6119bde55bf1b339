// Package export writes range query results as CSV or XLSX.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
)

const (
	ErrInvalidFormat = errors.ErrorCode("export_invalid_format")
	ErrWriteFailed   = errors.ErrorCode("export_write_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInvalidFormat: "Unsupported export format",
		ErrWriteFailed:   "Failed to write export",
	})
}

type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// TimeLayout is how timestamps appear in exported rows.
const TimeLayout = "2006-01-02 15:04:05"

// Headers are the exported columns, in order.
var Headers = []string{
	"ID", "Timestamp", "Accel X", "Accel Y", "Accel Z",
	"Roll", "Pitch", "Yaw", "Latitude", "Longitude",
	"UV Index", "Temperature",
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return CSV, nil
	case "xlsx", "excel":
		return XLSX, nil
	default:
		return "", errors.New().WithData(ErrInvalidFormat, s)
	}
}

// FileName returns the default export file name for a given time.
func FileName(f Format, now time.Time) string {
	return fmt.Sprintf("sensor_data_%s.%s", now.Format("20060102_150405"), f)
}

// Write streams every record of seq to w in format f and returns how many
// rows were written.
func Write(w io.Writer, f Format, seq iter.Seq2[telemetry.Record, error]) (int, error) {
	switch f {
	case CSV:
		return WriteCSV(w, seq)
	case XLSX:
		return WriteXLSX(w, seq)
	default:
		return 0, errors.New().WithData(ErrInvalidFormat, string(f))
	}
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, seq iter.Seq2[telemetry.Record, error]) (int, error) {
	errFactory := errors.New()
	cw := csv.NewWriter(w)

	if err := cw.Write(Headers); err != nil {
		return 0, errFactory.Wrap(ErrWriteFailed, err)
	}

	rows := 0
	for rec, err := range seq {
		if err != nil {
			return rows, err
		}
		if err := cw.Write(csvRow(rec)); err != nil {
			return rows, errFactory.Wrap(ErrWriteFailed, err)
		}
		rows++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, errFactory.Wrap(ErrWriteFailed, err)
	}

	return rows, nil
}

func csvRow(rec telemetry.Record) []string {
	return []string{
		strconv.FormatInt(rec.ID, 10),
		rec.Timestamp.Format(TimeLayout),
		measure(rec.Accel.X),
		measure(rec.Accel.Y),
		measure(rec.Accel.Z),
		measure(rec.Gyro.Roll),
		measure(rec.Gyro.Pitch),
		measure(rec.Gyro.Yaw),
		coordinate(rec.GPS.Lat),
		coordinate(rec.GPS.Lon),
		measure(rec.UVIndex),
		measure(rec.Temperature),
	}
}

func measure(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func coordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
