package export_test

import (
	"bytes"
	"encoding/csv"
	"iter"
	"testing"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/export"
	"codeberg.org/mutker/sensorlog/internal/store"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var stamp = time.Date(2026, 10, 17, 8, 30, 15, 0, time.UTC)

func records() []telemetry.Record {
	return []telemetry.Record{
		{
			ID:        1,
			Timestamp: stamp,
			Reading: telemetry.Reading{
				Accel:       telemetry.Accel{X: 0.5, Y: -1.234, Z: 9.81},
				Gyro:        telemetry.Gyro{Roll: 10, Pitch: -20.556, Yaw: 179.9},
				GPS:         telemetry.GPS{Lat: -12.046412, Lon: -77.042799},
				UVIndex:     3.5,
				Temperature: 21.456,
			},
		},
		{ID: 2, Timestamp: stamp.Add(time.Second)},
	}
}

func seqOf(recs []telemetry.Record, tail error) iter.Seq2[telemetry.Record, error] {
	return func(yield func(telemetry.Record, error) bool) {
		for _, rec := range recs {
			if !yield(rec, nil) {
				return
			}
		}
		if tail != nil {
			yield(telemetry.Record{}, tail)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	n, err := export.Write(&buf, export.CSV, seqOf(records(), nil))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, export.Headers, rows[0])
	assert.Equal(t, []string{
		"1", "2026-10-17 08:30:15", "0.50", "-1.23", "9.81",
		"10.00", "-20.56", "179.90", "-12.046412", "-77.042799",
		"3.50", "21.46",
	}, rows[1])
	assert.Equal(t, "2", rows[2][0])
}

func TestWriteCSVPropagatesSourceError(t *testing.T) {
	queryErr := errors.New().New(store.ErrQueryFailed)

	var buf bytes.Buffer
	n, err := export.WriteCSV(&buf, seqOf(records()[:1], queryErr))
	assert.Equal(t, 1, n)
	assert.True(t, store.IsStorageError(err))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	n, err := export.Write(&buf, export.XLSX, seqOf(records(), nil))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Telemetry", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, export.Headers, rows[0])
	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "2026-10-17 08:30:15", rows[1][1])
	assert.Equal(t, "21.456", rows[1][11])
	assert.Equal(t, "2", rows[2][0])
}

func TestParseFormat(t *testing.T) {
	f, err := export.ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, export.CSV, f)

	f, err = export.ParseFormat("excel")
	require.NoError(t, err)
	assert.Equal(t, export.XLSX, f)

	_, err = export.ParseFormat("pdf")
	assert.True(t, errors.HasCode(err, export.ErrInvalidFormat))

	_, err = export.Write(&bytes.Buffer{}, export.Format("pdf"), seqOf(nil, nil))
	assert.True(t, errors.HasCode(err, export.ErrInvalidFormat))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "sensor_data_20261017_083015.xlsx", export.FileName(export.XLSX, stamp))
}
