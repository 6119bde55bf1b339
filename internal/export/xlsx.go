package export

import (
	"io"
	"iter"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Telemetry"

var (
	measureFormat    = "0.00"
	coordinateFormat = "0.000000"
)

// WriteXLSX writes a single sheet workbook. Rows are streamed, so large
// ranges do not have to fit in memory as cells.
func WriteXLSX(w io.Writer, seq iter.Seq2[telemetry.Record, error]) (int, error) {
	errFactory := errors.New()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return 0, errFactory.Wrap(ErrWriteFailed, err)
	}

	measureStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &measureFormat})
	if err != nil {
		return 0, errFactory.Wrap(ErrWriteFailed, err)
	}
	coordinateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &coordinateFormat})
	if err != nil {
		return 0, errFactory.Wrap(ErrWriteFailed, err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, errFactory.Wrap(ErrWriteFailed, err)
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return 0, errFactory.Wrap(ErrWriteFailed, err)
	}
	for _, col := range []struct {
		min, max int
		width    float64
	}{{1, 1, 10}, {2, 2, 20}, {3, len(Headers), 14}} {
		if err := sw.SetColWidth(col.min, col.max, col.width); err != nil {
			return 0, errFactory.Wrap(ErrWriteFailed, err)
		}
	}

	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return 0, errFactory.Wrap(ErrWriteFailed, err)
	}

	rows := 0
	for rec, err := range seq {
		if err != nil {
			return rows, err
		}

		cell, err := excelize.CoordinatesToCellName(1, rows+2)
		if err != nil {
			return rows, errFactory.Wrap(ErrWriteFailed, err)
		}

		row := []interface{}{
			rec.ID,
			rec.Timestamp.Format(TimeLayout),
			excelize.Cell{StyleID: measureStyle, Value: rec.Accel.X},
			excelize.Cell{StyleID: measureStyle, Value: rec.Accel.Y},
			excelize.Cell{StyleID: measureStyle, Value: rec.Accel.Z},
			excelize.Cell{StyleID: measureStyle, Value: rec.Gyro.Roll},
			excelize.Cell{StyleID: measureStyle, Value: rec.Gyro.Pitch},
			excelize.Cell{StyleID: measureStyle, Value: rec.Gyro.Yaw},
			excelize.Cell{StyleID: coordinateStyle, Value: rec.GPS.Lat},
			excelize.Cell{StyleID: coordinateStyle, Value: rec.GPS.Lon},
			excelize.Cell{StyleID: measureStyle, Value: rec.UVIndex},
			excelize.Cell{StyleID: measureStyle, Value: rec.Temperature},
		}
		if err := sw.SetRow(cell, row); err != nil {
			return rows, errFactory.Wrap(ErrWriteFailed, err)
		}
		rows++
	}

	if err := sw.Flush(); err != nil {
		return rows, errFactory.Wrap(ErrWriteFailed, err)
	}
	if err := f.Write(w); err != nil {
		return rows, errFactory.Wrap(ErrWriteFailed, err)
	}

	return rows, nil
}
