package main

import (
	"encoding/json"
	"fmt"
	"io"

	"codeberg.org/mutker/sensorlog/internal/export"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
)

func printRecord(w io.Writer, rec telemetry.Record, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(rec)
	}

	_, err := fmt.Fprintf(w,
		"%7d  %s  accel=(%.2f, %.2f, %.2f)  gyro=(%.2f, %.2f, %.2f)  gps=(%.6f, %.6f)  uv=%.2f  temp=%.2f\n",
		rec.ID, rec.Timestamp.Local().Format(export.TimeLayout),
		rec.Accel.X, rec.Accel.Y, rec.Accel.Z,
		rec.Gyro.Roll, rec.Gyro.Pitch, rec.Gyro.Yaw,
		rec.GPS.Lat, rec.GPS.Lon,
		rec.UVIndex, rec.Temperature,
	)
	return err
}
