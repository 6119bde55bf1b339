package link_test

import (
	"codeberg.org/mutker/sensorlog/internal/frame"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
)

func encodeReading(r telemetry.Reading) ([]byte, error) {
	return frame.Encode(r)
}
