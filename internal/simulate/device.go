// Package simulate emulates a telemetry device that writes frames at a fixed
// cadence, for running the pipeline without hardware.
package simulate

import (
	"context"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"codeberg.org/mutker/sensorlog/internal/frame"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
)

const DefaultInterval = time.Second

// Home is the position the simulated GPS wanders around.
var Home = telemetry.GPS{Lat: -12.0464, Lon: -77.0428}

const (
	gpsJitter = 0.001
	accelMax  = 10.0
	gyroMax   = 180.0
	uvMax     = 11.0
	tempMin   = 15.0
	tempMax   = 40.0
)

// Device produces random readings inside realistic envelopes.
type Device struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDevice returns a Device whose readings are fully determined by seed.
func NewDevice(seed uint64) *Device {
	return &Device{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (d *Device) between(lo, hi float64) float64 {
	return lo + d.rng.Float64()*(hi-lo)
}

// Next returns the next reading.
func (d *Device) Next() telemetry.Reading {
	d.mu.Lock()
	defer d.mu.Unlock()

	return telemetry.Reading{
		Accel: telemetry.Accel{
			X: d.between(-accelMax, accelMax),
			Y: d.between(-accelMax, accelMax),
			Z: d.between(-accelMax, accelMax),
		},
		Gyro: telemetry.Gyro{
			Roll:  d.between(-gyroMax, gyroMax),
			Pitch: d.between(-gyroMax, gyroMax),
			Yaw:   d.between(-gyroMax, gyroMax),
		},
		GPS: telemetry.GPS{
			Lat: Home.Lat + d.between(-gpsJitter, gpsJitter),
			Lon: Home.Lon + d.between(-gpsJitter, gpsJitter),
		},
		UVIndex:     d.between(0, uvMax),
		Temperature: d.between(tempMin, tempMax),
	}
}

// Run writes one frame to w every interval until ctx is done or a write
// fails. The first frame is written immediately.
func (d *Device) Run(ctx context.Context, w io.Writer, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		b, err := frame.Encode(d.Next())
		if err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}

	return nil
}
