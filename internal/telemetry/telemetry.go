// Package telemetry holds the sensor record model shared by the link, the
// store and the read paths.
package telemetry

import (
	"strings"
	"time"
)

// Accel is a three axis accelerometer sample in m/s².
type Accel struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Gyro is an orientation sample in degrees.
type Gyro struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// GPS is a position fix in decimal degrees.
type GPS struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Reading is one sensor snapshot as emitted by the device.
type Reading struct {
	Accel       Accel   `json:"accel"`
	Gyro        Gyro    `json:"gyro"`
	GPS         GPS     `json:"gps"`
	UVIndex     float64 `json:"uv_index"`
	Temperature float64 `json:"temperature"`
}

// Record is a persisted Reading. ID is assigned by the store and orders
// records causally; Timestamp is calendar time and may tie or jitter.
type Record struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Reading
}

// MaxID returns the highest ID in records, or 0 when empty.
func MaxID(records []Record) int64 {
	var maxID int64
	for _, rec := range records {
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	return maxID
}

// Order is the timestamp ordering of a range read.
type Order string

const (
	OrderAscending  Order = "asc"
	OrderDescending Order = "desc"
)

// ParseOrder accepts asc/ascending and desc/descending. Empty means descending.
func ParseOrder(s string) (Order, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "desc", "descending":
		return OrderDescending, true
	case "asc", "ascending":
		return OrderAscending, true
	default:
		return "", false
	}
}

// Valid reports whether o is one of the known orders.
func (o Order) Valid() bool {
	return o == OrderAscending || o == OrderDescending
}
