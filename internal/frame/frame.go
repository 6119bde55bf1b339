// Package frame converts telemetry readings to and from newline delimited
// JSON frames.
//
// A frame is a single JSON object on one line:
//
//	{"accel":{"x":0,"y":0,"z":9.8},"gyro":{"roll":0,"pitch":0,"yaw":0},
//	 "gps":{"lat":-12.0464,"lon":-77.0428},"uv_index":3,"temperature":21.5}
//
// Every field is required and no other field is accepted.
package frame

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
)

// Delimiter terminates every frame on the wire.
const Delimiter = '\n'

// MaxLength bounds a single frame, delimiter excluded.
const MaxLength = 4096

var utf8BOM = []byte("\xef\xbb\xbf")

type wireAccel struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

type wireGyro struct {
	Roll  *float64 `json:"roll"`
	Pitch *float64 `json:"pitch"`
	Yaw   *float64 `json:"yaw"`
}

type wireGPS struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

type wireFrame struct {
	Accel       *wireAccel `json:"accel"`
	Gyro        *wireGyro  `json:"gyro"`
	GPS         *wireGPS   `json:"gps"`
	UVIndex     *float64   `json:"uv_index"`
	Temperature *float64   `json:"temperature"`
}

// Encode renders r as a single newline terminated frame.
func Encode(r telemetry.Reading) ([]byte, error) {
	w := wireFrame{
		Accel:       &wireAccel{X: &r.Accel.X, Y: &r.Accel.Y, Z: &r.Accel.Z},
		Gyro:        &wireGyro{Roll: &r.Gyro.Roll, Pitch: &r.Gyro.Pitch, Yaw: &r.Gyro.Yaw},
		GPS:         &wireGPS{Lat: &r.GPS.Lat, Lon: &r.GPS.Lon},
		UVIndex:     &r.UVIndex,
		Temperature: &r.Temperature,
	}

	b, err := json.Marshal(w)
	if err != nil {
		return nil, errors.New().Wrap(ErrUnencodable, err)
	}
	return append(b, Delimiter), nil
}

// Decode parses one frame. The delimiter may or may not be present. If the
// line does not parse as is, it is trimmed of surrounding whitespace and a
// byte order mark and parsed once more before failing.
func Decode(line []byte) (telemetry.Reading, error) {
	if len(line) > MaxLength+1 {
		return telemetry.Reading{}, errors.New().WithData(ErrTooLong, len(line))
	}

	r, err := decode(line)
	if err == nil {
		return r, nil
	}

	trimmed := bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(line), utf8BOM))
	if bytes.Equal(trimmed, line) {
		return telemetry.Reading{}, err
	}
	return decode(trimmed)
}

func decode(line []byte) (telemetry.Reading, error) {
	dec := json.NewDecoder(bytes.NewReader(line))

	var top fields
	if err := dec.Decode(&top); err != nil {
		return telemetry.Reading{}, errors.New().Wrap(ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return telemetry.Reading{}, errors.New().WithData(ErrMalformed, "trailing data after frame")
	}

	var (
		fr fieldReader
		r  telemetry.Reading
	)

	fr.checkKeys(top, "", "accel", "gyro", "gps", "uv_index", "temperature")

	if accel, ok := fr.object(top, "", "accel", "x", "y", "z"); ok {
		r.Accel = telemetry.Accel{
			X: fr.number(accel, "accel", "x"),
			Y: fr.number(accel, "accel", "y"),
			Z: fr.number(accel, "accel", "z"),
		}
	}
	if gyro, ok := fr.object(top, "", "gyro", "roll", "pitch", "yaw"); ok {
		r.Gyro = telemetry.Gyro{
			Roll:  fr.number(gyro, "gyro", "roll"),
			Pitch: fr.number(gyro, "gyro", "pitch"),
			Yaw:   fr.number(gyro, "gyro", "yaw"),
		}
	}
	if gps, ok := fr.object(top, "", "gps", "lat", "lon"); ok {
		r.GPS = telemetry.GPS{
			Lat: fr.number(gps, "gps", "lat"),
			Lon: fr.number(gps, "gps", "lon"),
		}
	}
	r.UVIndex = fr.number(top, "", "uv_index")
	r.Temperature = fr.number(top, "", "temperature")

	if err := fr.result(); err != nil {
		return telemetry.Reading{}, err
	}
	return r, nil
}

// fields holds one JSON object by exact key. encoding/json matches struct
// tags case-insensitively, so names are checked here instead.
type fields map[string]json.RawMessage

// fieldReader walks a frame and keeps the first structural error plus every
// missing field name.
type fieldReader struct {
	err     error
	missing []string
}

func fieldPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (fr *fieldReader) fail(err error) {
	if fr.err == nil {
		fr.err = err
	}
}

func (fr *fieldReader) checkKeys(obj fields, path string, names ...string) {
	var unknown []string
	for key := range obj {
		if !slices.Contains(names, key) {
			unknown = append(unknown, fieldPath(path, key))
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		fr.fail(errors.New().WithData(ErrUnknownField, strings.Join(unknown, ", ")))
	}
}

func (fr *fieldReader) object(parent fields, path, name string, names ...string) (fields, bool) {
	full := fieldPath(path, name)

	raw, ok := parent[name]
	if !ok || isNull(raw) {
		fr.missing = append(fr.missing, full)
		return nil, false
	}

	var obj fields
	if err := json.Unmarshal(raw, &obj); err != nil {
		fr.fail(errors.New().Wrap(ErrMalformed, fmt.Errorf("%s: %w", full, err)))
		return nil, false
	}

	fr.checkKeys(obj, full, names...)
	return obj, true
}

func (fr *fieldReader) number(obj fields, path, name string) float64 {
	full := fieldPath(path, name)

	raw, ok := obj[name]
	if !ok || isNull(raw) {
		fr.missing = append(fr.missing, full)
		return 0
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		fr.fail(errors.New().Wrap(ErrMalformed, fmt.Errorf("%s: %w", full, err)))
	}
	return v
}

func (fr *fieldReader) result() error {
	if fr.err != nil {
		return fr.err
	}
	if len(fr.missing) > 0 {
		return errors.New().WithData(ErrMissingField, strings.Join(fr.missing, ", "))
	}
	return nil
}
