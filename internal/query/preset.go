package query

import (
	"strings"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
)

// Preset names a range that ends now.
type Preset string

const (
	LastHour  Preset = "hour"
	LastDay   Preset = "day"
	LastWeek  Preset = "week"
	LastMonth Preset = "month"

	DefaultPreset = LastDay
)

// Presets lists every preset, shortest first.
var Presets = []Preset{LastHour, LastDay, LastWeek, LastMonth}

func ParsePreset(s string) (Preset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hour", "1h":
		return LastHour, nil
	case "day", "24h", "":
		return LastDay, nil
	case "week", "7d":
		return LastWeek, nil
	case "month", "30d":
		return LastMonth, nil
	default:
		return "", errors.New().WithData(ErrInvalidRange, "unknown preset "+s)
	}
}

// Range returns the bounds of p relative to now.
func (p Preset) Range(now time.Time) (time.Time, time.Time, error) {
	switch p {
	case LastHour:
		return now.Add(-time.Hour), now, nil
	case LastDay:
		return now.AddDate(0, 0, -1), now, nil
	case LastWeek:
		return now.AddDate(0, 0, -7), now, nil
	case LastMonth:
		return now.AddDate(0, -1, 0), now, nil
	default:
		return time.Time{}, time.Time{}, errors.New().WithData(ErrInvalidRange, "unknown preset "+string(p))
	}
}

// ParseBounds resolves user supplied bounds. With neither from nor to set
// the preset decides (last day when empty). Otherwise from is required, to
// defaults to now, and both are RFC3339.
func ParseBounds(from, to, preset string, now time.Time) (time.Time, time.Time, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" && to == "" {
		p, err := ParsePreset(preset)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return p.Range(now)
	}

	errFactory := errors.New()
	start, err := time.Parse(time.RFC3339, from)
	if err != nil {
		return time.Time{}, time.Time{}, errFactory.WithData(ErrInvalidRange, "from="+from)
	}

	end := now
	if to != "" {
		end, err = time.Parse(time.RFC3339, to)
		if err != nil {
			return time.Time{}, time.Time{}, errFactory.WithData(ErrInvalidRange, "to="+to)
		}
	}

	return start, end, nil
}
