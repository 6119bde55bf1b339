package telemetry_test

import (
	"testing"

	"codeberg.org/mutker/sensorlog/internal/telemetry"
	"github.com/stretchr/testify/assert"
)

func TestMaxID(t *testing.T) {
	assert.Equal(t, int64(0), telemetry.MaxID(nil))
	assert.Equal(t, int64(7), telemetry.MaxID([]telemetry.Record{{ID: 3}, {ID: 7}, {ID: 5}}))
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		in   string
		want telemetry.Order
		ok   bool
	}{
		{"", telemetry.OrderDescending, true},
		{"DESC", telemetry.OrderDescending, true},
		{"ascending", telemetry.OrderAscending, true},
		{" asc ", telemetry.OrderAscending, true},
		{"sideways", "", false},
	}

	for _, tt := range tests {
		got, ok := telemetry.ParseOrder(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	assert.True(t, telemetry.OrderAscending.Valid())
	assert.False(t, telemetry.Order("up").Valid())
}
