package link_test

import (
	"context"
	"net"
	"testing"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/link"
	"codeberg.org/mutker/sensorlog/internal/logger"
	"codeberg.org/mutker/sensorlog/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptionsNormalize(t *testing.T) {
	opts, err := link.PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, link.PortOptions{
		BaudRate:    link.DefaultBaudRate,
		DataBits:    8,
		StopBits:    1,
		Parity:      "N",
		ReadTimeout: link.DefaultReadTimeout,
	}, opts)

	opts, err = link.PortOptions{BaudRate: 9600, Parity: " even ", StopBits: 2}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 9600, opts.BaudRate)
	assert.Equal(t, "E", opts.Parity)
	assert.Equal(t, 2, opts.StopBits)
}

func TestPortOptionsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		opts link.PortOptions
	}{
		{"data bits", link.PortOptions{DataBits: 9}},
		{"stop bits", link.PortOptions{StopBits: 3}},
		{"parity", link.PortOptions{Parity: "mark"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.Normalize()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, link.ErrInvalidOptions))
		})
	}
}

func TestSerialMode(t *testing.T) {
	mode, err := link.PortOptions{BaudRate: 57600, StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 57600, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)

	mode, err = link.PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
}

func TestDeviceOpenerRejectsEmptyEndpoint(t *testing.T) {
	_, err := link.NewDeviceOpener(link.PortOptions{}).Open(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, link.IsConnectionError(err))
}

func TestDeviceOpenerUnavailableTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	r := link.NewReader(link.NewDeviceOpener(link.PortOptions{}), logger.Nop())
	err = r.Connect(context.Background(), "tcp://"+addr)
	require.Error(t, err)
	assert.True(t, link.IsConnectionError(err))
	assert.Equal(t, link.Disconnected, r.State())
}

func TestReaderOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		b, _ := encodeReading(sampleReading(25))
		conn.Write(b)
		// stay idle until the client hangs up
		conn.Read(make([]byte, 1))
	}()

	opener := link.NewDeviceOpener(link.PortOptions{ReadTimeout: testTimeout})
	r := link.NewReader(opener, logger.Nop())
	require.NoError(t, r.Connect(context.Background(), "tcp://"+ln.Addr().String()))

	s := newSink()
	r.SetConsumer(s.consume)
	errCh := startReader(t, r)
	s.await(t)

	// idle reads time out instead of failing
	time.Sleep(3 * testTimeout)
	assert.Equal(t, link.Reading, r.State())

	r.Stop()
	require.NoError(t, waitRun(t, errCh, time.Second))
	assert.Equal(t, []telemetry.Reading{sampleReading(25)}, s.got())

	select {
	case <-serverDone:
	case <-time.After(time.Second):
		t.Fatal("server did not observe the hang up")
	}
}
