package simulate

import (
	"context"
	"net"
	"sync"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/logger"
)

// Serve accepts connections on ln and streams simulated frames to each one
// until ctx is done. Every connection gets its own Device.
func Serve(ctx context.Context, ln net.Listener, interval time.Duration, seed uint64, log logger.Logger) error {
	log = log.With("simulate")

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for n := uint64(0); ; n++ {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.New().Wrap(errors.ErrOperationFailed, err)
		}

		log.Info().Str("remote", conn.RemoteAddr().String()).Msg("Client connected")

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()

			closeOnCancel := context.AfterFunc(ctx, func() { conn.Close() })
			defer closeOnCancel()

			err := NewDevice(seed+n).Run(ctx, conn, interval)
			log.Info().Str("remote", conn.RemoteAddr().String()).AnErr("reason", err).Msg("Client disconnected")
		}()
	}
}
