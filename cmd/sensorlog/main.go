package main

import (
	"fmt"
	"os"

	"codeberg.org/mutker/sensorlog/internal/logger"
)

func main() {
	if err := Execute(); err != nil {
		// Under a service manager stderr lands in the journal next to the
		// structured log, so only the log line is written.
		if logger.IsService() {
			log.ErrorWithCode(err).Msg("Command failed")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
