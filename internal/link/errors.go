package link

import "codeberg.org/mutker/sensorlog/internal/errors"

const (
	ErrConnection     = errors.ErrorCode("link_connection_failed")
	ErrBusy           = errors.ErrorCode("link_busy")
	ErrLost           = errors.ErrorCode("link_lost")
	ErrInvalidState   = errors.ErrorCode("link_invalid_state")
	ErrInvalidOptions = errors.ErrorCode("link_invalid_options")
	ErrListPorts      = errors.ErrorCode("link_list_ports_failed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrConnection:     "Failed to connect to device",
		ErrBusy:           "Device is busy",
		ErrLost:           "Connection to device lost",
		ErrInvalidState:   "Invalid link state",
		ErrInvalidOptions: "Invalid port options",
		ErrListPorts:      "Failed to list serial ports",
	})
}

// IsConnectionError reports whether err means the link could not be opened
// or was lost while reading.
func IsConnectionError(err error) bool {
	return errors.HasCode(err, ErrConnection, ErrLost)
}
