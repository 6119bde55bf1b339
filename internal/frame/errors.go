package frame

import "codeberg.org/mutker/sensorlog/internal/errors"

const (
	ErrMalformed    = errors.ErrorCode("frame_malformed")
	ErrMissingField = errors.ErrorCode("frame_missing_field")
	ErrUnknownField = errors.ErrorCode("frame_unknown_field")
	ErrTooLong      = errors.ErrorCode("frame_too_long")
	ErrUnencodable  = errors.ErrorCode("frame_unencodable")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrMalformed:    "Malformed frame",
		ErrMissingField: "Frame is missing a required field",
		ErrUnknownField: "Frame has an unknown field",
		ErrTooLong:      "Frame exceeds maximum length",
		ErrUnencodable:  "Record cannot be encoded as a frame",
	})
}

// IsFramingError reports whether err is a decode failure for a single line.
func IsFramingError(err error) bool {
	return errors.HasCode(err, ErrMalformed, ErrMissingField, ErrUnknownField, ErrTooLong)
}
