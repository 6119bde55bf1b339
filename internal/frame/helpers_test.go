package frame_test

import "codeberg.org/mutker/sensorlog/internal/errors"

func errorCode(err error) string {
	code, _ := errors.CodeOf(err)
	return string(code)
}
