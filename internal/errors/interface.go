package errors

// ErrorCode identifies a class of failure. Packages declare their own codes
// next to the code that returns them and register messages for them.
type ErrorCode string

// Coded is implemented by any error that carries an ErrorCode.
type Coded interface {
	error
	Code() ErrorCode
}

// Error is a coded error that may carry a cause, a custom message and
// structured data describing the failure.
type Error interface {
	Coded
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory builds domain errors.
type Factory interface {
	New(code ErrorCode) Error
	Wrap(code ErrorCode, err error) Error
	WithMessage(code ErrorCode, msg string) Error
	WithData(code ErrorCode, data any) Error
}
