package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Basic error check functions from standard library
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

type appError struct {
	code    ErrorCode
	message string
	err     error
	data    any
}

// Error renders "message[: data][: cause]".
func (e *appError) Error() string {
	var b strings.Builder

	if e.message != "" {
		b.WriteString(e.message)
	} else {
		b.WriteString(GetErrorMessage(e.code))
	}
	if e.data != nil {
		fmt.Fprintf(&b, ": %v", e.data)
	}
	if e.err != nil {
		b.WriteString(": ")
		b.WriteString(e.err.Error())
	}

	return b.String()
}

func (e *appError) Code() ErrorCode {
	return e.code
}

func (e *appError) WithMessage(msg string) Error {
	c := *e
	c.message = msg
	return &c
}

func (e *appError) WithData(data any) Error {
	c := *e
	c.data = data
	return &c
}

func (e *appError) GetData() any {
	return e.data
}

func (e *appError) Unwrap() error {
	return e.err
}

type factory struct{}

func (factory) New(code ErrorCode) Error {
	return &appError{code: code}
}

func (factory) Wrap(code ErrorCode, err error) Error {
	return &appError{code: code, err: err}
}

func (factory) WithMessage(code ErrorCode, msg string) Error {
	return &appError{code: code, message: msg}
}

func (factory) WithData(code ErrorCode, data any) Error {
	return &appError{code: code, data: data}
}

// New returns the error Factory.
func New() Factory {
	return factory{}
}

// HasCode reports whether any error in err's chain carries one of codes.
// Joined errors are searched as well.
func HasCode(err error, codes ...ErrorCode) bool {
	for _, code := range Codes(err) {
		for _, want := range codes {
			if code == want {
				return true
			}
		}
	}
	return false
}

// CodeOf returns the code of the outermost coded error in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.Code(), true
	}
	return "", false
}

// Codes lists every code in err's chain, outermost first.
func Codes(err error) []ErrorCode {
	var codes []ErrorCode
	walk(err, func(e error) {
		if coded, ok := e.(Coded); ok {
			codes = append(codes, coded.Code())
		}
	})
	return codes
}

func walk(err error, visit func(error)) {
	for err != nil {
		visit(err)
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner, visit)
			}
			return
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return
		}
	}
}
