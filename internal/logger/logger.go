package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerologLogger{z: zerolog.New(io.Discard)}

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// ParseLevel maps a configured level name onto a LogLevel.
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, name)
	}
}

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

type zerologLogger struct {
	z zerolog.Logger
}

// New builds a Logger writing to out at the given level.
func New(out io.Writer, level LogLevel, isService bool) Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    isService,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	z := zerolog.New(output).Level(zerolog.Level(level)).With().Timestamp().Logger()
	return zerologLogger{z: z}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return zerologLogger{z: zerolog.Nop()}
}

// Init initializes the package level logger used by the CLI.
func Init(level LogLevel, isService bool) Logger {
	l := New(os.Stdout, level, isService)
	log = l.(zerologLogger)
	return l
}

// Default returns the package level logger.
func Default() Logger {
	return log
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

func (l zerologLogger) Debug() *LogEvent {
	return &LogEvent{l.z.Debug()}
}

func (l zerologLogger) Info() *LogEvent {
	return &LogEvent{l.z.Info()}
}

func (l zerologLogger) Warn() *LogEvent {
	return &LogEvent{l.z.Warn()}
}

func (l zerologLogger) Error() *LogEvent {
	return &LogEvent{l.z.Error()}
}

// ErrorWithCode logs err with every error code found in its chain.
func (l zerologLogger) ErrorWithCode(err error) *LogEvent {
	ev := l.z.Error().Err(err)
	if codes := errors.Codes(err); len(codes) > 0 {
		names := make([]string, len(codes))
		for i, c := range codes {
			names[i] = string(c)
		}
		ev = ev.Strs("error_codes", names)
	}
	return &LogEvent{ev}
}

// ErrorWithContext logs an error with the component and operation it came from
func (l zerologLogger) ErrorWithContext(err error, component, operation string) *LogEvent {
	ev := l.z.Error().
		Str("component", component).
		Str("operation", operation).
		Err(err)
	if code, ok := errors.CodeOf(err); ok {
		ev = ev.Str("error_code", string(code))
	}
	return &LogEvent{ev}
}

func (l zerologLogger) With(component string) Logger {
	return zerologLogger{z: l.z.With().Str("component", component).Logger()}
}

// Debug logs a debug message
func Debug() *LogEvent {
	return log.Debug()
}

// Info logs an info message
func Info() *LogEvent {
	return log.Info()
}

// Warn logs a warning message
func Warn() *LogEvent {
	return log.Warn()
}

// Error logs an error message
func Error() *LogEvent {
	return log.Error()
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.z.Fatal()}
}
