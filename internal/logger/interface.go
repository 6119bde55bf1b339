package logger

// Logger is the logging surface every package receives. Components scope it
// with With so each line carries the component that wrote it.
type Logger interface {
	Debug() *LogEvent
	Info() *LogEvent
	Warn() *LogEvent
	Error() *LogEvent
	ErrorWithCode(err error) *LogEvent
	ErrorWithContext(err error, component, operation string) *LogEvent
	With(component string) Logger
}
