package logger

import corelogger "github.com/kilianp07/weakevent/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.Nop

// New returns a Logger for the given component using the settings applied
// by Setup.
func New(component string) Logger {
	return NewZerologLogger(component)
}
