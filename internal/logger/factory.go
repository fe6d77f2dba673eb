package logger

import (
	"github.com/charmbracelet/log"
)

// Default creates a charm logger without timestamps, used by CLI output.
func Default(prefix string) *log.Logger {
	return log.NewWithOptions(output, log.Options{
		Prefix:          prefix,
		ReportCaller:    false,
		ReportTimestamp: false,
		Formatter:       log.TextFormatter,
		Level:           log.GetLevel(),
	})
}

// NewWithConfig creates a charm logger with custom config
func NewWithConfig(prefix string, level log.Level, caller bool, showTimestamp bool, fmt log.Formatter) *log.Logger {
	return log.NewWithOptions(output, log.Options{
		Prefix:          prefix,
		Level:           level,
		ReportCaller:    caller,
		ReportTimestamp: showTimestamp,
		Formatter:       fmt,
	})
}

// Component returns the prefixed logger used by long-lived components.
// Debug mode switches it to logfmt with caller info.
func Component(name string, debug bool) *log.Logger {
	if debug {
		return NewWithConfig(name, log.DebugLevel, true, true, log.LogfmtFormatter)
	}
	return New(name)
}
