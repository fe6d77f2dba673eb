// Package logger provides charmbracelet/log factories shared by the kanaserve packages.
//
// Every logger writes to stderr. Stdout carries the msgpack IPC stream and must stay clean.
package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

var output io.Writer = os.Stderr

// SetOutput redirects loggers created afterwards. Tests use it to silence output.
func SetOutput(w io.Writer) {
	output = w
}

// New creates a timestamped charm logger that respects the global log level.
func New(prefix string) *log.Logger {
	return log.NewWithOptions(output, log.Options{
		Prefix:          prefix,
		ReportCaller:    false,
		ReportTimestamp: true,
		Formatter:       log.TextFormatter,
		Level:           log.GetLevel(),
	})
}
