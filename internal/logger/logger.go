// Package logger builds the logrus logger shared by the crawler and CLI.
// Logs go to stderr by default so that documents written to stdout stay
// machine-readable.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options controls logger construction.
type Options struct {
	// Verbose lowers the level to Debug.
	Verbose bool
	// Silent raises the level to Error. It wins over Verbose.
	Silent bool
	// JSON switches to the JSON formatter.
	JSON bool
	// NoColor disables ANSI colors in the text formatter.
	NoColor bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New creates a configured logger.
func New(opts Options) *logrus.Logger {
	l := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)

	switch {
	case opts.Silent:
		l.SetLevel(logrus.ErrorLevel)
	case opts.Verbose:
		l.SetLevel(logrus.DebugLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
			DisableColors:   opts.NoColor,
		})
	}
	return l
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
