// Package log builds the process-wide logger: zerolog underneath, exposed
// as a logr.Logger so library code stays backend-agnostic.
package log

import (
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

// New returns a logger writing JSON to stderr when running inside a
// cluster, and a human-readable console format otherwise.
func New() logr.Logger {
	var output io.Writer
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		output = os.Stderr
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02T15:04:05.999Z07:00"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	zl := zerolog.New(output).With().Timestamp().Logger()
	return zerologr.New(&zl)
}
