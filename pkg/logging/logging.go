package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sirupsen/logrus"
)

// New creates a logger writing to stderr at level ("debug", "info", ...) with the
// "text" or "json" formatter
func New(level, format string) (*logrus.Logger, error) {
	return NewWithOutput(os.Stderr, level, format)
}

// NewWithOutput is New with an explicit destination
func NewWithOutput(out io.Writer, level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid log level", goerr.V("level", level))
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, goerr.New("invalid log format", goerr.V("format", format))
	}
	return logger, nil
}

type ctxKey struct{}

// With returns a context carrying a request-scoped logger
func With(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From returns the request-scoped logger, or fallback when none is set
func From(ctx context.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if logger, ok := ctx.Value(ctxKey{}).(logrus.FieldLogger); ok {
		return logger
	}
	return fallback
}

// ErrorFields returns the goerr values attached to err as log fields
func ErrorFields(err error) logrus.Fields {
	return logrus.Fields(goerr.Values(err))
}
