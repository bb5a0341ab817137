package logging

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

type loggerContextKey struct {
	name string
}

var theContextKey = loggerContextKey{"logger"}

func NewLogger(ctx context.Context, serviceName, serviceVersion string) (context.Context, zerolog.Logger) {
	logger := zerolog.New(os.Stdout).With().Timestamp().
		Str("service", serviceName).
		Str("version", serviceVersion).
		Logger()

	return NewContextWithLogger(ctx, logger), logger
}

func NewContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, theContextKey, logger)
}

// GetFromContext returns the logger stored in the context, or a default
// logger if none has been stored.
func GetFromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(theContextKey).(zerolog.Logger); ok {
		return logger
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
