package o11y

import (
	"context"

	"github.com/hlatlas/pxmeta/internal/pkg/infrastructure/o11y/logging"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Init sets up logging for the named service and returns a context that
// carries the logger, along with a cleanup function to be deferred by main.
func Init(ctx context.Context, serviceName, serviceVersion string) (context.Context, zerolog.Logger, func()) {
	ctx, logger := logging.NewLogger(ctx, serviceName, serviceVersion)
	return ctx, logger, func() {}
}

// AddTraceIDToLoggerAndStoreInContext decorates the logger with the current
// trace id, if the span is sampled, and stores it in the returned context.
func AddTraceIDToLoggerAndStoreInContext(span trace.Span, logger zerolog.Logger, ctx context.Context) (string, context.Context, zerolog.Logger) {
	traceID := ""

	if span.SpanContext().IsSampled() {
		traceID = span.SpanContext().TraceID().String()
		logger = logger.With().Str("traceID", traceID).Logger()
	}

	return traceID, logging.NewContextWithLogger(ctx, logger), logger
}
