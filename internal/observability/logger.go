package observability

import (
	"context"
	"log/slog"
	"os"
)

type ctxKey string

const (
	ctxKeyRequestID   ctxKey = "request_id"
	ctxKeyEncounterID ctxKey = "encounter_id"
)

// basic global logger, JSON to stdout.
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

func Logger() *slog.Logger {
	return logger
}

// WithFields returns a logger with additional fields.
func WithFields(kv ...any) *slog.Logger {
	return logger.With(kv...)
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// WithEncounterID stores an encounter_id in the context.
func WithEncounterID(ctx context.Context, encounterID string) context.Context {
	return context.WithValue(ctx, ctxKeyEncounterID, encounterID)
}

// LoggerFromContext adds request_id and encounter_id if present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	log := logger
	if reqID, _ := ctx.Value(ctxKeyRequestID).(string); reqID != "" {
		log = log.With("request_id", reqID)
	}
	if encID, _ := ctx.Value(ctxKeyEncounterID).(string); encID != "" {
		log = log.With("encounter_id", encID)
	}
	return log
}
