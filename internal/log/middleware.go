package log

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

const loggerContextKey contextKey = "logger"

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// FromContext returns the request logger, or one over slog.Default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		base:      slog.Default().Handler(),
		component: "unknown",
	}
}

// Middleware attaches logger to every request context, tagged with the
// request id when extractRequestID returns one.
func Middleware(logger *Logger, extractRequestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logger
			if extractRequestID != nil {
				if id := extractRequestID(r); id != "" {
					l = l.With(FieldRequestID, id)
				}
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), l)))
		})
	}
}

// StructuredLogger emits the fixed-shape HTTP and ledger log lines.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithClientIP(clientIP)

	sl.logger.DebugContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs at info for 2xx/3xx, warn for 4xx and error for 5xx.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	sl.logger.Log(ctx, LevelForStatus(statusCode), "HTTP request completed",
		NewFields().
			WithHTTPRequest(r.Method, r.URL.Path, "", "").
			WithHTTPResponse(statusCode, durationMs).
			WithClientIP(clientIP).
			ToSlice()...)
}

func (sl *StructuredLogger) LogTransactionCreated(ctx context.Context, userID, txID, kind, amount string) {
	sl.logger.InfoContext(ctx, "Transaction created",
		NewFields().
			WithUser(userID).
			WithTransaction(txID, kind, amount).
			WithOperation(OpCreate).
			ToSlice()...)
}

func (sl *StructuredLogger) LogEventExported(ctx context.Context, eventType, userID, txID, ref string) {
	fields := NewFields().WithUser(userID).WithOperation(OpExport)
	fields[FieldEventType] = eventType
	fields[FieldSheetsRef] = ref
	if txID != "" {
		fields[FieldTransactionID] = txID
	}
	sl.logger.InfoContext(ctx, "Ledger event exported", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	sl.logger.LogError(ctx, msg, err, fields.WithOperation(operation))
}

func LevelForStatus(statusCode int) slog.Level {
	switch {
	case statusCode >= 500:
		return slog.LevelError
	case statusCode >= 400:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
