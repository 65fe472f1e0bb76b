package observability

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Gautam0104/jupi-diamond-sub005/internal/platform/requestctx"
	"github.com/Gautam0104/jupi-diamond-sub005/internal/services"
)

const defaultLogLevel = "info"

// NewLogger constructs a zap logger emitting structured JSON at the supplied level.
// Unknown levels fall back to info.
func NewLogger(level string) (*zap.Logger, error) {
	atomic := zap.NewAtomicLevel()
	if err := atomic.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil || strings.TrimSpace(level) == "" {
		_ = atomic.UnmarshalText([]byte(defaultLogLevel))
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey: "message",
		TimeKey:    "timestamp",
		LevelKey:   "severity",
		EncodeTime: zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: func(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(strings.ToUpper(level.String()))
		},
		CallerKey:     "caller",
		StacktraceKey: "stacktrace",
	}

	cfg := zap.Config{
		Level:             atomic,
		Encoding:          "json",
		EncoderConfig:     encoderCfg,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}

	return cfg.Build()
}

// WithLogger injects the logger into the provided context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return requestctx.WithLogger(ctx, logger)
}

// FromContext retrieves the logger from context, defaulting to a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}

// ServiceLogger adapts zap to the services.Logger hook. Request-scoped loggers found on the
// context win over the fallback so service events carry request and trace ids, and the order
// named by an event is tagged on the request for the completion log line.
func ServiceLogger(fallback *zap.Logger) services.Logger {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger, ok := requestctx.LoggerOK(ctx)
		if !ok {
			logger = fallback
		}
		orderID, _ := fields["order"].(string)
		orderNumber, _ := fields["orderNumber"].(string)
		requestctx.TagOrder(ctx, orderID, orderNumber)
		logger.Log(levelForEvent(event), event, mapFields(fields)...)
	}
}

// levelForEvent derives a level from the event suffix used by the services.
func levelForEvent(event string) zapcore.Level {
	switch {
	case strings.HasSuffix(event, ".failed"), strings.HasSuffix(event, ".error"), strings.HasSuffix(event, ".mismatch"):
		return zapcore.WarnLevel
	case strings.HasSuffix(event, ".debug"):
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func mapFields(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, key := range keys {
		if err, ok := fields[key].(error); ok {
			out = append(out, zap.NamedError(key, err))
			continue
		}
		out = append(out, zap.Any(key, fields[key]))
	}
	return out
}

// PrintfAdapter adapts zap to printf-style logging interfaces such as goose's.
type PrintfAdapter struct {
	logger *zap.SugaredLogger
}

// NewPrintfAdapter creates a PrintfAdapter backed by the supplied logger.
func NewPrintfAdapter(logger *zap.Logger) PrintfAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return PrintfAdapter{logger: logger.Sugar()}
}

// Printf implements the Printf-style logging expected by legacy interfaces.
func (a PrintfAdapter) Printf(format string, args ...any) {
	a.logger.Infof(format, args...)
}

// Fatalf logs at error level without exiting; callers decide how to stop.
func (a PrintfAdapter) Fatalf(format string, args ...any) {
	a.logger.Errorf(format, args...)
}
