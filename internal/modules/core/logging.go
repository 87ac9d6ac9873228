package core

import (
	"context"

	"github.com/eskrenkovic/mediator-go"

	"go.uber.org/zap"
)

type loggerContextKey struct{}

// Redactor is implemented by requests carrying secrets; the logging
// behavior logs the redacted form instead of the request itself.
type Redactor interface {
	Redact() interface{}
}

func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// Log returns the context logger, or a no-op logger.
func Log(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}

	return zap.NewNop()
}

func LogError(ctx context.Context, msg string, fields ...zap.Field) {
	Log(ctx).Error(msg, fields...)
}

func contextFields(ctx context.Context) []zap.Field {
	var logFields []zap.Field

	if correlationID := CorrelationID(ctx); correlationID != "" {
		logFields = append(logFields, zap.String("correlation_id", correlationID))
	}

	if connectionID, ok := ConnectionID(ctx); ok {
		logFields = append(logFields, zap.Stringer("connection_id", connectionID))
	}

	return logFields
}

var _ mediator.PipelineBehavior = (*RequestLoggingBehavior)(nil)

type RequestLoggingBehavior struct {
	Logger *zap.Logger
}

func (b *RequestLoggingBehavior) Handle(
	ctx context.Context,
	request interface{},
	next mediator.RequestHandlerFunc,
) (interface{}, error) {
	logFields := contextFields(ctx)

	if request != nil {
		body := request
		if redactor, ok := request.(Redactor); ok {
			body = redactor.Redact()
		}
		logFields = append(logFields, zap.Any("request_body", body))
	}

	b.Logger.Info("processing request", logFields...)

	return next(ctx, request)
}

var _ mediator.PipelineBehavior = (*HandlerErrorLoggingBehavior)(nil)

type HandlerErrorLoggingBehavior struct {
	Logger *zap.Logger
}

func (b *HandlerErrorLoggingBehavior) Handle(
	ctx context.Context,
	request interface{},
	next mediator.RequestHandlerFunc,
) (interface{}, error) {
	response, err := next(ctx, request)
	if err != nil {
		logFields := append(contextFields(ctx), zap.Error(err), zap.Int("status_code", StatusCode(err)))

		// Domain rejections are expected traffic.
		if StatusCode(err) < 500 {
			b.Logger.Info("handler rejected request", logFields...)
		} else {
			b.Logger.Error("handler returned error", logFields...)
		}
	}

	return response, err
}
