package domain

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/drblury/dynsub/internal/runtime/logging"
)

const tracerName = "github.com/drblury/dynsub/internal/domain"

// MiddlewareBuilder constructs a handler middleware for a participant's
// built-in traffic router. Returning a nil middleware skips it.
type MiddlewareBuilder func(*Participant) (message.HandlerMiddleware, error)

// MiddlewareRegistration captures how a middleware is added to the router.
type MiddlewareRegistration struct {
	Name       string
	Middleware message.HandlerMiddleware
	Builder    MiddlewareBuilder
}

// DefaultMiddlewares is the chain every participant router gets unless
// Options.Middlewares overrides it.
func DefaultMiddlewares() []MiddlewareRegistration {
	return []MiddlewareRegistration{
		LogMessagesMiddleware(nil),
		TracerMiddleware(),
		MetricsMiddleware(),
		RecovererMiddleware(),
	}
}

// MetricsMiddleware records router metrics when Options.Registerer is set.
func MetricsMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "metrics",
		Builder: func(p *Participant) (message.HandlerMiddleware, error) {
			if p.registerer == nil {
				return nil, nil
			}
			builder := metrics.NewPrometheusMetricsBuilder(p.registerer, "dynsub", p.pubSubSystem)
			builder.AddPrometheusRouterMetrics(p.router)
			return builder.NewRouterMiddleware().Middleware, nil
		},
	}
}

// LogMessagesMiddleware logs every built-in message at debug level. A nil
// logger uses the participant's.
func LogMessagesMiddleware(logger logging.ServiceLogger) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "log_messages",
		Builder: func(p *Participant) (message.HandlerMiddleware, error) {
			l := logger
			if l == nil {
				l = p.logger
			}
			if l == nil {
				return nil, errors.New("log messages middleware requires a logger")
			}
			return func(h message.HandlerFunc) message.HandlerFunc {
				return func(msg *message.Message) ([]*message.Message, error) {
					l.Debug("Built-in message received", logging.LogFields{
						"message_uuid": msg.UUID,
						"handler":      message.HandlerNameFromCtx(msg.Context()),
						"payload":      string(msg.Payload),
					})
					return h(msg)
				}
			}, nil
		},
	}
}

// TracerMiddleware wraps built-in message handling in an OpenTelemetry span.
func TracerMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "tracer",
		Builder: func(p *Participant) (message.HandlerMiddleware, error) {
			tracer := otel.Tracer(tracerName)
			return func(h message.HandlerFunc) message.HandlerFunc {
				return func(msg *message.Message) ([]*message.Message, error) {
					ctx, span := tracer.Start(msg.Context(), "ProcessAnnouncement")
					defer span.End()
					msg.SetContext(ctx)

					span.SetAttributes(
						attribute.String("message.uuid", msg.UUID),
						attribute.String("dynsub.participant", p.guid),
						attribute.String("dynsub.handler", message.HandlerNameFromCtx(ctx)),
					)
					return h(msg)
				}
			}, nil
		},
	}
}

// RecovererMiddleware converts handler panics into errors.
func RecovererMiddleware() MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "recoverer",
		Middleware: middleware.Recoverer,
	}
}

// RegisterMiddleware attaches a middleware to the participant's router.
func (p *Participant) RegisterMiddleware(cfg MiddlewareRegistration) error {
	var mw message.HandlerMiddleware
	switch {
	case cfg.Middleware != nil:
		mw = cfg.Middleware
	case cfg.Builder != nil:
		var err error
		mw, err = cfg.Builder(p)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("middleware %q requires Middleware or Builder", cfg.Name)
	}

	if mw == nil {
		return nil
	}
	p.router.AddMiddleware(mw)
	return nil
}
