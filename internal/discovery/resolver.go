package discovery

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/dynsub/internal/domain"
	errspkg "github.com/drblury/dynsub/internal/runtime/errors"
)

const tracerName = "github.com/drblury/dynsub/internal/discovery"

// Resolver turns the type information carried by a discovery entry into a
// type descriptor. Each call is a single bounded attempt.
type Resolver struct {
	Types   TypeResolver
	Scope   domain.FindScope
	Timeout time.Duration
}

// NewResolver returns a resolver searching the global scope with the
// default timeout.
func NewResolver(types TypeResolver) *Resolver {
	return &Resolver{Types: types, Scope: domain.FindScopeGlobal, Timeout: DefaultResolveTimeout}
}

// Resolve attempts resolution once. Every failure is a *errors.RecoverableError.
func (r *Resolver) Resolve(ctx context.Context, entry *Entry) (*domain.Descriptor, error) {
	name := string(entry.Record.TopicName)
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "discovery.Resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("dynsub.topic", name),
		attribute.String("dynsub.scope", r.Scope.String()),
		attribute.Int64("dynsub.timeout_ms", timeout.Milliseconds()),
	)

	info := entry.Record.TypeInfo
	if info == nil {
		return nil, failResolve(span, name, errspkg.ErrTypeInfoUnavailable)
	}
	span.SetAttributes(attribute.String("dynsub.type_name", info.TypeName))

	desc, err := r.Types.ResolveTypeDescriptor(ctx, info, r.Scope, timeout)
	if err != nil {
		return nil, failResolve(span, name, err)
	}
	if desc == nil {
		return nil, failResolve(span, name, errspkg.ErrTypeInfoUnavailable)
	}
	return desc, nil
}

func failResolve(span trace.Span, topic string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return errspkg.Recoverable("resolve", topic, err)
}

// ResolveFailureReason classifies a resolution error for metrics.
func ResolveFailureReason(err error) string {
	switch {
	case errors.Is(err, errspkg.ErrTypeInfoUnavailable):
		return "type_info_unavailable"
	case errors.Is(err, errspkg.ErrResolveTimeout):
		return "timeout"
	case errors.Is(err, errspkg.ErrTypeNotFound):
		return "not_found"
	case errors.Is(err, errspkg.ErrInvalidTypeObject):
		return "invalid_type_object"
	default:
		return "other"
	}
}
