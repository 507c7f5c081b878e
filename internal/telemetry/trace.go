package telemetry

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/campusconnect/internal/errors"
)

// instrumentation is the prefix of every tracer name.
const instrumentation = "github.com/felixgeelhaar/campusconnect/"

// Common attribute keys
const (
	AttrUserID    = "user.id"
	AttrTenantID  = "tenant.id"
	AttrToken     = "session.token"
	AttrOutcome   = "session.outcome"
	AttrBackend   = "profile.backend"
	AttrErrorCode = "error.code"
	AttrErrorKind = "error.kind"
)

// StartSpan starts a span on the tracer of component (session, server, ...).
//
//	ctx, span := telemetry.StartSpan(ctx, "session", "session.resolve",
//	    attribute.String(telemetry.AttrUserID, userID),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, component, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer(instrumentation + component)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartCommandSpan creates a span for a CLI command execution.
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	return StartSpan(ctx, "cmd", "command."+cmdName,
		attribute.String("command", cmdName),
		attribute.String("component", "cli"),
	)
}

// StartServerSpan continues the trace carried by r's headers.
func StartServerSpan(r *http.Request, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := GetTracerProvider().Tracer(instrumentation + "server")
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		}, attrs...)...),
	)
}

// Inject writes the trace context of ctx into outgoing request headers.
func Inject(ctx context.Context, h http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records err on span and sets error status. Coded errors add
// their code and kind.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if ce, ok := errors.As(err); ok {
		span.SetAttributes(
			attribute.String(AttrErrorCode, string(ce.Code)),
			attribute.String(AttrErrorKind, ce.Kind.String()),
		)
	}
}
