package tracer

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "sharedauth/pkg/domain-errors"
)

const instrumentationName = "sharedauth"

// OTelTracer emits spans through OpenTelemetry. Every span carries the
// service environment, attributes whose key names a token are fingerprinted
// before export, and span status follows the auth error taxonomy.
type OTelTracer struct {
	tracer trace.Tracer
	base   []attribute.KeyValue
}

type OTelOption func(*OTelTracer)

// WithOTelTracer injects a pre-configured OpenTelemetry tracer. Without one
// the global provider is used, which is a no-op until an SDK is installed.
func WithOTelTracer(t trace.Tracer) OTelOption {
	return func(o *OTelTracer) {
		o.tracer = t
	}
}

// WithEnvironment stamps deployment.environment on every span.
func WithEnvironment(env string) OTelOption {
	return func(o *OTelTracer) {
		if env != "" {
			o.base = append(o.base, attribute.String("deployment.environment", env))
		}
	}
}

func NewOTel(opts ...OTelOption) *OTelTracer {
	t := &OTelTracer{}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer(instrumentationName)
	}
	return t
}

func (t *OTelTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	kvs := append(append([]attribute.KeyValue(nil), t.base...), toOTelAttributes(attrs)...)
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(kvs...))
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

// End closes the span. A caller giving up is not a failure of the operation,
// and client-side auth outcomes (no session, expired cookie, missing role) are
// tagged with their code but leave the span status unset.
func (s *otelSpan) End(err error) {
	defer s.span.End()
	if err == nil {
		s.span.SetStatus(codes.Ok, "")
		return
	}
	if errors.Is(err, context.Canceled) {
		s.span.SetAttributes(attribute.Bool("canceled", true))
		return
	}
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		s.span.SetAttributes(attribute.String("error.code", string(domainErr.Code)))
		if clientOutcome(domainErr.Code) {
			return
		}
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) SetAttributes(attrs ...Attribute) {
	s.span.SetAttributes(toOTelAttributes(attrs)...)
}

func clientOutcome(code dErrors.Code) bool {
	switch code {
	case dErrors.CodeMissingSessionOrToken, dErrors.CodeSessionExpired, dErrors.CodeTokenExpired,
		dErrors.CodeInsufficientRole, dErrors.CodeNoRefreshToken, dErrors.CodeInvalidInput:
		return true
	}
	return false
}

// secretKey reports whether an attribute key names a raw credential. Keys
// already carrying a fingerprint (".fp") pass through.
func secretKey(key string) bool {
	k := strings.ToLower(key)
	if strings.HasSuffix(k, ".fp") {
		return false
	}
	return strings.Contains(k, "token") || strings.Contains(k, "secret") || strings.Contains(k, "cookie")
}

func toOTelAttributes(attrs []Attribute) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	result := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		if secretKey(a.Key) {
			if v, ok := a.Value.(string); ok {
				result = append(result, attribute.String(a.Key+".fp", Fingerprint(v)))
			}
			continue
		}
		switch v := a.Value.(type) {
		case string:
			result = append(result, attribute.String(a.Key, v))
		case bool:
			result = append(result, attribute.Bool(a.Key, v))
		case int64:
			result = append(result, attribute.Int64(a.Key, v))
		case int:
			result = append(result, attribute.Int(a.Key, v))
		case time.Duration:
			result = append(result, attribute.Int64(a.Key+"_ms", v.Milliseconds()))
		case []string:
			result = append(result, attribute.StringSlice(a.Key, v))
		}
	}
	return result
}

var (
	_ Tracer = (*OTelTracer)(nil)
	_ Span   = (*otelSpan)(nil)
)
