package audit

import (
	"context"
	"strings"
)

// RequestMeta is the transport information copied onto every entry.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

type metaKey struct{}

// WithRequestMeta attaches request metadata to the context for audit logging.
func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	m.RequestID = strings.TrimSpace(m.RequestID)
	return context.WithValue(ctx, metaKey{}, m)
}

// MetaFromContext returns the request metadata, or the zero value.
func MetaFromContext(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	m, _ := ctx.Value(metaKey{}).(RequestMeta)
	return m
}

// RequestIDFromContext returns the request identifier if one was attached.
func RequestIDFromContext(ctx context.Context) string {
	return MetaFromContext(ctx).RequestID
}
