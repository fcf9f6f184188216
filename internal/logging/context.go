package logging

import (
	"context"

	"go.uber.org/zap"
)

// Context key types
type moduleCtxKey struct{}
type pathCtxKey struct{}
type requestCtxKey struct{}

// WithModuleID returns a context carrying the module id being orchestrated.
func WithModuleID(ctx context.Context, moduleID string) context.Context {
	return context.WithValue(ctx, moduleCtxKey{}, moduleID)
}

// ModuleIDFromContext returns the module id from context, or "".
func ModuleIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(moduleCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithPath returns a context carrying the navigation path being handled.
func WithPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, pathCtxKey{}, path)
}

// PathFromContext returns the navigation path from context, or "".
func PathFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(pathCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID returns a context carrying an HTTP request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request id from context, or "".
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 3)

	if moduleID := ModuleIDFromContext(ctx); moduleID != "" {
		fields = append(fields, zap.String("module.id", moduleID))
	}
	if path := PathFromContext(ctx); path != "" {
		fields = append(fields, zap.String("nav.path", path))
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}
