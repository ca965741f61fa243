/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const (
	ctxKeyRequestType ctxKey = iota
	ctxKeyIdempotentHint
)

// NewContextWithRequestType creates a new context with request type.
// It overrides the request type the client was created with for a single call.
func NewContextWithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestType, requestType)
}

// GetRequestTypeFromContext extracts request type from the context.
func GetRequestTypeFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyRequestType).(string)
	return s
}

// NewContextWithIdempotentHint returns a derived context that marks the request as idempotent.
// DefaultCheckRetry retries server errors only for idempotent requests.
func NewContextWithIdempotentHint(ctx context.Context, isIdempotent bool) context.Context {
	return context.WithValue(ctx, ctxKeyIdempotentHint, isIdempotent)
}

// GetIdempotentHintFromContext extracts the "idempotent request" hint from context.
func GetIdempotentHintFromContext(ctx context.Context) bool {
	b, _ := ctx.Value(ctxKeyIdempotentHint).(bool)
	return b
}

func requestTypeOrDefault(ctx context.Context, def string) string {
	if t := GetRequestTypeFromContext(ctx); t != "" {
		return t
	}
	if def == "" {
		return DefaultRequestType
	}
	return def
}
