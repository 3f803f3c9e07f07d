package dispatcher

import "context"

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxSessionID
	ctxProgressToken
	ctxMeta
)

// RequestIDFromContext returns the id of the request currently being
// dispatched, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxRequestID).(string)
	return id, ok
}

// SessionIDFromContext returns the connection's session id, if any.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxSessionID).(string)
	return id, ok
}

// ProgressTokenFromContext returns the caller-supplied progress token, if
// params._meta.progressToken was set.
func ProgressTokenFromContext(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(ctxProgressToken).(string)
	return tok, ok
}

// MetaFromContext returns the raw _meta map for the request being
// dispatched, if any.
func MetaFromContext(ctx context.Context) (map[string]any, bool) {
	meta, ok := ctx.Value(ctxMeta).(map[string]any)
	return meta, ok
}

func withRequestContext(ctx context.Context, requestID, sessionID, progressToken string, meta map[string]any) context.Context {
	ctx = context.WithValue(ctx, ctxRequestID, requestID)
	if sessionID != "" {
		ctx = context.WithValue(ctx, ctxSessionID, sessionID)
	}
	if progressToken != "" {
		ctx = context.WithValue(ctx, ctxProgressToken, progressToken)
	}
	if meta != nil {
		ctx = context.WithValue(ctx, ctxMeta, meta)
	}
	return ctx
}
