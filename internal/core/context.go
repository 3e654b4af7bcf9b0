package core

import "context"

type contextKey string

const ctxKeyClient contextKey = "ingest_client"

// ClientInfo identifies the caller that submitted a batch.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// ContextWithClient attaches the caller's address and user agent, recorded in
// batch history and logs.
func ContextWithClient(ctx context.Context, c ClientInfo) context.Context {
	return context.WithValue(ctx, ctxKeyClient, c)
}

// ClientFromContext returns the caller attached by ContextWithClient, or a
// zero ClientInfo.
func ClientFromContext(ctx context.Context) ClientInfo {
	if c, ok := ctx.Value(ctxKeyClient).(ClientInfo); ok {
		return c
	}
	return ClientInfo{}
}
