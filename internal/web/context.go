package web

import (
	"context"
	"net"
	"net/http"

	"github.com/MikhailFrushkin/Lenanad-site/internal/core"
)

// withClient attaches the caller's IP and User-Agent for batch history and
// logs. RemoteAddr has already been resolved by TrustedRealIP.
func withClient(ctx context.Context, r *http.Request) context.Context {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return core.ContextWithClient(ctx, core.ClientInfo{
		IP:        ip,
		UserAgent: r.UserAgent(),
	})
}
