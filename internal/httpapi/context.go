package httpapi

import (
	"context"
	"net/http"
)

// baseCtx is canceled when the daemon shuts down. Long-lived handlers
// (lifecycle commands mid-transition, event streams) derive from it so
// they unwind promptly instead of outliving the server.
var baseCtx = context.Background()

// SetBaseContext installs the daemon's shutdown context.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	baseCtx = ctx
}

// requestCtx derives a context from the request that is additionally
// canceled on daemon shutdown. The returned cancel must always be called.
func requestCtx(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(baseCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
