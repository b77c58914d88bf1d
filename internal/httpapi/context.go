package httpapi

import (
	"context"
)

// serverBaseCtx is canceled when the daemon starts shutting down, so
// in-flight predictions stop between layers instead of running to the end.
var serverBaseCtx = context.Background()

// SetBaseContext installs the process-wide shutdown context. nil restores
// Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// predictContext derives the inference context from the request: it keeps
// the request's values (request id) and is canceled when the client goes
// away or when base is done. Call the returned func when the handler ends.
func predictContext(req, base context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	stop := context.AfterFunc(base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
