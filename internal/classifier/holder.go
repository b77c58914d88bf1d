package classifier

import (
	"context"
	"sync/atomic"

	"imgclf/internal/artifact"
)

// Holder publishes a Service once loading finishes so the HTTP server can
// start listening before the model is ready. The zero value is empty.
type Holder struct {
	svc atomic.Pointer[Service]
}

// Set publishes svc. Later calls replace it.
func (h *Holder) Set(svc *Service) { h.svc.Store(svc) }

// Get returns the published service or nil.
func (h *Holder) Get() *Service { return h.svc.Load() }

func (h *Holder) Ready() bool { return h.svc.Load() != nil }

// Predict delegates to the published service or returns ErrNotReady.
func (h *Holder) Predict(ctx context.Context, data []byte) (Result, error) {
	s := h.svc.Load()
	if s == nil {
		return Result{}, ErrNotReady
	}
	return s.Predict(ctx, data)
}

func (h *Holder) Labels() []string {
	if s := h.svc.Load(); s != nil {
		return s.Labels()
	}
	return nil
}

func (h *Holder) Signature() artifact.Signature {
	if s := h.svc.Load(); s != nil {
		return s.Signature()
	}
	return artifact.Signature{}
}

func (h *Holder) Format() string {
	if s := h.svc.Load(); s != nil {
		return s.Format()
	}
	return ""
}
