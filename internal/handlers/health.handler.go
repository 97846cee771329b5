package handlers

import (
	"context"
	"time"

	"github.com/nimasrn/support-inbox/internal/services"
	xhttp "github.com/nimasrn/support-inbox/pkg/http"
)

type HealthChecker interface {
	Check(ctx context.Context) *services.HealthStatus
}

type HealthHandler struct {
	svc     HealthChecker
	timeout time.Duration
}

func RegisterHealthRoutes(e *xhttp.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(svc HealthChecker, timeout time.Duration) *HealthHandler {
	return &HealthHandler{
		svc:     svc,
		timeout: timeout,
	}
}

// GetHealth answers 503 while the store or redis is unreachable.
func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	st := h.svc.Check(c)
	status := xhttp.StatusOK
	if !st.OK {
		status = xhttp.StatusServiceUnavailable
	}
	writeJSON(ctx, status, st)
}
