package handlers

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	xhttp "github.com/nimasrn/support-inbox/pkg/http"
	"github.com/nimasrn/support-inbox/pkg/logger"
)

type BreachChecker interface {
	CheckBreaches(ctx context.Context, now time.Time) (*model.SweepResult, error)
}

// CronHandler exposes the SLA sweep to an external scheduler. When no secret
// is configured the endpoint is open.
type CronHandler struct {
	svc     BreachChecker
	secret  string
	timeout time.Duration
}

func RegisterCronRoutes(e *xhttp.Group, h *CronHandler) {
	e.GET("/cron/sla-check", h.SLACheck)
	e.POST("/cron/sla-check", h.SLACheck)
}

func NewCronHandler(svc BreachChecker, secret string, timeout time.Duration) *CronHandler {
	return &CronHandler{
		svc:     svc,
		secret:  secret,
		timeout: timeout,
	}
}

type slaCheckResponse struct {
	OK bool `json:"ok"`
	*model.SweepResult
}

func (h *CronHandler) SLACheck(ctx *xhttp.RequestCtx) {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(xhttp.BearerToken(ctx)), []byte(h.secret)) != 1 {
		writeError(ctx, xhttp.StatusUnauthorized, "unauthorized")
		return
	}

	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	res, err := h.svc.CheckBreaches(c, time.Now().UTC())
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if res.ThreadIDs == nil {
		res.ThreadIDs = []int64{}
	}
	logger.Info("sla check", "breached_count", res.Count, "request_id", xhttp.RequestID(ctx))
	writeJSON(ctx, xhttp.StatusOK, slaCheckResponse{OK: true, SweepResult: res})
}
