package handlers

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/nimasrn/support-inbox/internal/services"
	xhttp "github.com/nimasrn/support-inbox/pkg/http"
)

const HeaderWebhookSecret = "X-Webhook-Secret"

type Ingestor interface {
	Ingest(ctx context.Context, p services.InboundPayload) (*services.IngestResult, error)
}

type WebhookHandler struct {
	svc     Ingestor
	secret  []byte
	timeout time.Duration
}

func RegisterWebhookRoutes(e *xhttp.Group, h *WebhookHandler) {
	e.POST("/webhooks/inbound", h.Inbound)
}

func NewWebhookHandler(svc Ingestor, secret string, timeout time.Duration) *WebhookHandler {
	return &WebhookHandler{
		svc:     svc,
		secret:  []byte(secret),
		timeout: timeout,
	}
}

// inboundRequest also accepts the field names of the provider's v1 payload.
type inboundRequest struct {
	FromPhone         string `json:"from_phone" validate:"required_without=LegacyFromPhone,max=32"`
	LegacyFromPhone   string `json:"from_phone_e164" validate:"max=32"`
	Body              string `json:"body" validate:"required,max=4096"`
	ProviderMessageID string `json:"provider_message_id" validate:"max=255"`
	LegacyMessageID   string `json:"wa_message_id" validate:"max=255"`
	Timestamp         string `json:"timestamp"`
}

type inboundResponse struct {
	OK bool `json:"ok"`
	*services.IngestResult
}

func (h *WebhookHandler) Inbound(ctx *xhttp.RequestCtx) {
	// the secret is checked before the body is looked at
	got := ctx.Request.Header.Peek(HeaderWebhookSecret)
	if len(h.secret) == 0 || subtle.ConstantTimeCompare(got, h.secret) != 1 {
		writeError(ctx, xhttp.StatusUnauthorized, "unauthorized")
		return
	}

	var req inboundRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}

	p := services.InboundPayload{
		FromPhone:         req.FromPhone,
		Body:              req.Body,
		ProviderMessageID: req.ProviderMessageID,
	}
	if p.FromPhone == "" {
		p.FromPhone = req.LegacyFromPhone
	}
	if p.ProviderMessageID == "" {
		p.ProviderMessageID = req.LegacyMessageID
	}
	if req.Timestamp != "" {
		ts, err := parseTime(req.Timestamp)
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid payload: "+err.Error())
			return
		}
		p.Timestamp = ts
	}

	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	res, err := h.svc.Ingest(c, p)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, inboundResponse{OK: true, IngestResult: res})
}
