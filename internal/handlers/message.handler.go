package handlers

import (
	"context"
	"time"

	"github.com/nimasrn/support-inbox/internal/services"
	xhttp "github.com/nimasrn/support-inbox/pkg/http"
)

type Sender interface {
	Send(ctx context.Context, req services.SendRequest) (*services.SendResult, error)
}

type MessageHandler struct {
	svc     Sender
	timeout time.Duration
}

func RegisterMessageRoutes(e *xhttp.Group, h *MessageHandler) {
	e.POST("/messages/send", h.Send)
}

func NewMessageHandler(svc Sender, timeout time.Duration) *MessageHandler {
	return &MessageHandler{
		svc:     svc,
		timeout: timeout,
	}
}

type sendMessageRequest struct {
	ThreadID       int64  `json:"thread_id" validate:"required,gt=0"`
	Body           string `json:"body" validate:"required,max=4096"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=255"`
}

type sendMessageResponse struct {
	OK bool `json:"ok"`
	*services.SendResult
}

func (h *MessageHandler) Send(ctx *xhttp.RequestCtx) {
	var req sendMessageRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}

	c, cancel := xhttp.Context(ctx, h.timeout)
	defer cancel()

	res, err := h.svc.Send(c, services.SendRequest{
		ThreadID:       req.ThreadID,
		Body:           req.Body,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, sendMessageResponse{OK: true, SendResult: res})
}
