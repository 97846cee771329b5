package xhttp

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/valyala/fasthttp"
)

const slowThreshold = 500 * time.Millisecond

const (
	HeaderRequestID     = "X-Request-Id"
	HeaderCorrelationID = "X-Correlation-Id"
	requestIDUserValue  = "request_id"
)

var skipPaths = []string{"/api/v1/health", "/metrics"}

type MiddlewareFunc func(next RequestHandler) RequestHandler
type RequestCtx = fasthttp.RequestCtx
type RequestHandler = fasthttp.RequestHandler

func TimeoutMiddleware(timeout time.Duration) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return fasthttp.TimeoutWithCodeHandler(next, timeout, StatusText(StatusRequestTimeout), StatusRequestTimeout)
	}
}

func CompressMiddleware(level int) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return fasthttp.CompressHandlerBrotliLevel(next, level, level)
	}
}

func RecoverMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		defer func() {
			if err := recover(); err != nil {
				ctx.Error(StatusText(StatusInternalServerError), StatusInternalServerError)
				logger.Error("[xhttp] panic recovered", "error", err, "request_id", RequestID(ctx))
			}
		}()
		next(ctx)
	}
}

// RequestIDMiddleware takes the correlation id from the incoming headers or
// generates one, stores it on the request and echoes it in the response.
func RequestIDMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		rid := string(ctx.Request.Header.Peek(HeaderCorrelationID))
		if rid == "" {
			rid = string(ctx.Request.Header.Peek(HeaderRequestID))
		}
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx.SetUserValue(requestIDUserValue, rid)
		ctx.Response.Header.Set(HeaderRequestID, rid)
		next(ctx)
	}
}

func RequestLoggerMiddleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		if shouldSkip(path) {
			next(ctx)
			return
		}

		start := time.Now()
		next(ctx)

		latency := time.Since(start)
		status := ctx.Response.StatusCode()
		fields := []any{
			"status", status,
			"method", string(ctx.Method()),
			"path", path,
			"latency", latency.String(),
			"bytes_in", len(ctx.PostBody()),
			"bytes_out", len(ctx.Response.Body()),
			"ip", ctx.RemoteIP().String(),
			"request_id", RequestID(ctx),
		}

		switch {
		case status >= 500:
			logger.Error("http_request", fields...)
		case status >= 400 || latency > slowThreshold:
			logger.Warn("http_request", fields...)
		default:
			logger.Info("http_request", fields...)
		}
	}
}

// RequestID returns the id assigned by RequestIDMiddleware, falling back to the
// raw header when the middleware did not run.
func RequestID(ctx *RequestCtx) string {
	if v, ok := ctx.UserValue(requestIDUserValue).(string); ok {
		return v
	}
	return string(ctx.Request.Header.Peek(HeaderRequestID))
}

// Context returns a context bounded by timeout for the work done on behalf of a
// request. It is detached from the RequestCtx, whose Done channel belongs to the server.
func Context(ctx *RequestCtx, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(ctx *RequestCtx) string {
	auth := string(ctx.Request.Header.Peek("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func shouldSkip(p string) bool {
	for _, sp := range skipPaths {
		if strings.HasPrefix(p, sp) {
			return true
		}
	}
	return false
}
