package xhttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(func(ctx *RequestCtx) {
		seen = RequestID(ctx)
	})

	t.Run("prefers correlation id", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.Header.Set(HeaderCorrelationID, "corr-1")
		ctx.Request.Header.Set(HeaderRequestID, "req-1")
		h(ctx)
		assert.Equal(t, "corr-1", seen)
		assert.Equal(t, "corr-1", string(ctx.Response.Header.Peek(HeaderRequestID)))
	})

	t.Run("falls back to request id", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		ctx.Request.Header.Set(HeaderRequestID, "req-2")
		h(ctx)
		assert.Equal(t, "req-2", seen)
	})

	t.Run("generates one", func(t *testing.T) {
		ctx := &fasthttp.RequestCtx{}
		h(ctx)
		assert.Len(t, seen, 36)
	})
}

func TestBearerToken(t *testing.T) {
	ctx := &fasthttp.RequestCtx{}
	assert.Empty(t, BearerToken(ctx))

	ctx.Request.Header.Set("Authorization", "Bearer s3cret")
	assert.Equal(t, "s3cret", BearerToken(ctx))

	ctx.Request.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, BearerToken(ctx))
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(ctx *RequestCtx) {
		panic("boom")
	})
	ctx := &fasthttp.RequestCtx{}
	assert.NotPanics(t, func() { h(ctx) })
	assert.Equal(t, StatusInternalServerError, ctx.Response.StatusCode())
}
