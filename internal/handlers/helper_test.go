package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nimasrn/support-inbox/internal/model"
	"github.com/nimasrn/support-inbox/internal/services"
	xhttp "github.com/nimasrn/support-inbox/pkg/http"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const testTimeout = time.Second

type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) Ingest(ctx context.Context, p services.InboundPayload) (*services.IngestResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.IngestResult), args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, req services.SendRequest) (*services.SendResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SendResult), args.Error(1)
}

type MockBreachChecker struct {
	mock.Mock
}

func (m *MockBreachChecker) CheckBreaches(ctx context.Context, now time.Time) (*model.SweepResult, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SweepResult), args.Error(1)
}

type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) Check(ctx context.Context) *services.HealthStatus {
	return m.Called(ctx).Get(0).(*services.HealthStatus)
}

// newRouter registers the handlers the way cmd/api does.
func newRouter(register ...func(g *xhttp.Group)) *xhttp.Router {
	r := xhttp.CreateDefaultRouter()
	g := r.Group("/api/v1")
	for _, fn := range register {
		fn(g)
	}
	return r
}

func do(r *xhttp.Router, method, path string, body []byte, headers map[string]string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	for k, v := range headers {
		ctx.Request.Header.Set(k, v)
	}
	if body != nil {
		ctx.Request.SetBody(body)
	}
	r.Handler(ctx)
	return ctx
}

func decode(t *testing.T, ctx *fasthttp.RequestCtx) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out), string(ctx.Response.Body()))
	return out
}
