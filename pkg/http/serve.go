package xhttp

import (
	"reflect"
	"runtime"
	"slices"
	"time"

	"github.com/nimasrn/support-inbox/pkg/logger"
	"github.com/valyala/fasthttp"
)

type RequestHeader = fasthttp.RequestHeader
type ResponseHeader = fasthttp.ResponseHeader
type Server = fasthttp.Server

type ServerOption struct {
	// idle keep-alive connections are closed after this long
	IdleTimeout time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	ReadBufferSize  int
	WriteBufferSize int

	// webhook and send payloads are small, 1MB is plenty
	MaxRequestBodySize int

	Concurrency   int
	MaxConnsPerIP int
	Name          string
}

var DefaultServerOption = ServerOption{
	IdleTimeout:        time.Second * 10,
	ReadTimeout:        time.Millisecond * 2500,
	WriteTimeout:       time.Millisecond * 2500,
	ReadBufferSize:     1024 * 4,
	WriteBufferSize:    1024 * 4,
	MaxRequestBodySize: 1024 * 1024,
	Concurrency:        10_000,
	MaxConnsPerIP:      1_000,
	Name:               "support-inbox",
}

type Engine struct {
	*Router
	*Server
	option ServerOption
	middle []MiddlewareFunc
}

func newServer(options ServerOption) *fasthttp.Server {
	return &fasthttp.Server{
		Handler:               NotFoundHandler,
		ErrorHandler:          func(ctx *RequestCtx, err error) { logger.Warn("[xhttp] error", "error", err) },
		Name:                  options.Name,
		Concurrency:           options.Concurrency,
		ReadBufferSize:        options.ReadBufferSize,
		WriteBufferSize:       options.WriteBufferSize,
		ReadTimeout:           options.ReadTimeout,
		WriteTimeout:          options.WriteTimeout,
		IdleTimeout:           options.IdleTimeout,
		MaxConnsPerIP:         options.MaxConnsPerIP,
		MaxRequestBodySize:    options.MaxRequestBodySize,
		TCPKeepalive:          true,
		NoDefaultServerHeader: true,
		NoDefaultContentType:  true,
		CloseOnShutdown:       true,
		Logger:                logger.GetLogger(),
	}
}

func NewServer(options ServerOption) *Engine {
	return &Engine{
		Server: newServer(options),
		Router: CreateDefaultRouter(),
		option: options,
	}
}

func CreateServer() *Engine {
	return NewServer(DefaultServerOption)
}

func (e *Engine) ListenAndServe(addr string) error {
	e.DoRouting()
	logger.Info("[xhttp] server is listening", "addr", addr)
	return e.Server.ListenAndServe(addr)
}

// DoRouting installs the router as the server handler, wrapped by the
// registered middlewares. The first registered middleware runs first.
func (e *Engine) DoRouting() {
	for method, route := range e.Router.List() {
		for _, r := range route {
			logger.Debug("[xhttp] route", "method", method, "path", r)
		}
	}
	e.Server.Handler = e.Router.Handler
	middle := slices.Clone(e.middle)
	slices.Reverse(middle)
	for i, m := range middle {
		e.Server.Handler = m(e.Server.Handler)
		logger.Debug("[xhttp] middleware registered", "position", len(middle)-i, "name", runtime.FuncForPC(reflect.ValueOf(m).Pointer()).Name())
	}
}

// Handler returns the fully wrapped handler. Used by tests that serve over an
// in-memory listener.
func (e *Engine) Handler() RequestHandler {
	e.DoRouting()
	return e.Server.Handler
}

// Use adds middleware to the end of the chain.
func (e *Engine) Use(middleware MiddlewareFunc) {
	e.middle = append(e.middle, middleware)
}

// Shutdown gracefully shuts down the server without interrupting any active connections.
func (e *Engine) Shutdown() {
	logger.Info("[xhttp] server is shutting down")
	if err := e.Server.Shutdown(); err != nil {
		logger.Error("[xhttp] error while shutting down", "error", err)
	}
}
