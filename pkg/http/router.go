package xhttp

import (
	"github.com/fasthttp/router"
)

type Router = router.Router
type Group = router.Group

// CreateDefaultRouter returns a router with trailing-slash redirects and the
// JSON not-found handler.
func CreateDefaultRouter() *Router {
	r := router.New()
	r.RedirectFixedPath = true
	r.RedirectTrailingSlash = true
	r.SaveMatchedRoutePath = true
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = MethodNotAllowedHandler
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = true
	return r
}

func NotFoundHandler(ctx *RequestCtx) {
	ctx.Response.Header.SetContentType("application/json; charset=utf-8")
	ctx.SetStatusCode(StatusNotFound)
	ctx.SetBodyString(`{"error":"not found"}`)
}

func MethodNotAllowedHandler(ctx *RequestCtx) {
	ctx.Response.Header.SetContentType("application/json; charset=utf-8")
	ctx.SetStatusCode(StatusMethodNotAllowed)
	ctx.SetBodyString(`{"error":"method not allowed"}`)
}
