package xhttp

import (
	"github.com/fasthttp/router"
)

type Router = router.Router
type Group = router.Group

// NewRouter returns a new Router
func NewRouter() *Router {
	return router.New()
}

// CreateDefaultRouter returns a router with JSON not-found and
// method-not-allowed handlers. OPTIONS is left to CORSMiddleware.
func CreateDefaultRouter() *Router {
	r := NewRouter()
	r.RedirectTrailingSlash = true
	r.SaveMatchedRoutePath = true
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = MethodNotAllowedHandler
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = true
	return r
}

func NotFoundHandler(ctx *RequestCtx) {
	writeStatusJSON(ctx, StatusNotFound, "not_found")
}

func MethodNotAllowedHandler(ctx *RequestCtx) {
	writeStatusJSON(ctx, StatusMethodNotAllowed, "method_not_allowed")
}

func writeStatusJSON(ctx *RequestCtx, status int, code string) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBodyString(`{"error":"` + code + `","message":"` + StatusText(status) + `"}`)
}
