package http

import "net/http"

// Middleware is a standard net/http middleware.
type Middleware func(http.Handler) http.Handler

// Router is the registration surface handlers are wired against. The
// concrete implementation is chi; nothing outside this package depends
// on that.
type Router interface {
	GET(path string, handler http.HandlerFunc, middlewares ...Middleware)
	POST(path string, handler http.HandlerFunc, middlewares ...Middleware)
	PUT(path string, handler http.HandlerFunc, middlewares ...Middleware)
	PATCH(path string, handler http.HandlerFunc, middlewares ...Middleware)
	DELETE(path string, handler http.HandlerFunc, middlewares ...Middleware)

	// Group creates a route group under prefix with its own middleware.
	Group(prefix string, fn func(Router), middlewares ...Middleware)

	// Use adds middleware applied to every route registered afterwards.
	Use(middlewares ...Middleware)

	// With returns a Router that applies the middleware to routes
	// registered through it, without touching the parent.
	With(middlewares ...Middleware) Router

	// Handler returns the root http.Handler for the server.
	Handler() http.Handler
}
