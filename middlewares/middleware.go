package middlewares

import (
	"errors"
	"net/http"
)

// ErrNoTransport is returned by the default endpoint when the chain reaches it without a transport.
var ErrNoTransport = errors.New("middlewares: no transport")

// ErrNoResponse is returned by middlewares that inspect the response when the rest of the chain
// returned neither a response nor an error.
var ErrNoResponse = errors.New("middlewares: no response and no error")

// Transport performs the actual HTTP exchange. *http.Client satisfies it.
//
// A Transport is shared by every request sent through a client and must be safe for concurrent use.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// TransportFunc adapts a function to a Transport.
type TransportFunc func(req *http.Request) (*http.Response, error)

// Do implements Transport.
func (f TransportFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Endpoint is the terminal step of a chain. It receives the request and transport forwarded by the innermost middleware.
type Endpoint func(req *http.Request, t Transport) (*http.Response, error)

// DefaultEndpoint sends req with t.
func DefaultEndpoint(req *http.Request, t Transport) (*http.Response, error) {
	if t == nil {
		return nil, ErrNoTransport
	}
	return t.Do(req)
}

// Middleware wraps the remaining chain.
//
// Handle either calls next.Run with a request and transport, returns a response of its own,
// or fails. It may call next.Run more than once.
type Middleware interface {
	Handle(req *http.Request, t Transport, next Next) (*http.Response, error)
}

// MiddlewareFunc lets a plain function be used as a Middleware.
type MiddlewareFunc func(req *http.Request, t Transport, next Next) (*http.Response, error)

// Handle implements Middleware.
func (f MiddlewareFunc) Handle(req *http.Request, t Transport, next Next) (*http.Response, error) {
	return f(req, t, next)
}

// Handler represents a function that processes an HTTP request and returns an HTTP response or an error.
type Handler func(req *http.Request) (*http.Response, error)

// Decorate adapts a decorator of the form func(next Handler) Handler into a Middleware.
//
// The Handler given to the decorator delegates to the rest of the chain using the transport
// the middleware was called with.
func Decorate(decorator func(next Handler) Handler) Middleware {
	return MiddlewareFunc(func(req *http.Request, t Transport, next Next) (*http.Response, error) {
		h := decorator(func(req *http.Request) (*http.Response, error) {
			return next.Run(req, t)
		})
		return h(req)
	})
}
