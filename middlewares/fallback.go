package middlewares

import "net/http"

// FallbackFunc builds a substitute response for a request whose chain failed with err.
// Returning a nil response keeps the original error.
type FallbackFunc func(req *http.Request, err error) *http.Response

// Fallback recovers from errors returned by the rest of the chain.
func Fallback(fn FallbackFunc) Middleware {
	return MiddlewareFunc(func(req *http.Request, t Transport, next Next) (*http.Response, error) {
		resp, err := next.Run(req, t)
		if err == nil {
			return resp, nil
		}

		if substitute := fn(req, err); substitute != nil {
			if substitute.Request == nil {
				substitute.Request = req
			}
			return substitute, nil
		}

		return resp, err
	})
}
