package middlewares

import "net/http"

// SetHeader returns a middleware that sets a request header for every request.
//
// It clones the request before mutation to avoid touching the original request.
// If key is empty, it returns a no-op middleware.
func SetHeader(key, value string) Middleware {
	return MiddlewareFunc(func(req *http.Request, t Transport, next Next) (*http.Response, error) {
		if key == "" {
			return next.Run(req, t)
		}

		r := req.Clone(req.Context())
		r.Header.Set(key, value)
		return next.Run(r, t)
	})
}

// DefaultHeaders sets every header in headers that the request does not already carry.
func DefaultHeaders(headers map[string]string) Middleware {
	return MiddlewareFunc(func(req *http.Request, t Transport, next Next) (*http.Response, error) {
		var r *http.Request
		for k, v := range headers {
			if req.Header.Get(k) != "" {
				continue
			}
			if r == nil {
				r = req.Clone(req.Context())
			}
			r.Header.Set(k, v)
		}

		if r == nil {
			return next.Run(req, t)
		}
		return next.Run(r, t)
	})
}
