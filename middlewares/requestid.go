package middlewares

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
)

// DefaultRequestIDHeader is the header RequestID uses when none is given.
const DefaultRequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// generateID creates a short unique ID, 16 hex characters.
func generateID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

// RequestID tags every outgoing request with an ID in header.
//
//   - an ID the caller already set is kept
//   - the ID is stored in the request context for inner middlewares (see GetRequestID)
//   - the ID is copied onto the response header when the server did not echo it
func RequestID(header string) Middleware {
	if header == "" {
		header = DefaultRequestIDHeader
	}

	return MiddlewareFunc(func(req *http.Request, t Transport, next Next) (*http.Response, error) {
		id := req.Header.Get(header)
		if id == "" {
			id = generateID()
		}

		ctx := context.WithValue(req.Context(), requestIDKey{}, id)
		r := req.Clone(ctx)
		r.Header.Set(header, id)

		resp, err := next.Run(r, t)
		if err != nil {
			return resp, err
		}

		if resp != nil {
			if resp.Header == nil {
				resp.Header = http.Header{}
			}
			if resp.Header.Get(header) == "" {
				resp.Header.Set(header, id)
			}
		}

		return resp, nil
	})
}

// GetRequestID extracts the request ID from the context.
// Returns empty string if no request ID is set.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
