package middlewares

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

type cachedResponse struct {
	statusCode int
	status     string
	proto      string
	header     http.Header
	body       []byte
}

func (c *cachedResponse) response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        c.status,
		StatusCode:    c.statusCode,
		Proto:         c.proto,
		Header:        c.header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(c.body)),
		ContentLength: int64(len(c.body)),
		Request:       req,
	}
}

// cacheKey folds the case of the scheme and host only. Path and query stay case-sensitive.
func cacheKey(u *url.URL) string {
	k := *u
	k.Scheme = strings.ToLower(k.Scheme)
	k.Host = strings.ToLower(k.Host)
	return k.String()
}

// CachingMiddleware serves repeated GET requests from c. A hit returns without calling the rest of the chain.
//
// Only responses with a status below 400 are stored. The body is buffered so every hit gets its own reader.
func CachingMiddleware(c *cache.Cache, ttl time.Duration) Middleware {
	return MiddlewareFunc(func(req *http.Request, t Transport, next Next) (*http.Response, error) {
		if req.Method != http.MethodGet {
			return next.Run(req, t)
		}

		key := cacheKey(req.URL)

		if v, ok := c.Get(key); ok {
			return v.(*cachedResponse).response(req), nil
		}

		resp, err := next.Run(req, t)
		if err != nil || resp == nil || resp.StatusCode >= http.StatusBadRequest {
			return resp, err
		}

		var body []byte
		if resp.Body != nil {
			body, err = io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				return nil, err
			}
		}

		entry := &cachedResponse{
			statusCode: resp.StatusCode,
			status:     resp.Status,
			proto:      resp.Proto,
			header:     resp.Header.Clone(),
			body:       body,
		}
		c.Set(key, entry, ttl)

		return entry.response(req), nil
	})
}
