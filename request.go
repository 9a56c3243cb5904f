package swiftchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/liviudnicoara/swiftchain/middlewares"
)

var methods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodConnect: true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
	http.MethodPatch:   true,
}

// Request accumulates everything needed to send one HTTP request through a client's chain.
//
// A Request is not safe for concurrent use. Send may be called more than once unless the body
// was given as a plain io.Reader, which can only be consumed once.
type Request struct {
	client          *Client
	httpMethod      string
	url             *url.URL
	headers         http.Header
	queryParameters url.Values

	payload    []byte
	bodyReader io.Reader
	bodyErr    error

	middlewares []middlewares.Middleware
}

func Get(url string) (*Request, error) { return Default().Get(url) }

func Head(url string) (*Request, error) { return Default().Head(url) }

func Post(url string) (*Request, error) { return Default().Post(url) }

func Put(url string) (*Request, error) { return Default().Put(url) }

func Delete(url string) (*Request, error) { return Default().Delete(url) }

func Connect(url string) (*Request, error) { return Default().Connect(url) }

func Options(url string) (*Request, error) { return Default().Options(url) }

func Trace(url string) (*Request, error) { return Default().Trace(url) }

func Patch(url string) (*Request, error) { return Default().Patch(url) }

func newRequest(c *Client, httpMethod string, rawURL string) (*Request, error) {
	method := strings.ToUpper(httpMethod)
	if !methods[method] {
		return nil, configError("unsupported http method "+httpMethod, nil)
	}

	u, err := isValidURL(rawURL)
	if err != nil {
		return nil, err
	}

	return &Request{
		client:     c,
		httpMethod: method,
		url:        u,
		headers:    http.Header{},
	}, nil
}

func (r *Request) Method() string { return r.httpMethod }

// URL returns a copy of the target URL.
func (r *Request) URL() *url.URL {
	u := *r.url
	return &u
}

// Header returns the headers the request will be built with. Changes to it are visible to Send.
func (r *Request) Header() http.Header { return r.headers }

// WithMiddleware appends m to the request's middlewares. The first one attached is the outermost.
func (r *Request) WithMiddleware(m ...middlewares.Middleware) *Request {
	for _, h := range m {
		if h != nil {
			r.middlewares = append(r.middlewares, h)
		}
	}
	return r
}

func (r *Request) WithMiddlewareFunc(fn middlewares.MiddlewareFunc) *Request {
	if fn == nil {
		return r
	}
	return r.WithMiddleware(fn)
}

// WithHeader adds a value to the header key, keeping existing values.
func (r *Request) WithHeader(key, value string) *Request {
	r.headers.Add(key, value)
	return r
}

// SetHeader replaces all values of the header key.
func (r *Request) SetHeader(key, value string) *Request {
	r.headers.Set(key, value)
	return r
}

func (r *Request) WithHeaders(headers map[string]string) *Request {
	for k, v := range headers {
		r.headers.Set(k, v)
	}
	return r
}

func (r *Request) WithQueryParameters(params map[string]string) *Request {
	if len(params) == 0 {
		return r
	}

	if r.queryParameters == nil {
		r.queryParameters = url.Values{}
	}
	for k, v := range params {
		r.queryParameters.Set(k, v)
	}

	return r
}

// WithBody sends body as is. The reader is consumed by the first Send.
func (r *Request) WithBody(body io.Reader) *Request {
	r.payload = nil
	r.bodyReader = body
	r.bodyErr = nil
	return r
}

func (r *Request) WithBytes(body []byte) *Request {
	r.payload = body
	r.bodyReader = nil
	r.bodyErr = nil
	return r
}

func (r *Request) WithString(body string) *Request {
	return r.WithBytes([]byte(body))
}

// WithJSON encodes payload as the request body and sets the Content-Type header.
// An encoding failure is returned by Send.
func (r *Request) WithJSON(payload interface{}) *Request {
	body, err := json.Marshal(payload)
	if err != nil {
		r.payload = nil
		r.bodyReader = nil
		r.bodyErr = configError(fmt.Sprintf("could not marshal body for request %s. Body:\n %+v", r.url, payload), err)
		return r
	}

	r.WithBytes(body)
	r.headers.Set("Content-Type", "application/json")

	return r
}

// Send builds the *http.Request and runs it through the client's middlewares, then the request's
// own middlewares, then the client's endpoint. Whatever the chain returns is returned unchanged.
func (r *Request) Send(ctx context.Context) (*http.Response, error) {
	req, err := r.build(ctx)
	if err != nil {
		return nil, err
	}

	chain := make([]middlewares.Middleware, 0, len(r.client.middlewares)+len(r.middlewares))
	chain = append(chain, r.client.middlewares...)
	chain = append(chain, r.middlewares...)

	return middlewares.NewNext(chain, r.client.endpoint).Run(req, r.client.transport)
}

func (r *Request) build(ctx context.Context) (*http.Request, error) {
	if r.bodyErr != nil {
		return nil, r.bodyErr
	}
	if ctx == nil {
		ctx = context.Background()
	}

	u := r.URL()
	if len(r.queryParameters) > 0 {
		q := u.Query()
		for k, v := range r.queryParameters {
			q[k] = append([]string(nil), v...)
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	switch {
	case r.bodyReader != nil:
		body = r.bodyReader
	case r.payload != nil:
		body = bytes.NewReader(r.payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.httpMethod, u.String(), body)
	if err != nil {
		return nil, configError("could not create request "+u.String(), err)
	}

	req.Header = r.headers.Clone()

	return req, nil
}

func isValidURL(u string) (*url.URL, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, configError("could not parse url "+u, err)
	}

	if parsedURL.Scheme == "" {
		return nil, configError("missing url scheme "+u, nil)
	}

	if parsedURL.Host == "" {
		return nil, configError("invalid url host "+u, nil)
	}

	return parsedURL, nil
}
