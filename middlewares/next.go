package middlewares

import "net/http"

// Next is the remainder of a middleware chain, including the endpoint.
//
// Next is an immutable value. Run builds a fresh cursor for the rest of the chain and never
// modifies the receiver, so the same Next can be run any number of times.
type Next struct {
	middlewares []Middleware
	endpoint    Endpoint
}

// NewNext creates a cursor positioned at the first of mws. The slice is copied, so later
// changes to mws do not affect the chain. Nil entries are skipped. A nil endpoint means DefaultEndpoint.
func NewNext(mws []Middleware, endpoint Endpoint) Next {
	chain := make([]Middleware, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			chain = append(chain, m)
		}
	}

	if endpoint == nil {
		endpoint = DefaultEndpoint
	}

	return Next{
		middlewares: chain,
		endpoint:    endpoint,
	}
}

// Len returns the number of middlewares left before the endpoint.
func (n Next) Len() int {
	return len(n.middlewares)
}

// Run executes the remaining chain.
func (n Next) Run(req *http.Request, t Transport) (*http.Response, error) {
	if len(n.middlewares) == 0 {
		endpoint := n.endpoint
		if endpoint == nil {
			endpoint = DefaultEndpoint
		}
		return endpoint(req, t)
	}

	current := n.middlewares[0]
	rest := Next{
		middlewares: n.middlewares[1:],
		endpoint:    n.endpoint,
	}

	return current.Handle(req, t, rest)
}
