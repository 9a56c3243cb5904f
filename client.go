package swiftchain

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/liviudnicoara/swiftchain/middlewares"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	defaultTimeout      = 30 * time.Second
	defaultMinWaitRetry = 500 * time.Millisecond
	defaultMaxWaitRetry = 10 * time.Second
	defaultMaxBodyBytes = int64(10 << 20)

	defaultClient atomic.Value
)

func init() {
	defaultClient.Store(NewDefaultClient())
}

// Default returns the default Client.
func Default() *Client { return defaultClient.Load().(*Client) }

// SetDefault makes c the default Client.
func SetDefault(c *Client) {
	defaultClient.Store(c)
}

// Client holds the transport shared by every request it creates and the middlewares applied to all of them.
//
// Configure a Client before sending with it. Sending never modifies the Client, so it can be used by
// many goroutines at once.
type Client struct {
	transport   middlewares.Transport
	endpoint    middlewares.Endpoint
	middlewares []middlewares.Middleware
	refresher   *middlewares.TokenRefresher

	cacheEnabled   bool
	retryEnabled   bool
	authEnabled    bool
	metricsEnabled bool

	MinWaitRetry time.Duration
	MaxWaitRetry time.Duration

	// MaxBodyBytes bounds how much of a response body the Recv helpers read. Zero or less means no limit.
	MaxBodyBytes int64

	Logger *slog.Logger
}

// NewDefaultClient returns a Client backed by an *http.Client with a 30s timeout.
func NewDefaultClient() *Client {
	return NewClient(&http.Client{Timeout: defaultTimeout})
}

// NewClient returns a Client that sends through t. A nil t means a new *http.Client without a timeout.
func NewClient(t middlewares.Transport) *Client {
	if t == nil {
		t = &http.Client{}
	}

	return &Client{
		transport: t,
		endpoint:  middlewares.DefaultEndpoint,

		MinWaitRetry: defaultMinWaitRetry,
		MaxWaitRetry: defaultMaxWaitRetry,
		MaxBodyBytes: defaultMaxBodyBytes,
		Logger:       slog.Default(),
	}
}

// Transport returns the transport shared by the client's requests.
func (c *Client) Transport() middlewares.Transport {
	return c.transport
}

// WithTimeout sets the timeout of the underlying *http.Client. The client given to NewClient is
// copied, not modified. It has no effect on other transports.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if hc, ok := c.transport.(*http.Client); ok {
		copied := *hc
		copied.Timeout = timeout
		c.transport = &copied
	}
	return c
}

// WithEndpoint replaces the terminal step of every chain. A nil endpoint restores middlewares.DefaultEndpoint.
func (c *Client) WithEndpoint(endpoint middlewares.Endpoint) *Client {
	if endpoint == nil {
		endpoint = middlewares.DefaultEndpoint
	}
	c.endpoint = endpoint
	return c
}

func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c.Logger = logger
	return c
}

// WithMiddleware appends default middlewares. They wrap every request, outside the request's own middlewares.
func (c *Client) WithMiddleware(handlers ...middlewares.Middleware) *Client {
	for _, h := range handlers {
		if h != nil {
			c.middlewares = append(c.middlewares, h)
		}
	}
	return c
}

// WithMiddlewareFunc appends a plain function as a default middleware.
func (c *Client) WithMiddlewareFunc(fn middlewares.MiddlewareFunc) *Client {
	if fn == nil {
		return c
	}
	return c.WithMiddleware(fn)
}

func (c *Client) AddLogging(logger *slog.Logger) *Client {
	c.WithLogger(logger)
	return c.WithMiddleware(middlewares.LoggerMiddleware(c.Logger))
}

func (c *Client) AddPerformanceMonitor(threshold time.Duration, logger *slog.Logger) *Client {
	c.WithLogger(logger)
	return c.WithMiddleware(middlewares.PerformanceMiddleware(threshold, c.Logger))
}

func (c *Client) AddRequestID(header string) *Client {
	return c.WithMiddleware(middlewares.RequestID(header))
}

// AddMetrics instruments every request. A nil reg means prometheus.DefaultRegisterer.
// Clients registering the same namespace on one registry share its collectors. If the metrics
// cannot be registered, a warning is logged and the client is left uninstrumented.
func (c *Client) AddMetrics(reg prometheus.Registerer, namespace string) *Client {
	if err := c.addMetrics(reg, namespace); err != nil {
		c.Logger.Warn("Metrics disabled", "Error", err.Error())
	}
	return c
}

func (c *Client) addMetrics(reg prometheus.Registerer, namespace string) error {
	if c.metricsEnabled {
		return nil
	}

	m, err := middlewares.NewMetrics(reg, namespace)
	if err != nil {
		return err
	}

	c.WithMiddleware(m)
	c.metricsEnabled = true

	return nil
}

func (c *Client) AddCircuitBreaker(threshold int, timeout time.Duration) *Client {
	return c.WithMiddleware(middlewares.NewCircuitBreaker(threshold, timeout))
}

// AddCaching caches successful GET responses for ttl. A ttl of zero or less leaves caching off.
func (c *Client) AddCaching(ttl time.Duration) *Client {
	if c.cacheEnabled || ttl <= 0 {
		return c
	}

	store := cache.New(ttl, 2*ttl)

	c.WithMiddleware(middlewares.CachingMiddleware(store, ttl))
	c.cacheEnabled = true

	return c
}

func (c *Client) WithExponentialRetry(retry int) *Client {
	return c.withRetry(retry, middlewares.ExponentialBackoffTime)
}

func (c *Client) WithLinearRetry(retry int) *Client {
	return c.withRetry(retry, middlewares.LinearJitterBackoffTime)
}

func (c *Client) withRetry(retry int, backoff middlewares.BackoffTime) *Client {
	if c.retryEnabled {
		return c
	}

	rh := middlewares.RetryHandler{
		MinWait:    c.MinWaitRetry,
		MaxWait:    c.MaxWaitRetry,
		RetryCount: retry,
		Backoff:    backoff,
	}

	c.WithMiddleware(middlewares.RetryMiddleware(rh))
	c.retryEnabled = true

	return c
}

// WithAuthorization adds "Authorization: <schema> <token>" to every request. The token is kept fresh
// in the background until Close is called.
func (c *Client) WithAuthorization(schema string, authorize middlewares.AuthorizeFunc) *Client {
	if c.authEnabled {
		return c
	}

	c.refresher = middlewares.NewTokenRefresher(schema, authorize, c.Logger)

	c.WithMiddleware(middlewares.AuthorizeMiddleware(c.refresher))
	c.authEnabled = true

	return c
}

// WithJWT signs every request with a short-lived HS256 bearer token.
func (c *Client) WithJWT(secret, issuer, subject string, ttl time.Duration) *Client {
	if c.authEnabled {
		return c
	}

	c.WithMiddleware(middlewares.NewJWTSigner(secret, issuer, subject, ttl))
	c.authEnabled = true

	return c
}

// Close stops background work started by the client's middlewares.
func (c *Client) Close() {
	if c.refresher != nil {
		c.refresher.Stop()
	}
}

func (c *Client) NewRequest(method, url string) (*Request, error) {
	return newRequest(c, method, url)
}

// Get creates a GET request. A malformed url is reported immediately as an ErrConfig error.
func (c *Client) Get(url string) (*Request, error) { return c.NewRequest(http.MethodGet, url) }

func (c *Client) Head(url string) (*Request, error) { return c.NewRequest(http.MethodHead, url) }

func (c *Client) Post(url string) (*Request, error) { return c.NewRequest(http.MethodPost, url) }

func (c *Client) Put(url string) (*Request, error) { return c.NewRequest(http.MethodPut, url) }

func (c *Client) Delete(url string) (*Request, error) { return c.NewRequest(http.MethodDelete, url) }

func (c *Client) Connect(url string) (*Request, error) { return c.NewRequest(http.MethodConnect, url) }

func (c *Client) Options(url string) (*Request, error) { return c.NewRequest(http.MethodOptions, url) }

func (c *Client) Trace(url string) (*Request, error) { return c.NewRequest(http.MethodTrace, url) }

func (c *Client) Patch(url string) (*Request, error) { return c.NewRequest(http.MethodPatch, url) }
