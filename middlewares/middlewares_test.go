package middlewares_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/liviudnicoara/swiftchain/middlewares"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, req *http.Request, transport middlewares.Transport, mws ...middlewares.Middleware) (*http.Response, error) {
	t.Helper()
	return middlewares.NewNext(mws, nil).Run(req, transport)
}

// headerEcho answers with the value of the given request header as body.
func headerEcho(header string) middlewares.TransportFunc {
	return func(req *http.Request) (*http.Response, error) {
		return textResponse(req, http.StatusOK, req.Header.Get(header)), nil
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func Test_Caching(t *testing.T) {
	t.Run("HitSkipsTransport", func(t *testing.T) {
		// arrange
		calls := 0
		transport := middlewares.TransportFunc(func(req *http.Request) (*http.Response, error) {
			calls++
			resp := textResponse(req, http.StatusOK, "cached body")
			resp.Header.Set("Content-Type", "text/plain")
			return resp, nil
		})
		mw := middlewares.CachingMiddleware(cache.New(time.Minute, 2*time.Minute), time.Minute)

		// act
		first, err1 := run(t, newRequest(t, http.MethodGet, "http://example.com/a"), transport, mw)
		second, err2 := run(t, newRequest(t, http.MethodGet, "http://EXAMPLE.com/a"), transport, mw)

		// assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, 1, calls)
		assert.Equal(t, "cached body", readBody(t, first))
		assert.Equal(t, "cached body", readBody(t, second))
		assert.Equal(t, "text/plain", second.Header.Get("Content-Type"))
	})

	t.Run("PathIsCaseSensitive", func(t *testing.T) {
		// arrange
		calls := 0
		transport := middlewares.TransportFunc(func(req *http.Request) (*http.Response, error) {
			calls++
			return textResponse(req, http.StatusOK, req.URL.RequestURI()), nil
		})
		mw := middlewares.CachingMiddleware(cache.New(time.Minute, 2*time.Minute), time.Minute)

		// act
		first, err1 := run(t, newRequest(t, http.MethodGet, "http://x/Files/ABC?Q=1"), transport, mw)
		second, err2 := run(t, newRequest(t, http.MethodGet, "http://x/files/abc?q=1"), transport, mw)

		// assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, 2, calls)
		assert.Equal(t, "/Files/ABC?Q=1", readBody(t, first))
		assert.Equal(t, "/files/abc?q=1", readBody(t, second))
	})

	t.Run("NonGetBypasses", func(t *testing.T) {
		// arrange
		calls := 0
		transport := middlewares.TransportFunc(func(req *http.Request) (*http.Response, error) {
			calls++
			return textResponse(req, http.StatusOK, ""), nil
		})
		mw := middlewares.CachingMiddleware(cache.New(time.Minute, 2*time.Minute), time.Minute)

		// act
		_, _ = run(t, newRequest(t, http.MethodPost, "http://example.com/a"), transport, mw)
		_, _ = run(t, newRequest(t, http.MethodPost, "http://example.com/a"), transport, mw)

		// assert
		assert.Equal(t, 2, calls)
	})

	t.Run("ErrorsAreNotCached", func(t *testing.T) {
		// arrange
		calls := 0
		transport := middlewares.TransportFunc(func(req *http.Request) (*http.Response, error) {
			calls++
			return textResponse(req, http.StatusInternalServerError, ""), nil
		})
		mw := middlewares.CachingMiddleware(cache.New(time.Minute, 2*time.Minute), time.Minute)

		// act
		_, _ = run(t, newRequest(t, http.MethodGet, "http://example.com/a"), transport, mw)
		_, _ = run(t, newRequest(t, http.MethodGet, "http://example.com/a"), transport, mw)

		// assert
		assert.Equal(t, 2, calls)
	})
}

func Test_Headers(t *testing.T) {
	t.Run("SetHeader", func(t *testing.T) {
		// arrange
		req := newRequest(t, http.MethodGet, "http://example.com")

		// act
		resp, err := run(t, req, headerEcho("User-Agent"), middlewares.SetHeader("User-Agent", "swiftchain-test"))

		// assert
		require.NoError(t, err)
		assert.Equal(t, "swiftchain-test", readBody(t, resp))
		assert.Empty(t, req.Header.Get("User-Agent"))
	})

	t.Run("DefaultHeadersKeepExisting", func(t *testing.T) {
		// arrange
		req := newRequest(t, http.MethodGet, "http://example.com")
		req.Header.Set("Accept", "text/csv")
		mw := middlewares.DefaultHeaders(map[string]string{"Accept": "application/json"})

		// act
		resp, err := run(t, req, headerEcho("Accept"), mw)

		// assert
		require.NoError(t, err)
		assert.Equal(t, "text/csv", readBody(t, resp))
	})

	t.Run("DefaultHeadersFillMissing", func(t *testing.T) {
		// arrange
		mw := middlewares.DefaultHeaders(map[string]string{"accept": "application/json"})

		// act
		resp, err := run(t, newRequest(t, http.MethodGet, "http://example.com"), headerEcho("Accept"), mw)

		// assert
		require.NoError(t, err)
		assert.Equal(t, "application/json", readBody(t, resp))
	})
}

func Test_RequestID(t *testing.T) {
	t.Run("Generated", func(t *testing.T) {
		// arrange
		var fromContext string
		inspect := middlewares.MiddlewareFunc(func(req *http.Request, tr middlewares.Transport, next middlewares.Next) (*http.Response, error) {
			fromContext = middlewares.GetRequestID(req.Context())
			return next.Run(req, tr)
		})

		// act
		resp, err := run(t, newRequest(t, http.MethodGet, "http://example.com"), headerEcho("X-Request-ID"), middlewares.RequestID(""), inspect)

		// assert
		require.NoError(t, err)
		sent := readBody(t, resp)
		assert.Len(t, sent, 16)
		assert.Equal(t, sent, fromContext)
		assert.Equal(t, sent, resp.Header.Get("X-Request-ID"))
	})

	t.Run("KeepsCallerID", func(t *testing.T) {
		// arrange
		req := newRequest(t, http.MethodGet, "http://example.com")
		req.Header.Set("X-Correlation-ID", "abc")

		// act
		resp, err := run(t, req, headerEcho("X-Correlation-ID"), middlewares.RequestID("X-Correlation-ID"))

		// assert
		require.NoError(t, err)
		assert.Equal(t, "abc", readBody(t, resp))
	})
}

func Test_Fallback(t *testing.T) {
	t.Run("Substitutes", func(t *testing.T) {
		// arrange
		netErr := errors.New("dial tcp: connection refused")
		transport := middlewares.TransportFunc(func(req *http.Request) (*http.Response, error) {
			return nil, netErr
		})
		var seen error
		mw := middlewares.Fallback(func(req *http.Request, err error) *http.Response {
			seen = err
			return textResponse(nil, http.StatusOK, "fallback")
		})
		req := newRequest(t, http.MethodGet, "http://example.com")

		// act
		resp, err := run(t, req, transport, mw)

		// assert
		require.NoError(t, err)
		assert.Equal(t, "fallback", readBody(t, resp))
		assert.Same(t, req, resp.Request)
		assert.Same(t, netErr, seen)
	})

	t.Run("NilKeepsError", func(t *testing.T) {
		// arrange
		netErr := errors.New("dial tcp: connection refused")
		transport := middlewares.TransportFunc(func(req *http.Request) (*http.Response, error) {
			return nil, netErr
		})
		mw := middlewares.Fallback(func(req *http.Request, err error) *http.Response { return nil })

		// act
		_, err := run(t, newRequest(t, http.MethodGet, "http://example.com"), transport, mw)

		// assert
		assert.Same(t, netErr, err)
	})
}

func Test_CircuitBreaker(t *testing.T) {
	// arrange
	calls := 0
	failing := true
	transport := middlewares.TransportFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if failing {
			return textResponse(req, http.StatusBadGateway, ""), nil
		}
		return textResponse(req, http.StatusOK, ""), nil
	})
	cb := middlewares.NewCircuitBreaker(2, 20*time.Millisecond)

	// act
	_, _ = run(t, newRequest(t, http.MethodGet, "http://example.com"), transport, cb)
	_, _ = run(t, newRequest(t, http.MethodGet, "http://example.com"), transport, cb)
	_, openErr := run(t, newRequest(t, http.MethodGet, "http://example.com"), transport, cb)

	// assert
	assert.ErrorIs(t, openErr, middlewares.ErrCircuitOpen)
	assert.Equal(t, 2, calls)
	assert.Equal(t, middlewares.StateOpen, cb.State())

	// act
	time.Sleep(30 * time.Millisecond)
	failing = false
	resp, err := run(t, newRequest(t, http.MethodGet, "http://example.com"), transport, cb)

	// assert
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, calls)
	assert.Equal(t, middlewares.StateClosed, cb.State())
}

func Test_JWTSigner(t *testing.T) {
	// arrange
	signer := middlewares.NewJWTSigner("s3cr3t", "swiftchain", "worker-1", time.Minute, "api")

	// act
	resp, err := run(t, newRequest(t, http.MethodGet, "http://example.com"), headerEcho("Authorization"), signer)

	// assert
	require.NoError(t, err)
	header := readBody(t, resp)
	require.Contains(t, header, "Bearer ")

	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(header[len("Bearer "):], &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("s3cr3t"), nil
	}, jwt.WithIssuer("swiftchain"), jwt.WithAudience("api"))
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "worker-1", claims.Subject)

	again, err := signer.Token()
	require.NoError(t, err)
	assert.Equal(t, header[len("Bearer "):], again)
}

func Test_TokenRefresher(t *testing.T) {
	// arrange
	tr := middlewares.NewTokenRefresher("Token", func() (string, time.Duration, error) {
		return "abc", time.Hour, nil
	}, slog.Default())
	defer tr.Stop()

	// act
	resp, err := run(t, newRequest(t, http.MethodGet, "http://example.com"), headerEcho("Authorization"), middlewares.AuthorizeMiddleware(tr))

	// assert
	require.NoError(t, err)
	assert.Equal(t, "Token abc", readBody(t, resp))

	// act
	tr.Stop()
	_, err = tr.Get()

	// assert
	assert.Error(t, err)
}

func Test_Metrics(t *testing.T) {
	// arrange
	reg := prometheus.NewRegistry()
	m, err := middlewares.NewMetrics(reg, "test")
	require.NoError(t, err)
	ok := middlewares.TransportFunc(func(req *http.Request) (*http.Response, error) {
		return textResponse(req, http.StatusOK, ""), nil
	})
	failing := middlewares.TransportFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("network down")
	})

	// act
	_, _ = run(t, newRequest(t, http.MethodGet, "http://example.com"), ok, m)
	_, _ = run(t, newRequest(t, http.MethodGet, "http://example.com"), ok, m)
	_, _ = run(t, newRequest(t, http.MethodGet, "http://example.com"), failing, m)

	// assert
	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["test_client_requests_total"])
	assert.True(t, names["test_client_request_duration_seconds"])
	assert.True(t, names["test_client_requests_in_flight"])

	series, err := testutil.GatherAndCount(reg, "test_client_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series) // 200 and error

	series, err = testutil.GatherAndCount(reg, "test_client_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func Test_LoggerAndPerformance(t *testing.T) {
	// arrange
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, nil))
	slow := middlewares.TransportFunc(func(req *http.Request) (*http.Response, error) {
		time.Sleep(5 * time.Millisecond)
		return textResponse(req, http.StatusAccepted, ""), nil
	})

	// act
	resp, err := run(t, newRequest(t, http.MethodGet, "http://example.com/slow"), slow,
		middlewares.LoggerMiddleware(logger),
		middlewares.PerformanceMiddleware(time.Millisecond, logger))

	// assert
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	logs := out.String()
	assert.Contains(t, logs, "Executing request")
	assert.Contains(t, logs, "Slow request")
	assert.Contains(t, logs, "Request completed")
	assert.Contains(t, logs, "Status=202")
}

func Test_Metrics_SharedRegistry(t *testing.T) {
	t.Run("ReusesCollectors", func(t *testing.T) {
		// arrange
		reg := prometheus.NewRegistry()
		first, err1 := middlewares.NewMetrics(reg, "shared")
		second, err2 := middlewares.NewMetrics(reg, "shared")
		ok := middlewares.TransportFunc(func(req *http.Request) (*http.Response, error) {
			return textResponse(req, http.StatusOK, ""), nil
		})

		// act
		_, _ = run(t, newRequest(t, http.MethodGet, "http://example.com"), ok, first)
		_, _ = run(t, newRequest(t, http.MethodGet, "http://example.com"), ok, second)

		// assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		families, err := reg.Gather()
		require.NoError(t, err)

		total := 0.0
		for _, mf := range families {
			if mf.GetName() != "shared_client_requests_total" {
				continue
			}
			for _, metric := range mf.GetMetric() {
				total += metric.GetCounter().GetValue()
			}
		}
		assert.Equal(t, 2.0, total)
	})

	t.Run("ConflictingCollector", func(t *testing.T) {
		// arrange
		reg := prometheus.NewRegistry()
		reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clash",
			Name:      "client_requests_total",
			Help:      "Something else entirely",
		}))

		// act
		m, err := middlewares.NewMetrics(reg, "clash")

		// assert
		assert.Nil(t, m)
		assert.Error(t, err)
	})
}

func Test_CircuitBreaker_DefaultTimeout(t *testing.T) {
	// arrange
	calls := 0
	transport := middlewares.TransportFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		return textResponse(req, http.StatusInternalServerError, ""), nil
	})
	cb := middlewares.NewCircuitBreaker(1, 0)

	// act
	_, _ = run(t, newRequest(t, http.MethodGet, "http://example.com"), transport, cb)
	time.Sleep(2 * time.Millisecond)
	_, err := run(t, newRequest(t, http.MethodGet, "http://example.com"), transport, cb)

	// assert
	assert.ErrorIs(t, err, middlewares.ErrCircuitOpen)
	assert.Equal(t, 1, calls)
	assert.Equal(t, middlewares.StateOpen, cb.State())
}

func Test_LevelLoggerMiddleware(t *testing.T) {
	ok := middlewares.TransportFunc(func(req *http.Request) (*http.Response, error) {
		return textResponse(req, http.StatusOK, ""), nil
	})

	t.Run("BelowHandlerLevel", func(t *testing.T) {
		// arrange
		var out bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&out, nil))

		// act
		_, err := run(t, newRequest(t, http.MethodGet, "http://example.com"), ok,
			middlewares.LevelLoggerMiddleware(logger, slog.LevelDebug))

		// assert
		require.NoError(t, err)
		assert.Empty(t, out.String())
	})

	t.Run("AtConfiguredLevel", func(t *testing.T) {
		// arrange
		var out bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelWarn}))

		// act
		_, err := run(t, newRequest(t, http.MethodGet, "http://example.com"), ok,
			middlewares.LevelLoggerMiddleware(logger, slog.LevelError))

		// assert
		require.NoError(t, err)
		logs := out.String()
		assert.Contains(t, logs, `level=ERROR msg="Executing request"`)
		assert.Contains(t, logs, `level=ERROR msg="Request completed"`)
		assert.NotContains(t, logs, "level=INFO")
	})
}
