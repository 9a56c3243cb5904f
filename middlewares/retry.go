package middlewares

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

// redirectsErrorRe, schemeErrorRe, and notTrustedErrorRe are regular expressions to match specific errors.
var (
	redirectsErrorRe  = regexp.MustCompile(`stopped after \d+ redirects\z`)
	schemeErrorRe     = regexp.MustCompile(`unsupported protocol scheme`)
	notTrustedErrorRe = regexp.MustCompile(`certificate is not trusted`)
)

// drainLimit bounds how much of a discarded response body is read before closing it.
const drainLimit = 4 << 10

// RetryHandler retries the rest of the chain. It is a Middleware: every attempt calls next.Run
// again with a fresh copy of the request.
type RetryHandler struct {
	MinWait    time.Duration
	MaxWait    time.Duration
	RetryCount int
	Backoff    BackoffTime
}

// RetryMiddleware creates a middleware that retries HTTP requests based on the RetryHandler configuration.
func RetryMiddleware(rh RetryHandler) Middleware {
	if rh.Backoff == nil {
		rh.Backoff = ExponentialBackoffTime
	}
	return &rh
}

// shouldRetry checks if the HTTP request should be retried based on the response and error.
func (rh *RetryHandler) shouldRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		var v *url.Error
		if errors.As(err, &v) {
			if redirectsErrorRe.MatchString(v.Error()) {
				return false, v
			}

			if schemeErrorRe.MatchString(v.Error()) {
				return false, v
			}

			if notTrustedErrorRe.MatchString(v.Error()) {
				return false, v
			}

			var unknownAuthority x509.UnknownAuthorityError
			if errors.As(v.Err, &unknownAuthority) {
				return false, v
			}
		}

		return true, err
	}

	if resp == nil {
		return false, ErrNoResponse
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return true, nil
	}

	if resp.StatusCode == 0 || (resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented) {
		return true, nil
	}

	return false, nil
}

// Handle implements Middleware.
//
// When retries run out on a retryable status, the last response is returned as is. When they run
// out on an error, the error is wrapped with the attempt count.
func (rh *RetryHandler) Handle(req *http.Request, t Transport, next Next) (*http.Response, error) {
	ctx := req.Context()
	backoff := rh.Backoff
	if backoff == nil {
		backoff = ExponentialBackoffTime
	}

	var resp *http.Response
	var shouldRetry bool
	var err error
	attempt := 0

	for ; ; attempt++ {
		attemptReq, rewindErr := rewind(req, attempt)
		if rewindErr != nil {
			return nil, rewindErr
		}

		resp, err = next.Run(attemptReq, t)

		shouldRetry, err = rh.shouldRetry(ctx, resp, err)
		if !shouldRetry {
			break
		}

		remain := rh.RetryCount - attempt
		if remain <= 0 {
			break
		}

		wait := backoff(attempt, rh.MinWait, rh.MaxWait, resp)
		discard(resp)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if err == nil {
		return resp, nil
	}

	discard(resp)

	if !shouldRetry {
		return nil, err
	}

	return nil, fmt.Errorf("%s %s giving up after %d attempt(s): %w",
		req.Method, req.URL, attempt+1, err)
}

// rewind returns the request to send for the given attempt. The first attempt uses req itself.
func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 0 {
		return req, nil
	}

	r := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return r, nil
	}

	if req.GetBody == nil {
		return nil, fmt.Errorf("%s %s cannot be retried: request body is not rewindable", req.Method, req.URL)
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("%s %s cannot be retried: %w", req.Method, req.URL, err)
	}
	r.Body = body

	return r, nil
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()
}

// BackoffTime calculates how long to wait between retries.
type BackoffTime func(retry int, min, max time.Duration, resp *http.Response) time.Duration

// ExponentialBackoffTime will perform exponential backoff based on the retry
// The time will be between minimum and maximum durations.
// If response contains Retry-After header when a http.StatusTooManyRequests is found in the resp parameter,
// it will return the number of seconds set by the server.
func ExponentialBackoffTime(retry int, min, max time.Duration, resp *http.Response) time.Duration {
	if resp != nil {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			if s, ok := resp.Header["Retry-After"]; ok {
				if sleep, err := strconv.ParseInt(s[0], 10, 64); err == nil {
					return time.Second * time.Duration(sleep)
				}
			}
		}
	}

	wait := math.Pow(2, float64(retry)) * float64(min)
	duration := time.Duration(int64(wait))
	if duration > max {
		duration = max
	}

	return duration
}

// LinearJitterBackoffTime will perform linear backoff based on the retry count with jitter.
// min and max here are *not* absolute values. The number to be multiplied by
// the attempt number will be chosen at random from between them, thus they are
// bounding the jitter.
//
// Examples:
// No jitter: min = max = 1s
// Small jitter: min = 700ms max = 1300 ms
// Big jitter: min = 100 ms max = 10s
func LinearJitterBackoffTime(retry int, min, max time.Duration, resp *http.Response) time.Duration {
	if retry == 0 {
		retry = 1
	}

	if max <= min {
		return min * time.Duration(retry)
	}

	rand := rand.New(rand.NewSource(int64(time.Now().Nanosecond())))

	jitter := rand.Float64() * float64(max-min)
	jitterMin := int64(jitter) + int64(min)
	return time.Duration(jitterMin * int64(retry))
}
