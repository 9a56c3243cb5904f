package middlewares

import (
	"errors"
	"net/http"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without sending the request while the breaker is open.
var ErrCircuitOpen = errors.New("middlewares: circuit breaker is open")

// DefaultBreakerTimeout is the open period used when NewCircuitBreaker is given none.
const DefaultBreakerTimeout = 30 * time.Second

// Circuit breaker states
const (
	StateClosed   = iota // normal, requests flow through
	StateOpen            // tripped, all requests rejected
	StateHalfOpen        // testing, one request checks whether the backend recovered
)

// CircuitBreaker stops sending requests after threshold consecutive failures.
// A failure is an error from the rest of the chain or a 5xx response.
// Once timeout has passed since the last failure, a single trial request is let through.
type CircuitBreaker struct {
	state        int
	failureCount int
	probing      bool
	threshold    int
	timeout      time.Duration
	lastFailure  time.Time
	mu           sync.Mutex

	now func() time.Time
}

// NewCircuitBreaker creates a circuit breaker.
// threshold = how many failures before opening (e.g., 5)
// timeout = how long to wait before trying again (30s when zero or less)
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 1
	}
	if timeout <= 0 {
		timeout = DefaultBreakerTimeout
	}
	return &CircuitBreaker{
		state:     StateClosed,
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) <= cb.timeout {
			return false
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false

	if !failed {
		cb.failureCount = 0
		cb.state = StateClosed
		return
	}

	cb.failureCount++
	cb.lastFailure = cb.now()

	if cb.state == StateHalfOpen || cb.failureCount >= cb.threshold {
		cb.state = StateOpen
	}
}

// Handle implements Middleware.
func (cb *CircuitBreaker) Handle(req *http.Request, t Transport, next Next) (*http.Response, error) {
	if !cb.allow() {
		return nil, ErrCircuitOpen
	}

	resp, err := next.Run(req, t)
	cb.record(err != nil || (resp != nil && resp.StatusCode >= http.StatusInternalServerError))

	return resp, err
}
