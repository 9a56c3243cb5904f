package middlewares

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

var (
	lifeSpanSaftyMargin = 1 * time.Second
)

type tokenInfo struct {
	Token string
	Error error
}

// TokenRefresher keeps an access token fresh in a background goroutine and hands it out on demand.
type TokenRefresher struct {
	accessToken chan tokenInfo
	done        chan struct{}
	stopOnce    sync.Once
	logger      *slog.Logger
	authorize   AuthorizeFunc

	Schema string
}

type AuthorizeFunc func() (token string, lifeSpan time.Duration, err error)

func NewTokenRefresher(schema string, fn AuthorizeFunc, logger *slog.Logger) *TokenRefresher {
	if logger == nil {
		logger = slog.Default()
	}

	tr := &TokenRefresher{
		accessToken: make(chan tokenInfo),
		done:        make(chan struct{}),
		logger:      logger,
		authorize:   fn,

		Schema: schema,
	}

	tr.RefreshToken()

	return tr
}

func (tr *TokenRefresher) fetch() (string, <-chan time.Time, error) {
	token, lifeSpan, err := tr.authorize()
	if err != nil {
		tr.logger.Error("Could not retrieve access token", "Error", err)
		// retry authorization after the safety margin
		return token, time.After(lifeSpanSaftyMargin), err
	}

	wait := lifeSpan - lifeSpanSaftyMargin
	if wait <= 0 {
		wait = lifeSpan
	}

	return token, time.After(wait), nil
}

// RefreshToken starts the refresh loop. It runs until Stop is called.
func (tr *TokenRefresher) RefreshToken() {
	go func() {
		token, expired, err := tr.fetch()

		for {
			select {
			case tr.accessToken <- tokenInfo{Token: token, Error: err}:
			case <-expired:
				token, expired, err = tr.fetch()
			case <-tr.done:
				return
			}
		}
	}()
}

// Stop terminates the refresh loop. Get returns an error afterwards.
func (tr *TokenRefresher) Stop() {
	tr.stopOnce.Do(func() { close(tr.done) })
}

func (tr *TokenRefresher) Get() (string, error) {
	select {
	case <-tr.done:
		return "", fmt.Errorf("token refresher stopped")
	default:
	}

	select {
	case tokenInfo := <-tr.accessToken:
		return tokenInfo.Token, tokenInfo.Error
	case <-tr.done:
		return "", fmt.Errorf("token refresher stopped")
	}
}

// Handle implements Middleware by adding the Authorization header to the request.
// A request whose token cannot be obtained is sent without it.
func (tr *TokenRefresher) Handle(req *http.Request, t Transport, next Next) (*http.Response, error) {
	token, err := tr.Get()
	if err != nil {
		tr.logger.Warn("No token will be added to the request", "URL", req.URL, "Method", req.Method, "Error", err)
		return next.Run(req, t)
	}

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", fmt.Sprintf("%s %s", tr.Schema, token))

	return next.Run(r, t)
}

func AuthorizeMiddleware(tr *TokenRefresher) Middleware {
	return tr
}
