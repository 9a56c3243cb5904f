package middlewares

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTSigner signs short-lived HS256 tokens and sends them as "Authorization: Bearer <token>".
//
// A token is reused until it is within a tenth of its lifetime of expiring.
type JWTSigner struct {
	secret   []byte
	issuer   string
	subject  string
	audience []string
	ttl      time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time

	now func() time.Time
}

// NewJWTSigner creates a signer. A ttl of zero means five minutes.
func NewJWTSigner(secret, issuer, subject string, ttl time.Duration, audience ...string) *JWTSigner {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &JWTSigner{
		secret:   []byte(secret),
		issuer:   issuer,
		subject:  subject,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Token returns a valid signed token, minting a new one when needed.
func (s *JWTSigner) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(s.ttl/10).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   s.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	if len(s.audience) > 0 {
		claims.Audience = jwt.ClaimStrings(s.audience)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}

	s.token = signed
	s.expires = expires

	return signed, nil
}

// Handle implements Middleware. A signing failure aborts the request.
func (s *JWTSigner) Handle(req *http.Request, t Transport, next Next) (*http.Response, error) {
	token, err := s.Token()
	if err != nil {
		return nil, err
	}

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)

	return next.Run(r, t)
}
