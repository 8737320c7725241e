// Package auth gates dashboard access behind a configured username and
// password and issues signed session cookies.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "oltdash"

// ErrInvalidSession is returned by Parse for any token that does not carry a
// live session.
var ErrInvalidSession = stderrors.New("invalid session")

// Credentials is the single configured account.
type Credentials struct {
	Username string
	Password string
}

// Verify reports whether username and password exactly match the configured
// strings. Empty configured credentials never match.
func (c Credentials) Verify(username, password string) bool {
	if c.Username == "" || c.Password == "" {
		return false
	}
	// Compare digests so timing does not depend on input length.
	u := sha256.Sum256([]byte(username))
	wantU := sha256.Sum256([]byte(c.Username))
	p := sha256.Sum256([]byte(password))
	wantP := sha256.Sum256([]byte(c.Password))

	userOK := subtle.ConstantTimeCompare(u[:], wantU[:])
	passOK := subtle.ConstantTimeCompare(p[:], wantP[:])
	return userOK&passOK == 1
}

// Session is an authenticated client.
type Session struct {
	Username  string
	ExpiresAt time.Time
}

// Sessions issues and parses HS256-signed session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions returns a session signer. An empty secret is replaced with a
// random one, which invalidates sessions when the process restarts.
func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Sessions{secret: key, ttl: ttl, now: time.Now}, nil
}

// TTL returns the session lifetime.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue returns a signed token for username.
func (s *Sessions) Issue(username string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return token, nil
}

// Parse validates a token and returns its session.
func (s *Sessions) Parse(token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidSession
	}

	return &Session{Username: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}, nil
}
