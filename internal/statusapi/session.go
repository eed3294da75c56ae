package statusapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionCookieName is the cookie carrying the session token.
	SessionCookieName = "sessionid"

	// HeaderSessionNoRenew marks a request that must not extend the session.
	HeaderSessionNoRenew = "X-Session-No-Renew"

	// DefaultSessionTTL is the idle lifetime of a session.
	DefaultSessionTTL = 30 * time.Minute

	sessionIssuer = "peerwatch"
)

// SessionClaims are the JWT claims of a console session.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// Sessions issues and verifies HS256 session tokens.
//
// Sessions slide: every authenticated request without the no-renew header
// receives a fresh cookie whose expiry is TTL from now.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates a session issuer. secret must not be empty; a zero
// ttl means [DefaultSessionTTL].
func NewSessions(secret []byte, ttl time.Duration) (*Sessions, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{secret: secret, ttl: ttl, now: time.Now}, nil
}

// TTL returns the session lifetime.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue signs a token for subject expiring TTL from now.
func (s *Sessions) Issue(subject string) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return token, expires, nil
}

// Verify parses and validates a session token.
func (s *Sessions) Verify(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok {
		return nil, errors.New("invalid session claims")
	}
	return claims, nil
}

// Cookie builds the session cookie for token.
func (s *Sessions) Cookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Middleware rejects requests without a valid session and renews the
// session unless the request carries the no-renew header.
func (s *Sessions) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				writeEnvelope(w, http.StatusUnauthorized, envelope{Error: "Authentication required"})
				return
			}

			claims, err := s.Verify(cookie.Value)
			if err != nil {
				logger.Debug("session rejected", "error", err)
				writeEnvelope(w, http.StatusUnauthorized, envelope{Error: "Authentication required"})
				return
			}

			if r.Header.Get(HeaderSessionNoRenew) != "1" {
				token, expires, err := s.Issue(claims.Subject)
				if err != nil {
					logger.Error("session renewal failed", "error", err)
				} else {
					http.SetCookie(w, s.Cookie(token, expires))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
