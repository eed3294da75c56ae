package statusapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestSessions(t *testing.T, now *time.Time) *Sessions {
	t.Helper()
	s, err := NewSessions([]byte("test-secret"), 30*time.Minute)
	if err != nil {
		t.Fatalf("NewSessions() error = %v", err)
	}
	s.now = func() time.Time { return *now }
	return s
}

func TestNewSessions_Validation(t *testing.T) {
	if _, err := NewSessions(nil, time.Minute); err == nil {
		t.Error("NewSessions(nil) expected error, got nil")
	}

	s, err := NewSessions([]byte("k"), 0)
	if err != nil {
		t.Fatalf("NewSessions() error = %v", err)
	}
	if s.TTL() != DefaultSessionTTL {
		t.Errorf("TTL() = %v, want %v", s.TTL(), DefaultSessionTTL)
	}
}

func TestSessions_IssueVerify(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s := newTestSessions(t, &now)

	token, expires, err := s.Issue("admin")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !expires.Equal(now.Add(30 * time.Minute)) {
		t.Errorf("expires = %v, want %v", expires, now.Add(30*time.Minute))
	}

	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "admin" {
		t.Errorf("Subject = %q, want admin", claims.Subject)
	}

	// expired after the ttl elapses
	now = now.Add(31 * time.Minute)
	if _, err := s.Verify(token); err == nil {
		t.Error("Verify() expected error for expired token, got nil")
	}
}

func TestSessions_VerifyRejects(t *testing.T) {
	now := time.Now()
	s := newTestSessions(t, &now)

	other, err := NewSessions([]byte("other-secret"), time.Hour)
	if err != nil {
		t.Fatalf("NewSessions() error = %v", err)
	}
	foreign, _, err := other.Issue("admin")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer: sessionIssuer,
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", foreign},
		{"alg none", unsigned},
		{"missing expiry", noExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Verify(tt.token); err == nil {
				t.Error("Verify() expected error, got nil")
			}
		})
	}
}

func TestSessions_Middleware(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s := newTestSessions(t, &now)

	token, _, err := s.Issue("admin")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var reached bool
	handler := s.Middleware(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name        string
		cookie      string
		noRenew     bool
		wantStatus  int
		wantRenewal bool
	}{
		{"no cookie", "", false, http.StatusUnauthorized, false},
		{"invalid cookie", "bogus", false, http.StatusUnauthorized, false},
		{"valid renews", token, false, http.StatusOK, true},
		{"valid with no-renew", token, true, http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = false
			req := httptest.NewRequest(http.MethodGet, StatusesPath, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			if tt.noRenew {
				req.Header.Set(HeaderSessionNoRenew, "1")
			}

			// later request time so a renewal carries a later expiry
			now = now.Add(time.Minute)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if reached != (tt.wantStatus == http.StatusOK) {
				t.Errorf("handler reached = %v, want %v", reached, tt.wantStatus == http.StatusOK)
			}

			var renewed *http.Cookie
			for _, c := range rec.Result().Cookies() {
				if c.Name == SessionCookieName {
					renewed = c
				}
			}
			if (renewed != nil) != tt.wantRenewal {
				t.Fatalf("renewed cookie = %v, want renewal %v", renewed, tt.wantRenewal)
			}
			if renewed != nil {
				claims, err := s.Verify(renewed.Value)
				if err != nil {
					t.Fatalf("renewed token invalid: %v", err)
				}
				if !claims.ExpiresAt.Time.Equal(now.Add(30 * time.Minute)) {
					t.Errorf("renewed expiry = %v, want %v", claims.ExpiresAt.Time, now.Add(30*time.Minute))
				}
				if !renewed.HttpOnly {
					t.Error("renewed cookie should be HttpOnly")
				}
			}
		})
	}
}
