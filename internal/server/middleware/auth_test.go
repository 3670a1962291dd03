package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/termgate/termgate/internal/hoststore"
)

type verifierStub struct {
	user *hoststore.User
}

func (v *verifierStub) VerifyToken(_ context.Context, token string) (*hoststore.User, error) {
	if token == "good" && v.user != nil {
		return v.user, nil
	}
	return nil, errors.New("invalid token")
}

func runAuth(t *testing.T, v TokenVerifier, mutate func(*http.Request)) (*httptest.ResponseRecorder, *hoststore.User) {
	t.Helper()
	var seen *hoststore.User
	handler := Auth(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUser(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ssh.io/socket.io", nil)
	mutate(req)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthBearerHeader(t *testing.T) {
	v := &verifierStub{user: &hoststore.User{ID: "u1"}}
	rec, seen := runAuth(t, v, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer good")
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if seen == nil || seen.ID != "u1" {
		t.Fatalf("user in context: %+v", seen)
	}
}

func TestAuthQueryParamForWebSocket(t *testing.T) {
	// Browsers cannot set headers on WS upgrade requests, so ?token= must work.
	v := &verifierStub{user: &hoststore.User{ID: "u1"}}
	rec, _ := runAuth(t, v, func(r *http.Request) {
		q := r.URL.Query()
		q.Set("token", "good")
		r.URL.RawQuery = q.Encode()
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
}

func TestAuthMissingToken(t *testing.T) {
	rec, _ := runAuth(t, &verifierStub{}, func(*http.Request) {})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: %d, want 401", rec.Code)
	}
}

func TestAuthRejectedToken(t *testing.T) {
	rec, _ := runAuth(t, &verifierStub{}, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer bad")
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: %d, want 401", rec.Code)
	}
}

func TestBearerTokenParsing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := bearerToken(req); got != "" {
		t.Errorf("no header: got %q", got)
	}
	req.Header.Set("Authorization", "Basic abc")
	if got := bearerToken(req); got != "" {
		t.Errorf("non-bearer scheme: got %q", got)
	}
	req.Header.Set("Authorization", "Bearer tok123")
	if got := bearerToken(req); got != "tok123" {
		t.Errorf("bearer: got %q", got)
	}
}
