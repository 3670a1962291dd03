package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/termgate/termgate/internal/bridge"
	"github.com/termgate/termgate/internal/config"
	"github.com/termgate/termgate/internal/hoststore"
	"github.com/termgate/termgate/internal/terminal"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		Version:            "test",
		CORSAllowedOrigins: []string{"http://localhost:5173"},
	}
	gateway := bridge.NewGateway(bridge.NewRegistry(), bridge.Options{
		Connector: &terminal.SSHConnector{},
	})
	// Store points nowhere; the auth middleware rejects before it is used
	// for anything but token verification, which fails closed.
	store := hoststore.New("http://127.0.0.1:1", "")
	return New(cfg, gateway, store)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Errorf("%s: invalid JSON: %v", path, err)
		}
	}
}

func TestBridgeEndpointRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/ssh.io/socket.io", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated upgrade: status %d, want 401", rec.Code)
	}
}

func TestSFTPRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sftp/h1/list", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated sftp: status %d, want 401", rec.Code)
	}
}
