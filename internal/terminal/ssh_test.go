package terminal

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConnectNoCredentialsFailsFast(t *testing.T) {
	c := &SSHConnector{}
	start := time.Now()
	_, err := c.Connect(context.Background(), ConnectorConfig{
		Host: "10.0.0.5",
		User: "alice",
		Port: 22,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if KindOf(err) != KindNoCredentials {
		t.Fatalf("kind: got %v, want no_credentials", KindOf(err))
	}
	// No network attempt: must return effectively immediately even though
	// 10.0.0.5 is unroutable from the test environment.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("no-credential check took %v; a dial was attempted", elapsed)
	}
}

func TestConnectValidation(t *testing.T) {
	c := &SSHConnector{}
	if _, err := c.Connect(context.Background(), ConnectorConfig{User: "alice", Password: "x"}); err == nil {
		t.Error("expected error for empty host")
	}
	if _, err := c.Connect(context.Background(), ConnectorConfig{Host: "h", Password: "x"}); err == nil {
		t.Error("expected error for empty user")
	}
}

func TestAuthMethodsPassword(t *testing.T) {
	methods, err := authMethodsFromConfig(ConnectorConfig{Password: "secret123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(methods) != 1 {
		t.Fatalf("got %d methods, want 1", len(methods))
	}
}

func TestAuthMethodsInvalidKey(t *testing.T) {
	_, err := authMethodsFromConfig(ConnectorConfig{PrivateKey: "not-a-valid-key"})
	if err == nil {
		t.Fatal("expected error for invalid private key")
	}
}

func TestAuthMethodsKeyAndPasswordOrdering(t *testing.T) {
	// An invalid key must fail even when a password is also present; the
	// caller decides fallback policy, not this helper.
	_, err := authMethodsFromConfig(ConnectorConfig{PrivateKey: "garbage", Password: "p"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestClassifyDialError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain"), KindAuthRejected},
		{errors.New("connect: connection refused"), KindNetwork},
		{errors.New("ssh: handshake failed: read tcp: connection reset by peer"), KindProtocol},
	}
	for _, tt := range tests {
		got := classifyDialError("h:22", tt.err)
		if got.Kind != tt.want {
			t.Errorf("classifyDialError(%q): got %v, want %v", tt.err, got.Kind, tt.want)
		}
		// Underlying message must be preserved for display.
		if got.Err == nil || got.Error() == "" {
			t.Errorf("classifyDialError(%q): message lost", tt.err)
		}
	}
}

func TestPatternClassifier(t *testing.T) {
	var c PatternClassifier

	if !c.IsAuthFailure(errors.New("Authentication failed")) {
		t.Error("should match 'Authentication failed'")
	}
	if !c.IsAuthFailure(errors.New("all auth methods exhausted")) {
		t.Error("should match 'auth' substring")
	}
	if c.IsAuthFailure(errors.New("connection refused")) {
		t.Error("should not match network error text")
	}
	if c.IsAuthFailure(nil) {
		t.Error("nil is not an auth failure")
	}
	if !c.IsAuthFailure(&ConnectError{Kind: KindAuthRejected, Err: errors.New("nope")}) {
		t.Error("typed auth rejection must classify without text matching")
	}
	if c.IsAuthFailure(&ConnectError{Kind: KindTimeout, Err: errors.New("auth server timed out")}) {
		t.Error("typed timeout must win over the 'auth' substring")
	}
}

func TestConnectErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &ConnectError{Kind: KindNetwork, Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Unwrap should expose the inner error")
	}
	if err.Error() != "boom" {
		t.Errorf("Error(): got %q", err.Error())
	}
}

func TestKindOfPlainError(t *testing.T) {
	if KindOf(errors.New("x")) != KindProtocol {
		t.Error("plain errors default to protocol kind")
	}
}

func TestHasCredentials(t *testing.T) {
	if (ConnectorConfig{}).HasCredentials() {
		t.Error("empty config has no credentials")
	}
	if !(ConnectorConfig{Password: "p"}).HasCredentials() {
		t.Error("password counts")
	}
	if !(ConnectorConfig{PrivateKey: "k"}).HasCredentials() {
		t.Error("private key counts")
	}
}
