package terminal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a connection failure for the bridge's error taxonomy.
type ErrorKind int

const (
	// KindProtocol covers unexpected shell/channel failures.
	KindProtocol ErrorKind = iota
	// KindNoCredentials means no password or private key was supplied;
	// no network connection was attempted.
	KindNoCredentials
	// KindAuthRejected means the remote host refused the credentials.
	KindAuthRejected
	// KindNetwork means the host was unreachable or the connection dropped
	// during the handshake.
	KindNetwork
	// KindTimeout means the dial or handshake exceeded its deadline.
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindNoCredentials:
		return "no_credentials"
	case KindAuthRejected:
		return "auth_rejected"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	default:
		return "protocol"
	}
}

// ConnectError wraps a connection failure with its classification. The
// underlying message is preserved for display in the client terminal.
type ConnectError struct {
	Kind ErrorKind
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *ConnectError) Unwrap() error { return e.Err }

func connectErr(kind ErrorKind, format string, args ...any) *ConnectError {
	return &ConnectError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the classification of err, or KindProtocol when err carries
// no ConnectError.
func KindOf(err error) ErrorKind {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindProtocol
}

// FailureClassifier decides whether a connect failure should trigger the
// interactive credential prompt. Abstracted so the matching rule can be
// swapped for a structured error code without touching calling code.
type FailureClassifier interface {
	IsAuthFailure(err error) bool
}

// PatternClassifier is the default FailureClassifier. It recognizes typed
// ConnectError classifications first and falls back to a case-insensitive
// substring match on the error text. The substring match is a best-effort
// heuristic over library error messages, not a guarantee;
// golang.org/x/crypto/ssh exposes no structured auth-failure code on the
// client side.
type PatternClassifier struct{}

func (PatternClassifier) IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case KindAuthRejected, KindNoCredentials:
		return true
	case KindNetwork, KindTimeout:
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "authentication") || strings.Contains(msg, "auth")
}
