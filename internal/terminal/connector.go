// Package terminal provides the remote-shell side of the bridge.
//
// Supported connectors:
//   - SSHConnector   — interactive PTY over an outbound SSH connection
//   - LocalConnector — PTY-backed shell on the gateway host (development)
//
// A Connector turns a ConnectorConfig into a Session; the bridge package
// owns the Session lifecycle and pumps bytes between it and the client
// socket.
package terminal

import "context"

// Session is the common interface for streaming terminal connectors.
// Callers Write stdin bytes and Read stdout/stderr bytes. Control messages
// (resize, close) are handled out-of-band by the bridge.
type Session interface {
	// Write sends bytes to the remote stdin (keyboard input).
	Write(p []byte) (n int, err error)
	// Read receives bytes from the remote stdout/stderr (terminal output).
	Read(p []byte) (n int, err error)
	// Resize changes the remote PTY dimensions.
	Resize(rows, cols uint16) error
	// Close terminates the session and frees all resources. Idempotent.
	Close() error
}

// Connector creates a Session for a given target configuration.
// Implementations must be safe for concurrent use and must honor context
// cancellation during connection establishment.
type Connector interface {
	Connect(ctx context.Context, cfg ConnectorConfig) (Session, error)
}

// ConnectorConfig carries the parameters required to open a connection.
// Exactly one of Password/PrivateKey is populated in the common path; both
// empty means the caller has no credentials and Connect fails fast with
// ErrNoCredentials.
type ConnectorConfig struct {
	// Host is the target hostname or IP address.
	Host string
	// Port is the target TCP port (22 when unset).
	Port int
	// User is the login username.
	User string
	// Password is the plaintext password credential, if any.
	Password string
	// PrivateKey is the PEM-encoded private key credential, if any.
	PrivateKey string
	// Passphrase decrypts PrivateKey when the key is encrypted.
	Passphrase string
	// Cols and Rows size the remote PTY at session start.
	Cols uint16
	Rows uint16
}

// HasCredentials reports whether at least one credential field is set.
func (cfg ConnectorConfig) HasCredentials() bool {
	return cfg.Password != "" || cfg.PrivateKey != ""
}
