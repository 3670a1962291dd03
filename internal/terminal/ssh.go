package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	cryptossh "golang.org/x/crypto/ssh"
)

const defaultDialTimeout = 10 * time.Second

// SSHConnector establishes SSH sessions to remote hosts.
// Credentials are never stored; they are consumed once during Connect and
// held only for the duration of the session in-memory.
type SSHConnector struct {
	// DialTimeout bounds the TCP dial + SSH handshake (10s when zero).
	DialTimeout time.Duration
}

// Connect opens an SSH connection and returns a Session backed by a remote
// PTY sized to cfg.Cols x cfg.Rows. The returned Session must be closed by
// the caller. Failures are returned as *ConnectError; a missing credential
// fails fast with KindNoCredentials before any network activity.
func (c *SSHConnector) Connect(ctx context.Context, cfg ConnectorConfig) (Session, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, connectErr(KindProtocol, "ssh: host address is required")
	}
	if strings.TrimSpace(cfg.User) == "" {
		return nil, connectErr(KindProtocol, "ssh: username is required")
	}
	if !cfg.HasCredentials() {
		return nil, connectErr(KindNoCredentials, "ssh: no credentials for %s@%s", cfg.User, cfg.Host)
	}

	authMethods, err := authMethodsFromConfig(cfg)
	if err != nil {
		return nil, &ConnectError{Kind: KindAuthRejected, Err: fmt.Errorf("ssh: auth config: %w", err)}
	}

	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	clientCfg := &cryptossh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods,
		HostKeyCallback: cryptossh.InsecureIgnoreHostKey(), //nolint:gosec // hosts are user-supplied targets; verification is a client-side concern
		Timeout:         timeout,
	}

	port := cfg.Port
	if port <= 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port))

	// Respect context cancellation during dial. The dial goroutine owns the
	// late client when the select has already given up on it.
	type dialResult struct {
		client *cryptossh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		cl, err := cryptossh.Dial("tcp", addr, clientCfg)
		ch <- dialResult{cl, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				_ = r.client.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, classifyDialError(addr, r.err)
		}
		sess, err := newSSHSession(r.client, cfg.Cols, cfg.Rows)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}
}

// classifyDialError maps a cryptossh.Dial failure onto the error taxonomy,
// keeping the underlying message intact for display.
func classifyDialError(addr string, err error) *ConnectError {
	wrapped := fmt.Errorf("ssh: dial %s: %w", addr, err)

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ConnectError{Kind: KindTimeout, Err: wrapped}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "permission denied") {
		return &ConnectError{Kind: KindAuthRejected, Err: wrapped}
	}
	if strings.Contains(msg, "handshake failed") {
		return &ConnectError{Kind: KindProtocol, Err: wrapped}
	}
	return &ConnectError{Kind: KindNetwork, Err: wrapped}
}

// sshSession wraps an SSH client + session + remote PTY.
type sshSession struct {
	client  *cryptossh.Client
	session *cryptossh.Session
	stdin   io.WriteCloser
	stdout  io.Reader

	mu     sync.Mutex
	closed bool
}

func newSSHSession(client *cryptossh.Client, cols, rows uint16) (*sshSession, error) {
	sess, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, connectErr(KindProtocol, "ssh: new session: %w", err)
	}

	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}
	modes := cryptossh.TerminalModes{
		cryptossh.ECHO:          1,
		cryptossh.TTY_OP_ISPEED: 14400,
		cryptossh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty("xterm-256color", int(rows), int(cols), modes); err != nil {
		sess.Close()
		client.Close()
		return nil, connectErr(KindProtocol, "ssh: request pty: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, connectErr(KindProtocol, "ssh: stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		client.Close()
		return nil, connectErr(KindProtocol, "ssh: stdout pipe: %w", err)
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		client.Close()
		return nil, connectErr(KindProtocol, "ssh: start login shell: %w", err)
	}

	return &sshSession{
		client:  client,
		session: sess,
		stdin:   stdin,
		stdout:  stdout,
	}, nil
}

func (s *sshSession) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("ssh: session closed")
	}
	return s.stdin.Write(p)
}

func (s *sshSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *sshSession) Resize(rows, cols uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("ssh: session closed")
	}
	return s.session.WindowChange(int(rows), int(cols))
}

// Close releases the SSH session and connection. Safe to call more than once.
func (s *sshSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.stdin.Close()
	_ = s.session.Close()
	return s.client.Close()
}

// authMethodsFromConfig builds the SSH auth methods from ConnectorConfig.
// A private key takes precedence; a password, when also present, is kept as
// a fallback method.
func authMethodsFromConfig(cfg ConnectorConfig) ([]cryptossh.AuthMethod, error) {
	var methods []cryptossh.AuthMethod

	if cfg.PrivateKey != "" {
		var signer cryptossh.Signer
		var err error
		if cfg.Passphrase != "" {
			signer, err = cryptossh.ParsePrivateKeyWithPassphrase([]byte(cfg.PrivateKey), []byte(cfg.Passphrase))
		} else {
			signer, err = cryptossh.ParsePrivateKey([]byte(cfg.PrivateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, cryptossh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, cryptossh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, errors.New("no usable credential")
	}
	return methods, nil
}

// ensure interface compliance
var _ Session = (*sshSession)(nil)
var _ Connector = (*SSHConnector)(nil)
