// Package bridge relays bytes and control signals between a browser
// terminal and a remote shell.
//
// One WebSocket connection equals one Session. Inbound events arrive as
// JSON envelopes and are dispatched serially by the read loop; shell output
// is pumped back asynchronously as `data` events. Connection establishment
// runs off the read loop so a socket disconnect can abort an in-flight
// handshake.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/termgate/termgate/internal/audit"
	"github.com/termgate/termgate/internal/terminal"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// CheckOrigin allows all origins. Authentication is enforced via the
	// session token on the upgrade request; CORS on the REST surface is a
	// separate policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	defaultAuthWaitTimeout = 2 * time.Minute
	defaultIdleTimeout     = 30 * time.Minute
	janitorInterval        = time.Minute
	readBufSize            = 4096
)

// LocalShellTarget is the hostConfig.ip value that selects the loopback
// PTY connector when the gateway runs with local shells enabled.
const LocalShellTarget = "local"

// CredentialResolver resolves a stored credential id to its plaintext
// parts. Exactly one of password/privateKey is non-empty on success.
type CredentialResolver interface {
	ResolveCredential(ctx context.Context, id string) (password, privateKey, passphrase string, err error)
}

// Options configures a Gateway. Zero-value fields fall back to defaults.
type Options struct {
	// Connector opens SSH sessions. Required.
	Connector terminal.Connector
	// LocalConnector, when non-nil, serves hostConfig.ip == "local".
	LocalConnector terminal.Connector
	// Classifier decides whether a connect failure should re-prompt for
	// credentials. PatternClassifier when nil.
	Classifier terminal.FailureClassifier
	// Recorder receives session audit entries. NopRecorder when nil.
	Recorder audit.Recorder
	// Credentials resolves hostConfig.credentialId references. When nil,
	// such references fail with an error event.
	Credentials CredentialResolver
	// AuthWaitTimeout bounds how long a session may sit in AwaitingAuth
	// before being disconnected (2m when zero).
	AuthWaitTimeout time.Duration
	// IdleTimeout is the janitor's cutoff for inactive sessions
	// (30m when zero).
	IdleTimeout time.Duration
}

// Gateway accepts client socket connections and bridges them to remote
// shells. Safe for concurrent use; each connection is handled by its own
// goroutines.
type Gateway struct {
	registry *Registry
	opts     Options
}

// NewGateway wires a Gateway to the given registry.
func NewGateway(registry *Registry, opts Options) *Gateway {
	if opts.Classifier == nil {
		opts.Classifier = terminal.PatternClassifier{}
	}
	if opts.Recorder == nil {
		opts.Recorder = audit.NopRecorder{}
	}
	if opts.AuthWaitTimeout <= 0 {
		opts.AuthWaitTimeout = defaultAuthWaitTimeout
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	return &Gateway{registry: registry, opts: opts}
}

// client is the outbound half of one socket connection. gorilla/websocket
// allows one concurrent writer, so all emits share a mutex.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) emit(event string, payload any) error {
	env := struct {
		Event   string `json:"event"`
		Payload any    `json:"payload,omitempty"`
	}{Event: event, Payload: payload}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bridge: marshal %s event: %w", event, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.Close()
}

// ServeHTTP upgrades the request and runs the session until the socket
// closes. The caller's auth middleware has already verified the user; this
// handler only deals with the target host's SSH authentication.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("bridge: websocket upgrade")
		return
	}

	sessionID := uuid.NewString()
	logger := log.With().Str("session_id", sessionID).Logger()

	sess, err := g.registry.Create(sessionID)
	if err != nil {
		logger.Error().Err(err).Msg("bridge: register session")
		_ = conn.Close()
		return
	}

	c := &client{conn: conn}
	sess.attachTransport(c)

	// Session-lifetime context: cancelled when the read loop exits, which
	// aborts any in-flight connect.
	ctx, cancel := context.WithCancel(context.Background())

	userID, clientIP := requestIdentity(r)
	logger.Info().Str("ip", clientIP).Msg("bridge: session opened")

	defer func() {
		cancel()
		term := sess.Close()
		if term != nil {
			_ = term.Close()
		}
		g.registry.Remove(sessionID)
		c.close()

		target := sess.Target()
		g.opts.Recorder.Record(context.Background(), audit.Entry{
			SessionID: sessionID,
			UserID:    userID,
			Action:    audit.ActionDisconnect,
			Host:      target.Address,
			Port:      target.Port,
			Username:  target.Username,
			Status:    audit.StatusSuccess,
			IP:        clientIP,
			StartedAt: sess.StartedAt,
			EndedAt:   time.Now().UTC(),
			BytesIn:   sess.bytesIn.Load(),
			BytesOut:  sess.bytesOut.Load(),
		})
		logger.Info().
			Int64("bytes_in", sess.bytesIn.Load()).
			Int64("bytes_out", sess.bytesOut.Load()).
			Msg("bridge: session closed")
	}()

	g.readLoop(ctx, sess, c, userID, clientIP, logger)
}

// readLoop dispatches inbound events serially until the socket drops.
func (g *Gateway) readLoop(ctx context.Context, sess *Session, c *client, userID, clientIP string, logger zerolog.Logger) {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("bridge: websocket read")
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			logger.Debug().Err(err).Msg("bridge: malformed envelope")
			continue
		}

		switch env.Event {
		case EventPing:
			sess.Touch()
			if err := c.emit(EventPong, nil); err != nil {
				return
			}

		case EventData:
			sess.Touch()
			payload := decodeDataPayload(env.Payload)
			term := sess.ActiveTerm()
			if term == nil {
				// Not Active yet: silent drop per the wire contract.
				continue
			}
			sess.bytesIn.Add(int64(len(payload)))
			if _, err := term.Write(payload); err != nil {
				logger.Warn().Err(err).Msg("bridge: shell write")
			}

		case EventResize:
			p, err := decodeResizePayload(env.Payload)
			if err != nil || p.Cols == 0 || p.Rows == 0 {
				continue
			}
			if term := sess.QueueResize(p.Cols, p.Rows); term != nil {
				if err := term.Resize(p.Rows, p.Cols); err != nil {
					logger.Warn().Err(err).Msg("bridge: pty resize")
				}
			}

		case EventConnectToHost:
			g.handleConnect(ctx, sess, c, env.Payload, userID, clientIP, logger)

		default:
			logger.Debug().Str("event", env.Event).Msg("bridge: unknown event")
		}
	}
}

// handleConnect validates the request and starts the connection attempt.
// The dial itself runs in a goroutine so the read loop keeps seeing the
// socket; a disconnect during the handshake cancels ctx and aborts it.
func (g *Gateway) handleConnect(ctx context.Context, sess *Session, c *client, raw json.RawMessage, userID, clientIP string, logger zerolog.Logger) {
	p, err := decodeConnectPayload(raw)
	if err != nil {
		g.reportError(c, err.Error())
		return
	}
	host := p.HostConfig.canonical()

	if host.Address == "" || host.Username == "" {
		g.reportError(c, "host address and username are required")
		return
	}

	if !host.HasCredentials() {
		// Authentication negotiator: prompt the client and hold the
		// session until credentials arrive or the wait times out. No
		// network attempt is made.
		g.promptForAuth(sess, c, logger)
		return
	}

	if host.CredentialID != "" && host.Password == "" && host.PrivateKey == "" {
		if g.opts.Credentials == nil {
			g.reportError(c, "stored credentials are not available on this gateway")
			return
		}
		password, privateKey, passphrase, err := g.opts.Credentials.ResolveCredential(ctx, host.CredentialID)
		if err != nil {
			logger.Error().Err(err).Str("credential_id", host.CredentialID).Msg("bridge: resolve credential")
			g.reportError(c, "failed to resolve stored credential")
			return
		}
		host.Password = password
		host.PrivateKey = privateKey
		host.Passphrase = passphrase
	}

	if err := sess.BeginConnect(host); err != nil {
		g.reportError(c, err.Error())
		return
	}

	connector := g.opts.Connector
	if host.Address == LocalShellTarget && g.opts.LocalConnector != nil {
		connector = g.opts.LocalConnector
	}

	cfg := terminal.ConnectorConfig{
		Host:       host.Address,
		Port:       host.Port,
		User:       host.Username,
		Password:   host.Password,
		PrivateKey: host.PrivateKey,
		Passphrase: host.Passphrase,
		Cols:       p.Cols,
		Rows:       p.Rows,
	}

	go g.runConnect(ctx, sess, c, connector, cfg, userID, clientIP, logger)
}

// runConnect performs the dial and, on success, activates the session and
// starts the shell→client pump.
func (g *Gateway) runConnect(ctx context.Context, sess *Session, c *client, connector terminal.Connector, cfg terminal.ConnectorConfig, userID, clientIP string, logger zerolog.Logger) {
	term, err := connector.Connect(ctx, cfg)

	entry := audit.Entry{
		SessionID: sess.ID,
		UserID:    userID,
		Action:    audit.ActionConnect,
		Host:      cfg.Host,
		Port:      cfg.Port,
		Username:  cfg.User,
		IP:        clientIP,
		StartedAt: time.Now().UTC(),
	}

	if err != nil {
		if ctx.Err() != nil {
			// Socket gone mid-handshake; the connector already released
			// any late connection. Nothing to report to.
			logger.Info().Msg("bridge: connect aborted by disconnect")
			return
		}
		logger.Warn().Err(err).Str("host", cfg.Host).Msg("bridge: connect failed")

		entry.Status = audit.StatusFailed
		entry.Detail = map[string]any{"error": err.Error(), "kind": terminal.KindOf(err).String()}
		g.opts.Recorder.Record(context.Background(), entry)

		// Both channels carry the same message: the structured error event
		// and a human-readable line in the terminal stream.
		g.reportError(c, err.Error())

		if g.opts.Classifier.IsAuthFailure(err) {
			sess.FailConnect(true)
			g.promptForAuth(sess, c, logger)
		} else {
			sess.FailConnect(false)
		}
		return
	}

	cols, rows, resize, err := sess.Activate(term)
	if err != nil {
		// Teardown won the race; release the fresh connection ourselves.
		_ = term.Close()
		return
	}
	if resize {
		if err := term.Resize(rows, cols); err != nil {
			logger.Warn().Err(err).Msg("bridge: apply pending resize")
		}
	}

	entry.Status = audit.StatusSuccess
	g.opts.Recorder.Record(context.Background(), entry)
	logger.Info().Str("host", cfg.Host).Int("port", cfg.Port).Msg("bridge: shell active")

	go g.pumpShell(sess, c, term, logger)
}

// pumpShell forwards remote shell output to the client until the shell
// closes. Chunks pass through a streaming decoder so multi-byte characters
// split across reads reach the client whole.
func (g *Gateway) pumpShell(sess *Session, c *client, term terminal.Session, logger zerolog.Logger) {
	var dec terminal.StreamDecoder
	buf := make([]byte, readBufSize)
	for {
		n, err := term.Read(buf)
		if n > 0 {
			sess.bytesOut.Add(int64(n))
			if out := dec.Decode(buf[:n]); len(out) > 0 {
				if werr := c.emit(EventData, string(out)); werr != nil {
					return
				}
			}
		}
		if err != nil {
			if rest := dec.Flush(); len(rest) > 0 {
				_ = c.emit(EventData, string(rest))
			}
			// EOF on an active session means the remote shell exited; tell
			// the client and drop the socket so teardown runs.
			if sess.State() == StateActive {
				logger.Info().Err(err).Msg("bridge: shell stream ended")
				sess.CloseTransport("remote shell closed")
			}
			return
		}
	}
}

// promptForAuth emits noAuthRequired once per attempt cycle and parks the
// session in AwaitingAuth with a bounded wait.
func (g *Gateway) promptForAuth(sess *Session, c *client, logger zerolog.Logger) {
	if sess.MarkAuthPrompted() {
		if err := c.emit(EventNoAuthRequired, nil); err != nil {
			return
		}
		logger.Info().Msg("bridge: awaiting interactive credentials")
	}
	timer := time.AfterFunc(g.opts.AuthWaitTimeout, func() {
		if sess.AwaitingAuth() {
			logger.Info().Msg("bridge: auth wait timed out")
			sess.CloseTransport("authentication timeout")
		}
	})
	sess.AwaitAuth(timer)
}

// reportError sends the failure on both channels: the structured error
// event and a terminal-visible line.
func (g *Gateway) reportError(c *client, msg string) {
	_ = c.emit(EventError, msg)
	_ = c.emit(EventData, fmt.Sprintf("\r\n*** Error: %s ***\r\n", msg))
}

// StartJanitor closes sessions idle beyond the configured timeout. Runs
// until ctx is cancelled. Ping and data events reset the idle clock.
func (g *Gateway) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range g.registry.All() {
					if s.IdleFor() >= g.opts.IdleTimeout {
						log.Info().Str("session_id", s.ID).Msg("bridge: closing idle session")
						s.CloseTransport("idle timeout")
					}
				}
			}
		}
	}()
}

// requestIdentity pulls the authenticated user id (set by the auth
// middleware) and client IP off the upgrade request.
func requestIdentity(r *http.Request) (userID, ip string) {
	if v := r.Context().Value(userIDContextKey); v != nil {
		if s, ok := v.(string); ok {
			userID = s
		}
	}
	ip = r.RemoteAddr
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = fwd
	}
	return userID, ip
}

type ctxKey string

// userIDContextKey is where the auth middleware stashes the verified user
// id on the upgrade request context.
const userIDContextKey ctxKey = "termgate.userID"

// WithUserID returns a context carrying the verified console user id.
// Exposed for the auth middleware.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDContextKey, id)
}
