package bridge

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/termgate/termgate/internal/terminal"
)

// State is the lifecycle phase of a bridge session.
type State int

const (
	StateAwaitingConnect State = iota
	StateAwaitingAuth
	StateConnecting
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingConnect:
		return "awaiting_connect"
	case StateAwaitingAuth:
		return "awaiting_auth"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

var (
	errAlreadyConnected = errors.New("already connected")
	errSessionClosed    = errors.New("session closed")
)

// Session is the server-side state for one client socket connection. At
// most one live SSH connection exists per Session; inbound events are
// handled serially by the owning gateway goroutine, so the mutex only
// arbitrates against the connect-completion goroutine and the idle janitor.
type Session struct {
	ID        string
	StartedAt time.Time

	mu        sync.Mutex
	state     State
	term      terminal.Session // nil until Active
	transport *client          // owning socket, for janitor-initiated teardown

	// authPrompted latches noAuthRequired to once per session. Per-session
	// by construction: a process-wide flag would suppress the prompt for
	// other concurrent sessions.
	authPrompted bool
	authTimer    *time.Timer

	// pending pty size, coalesced to the latest value while not Active
	pendingResize      bool
	pendCols, pendRows uint16

	lastActivity time.Time

	// byte counters for the audit trail
	bytesIn  atomic.Int64
	bytesOut atomic.Int64

	// target of the current/last connection attempt (for audit records)
	target HostConfig
}

func newSession(id string) *Session {
	return &Session{
		ID:           id,
		StartedAt:    time.Now().UTC(),
		state:        StateAwaitingConnect,
		lastActivity: time.Now(),
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Touch resets the idle clock. Called for inbound data and ping events.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// IdleFor returns how long the session has gone without inbound activity.
func (s *Session) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// MarkAuthPrompted returns true the first time it is called for this
// session; repeated triggers while the prompt is already pending are no-ops.
func (s *Session) MarkAuthPrompted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authPrompted {
		return false
	}
	s.authPrompted = true
	return true
}

// BeginConnect transitions into Connecting. Rejected while a connection is
// in flight or established (the one-SSH-connection-per-Session invariant)
// and after teardown has started.
func (s *Session) BeginConnect(target HostConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateConnecting, StateActive:
		return errAlreadyConnected
	case StateClosing, StateClosed:
		return errSessionClosed
	}
	if s.authTimer != nil {
		s.authTimer.Stop()
		s.authTimer = nil
	}
	s.state = StateConnecting
	s.target = target
	// a credential submission re-arms the auth prompt: a later failure may
	// legitimately trigger noAuthRequired again
	s.authPrompted = false
	return nil
}

func (s *Session) attachTransport(c *client) {
	s.mu.Lock()
	s.transport = c
	s.mu.Unlock()
}

// CloseTransport tells the client why the session is going away and closes
// the socket; the gateway's read loop then runs the normal teardown path.
func (s *Session) CloseTransport(reason string) {
	s.mu.Lock()
	c := s.transport
	s.mu.Unlock()
	if c == nil {
		return
	}
	_ = c.emit(EventDisconnect, reason)
	c.close()
}

// AwaitAuth moves the session into AwaitingAuth (no connection attempt in
// flight). The timer, when non-nil, bounds how long the gateway waits for
// interactively supplied credentials.
func (s *Session) AwaitAuth(timer *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing || s.state == StateClosed {
		if timer != nil {
			timer.Stop()
		}
		return
	}
	if s.authTimer != nil {
		s.authTimer.Stop()
	}
	s.authTimer = timer
	s.state = StateAwaitingAuth
}

// AwaitingAuth reports whether the session is blocked on credentials.
func (s *Session) AwaitingAuth() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateAwaitingAuth
}

// Activate installs the established terminal session and returns any
// coalesced resize that arrived while connecting. Fails when teardown won
// the race, in which case the caller must close term itself.
func (s *Session) Activate(term terminal.Session) (cols, rows uint16, resize bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return 0, 0, false, errSessionClosed
	}
	s.state = StateActive
	s.term = term
	cols, rows, resize = s.pendCols, s.pendRows, s.pendingResize
	s.pendingResize = false
	return cols, rows, resize, nil
}

// FailConnect records a failed attempt. toAuth selects AwaitingAuth (the
// failure was an authentication problem and the client has been prompted)
// over AwaitingConnect (plain retry).
func (s *Session) FailConnect(toAuth bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return
	}
	if toAuth {
		s.state = StateAwaitingAuth
	} else {
		s.state = StateAwaitingConnect
	}
}

// ActiveTerm returns the live terminal session, or nil when the session is
// not Active. Data arriving before Active is dropped by the caller.
func (s *Session) ActiveTerm() terminal.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil
	}
	return s.term
}

// QueueResize applies the new pty size immediately when Active (returning
// the terminal to resize), or stores it — latest value wins — for
// application on the Active transition.
func (s *Session) QueueResize(cols, rows uint16) terminal.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateActive {
		return s.term
	}
	s.pendingResize = true
	s.pendCols, s.pendRows = cols, rows
	return nil
}

// Target returns the host of the current/last connection attempt.
func (s *Session) Target() HostConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Close begins teardown and returns the terminal session to release (nil
// when none was established). Idempotent; the second and later calls return
// nil.
func (s *Session) Close() terminal.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing || s.state == StateClosed {
		return nil
	}
	if s.authTimer != nil {
		s.authTimer.Stop()
		s.authTimer = nil
	}
	term := s.term
	s.term = nil
	s.state = StateClosed
	return term
}
