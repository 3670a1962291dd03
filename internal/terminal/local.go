package terminal

import (
	"context"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

const defaultLocalShell = "bash"

// LocalConnector starts a PTY-backed shell on the gateway host itself.
// Development/loopback use only: it gives the caller a shell as the gateway
// process user, so the server keeps it disabled unless explicitly enabled.
type LocalConnector struct {
	// Shell overrides the spawned shell ("bash" when empty).
	Shell string
}

type localSession struct {
	cmd  *exec.Cmd
	ptmx *os.File

	mu     sync.Mutex
	closed bool
}

// Connect spawns the shell under a new PTY sized to cfg.Cols x cfg.Rows.
// The dial is local and immediate; ctx is only checked up-front.
func (c *LocalConnector) Connect(ctx context.Context, cfg ConnectorConfig) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shell := c.Shell
	if shell == "" {
		shell = defaultLocalShell
	}
	cmd := exec.Command(shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	cols, rows := cfg.Cols, cfg.Rows
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, connectErr(KindProtocol, "local: start pty: %w", err)
	}

	return &localSession{cmd: cmd, ptmx: ptmx}, nil
}

func (s *localSession) Write(p []byte) (int, error) {
	return s.ptmx.Write(p)
}

func (s *localSession) Read(p []byte) (int, error) {
	return s.ptmx.Read(p)
}

func (s *localSession) Resize(rows, cols uint16) error {
	return pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// Close terminates the shell subprocess and its PTY. Safe to call more than once.
func (s *localSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Kill the subprocess to avoid orphaned processes
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.ptmx.Close()
	// Wait for the process to release resources
	_ = s.cmd.Wait()
	return err
}

var _ Session = (*localSession)(nil)
var _ Connector = (*LocalConnector)(nil)
