package bridge

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

// mockTerm implements terminal.Session for session state tests.
type mockTerm struct {
	mu      sync.Mutex
	written []byte
	cols    uint16
	rows    uint16
	resizes int
	closed  bool
}

func (m *mockTerm) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, p...)
	return len(p), nil
}

func (m *mockTerm) Read(p []byte) (int, error) { return 0, errors.New("eof") }

func (m *mockTerm) Resize(rows, cols uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows, m.cols = rows, cols
	m.resizes++
	return nil
}

func (m *mockTerm) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func TestRegistryCreateGetRemove(t *testing.T) {
	r := NewRegistry()

	s, err := r.Create("conn-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got, ok := r.Get("conn-1"); !ok || got != s {
		t.Fatal("Get should return the created session")
	}
	if _, err := r.Create("conn-1"); err == nil {
		t.Fatal("duplicate id must be rejected")
	}
	r.Remove("conn-1")
	if _, ok := r.Get("conn-1"); ok {
		t.Fatal("session should be gone after Remove")
	}
	if r.Len() != 0 {
		t.Fatalf("Len: got %d, want 0", r.Len())
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			if _, err := r.Create(id); err != nil {
				t.Errorf("create %s: %v", id, err)
			}
			r.Get(id)
			r.Remove(id)
		}(i)
	}
	wg.Wait()
	if r.Len() != 0 {
		t.Fatalf("Len after churn: got %d, want 0", r.Len())
	}
}

func TestSessionSingleConnectionInvariant(t *testing.T) {
	s := newSession("s1")

	if err := s.BeginConnect(HostConfig{Address: "h"}); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if err := s.BeginConnect(HostConfig{Address: "h"}); !errors.Is(err, errAlreadyConnected) {
		t.Fatalf("connect while Connecting: got %v, want already connected", err)
	}

	if _, _, _, err := s.Activate(&mockTerm{}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := s.BeginConnect(HostConfig{Address: "h"}); !errors.Is(err, errAlreadyConnected) {
		t.Fatalf("connect while Active: got %v, want already connected", err)
	}
}

func TestSessionNoDataBeforeActive(t *testing.T) {
	s := newSession("s1")
	if s.ActiveTerm() != nil {
		t.Fatal("no terminal before connect")
	}
	if err := s.BeginConnect(HostConfig{Address: "h"}); err != nil {
		t.Fatal(err)
	}
	if s.ActiveTerm() != nil {
		t.Fatal("no terminal while Connecting")
	}
	term := &mockTerm{}
	if _, _, _, err := s.Activate(term); err != nil {
		t.Fatal(err)
	}
	if s.ActiveTerm() != term {
		t.Fatal("terminal should be exposed once Active")
	}
}

func TestSessionResizeCoalescedBeforeActive(t *testing.T) {
	s := newSession("s1")

	if term := s.QueueResize(100, 30); term != nil {
		t.Fatal("resize before Active must be buffered, not applied")
	}
	// Latest value wins.
	if term := s.QueueResize(120, 40); term != nil {
		t.Fatal("resize before Active must be buffered, not applied")
	}

	if err := s.BeginConnect(HostConfig{Address: "h"}); err != nil {
		t.Fatal(err)
	}
	cols, rows, pending, err := s.Activate(&mockTerm{})
	if err != nil {
		t.Fatal(err)
	}
	if !pending || cols != 120 || rows != 40 {
		t.Fatalf("pending resize: got %dx%d (pending=%v), want 120x40", cols, rows, pending)
	}

	// Once Active, resize applies directly.
	if term := s.QueueResize(90, 25); term == nil {
		t.Fatal("resize while Active should return the terminal")
	}
}

func TestSessionAuthPromptLatch(t *testing.T) {
	s := newSession("s1")

	if !s.MarkAuthPrompted() {
		t.Fatal("first trigger must fire the prompt")
	}
	if s.MarkAuthPrompted() {
		t.Fatal("repeated trigger without credential submission must be a no-op")
	}

	// A fresh connect attempt (credential submission) re-arms the latch.
	if err := s.BeginConnect(HostConfig{Address: "h", Password: "p"}); err != nil {
		t.Fatal(err)
	}
	s.FailConnect(true)
	if !s.MarkAuthPrompted() {
		t.Fatal("latch should re-arm after a new connect attempt")
	}
}

func TestSessionLatchIsPerSession(t *testing.T) {
	a := newSession("a")
	b := newSession("b")
	if !a.MarkAuthPrompted() {
		t.Fatal("session a first trigger")
	}
	// A concurrent session must not be suppressed by another session's latch.
	if !b.MarkAuthPrompted() {
		t.Fatal("session b must prompt independently of session a")
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	s := newSession("s1")
	if err := s.BeginConnect(HostConfig{Address: "h"}); err != nil {
		t.Fatal(err)
	}
	term := &mockTerm{}
	if _, _, _, err := s.Activate(term); err != nil {
		t.Fatal(err)
	}

	if got := s.Close(); got != term {
		t.Fatal("first Close must hand back the terminal for release")
	}
	if got := s.Close(); got != nil {
		t.Fatal("second Close must be a no-op")
	}
	if err := s.BeginConnect(HostConfig{Address: "h"}); !errors.Is(err, errSessionClosed) {
		t.Fatalf("connect after Close: got %v, want session closed", err)
	}
}

func TestSessionActivateAfterCloseFails(t *testing.T) {
	s := newSession("s1")
	if err := s.BeginConnect(HostConfig{Address: "h"}); err != nil {
		t.Fatal(err)
	}
	s.Close()
	if _, _, _, err := s.Activate(&mockTerm{}); err == nil {
		t.Fatal("activation must lose the race against teardown")
	}
}
