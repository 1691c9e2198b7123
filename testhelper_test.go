package busloop

import (
	"os"
	"sync"
	"testing"
	"time"
)

// waitLoopState waits for a loop to reach a specific state within a timeout.
// This is used by multiple test files.
func waitLoopState(t *testing.T, loop *Loop, expected State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for loop.State() != expected && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := loop.State(); got != expected {
		t.Fatalf("loop failed to reach %v state (got %v)", expected, got)
	}
}

// testCreatePipe creates a pipe whose read end can serve as a watch
// descriptor. Writing to w makes r readable.
func testCreatePipe(t *testing.T) (r, w *os.File) {
	t.Helper()
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal("os.Pipe failed:", err)
	}
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

// fakeWatch is a scriptable Watch.
type fakeWatch struct {
	fd      int
	flags   IOFlags
	enabled bool
	onReady func(IOFlags) error

	readyCount int
	lastFlags  IOFlags
}

func (w *fakeWatch) Fd() int        { return w.fd }
func (w *fakeWatch) Flags() IOFlags { return w.flags }
func (w *fakeWatch) Enabled() bool  { return w.enabled }

func (w *fakeWatch) HandleReady(flags IOFlags) error {
	w.readyCount++
	w.lastFlags = flags
	if w.onReady != nil {
		return w.onReady(flags)
	}
	return nil
}

// fakeTimer is a scriptable Timer.
type fakeTimer struct {
	interval time.Duration
	enabled  bool
	onExpire func() error

	expiredCount int
}

func (ft *fakeTimer) Interval() time.Duration { return ft.interval }
func (ft *fakeTimer) Enabled() bool           { return ft.enabled }

func (ft *fakeTimer) HandleExpired() error {
	ft.expiredCount++
	if ft.onExpire != nil {
		return ft.onExpire()
	}
	return nil
}

// stubReply records one Transport.Reply invocation.
type stubReply struct {
	token any
	value uint64
	width Width
}

// stubTransport is a minimal Transport for exercising the loop without a
// real message bus. Dispatch and Reply run on the loop goroutine; the
// mutex exists for test goroutines inspecting recorded replies.
type stubTransport struct {
	mu      sync.Mutex
	replies []stubReply

	// onDispatch, when set, overrides the default no-work Dispatch.
	onDispatch func() (bool, error)

	// onReply, when set, is consulted before recording.
	onReply func(token any, value uint64, width Width) error

	// replyCh, when set, receives each recorded reply.
	replyCh chan stubReply
}

func (s *stubTransport) Dispatch() (bool, error) {
	if s.onDispatch != nil {
		return s.onDispatch()
	}
	return false, nil
}

func (s *stubTransport) Reply(token any, value uint64, width Width) error {
	if s.onReply != nil {
		if err := s.onReply(token, value, width); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.replies = append(s.replies, stubReply{token: token, value: value, width: width})
	s.mu.Unlock()
	if s.replyCh != nil {
		s.replyCh <- stubReply{token: token, value: value, width: width}
	}
	return nil
}

func (s *stubTransport) recorded() []stubReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]stubReply, len(s.replies))
	copy(out, s.replies)
	return out
}
