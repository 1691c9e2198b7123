//go:build linux || darwin

package busloop

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestInterestToPoll(t *testing.T) {
	for _, tc := range []struct {
		flags IOFlags
		want  int16
	}{
		{0, 0},
		{FlagReadable, unix.POLLIN | unix.POLLERR},
		{FlagWritable, unix.POLLOUT | unix.POLLERR},
		{FlagReadable | FlagWritable, unix.POLLIN | unix.POLLOUT | unix.POLLERR},
	} {
		if got := interestToPoll(tc.flags); got != tc.want {
			t.Errorf("interestToPoll(%v) = %#x, want %#x", tc.flags, got, tc.want)
		}
	}
}

func TestPollToFlags(t *testing.T) {
	for _, tc := range []struct {
		revents int16
		want    IOFlags
	}{
		{0, 0},
		{unix.POLLIN, FlagReadable},
		{unix.POLLOUT, FlagWritable},
		{unix.POLLERR, FlagError},
		{unix.POLLHUP, FlagError},
		{unix.POLLNVAL, FlagError},
		{unix.POLLIN | unix.POLLHUP, FlagReadable | FlagError},
		{unix.POLLIN | unix.POLLOUT, FlagReadable | FlagWritable},
	} {
		if got := pollToFlags(tc.revents); got != tc.want {
			t.Errorf("pollToFlags(%#x) = %v, want %v", tc.revents, got, tc.want)
		}
	}
}

func TestWaitSet_Rebuild(t *testing.T) {
	watches := []Watch{
		&fakeWatch{fd: 10, flags: FlagReadable, enabled: true},
		&fakeWatch{fd: 11, flags: FlagWritable, enabled: false},
		&fakeWatch{fd: 12, flags: FlagReadable | FlagWritable, enabled: true},
	}

	var s waitSet
	s.rebuild(watches, 99)

	if got := s.watchCount(); got != 3 {
		t.Fatalf("watch count = %d, want 3", got)
	}
	if len(s.fds) != 4 {
		t.Fatalf("fd count = %d, want 4 (watches + wake)", len(s.fds))
	}

	if s.fds[0].Fd != 10 || s.fds[0].Events != unix.POLLIN|unix.POLLERR {
		t.Errorf("entry 0 = %+v", s.fds[0])
	}
	// Disabled watches stay in the set with no requested events.
	if s.fds[1].Fd != 11 || s.fds[1].Events != 0 {
		t.Errorf("entry 1 = %+v", s.fds[1])
	}
	if s.fds[2].Events != unix.POLLIN|unix.POLLOUT|unix.POLLERR {
		t.Errorf("entry 2 = %+v", s.fds[2])
	}
	// The wake descriptor is always last, always read interest.
	if last := s.fds[3]; last.Fd != 99 || last.Events != unix.POLLIN {
		t.Errorf("wake entry = %+v", last)
	}

	// Rebuild reuses storage and reflects registry changes.
	s.rebuild(watches[:1], 99)
	if got := s.watchCount(); got != 1 {
		t.Fatalf("watch count after rebuild = %d, want 1", got)
	}
	if len(s.fds) != 2 {
		t.Fatalf("fd count after rebuild = %d, want 2", len(s.fds))
	}
}

func TestWaitSet_PollReadiness(t *testing.T) {
	r, w := testCreatePipe(t)

	watch := &fakeWatch{fd: int(r.Fd()), flags: FlagReadable, enabled: true}
	wakeR, wakeW := testCreatePipe(t)
	_ = wakeW

	var s waitSet
	s.rebuild([]Watch{watch}, int(wakeR.Fd()))

	// Nothing readable yet: zero timeout returns immediately with no hits.
	n, err := s.poll(0)
	if err != nil {
		t.Fatal("poll failed:", err)
	}
	if n != 0 {
		t.Fatalf("poll = %d ready, want 0", n)
	}

	if _, err := w.Write([]byte{1}); err != nil {
		t.Fatal(err)
	}

	n, err = s.poll(1000)
	if err != nil {
		t.Fatal("poll failed:", err)
	}
	if n != 1 {
		t.Fatalf("poll = %d ready, want 1", n)
	}
	if got := s.readiness(0); !got.Has(FlagReadable) {
		t.Fatalf("readiness(0) = %v, want readable", got)
	}
	if s.wakeFired() {
		t.Fatal("wake reported fired without a wake write")
	}
	if s.watch(0) != Watch(watch) {
		t.Fatal("watch snapshot does not pair back to source")
	}
}

func TestWaitSet_HangupReportsError(t *testing.T) {
	r, w := testCreatePipe(t)

	watch := &fakeWatch{fd: int(r.Fd()), flags: FlagReadable, enabled: true}
	var s waitSet
	s.rebuild([]Watch{watch}, int(r.Fd())) // wake unused here; reuse r

	// Closing the write end hangs up the read end.
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	n, err := s.poll(1000)
	if err != nil {
		t.Fatal("poll failed:", err)
	}
	if n < 1 {
		t.Fatalf("poll = %d ready, want >= 1", n)
	}
	if got := s.readiness(0); !got.Has(FlagError) {
		t.Fatalf("readiness(0) = %v, want error flag on hangup", got)
	}
}
