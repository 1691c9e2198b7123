//go:build linux || darwin

package busloop

import "golang.org/x/sys/unix"

// interestToPoll converts registered interest into poll(2) request events.
// Error readiness is always requested alongside, mirroring how the kernel
// reports it regardless.
func interestToPoll(flags IOFlags) int16 {
	var ev int16
	if flags.Has(FlagReadable) {
		ev |= unix.POLLIN | unix.POLLERR
	}
	if flags.Has(FlagWritable) {
		ev |= unix.POLLOUT | unix.POLLERR
	}
	return ev
}

// pollToFlags converts returned events into readiness flags. POLLHUP and
// POLLNVAL collapse into FlagError: a hung-up or invalid descriptor is an
// error-class condition for the handler to deal with, not a silent skip.
func pollToFlags(revents int16) IOFlags {
	var flags IOFlags
	if revents&unix.POLLIN != 0 {
		flags |= FlagReadable
	}
	if revents&unix.POLLOUT != 0 {
		flags |= FlagWritable
	}
	if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		flags |= FlagError
	}
	return flags
}

// waitSet is the poll(2) descriptor array for one iteration, plus the
// parallel watch snapshot that pairs each entry back to its source. Both
// slices are rebuilt every iteration and their storage reused across them.
//
// The snapshot is what makes readiness forwarding safe against handlers
// that mutate the registry mid-iteration: delivery walks the snapshot, not
// the live set.
type waitSet struct {
	fds     []unix.PollFd
	watches []Watch
}

// rebuild populates the wait set from the registered watches, in
// registration order, with the wake descriptor appended last. Disabled
// watches stay in the set with no requested events; error-class readiness
// still surfaces for them.
func (s *waitSet) rebuild(watches []Watch, wakeFd int) {
	s.fds = s.fds[:0]
	s.watches = s.watches[:0]
	for _, w := range watches {
		var ev int16
		if w.Enabled() {
			ev = interestToPoll(w.Flags())
		}
		s.fds = append(s.fds, unix.PollFd{Fd: int32(w.Fd()), Events: ev})
		s.watches = append(s.watches, w)
	}
	s.fds = append(s.fds, unix.PollFd{Fd: int32(wakeFd), Events: unix.POLLIN})
}

// poll blocks in poll(2) until readiness, timeout, or an error. EINTR
// restarts the wait; anything else is fatal to the caller. timeout follows
// poll(2) conventions: milliseconds, 0 for immediate return, negative to
// block indefinitely.
func (s *waitSet) poll(timeout int) (int, error) {
	for {
		n, err := unix.Poll(s.fds, timeout)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// watchCount is the number of watch entries, excluding the wake descriptor.
func (s *waitSet) watchCount() int {
	return len(s.watches)
}

func (s *waitSet) watch(i int) Watch {
	return s.watches[i]
}

// readiness returns the converted readiness flags for watch entry i.
func (s *waitSet) readiness(i int) IOFlags {
	return pollToFlags(s.fds[i].Revents)
}

// wakeFired reports whether the wake descriptor became readable.
func (s *waitSet) wakeFired() bool {
	return s.fds[len(s.fds)-1].Revents&unix.POLLIN != 0
}

// release clears the watch snapshot so handler references do not linger
// beyond the iteration that delivered them.
func (s *waitSet) release() {
	for i := range s.watches {
		s.watches[i] = nil
	}
	s.watches = s.watches[:0]
}
