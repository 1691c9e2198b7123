package busloop

import (
	"fmt"
	"time"
)

// watchSet is the bounded table of registered I/O readiness sources.
//
// The set is confined to the loop goroutine: the transport registers and
// deregisters watches from inside its Dispatch and HandleReady callbacks,
// which the loop itself invokes, so no lock guards it. Worker goroutines
// never touch it.
type watchSet struct {
	entries []Watch
	cap     int
}

func newWatchSet(capacity int) *watchSet {
	return &watchSet{
		entries: make([]Watch, 0, capacity),
		cap:     capacity,
	}
}

// add stores w, or fails with ErrCapacityExceeded when the table is full.
// The existing set is untouched on failure.
func (s *watchSet) add(w Watch) error {
	if len(s.entries) >= s.cap {
		return fmt.Errorf("%w: %d watches", ErrCapacityExceeded, s.cap)
	}
	s.entries = append(s.entries, w)
	return nil
}

// remove deletes w, compacting by shifting the tail down one slot. Returns
// false when w was not registered; the caller logs and moves on.
func (s *watchSet) remove(w Watch) bool {
	for i, e := range s.entries {
		if e == w {
			copy(s.entries[i:], s.entries[i+1:])
			s.entries[len(s.entries)-1] = nil
			s.entries = s.entries[:len(s.entries)-1]
			return true
		}
	}
	return false
}

func (s *watchSet) len() int {
	return len(s.entries)
}

// timerSet is the bounded table of registered timer sources. Confinement
// and capacity semantics match watchSet.
type timerSet struct {
	entries []Timer
	cap     int
}

func newTimerSet(capacity int) *timerSet {
	return &timerSet{
		entries: make([]Timer, 0, capacity),
		cap:     capacity,
	}
}

func (s *timerSet) add(t Timer) error {
	if len(s.entries) >= s.cap {
		return fmt.Errorf("%w: %d timers", ErrCapacityExceeded, s.cap)
	}
	s.entries = append(s.entries, t)
	return nil
}

func (s *timerSet) remove(t Timer) bool {
	for i, e := range s.entries {
		if e == t {
			copy(s.entries[i:], s.entries[i+1:])
			s.entries[len(s.entries)-1] = nil
			s.entries = s.entries[:len(s.entries)-1]
			return true
		}
	}
	return false
}

func (s *timerSet) len() int {
	return len(s.entries)
}

// minEnabledInterval returns the smallest interval among enabled timers.
// ok is false when no timer is enabled, in which case the loop blocks
// without a timeout.
func (s *timerSet) minEnabledInterval() (min time.Duration, ok bool) {
	for _, t := range s.entries {
		if !t.Enabled() {
			continue
		}
		if iv := t.Interval(); !ok || iv < min {
			min, ok = iv, true
		}
	}
	return
}

// AddWatch registers an I/O readiness source. The watch's descriptor joins
// the wait set on the next iteration; a disabled watch stays registered but
// requests no readiness classes.
//
// Must be called on the loop goroutine (typically from Transport.Dispatch or
// a readiness handler). Registration failure is reported to the caller and
// logged; the loop itself keeps running.
func (l *Loop) AddWatch(w Watch) error {
	if w == nil {
		return ErrNilSource
	}
	if err := l.watches.add(w); err != nil {
		l.logWarning().Err(err).Int("fd", w.Fd()).Log("watch registration failed")
		return err
	}
	return nil
}

// RemoveWatch deregisters an I/O readiness source. Removing a watch that was
// never registered is logged and otherwise ignored.
func (l *Loop) RemoveWatch(w Watch) error {
	if w == nil {
		return ErrNilSource
	}
	if !l.watches.remove(w) {
		l.logWarning().Int("fd", w.Fd()).Log("removed watch was not registered")
	}
	return nil
}

// ToggleWatch re-registers or deregisters w according to its current
// enablement, for transports that report enablement changes as a toggle
// rather than as an add or remove. Toggling an enabled watch that is
// already registered fails with ErrCapacityExceeded once the table fills;
// use enablement (Watch.Enabled) rather than repeated toggles to mask a
// registered descriptor.
func (l *Loop) ToggleWatch(w Watch) error {
	if w == nil {
		return ErrNilSource
	}
	if w.Enabled() {
		return l.AddWatch(w)
	}
	return l.RemoveWatch(w)
}

// AddTimer registers a timer source. Expiry is evaluated against the
// observed wait duration each iteration; see Timer.
func (l *Loop) AddTimer(t Timer) error {
	if t == nil {
		return ErrNilSource
	}
	if err := l.timers.add(t); err != nil {
		l.logWarning().Err(err).Dur("interval", t.Interval()).Log("timer registration failed")
		return err
	}
	return nil
}

// RemoveTimer deregisters a timer source. Removing a timer that was never
// registered is logged and otherwise ignored.
func (l *Loop) RemoveTimer(t Timer) error {
	if t == nil {
		return ErrNilSource
	}
	if !l.timers.remove(t) {
		l.logWarning().Dur("interval", t.Interval()).Log("removed timer was not registered")
	}
	return nil
}

// ToggleTimer mirrors ToggleWatch for timer sources.
func (l *Loop) ToggleTimer(t Timer) error {
	if t == nil {
		return ErrNilSource
	}
	if t.Enabled() {
		return l.AddTimer(t)
	}
	return l.RemoveTimer(t)
}
