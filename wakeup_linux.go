//go:build linux

package busloop

import (
	"golang.org/x/sys/unix"
)

const (
	EFD_CLOEXEC  = unix.EFD_CLOEXEC
	EFD_NONBLOCK = unix.EFD_NONBLOCK
)

// createWakeFd builds the cross-thread wake channel. On Linux it is an
// eventfd, returned as both the read and write end; the kernel counter
// coalesces any number of wake writes into a single readable event.
func createWakeFd(initval uint, flags int) (int, int, error) {
	fd, err := unix.Eventfd(initval, flags)
	return fd, fd, err
}
