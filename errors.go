package busloop

import (
	"errors"
)

var (
	// ErrNilTransport is returned by New when no transport is supplied.
	ErrNilTransport = errors.New("busloop: nil transport")

	// ErrNilSource is returned when a nil Watch or Timer is registered.
	ErrNilSource = errors.New("busloop: nil source")

	// ErrCapacityExceeded is returned when a registry's fixed table is
	// full. The existing registered set is untouched; the transport
	// decides how to proceed.
	ErrCapacityExceeded = errors.New("busloop: registry capacity exceeded")

	// ErrInvalidWidth is returned by Dispatch when the request does not
	// carry one of the four defined reply widths.
	ErrInvalidWidth = errors.New("busloop: invalid reply width")
)
