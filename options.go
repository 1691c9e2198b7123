// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package busloop

import (
	"fmt"

	"github.com/joeycumines/go-busloop/primecount"
	"github.com/joeycumines/logiface"
)

// Default registry capacities. Registration beyond a capacity fails with
// ErrCapacityExceeded; see WithWatchCapacity and WithTimerCapacity.
const (
	DefaultWatchCapacity = 64
	DefaultTimerCapacity = 64
)

// loopOptions holds configuration for Loop creation.
type loopOptions struct {
	watchCapacity int
	timerCapacity int
	workload      Workload
	logger        *logiface.Logger[logiface.Event]
}

// Option configures a Loop instance.
type Option interface {
	applyLoop(*loopOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (o *optionImpl) applyLoop(opts *loopOptions) error {
	return o.applyLoopFunc(opts)
}

// WithWatchCapacity bounds the I/O watch registry. Must be positive.
func WithWatchCapacity(capacity int) Option {
	return &optionImpl{func(opts *loopOptions) error {
		if capacity <= 0 {
			return fmt.Errorf("busloop: watch capacity must be positive, got %d", capacity)
		}
		opts.watchCapacity = capacity
		return nil
	}}
}

// WithTimerCapacity bounds the timer registry. Must be positive.
func WithTimerCapacity(capacity int) Option {
	return &optionImpl{func(opts *loopOptions) error {
		if capacity <= 0 {
			return fmt.Errorf("busloop: timer capacity must be positive, got %d", capacity)
		}
		opts.timerCapacity = capacity
		return nil
	}}
}

// WithWorkload replaces the function run for each dispatched request. The
// default is primecount.Count, a deliberately slow trial-division prime
// counter. The workload runs on worker goroutines, concurrently with the
// loop and with itself; it must be safe for concurrent use.
func WithWorkload(workload Workload) Option {
	return &optionImpl{func(opts *loopOptions) error {
		if workload == nil {
			return fmt.Errorf("busloop: workload must not be nil")
		}
		opts.workload = workload
		return nil
	}}
}

// WithLogger attaches a structured logger to the Loop. Without one the loop
// stays silent except for critical failures, which fall back to the standard
// library logger so they cannot be lost.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// resolveLoopOptions applies Option instances to loopOptions.
func resolveLoopOptions(opts []Option) (*loopOptions, error) {
	cfg := &loopOptions{
		watchCapacity: DefaultWatchCapacity,
		timerCapacity: DefaultTimerCapacity,
		workload:      primecount.Count,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
