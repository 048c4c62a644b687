package schedoscope

import "errors"

var (
	// ErrNoDriverRegistry is returned by New when no driver.Registry was
	// supplied via WithDriverRegistry — the Dispatcher has no way to
	// construct a Driver for any configured type.
	ErrNoDriverRegistry = errors.New("schedoscope: no driver registry configured")
	// ErrNoTransformationTypes is returned by New when Config.Types is
	// empty; there would be nothing to bootstrap.
	ErrNoTransformationTypes = errors.New("schedoscope: no transformation types configured")
	// ErrUnknownTransformationType is returned by New when a configured
	// type has no matching Factory registered — a fatal configuration
	// error at bootstrap, per the Dispatcher design.
	ErrUnknownTransformationType = errors.New("schedoscope: unknown transformation type")
	// ErrInvalidConcurrency is returned by New when a configured type's
	// Concurrency is less than 1 — a fatal configuration error at
	// bootstrap, same class as ErrUnknownTransformationType.
	ErrInvalidConcurrency = errors.New("schedoscope: transformation type concurrency must be at least 1")

	// ErrAlreadyStarted is returned by Start when called more than once.
	ErrAlreadyStarted = errors.New("schedoscope: dispatcher already started")
	// ErrNotStarted is returned by Stop when the dispatcher was never started.
	ErrNotStarted = errors.New("schedoscope: dispatcher not started")
	// ErrDispatcherStopped is returned by Dispatch/GetTransformations once
	// Stop has completed; no further commands are accepted.
	ErrDispatcherStopped = errors.New("schedoscope: dispatcher stopped")

	// ErrNoCapacity describes a Pool whose Workers' mailboxes were all
	// full at the moment of routing. Dispatch does not return it: that
	// case reaches the caller as a TransformationFailure reply.
	ErrNoCapacity = errors.New("schedoscope: pool has no spare worker capacity")
)
