package task

import "time"

// Context is handed to every task body and on_start/on_stop hook. It is the
// only channel a user type has back into the harness: recording outcomes and
// requesting a stop.
type Context interface {
	// AddSuccess records a successful call against the given endpoint.
	AddSuccess(endpointType, endpointName string, responseTime time.Duration)
	// AddFailure records an expected-but-unsuccessful outcome (e.g. a non-2xx
	// status code), as opposed to an unexpected error.
	AddFailure(endpointType, endpointName string)
	// AddError records an unexpected error encountered while calling the
	// endpoint.
	AddError(endpointType, endpointName string, err error)
	// Stop cancels this user only. Idempotent.
	Stop()
	// StopTest cancels the whole test. Idempotent.
	StopTest()
	// ID returns this user's globally unique, dense identifier.
	ID() uint64
}

// Shared is cloned once per user from a single value created at test start via
// a user-type-supplied factory. Its internal mutation discipline, if any, is
// the user type's responsibility, not the harness's.
type Shared interface {
	Clone() Shared
}

// NoShared is the Shared implementation for user types with no shared state,
// mirroring the Rust source's blanket `impl Shared for ()`.
type NoShared struct{}

// Clone returns the receiver unchanged; NoShared carries no state to copy.
func (NoShared) Clone() Shared { return NoShared{} }
