// Package events implements the unbounded MPSC queue of MainMessage values
// that carries outcomes from every virtual user to the single aggregator.
package events

import "time"

// UserInfo is carried on every message so a reader never has to join back
// against a separate user table to know who produced it.
type UserInfo struct {
	ID   uint64
	Name string
}

// EndpointKey is the (type, name) pair statistics are bucketed under, e.g.
// ("GET", "/foo").
type EndpointKey struct {
	Type string
	Name string
}

// Message is the closed set of events a user (or its supervisor) can emit.
// Go has no sum type, so the tagged union is a marker-interface closed over
// this package's concrete structs, switched on by the aggregator.
type Message interface {
	message()
}

// UserSpawned is emitted once, before any other message from this user.
type UserSpawned struct {
	User UserInfo
}

// Success records a successful call against an endpoint.
type Success struct {
	User         UserInfo
	Key          EndpointKey
	ResponseTime time.Duration
}

// Failure records an expected-but-unsuccessful call.
type Failure struct {
	User UserInfo
	Key  EndpointKey
}

// Error records an unexpected error encountered calling an endpoint.
type Error struct {
	User UserInfo
	Key  EndpointKey
	Err  error
}

// TaskExecuted is emitted once per completed task invocation.
type TaskExecuted struct {
	User     UserInfo
	TaskName string
}

// UserFinished is a terminal message: the user's loop returned normally, or
// the whole test was cancelled while the user was running.
type UserFinished struct {
	User UserInfo
}

// UserSelfStopped is a terminal message: the user called Context.Stop().
type UserSelfStopped struct {
	User UserInfo
}

// UserPanicked is a terminal message: the user runtime panicked.
type UserPanicked struct {
	User    UserInfo
	Message string
}

// UserUnknown is a terminal message for any abnormal termination that is
// neither a normal return nor a captured panic.
type UserUnknown struct {
	User UserInfo
}

func (UserSpawned) message()     {}
func (Success) message()         {}
func (Failure) message()         {}
func (Error) message()           {}
func (TaskExecuted) message()    {}
func (UserFinished) message()    {}
func (UserSelfStopped) message() {}
func (UserPanicked) message()    {}
func (UserUnknown) message()     {}

// IsTerminal reports whether m is one of the four terminal status messages.
func IsTerminal(m Message) bool {
	switch m.(type) {
	case UserFinished, UserSelfStopped, UserPanicked, UserUnknown:
		return true
	default:
		return false
	}
}
