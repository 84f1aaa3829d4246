// Package task defines the user-facing extension surface: the task registry,
// the weighted picker that draws one task per user tick, and the Context/
// Shared contracts a user type is built against.
package task

import (
	"context"
	"sort"
	"time"
)

// Task is one named, weighted, paced unit of work on a user of type U.
// Immutable after registration.
type Task[U any] struct {
	Name   string
	Weight uint64
	Body   func(ctx context.Context, user *U, c Context)
}

// Between is the per-user pacing interval, sampled uniformly between task
// invocations.
type Between struct {
	Min time.Duration
	Max time.Duration
}

// UserType is the immutable descriptor an author registers once per test: a
// name, a coordinator weight, a pacing window, a task list, and the factory
// used to construct each user and its shared object.
type UserType[U any, S Shared] struct {
	Name    string
	Weight  uint64
	Between Between
	Tasks   []Task[U]

	// New constructs one user. Mirrors the source's User::new(test_config,
	// context, shared).
	New func(c Context, shared S) *U

	// NewShared constructs the single Shared value cloned into every user of
	// this type. May be nil for user types with no shared state.
	NewShared func() S
}

// Starter is implemented by user types that need on_start behavior. Optional:
// user types that don't need it simply don't implement it.
type Starter interface {
	OnStart(c Context)
}

// Stopper is implemented by user types that need on_stop behavior.
type Stopper interface {
	OnStop(c Context)
}

// Picker draws one task per tick from a precomputed cumulative-weight table:
// build the table once (tasks are immutable), binary-search a uniform draw
// in [0, total_weight) on every call.
type Picker[U any] struct {
	tasks []Task[U]
	cum   []uint64
	total uint64
	draw  func(n uint64) uint64
}

// NewPicker precomputes the cumulative-weight table. A nil or zero-length
// weight vector (all weights zero, or no tasks) yields a picker that always
// returns (nil, false), so the user loop terminates as finished.
func NewPicker[U any](tasks []Task[U], draw func(n uint64) uint64) *Picker[U] {
	p := &Picker[U]{tasks: tasks, draw: draw}
	p.cum = make([]uint64, len(tasks))
	var running uint64
	for i, t := range tasks {
		if t.Weight > 0 {
			running += t.Weight
		}
		p.cum[i] = running
	}
	p.total = running
	return p
}

// Pick draws one task. Returns false when the task list is empty or every
// weight is zero.
func (p *Picker[U]) Pick() (*Task[U], bool) {
	if p.total == 0 {
		return nil, false
	}
	n := p.draw(p.total)
	idx := sort.Search(len(p.cum), func(i int) bool { return p.cum[i] > n })
	if idx >= len(p.tasks) {
		idx = len(p.tasks) - 1
	}
	return &p.tasks[idx], true
}
