// Package vuser implements the per-user lifecycle (User Runtime, C3) and its
// panic-isolating supervisor (User Supervisor, C4).
package vuser

import (
	"context"
	"math/rand"
	"time"

	"loadgen/internal/task"
)

// Status is the internal, two-valued result of one user's run loop, before
// the supervisor translates it into a terminal events.Message. Matches the
// source's UserStatus::{Finished,Cancelled} - Finished covers both "ran out
// of tasks" and "whole test cancelled"; only a user's own Context.Stop()
// produces Cancelled. See DESIGN.md's open-question note.
type Status int

const (
	StatusFinished Status = iota
	StatusCancelled
)

// Runtime is the immutable, per-user-type lifecycle driver: construction,
// on_start, the pick/sleep/call loop, on_stop. One Runtime[U, S] instance is
// shared by every user of that type; it carries no per-user mutable state.
type Runtime[U any, S task.Shared] struct {
	typeName string
	between  task.Between
	picker   *task.Picker[U]
	newUser  func(c task.Context, shared S) *U
}

func drawUint64(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return uint64(rand.Int63n(int64(n)))
}

// sleepBetween paces the next task invocation, waking early on either the
// per-user token or whole-test cancellation - matching the source's
// Spawner::run, which races sleep_between in the same select as both
// cancellation tokens rather than only the per-user one.
func sleepBetween(userCtx, testCtx context.Context, b task.Between) {
	d := b.Min
	if b.Max > b.Min {
		d = b.Min + time.Duration(rand.Int63n(int64(b.Max-b.Min)))
	}
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-userCtx.Done():
	case <-testCtx.Done():
	}
}

// NewRuntime precomputes the weighted picker once per user type.
func NewRuntime[U any, S task.Shared](ut *task.UserType[U, S]) *Runtime[U, S] {
	return &Runtime[U, S]{
		typeName: ut.Name,
		between:  ut.Between,
		picker:   task.NewPicker(ut.Tasks, drawUint64),
		newUser:  ut.New,
	}
}

// run executes one user end to end. testCtx is the whole-test context; every
// select in the loop races against it alongside userCtx, the per-user token
// created for this one user. uc is the concrete Context the user's own code
// sees, and also the runtime's own handle for the UserSpawned/TaskExecuted
// events the user never emits itself.
func (r *Runtime[U, S]) run(testCtx, userCtx context.Context, uc *userContext, shared S) Status {
	user := r.newUser(uc, shared)
	uc.emitUserSpawned()

	if starter, ok := any(user).(task.Starter); ok {
		starter.OnStart(uc)
	}

	onStopAndReturn := func(s Status) Status {
		if stopper, ok := any(user).(task.Stopper); ok {
			stopper.OnStop(uc)
		}
		return s
	}

	for {
		t, ok := r.picker.Pick()
		if !ok {
			// Empty task list, or all weights zero: finish immediately after
			// on_stop.
			return onStopAndReturn(StatusFinished)
		}

		done := make(chan struct{})
		go func(t *task.Task[U]) {
			defer close(done)
			sleepBetween(userCtx, testCtx, r.between)
			t.Body(testCtx, user, uc)
		}(t)

		var status Status
		select {
		case <-userCtx.Done():
			status = StatusCancelled
		case <-testCtx.Done():
			status = StatusFinished
		case <-done:
			uc.emitTaskExecuted(t.Name)
			continue
		}

		// A cancellation branch won the race while the task goroutine is
		// still mid-sleep or mid-body. Join it before reporting this user's
		// terminal status, so any Add*/TaskExecuted message it still emits
		// reaches the aggregator strictly before the terminal message -
		// never after it, and never lost to a closed events channel.
		<-done
		return onStopAndReturn(status)
	}
}
