package vuser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"loadgen/internal/events"
	"loadgen/internal/task"
	"loadgen/internal/testctl"
)

// Supervise wraps one Runtime in an isolated execution domain: a panic
// inside the runtime becomes a UserPanicked message instead of crashing the
// process. It is meant to be launched with `go`, and reports its own
// completion by calling done once it has sent the user's terminal message
// (callers pass a WaitGroup's Done).
func Supervise[U any, S task.Shared](
	testCtx context.Context,
	rt *Runtime[U, S],
	info events.UserInfo,
	ch *events.Channel,
	testCtl *testctl.Controller,
	shared S,
	logger *zap.Logger,
	done func(),
) {
	defer done()

	userCtx, userCancel := context.WithCancel(context.Background())
	defer userCancel()
	uc := newUserContext(info, ch, userCancel, testCtl)

	type result struct {
		status Status
		panicV any
	}
	resultCh := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- result{panicV: r}
			}
		}()
		resultCh <- result{status: rt.run(testCtx, userCtx, uc, shared)}
	}()

	r := <-resultCh
	if r.panicV != nil {
		logger.Error("virtual user panicked",
			zap.Uint64("user_id", info.ID),
			zap.String("user_name", info.Name),
			zap.Any("panic", r.panicV))
		ch.Send(events.UserPanicked{User: info, Message: fmt.Sprintf("%v", r.panicV)})
		return
	}

	switch r.status {
	case StatusFinished:
		ch.Send(events.UserFinished{User: info})
	case StatusCancelled:
		ch.Send(events.UserSelfStopped{User: info})
	default:
		ch.Send(events.UserUnknown{User: info})
	}
}
