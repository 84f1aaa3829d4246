package vuser

import (
	"time"

	"loadgen/internal/events"
	"loadgen/internal/task"
	"loadgen/internal/testctl"
)

// userContext is the concrete task.Context handed to every user of a test.
// It is the translation of the source's Data/Context object: a handle back
// to the shared events sender and the two-level cancellation it can trigger.
type userContext struct {
	info        events.UserInfo
	ch          *events.Channel
	userStop    func()
	testCtl     *testctl.Controller
}

func newUserContext(info events.UserInfo, ch *events.Channel, userStop func(), testCtl *testctl.Controller) *userContext {
	return &userContext{info: info, ch: ch, userStop: userStop, testCtl: testCtl}
}

func (c *userContext) AddSuccess(endpointType, endpointName string, responseTime time.Duration) {
	c.ch.Send(events.Success{
		User:         c.info,
		Key:          events.EndpointKey{Type: endpointType, Name: endpointName},
		ResponseTime: responseTime,
	})
}

func (c *userContext) AddFailure(endpointType, endpointName string) {
	c.ch.Send(events.Failure{
		User: c.info,
		Key:  events.EndpointKey{Type: endpointType, Name: endpointName},
	})
}

func (c *userContext) AddError(endpointType, endpointName string, err error) {
	c.ch.Send(events.Error{
		User: c.info,
		Key:  events.EndpointKey{Type: endpointType, Name: endpointName},
		Err:  err,
	})
}

func (c *userContext) Stop() { c.userStop() }

func (c *userContext) StopTest() { c.testCtl.Stop() }

func (c *userContext) ID() uint64 { return c.info.ID }

// emitTaskExecuted and emitUserSpawned are runtime/supervisor-internal: the
// user never calls these, so they live outside the task.Context interface.
func (c *userContext) emitTaskExecuted(taskName string) {
	c.ch.Send(events.TaskExecuted{User: c.info, TaskName: taskName})
}

func (c *userContext) emitUserSpawned() {
	c.ch.Send(events.UserSpawned{User: c.info})
}

var _ task.Context = (*userContext)(nil)
