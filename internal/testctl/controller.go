// Package testctl holds the test-wide cancellation handle.
package testctl

import (
	"context"
	"sync"
)

// Controller wraps the test-wide cancellation token. Stop is idempotent and
// safe to call concurrently from user code (Context.StopTest), the HTTP
// /stop route, SIGINT handling, the runtime deadline, or the stop-condition
// evaluator - all of them converge on the same cancel.
type Controller struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New creates a controller whose context is a child of parent.
func New(parent context.Context) *Controller {
	ctx, cancel := context.WithCancel(parent)
	return &Controller{ctx: ctx, cancel: cancel}
}

// Stop cancels the test. Calling it any number of times is equivalent to
// calling it once.
func (c *Controller) Stop() {
	c.once.Do(c.cancel)
}

// Context returns the test-wide context; every user token and every
// suspension point inside the core selects against its Done channel.
func (c *Controller) Context() context.Context {
	return c.ctx
}

// Done returns the channel closed when the test has been cancelled.
func (c *Controller) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Cancelled reports whether Stop has already fired.
func (c *Controller) Cancelled() bool {
	select {
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}
