package vuser

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"loadgen/internal/events"
	"loadgen/internal/task"
	"loadgen/internal/testctl"
)

// Producer owns one user type's Runtime and its single Shared instance, and
// turns spawn tickets into supervised goroutines: one loop per heterogeneous
// user type, driven by a spawn.Controller instead of a single upfront count.
type Producer[U any, S task.Shared] struct {
	rt     *Runtime[U, S]
	name   string
	shared S
	ch     *events.Channel
	testCtl *testctl.Controller
	logger *zap.Logger
}

// NewProducer constructs the shared state once per test; each user receives
// a clone of it.
func NewProducer[U any, S task.Shared](
	ut *task.UserType[U, S],
	ch *events.Channel,
	testCtl *testctl.Controller,
	logger *zap.Logger,
) *Producer[U, S] {
	var shared S
	if ut.NewShared != nil {
		shared = ut.NewShared()
	}
	return &Producer[U, S]{
		rt:      NewRuntime(ut),
		name:    ut.Name,
		shared:  shared,
		ch:      ch,
		testCtl: testCtl,
		logger:  logger,
	}
}

// Run ranges over tickets - spawn counts apportioned by the spawn
// coordinator - launching one supervised user per unit at the next globally
// unique id. It returns once tickets closes, which the coordinator
// guarantees happens whether controllers complete naturally or the test is
// cancelled mid-run.
func (p *Producer[U, S]) Run(testCtx context.Context, tickets <-chan uint64, nextID func() uint64, wg *sync.WaitGroup) {
	for count := range tickets {
		for i := uint64(0); i < count; i++ {
			id := nextID()
			cloned, _ := p.shared.Clone().(S)
			wg.Add(1)
			go Supervise(testCtx, p.rt, events.UserInfo{ID: id, Name: p.name}, p.ch, p.testCtl, cloned, p.logger, wg.Done)
		}
	}
}
