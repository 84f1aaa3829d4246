// Package orchestrator implements the Test Orchestrator (C10): it wires the
// spawn coordinator, the per-type producers, the events channel, and the
// aggregator together, drives the update-interval tick loop, evaluates the
// stop condition, and sequences shutdown. It drives any number of
// heterogeneous, weighted user types rather than one flat population of
// virtual users.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"loadgen/internal/events"
	"loadgen/internal/results"
	"loadgen/internal/spawn"
	"loadgen/internal/testctl"
)

// ProducerRunner is satisfied by vuser.Producer[U, S] for any U and S - Go's
// structural typing lets the orchestrator hold a slice of producers across
// different user types without a type parameter of its own.
type ProducerRunner interface {
	Run(testCtx context.Context, tickets <-chan uint64, nextID func() uint64, wg *sync.WaitGroup)
}

// TypeConfig names one user type's weight (for proportional population
// apportionment) and a factory for its producer. The factory is handed the
// orchestrator's own events channel and test controller, which don't exist
// until Run starts - callers build a TypeConfig with vuser.NewProducer
// closed over their task.UserType[U, S]:
//
//	TypeConfig{Name: "browse", Weight: 3, NewProducer: func(ch *events.Channel, tc *testctl.Controller) ProducerRunner {
//	    return vuser.NewProducer(browseUserType, ch, tc, logger)
//	}}
type TypeConfig struct {
	Name        string
	Weight      uint64
	NewProducer func(ch *events.Channel, testCtl *testctl.Controller) ProducerRunner
}

// Config mirrors the CLI flags that the orchestrator itself consumes.
type Config struct {
	UserCount      uint64
	UsersPerSec    uint64
	Runtime        time.Duration // zero means unlimited
	UpdateInterval time.Duration
	StopCondition  results.StopCondition
}

// Orchestrator runs one test end to end.
type Orchestrator struct {
	cfg         Config
	types       []TypeConfig
	logger      *zap.Logger
	onSnapshot  func(results.Snapshot)
	messageSink func(events.Message)
}

// New constructs an Orchestrator. onSnapshot is called once per update tick
// with the latest snapshot - writers, the Prometheus exporter, and the HTTP
// server state all hang off this single hook.
func New(cfg Config, types []TypeConfig, logger *zap.Logger, onSnapshot func(results.Snapshot)) *Orchestrator {
	return &Orchestrator{cfg: cfg, types: types, logger: logger, onSnapshot: onSnapshot}
}

// SetMessageSink installs a per-message hook on the aggregator this run
// constructs, so a caller (the Prometheus exporter) can observe every
// request as it happens rather than waiting for the next snapshot tick.
// Must be called before Run.
func (o *Orchestrator) SetMessageSink(sink func(events.Message)) {
	o.messageSink = sink
}

// apportion distributes total across weights using the largest-remainder
// method, so the per-type caps sum to exactly total even when weight/total
// weight isn't an integer ratio - e.g. weights 1:1:1 over a user count of 7
// yields 3, 2 and 2, not 2, 2 and 2 (losing a user) or unbounded rounding
// drift across many types.
func apportion(total uint64, weights []uint64) []uint64 {
	var sumWeight uint64
	for _, w := range weights {
		sumWeight += w
	}
	out := make([]uint64, len(weights))
	if sumWeight == 0 || total == 0 {
		return out
	}

	type remainder struct {
		idx int
		rem uint64 // remainder * sumWeight, to compare fractions without floats
	}
	rems := make([]remainder, len(weights))
	var assigned uint64
	for i, w := range weights {
		share := total * w
		out[i] = share / sumWeight
		rems[i] = remainder{idx: i, rem: share % sumWeight}
		assigned += out[i]
	}
	left := total - assigned
	for left > 0 {
		best := 0
		for i := 1; i < len(rems); i++ {
			if rems[i].rem > rems[best].rem {
				best = i
			}
		}
		out[rems[best].idx]++
		rems[best].rem = 0
		left--
	}
	return out
}

// Run executes the full test lifecycle: spawns producers, runs the spawn
// coordinator, runs the aggregator, drives the update-interval tick loop
// against the runtime deadline/stop condition/external cancellation, then
// joins everything and returns the final snapshot.
//
// ctx governs the whole test from the outside (SIGINT/SIGTERM); cancelling
// it has the same effect as the stop condition firing or the runtime
// deadline elapsing.
func (o *Orchestrator) Run(ctx context.Context) (results.Snapshot, error) {
	testCtl := testctl.New(ctx)
	defer testCtl.Stop()

	ch := events.NewChannel()
	agg := results.NewAggregator(ch, o.logger)
	if o.messageSink != nil {
		agg.SetSink(o.messageSink)
	}
	ticker, finalCh, aggErrCh := results.RunSupervised(agg)

	weights := make([]uint64, len(o.types))
	for i, t := range o.types {
		weights[i] = t.Weight
	}
	limits := apportion(o.cfg.UserCount, weights)

	controllers := make([]*spawn.Controller, len(o.types))
	producers := make([]ProducerRunner, len(o.types))
	for i, t := range o.types {
		controllers[i] = spawn.NewController(t.Name, limits[i])
		producers[i] = t.NewProducer(ch, testCtl)
	}

	var nextIDCounter uint64
	var nextIDMu sync.Mutex
	nextID := func() uint64 {
		nextIDMu.Lock()
		defer nextIDMu.Unlock()
		id := nextIDCounter
		nextIDCounter++
		return id
	}

	var supervisorWG sync.WaitGroup
	g, gctx := errgroup.WithContext(testCtl.Context())
	_ = gctx // producers/coordinator never fail; gctx is unused deliberately
	for i := range o.types {
		producer, ctrl := producers[i], controllers[i]
		g.Go(func() error {
			producer.Run(testCtl.Context(), ctrl.Tickets(), nextID, &supervisorWG)
			return nil
		})
	}

	coord := spawn.NewCoordinator(o.cfg.UsersPerSec, controllers)
	g.Go(func() error {
		coord.Run(testCtl.Context())
		return nil
	})

	var deadline <-chan time.Time
	if o.cfg.Runtime > 0 {
		timer := time.NewTimer(o.cfg.Runtime)
		defer timer.Stop()
		deadline = timer.C
	}

	updateInterval := o.cfg.UpdateInterval
	if updateInterval <= 0 {
		updateInterval = 2 * time.Second
	}
	updateTicker := time.NewTicker(updateInterval)
	defer updateTicker.Stop()

	start := time.Now()
	var aggErr error
loop:
	for {
		select {
		case <-updateTicker.C:
			snap := ticker.Tick()
			if o.onSnapshot != nil {
				o.onSnapshot(snap)
			}
			if o.cfg.StopCondition != nil && o.cfg.StopCondition(results.StopConditionData{Snapshot: snap, Elapsed: time.Since(start)}) {
				o.logger.Info("stop condition satisfied, ending test")
				testCtl.Stop()
			}
		case <-deadline:
			o.logger.Info("runtime elapsed, ending test")
			testCtl.Stop()
		case <-testCtl.Done():
			break loop
		case err := <-aggErrCh:
			if err != nil {
				o.logger.Error("aggregator failed, ending test", zap.Error(err))
				aggErr = err
				testCtl.Stop()
			}
		}
	}

	testCtl.Stop()
	_ = g.Wait() // producers and the coordinator never return a non-nil error
	supervisorWG.Wait()

	ticker.Close()
	ch.Close()

	// The aggregator's error was already taken off aggErrCh in the loop, and
	// a panicked aggregator never sends on finalCh.
	if aggErr != nil {
		return results.Snapshot{}, aggErr
	}

	select {
	case final := <-finalCh:
		return final, nil
	case err := <-aggErrCh:
		// aggErrCh closes with no value once the aggregator returns
		// normally, which races against finalCh receiving that same
		// return value an instant earlier in program order - a nil err
		// here means "no panic", not "no snapshot", so fall through to
		// the now-buffered finalCh rather than returning a zero Snapshot.
		if err != nil {
			return results.Snapshot{}, err
		}
		return <-finalCh, nil
	}
}
