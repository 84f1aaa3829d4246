package results

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"loadgen/internal/events"
)

// StopConditionData is the read-only view handed to a stop-condition
// predicate: the latest snapshot and the elapsed test time, pinned to a
// concrete parameter struct rather than two loose arguments.
type StopConditionData struct {
	Snapshot Snapshot
	Elapsed  time.Duration
}

// StopCondition is evaluated at the end of every update tick; returning true
// cancels the test. The core never interprets it - it only invokes it.
type StopCondition func(StopConditionData) bool

// Aggregator is the single task that owns AllResults and
// UserStatsCollection. It is the only writer; everything else only ever
// observes a Snapshot.
type Aggregator struct {
	ch     *events.Channel
	logger *zap.Logger
	rng    *rand.Rand
	sink   func(events.Message)

	endpoints map[EndpointKey]*endpointStats
	aggregate *endpointStats
	users     map[uint64]*userStats
	userOrder []uint64

	startedAt    time.Time
	lastTickAt   time.Time
}

// SetSink installs a hook invoked with every message the aggregator applies,
// in the same order it applies them. The Prometheus exporter taps this to
// maintain per-request counters/gauges that a once-per-tick Snapshot alone
// can't provide - the exporter's AddSuccess/AddFailure/AddError trio mirrors
// this message set one-to-one.
func (a *Aggregator) SetSink(sink func(events.Message)) {
	a.sink = sink
}

// NewAggregator constructs an aggregator over ch. Its endpoint and user
// stats maps are created here, once, before any user is spawned.
func NewAggregator(ch *events.Channel, logger *zap.Logger) *Aggregator {
	now := time.Now()
	return &Aggregator{
		ch:         ch,
		logger:     logger,
		rng:        rand.New(rand.NewSource(now.UnixNano())),
		endpoints:  make(map[EndpointKey]*endpointStats),
		aggregate:  newEndpointStats(),
		users:      make(map[uint64]*userStats),
		startedAt:  now,
		lastTickAt: now,
	}
}

type tickRequest struct {
	resp chan Snapshot
}

// Run folds every message off ch into the endpoint and user stats until ch
// is closed and fully drained - the close happens once the orchestrator has
// joined every supervisor, draining the events channel completely. tickCh
// lets the orchestrator request a snapshot without racing the aggregator's
// own state, keeping it the single writer (and reader) of that state. The
// snapshot taken immediately after full drain is
// returned, so the orchestrator's shutdown-time summary reflects every
// message a user ever sent, with no race against the selection order of a
// tick request issued around the same time.
func (a *Aggregator) Run(tickCh <-chan tickRequest) Snapshot {
	for {
		select {
		case req, ok := <-tickCh:
			if !ok {
				tickCh = nil
				continue
			}
			req.resp <- a.snapshot()
		case msg, ok := <-a.ch.Out():
			if !ok {
				return a.snapshot()
			}
			a.apply(msg)
		}
	}
}

func (a *Aggregator) endpointFor(key EndpointKey) *endpointStats {
	e, ok := a.endpoints[key]
	if !ok {
		e = newEndpointStats()
		a.endpoints[key] = e
	}
	return e
}

func (a *Aggregator) userFor(info events.UserInfo) *userStats {
	u, ok := a.users[info.ID]
	if !ok {
		u = &userStats{id: info.ID, name: info.Name, status: UserStatusSpawned}
		a.users[info.ID] = u
		a.userOrder = append(a.userOrder, info.ID)
	}
	return u
}

// setTerminal honors the Cancelled-sticky rule: once a user's status is
// Cancelled, nothing may overwrite it.
func (u *userStats) setTerminal(s UserStatus) {
	if u.status == UserStatusCancelled {
		return
	}
	u.status = s
}

func (a *Aggregator) apply(msg events.Message) {
	if a.sink != nil {
		a.sink(msg)
	}
	switch m := msg.(type) {
	case events.UserSpawned:
		a.userFor(m.User)
	case events.Success:
		a.endpointFor(m.Key).recordSuccess(m.ResponseTime, a.rng)
		a.aggregate.recordSuccess(m.ResponseTime, a.rng)
	case events.Failure:
		a.endpointFor(m.Key).recordFailure()
		a.aggregate.recordFailure()
	case events.Error:
		a.endpointFor(m.Key).recordError()
		a.aggregate.recordError()
	case events.TaskExecuted:
		a.userFor(m.User).totalTasks++
	case events.UserFinished:
		a.userFor(m.User).setTerminal(UserStatusFinished)
	case events.UserSelfStopped:
		a.userFor(m.User).setTerminal(UserStatusCancelled)
	case events.UserPanicked:
		a.userFor(m.User).setTerminal(UserStatusPanicked)
	case events.UserUnknown:
		a.userFor(m.User).setTerminal(UserStatusUnknown)
	}
}

// snapshot computes derived per-window rates using the elapsed time since
// the previous tick, rolls the window counters, and returns a cloned,
// read-only Snapshot.
func (a *Aggregator) snapshot() Snapshot {
	now := time.Now()
	window := now.Sub(a.lastTickAt).Seconds()
	if window <= 0 {
		window = 1
	}

	keys := make([]EndpointKey, 0, len(a.endpoints))
	for k := range a.endpoints {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].Name < keys[j].Name
	})

	endpointSnaps := make([]EndpointSnapshot, 0, len(keys))
	for _, k := range keys {
		e := a.endpoints[k]
		endpointSnaps = append(endpointSnaps, snapshotOne(k, e, window))
		e.lastWindowRequests, e.lastWindowFailures = 0, 0
	}
	aggSnap := snapshotOne(EndpointKey{Type: "*", Name: "*"}, a.aggregate, window)
	a.aggregate.lastWindowRequests, a.aggregate.lastWindowFailures = 0, 0

	userSnaps := make([]UserSnapshot, 0, len(a.userOrder))
	for _, id := range a.userOrder {
		u := a.users[id]
		userSnaps = append(userSnaps, UserSnapshot{
			ID: u.id, Name: u.name, Status: u.status, TotalTasks: u.totalTasks,
		})
	}

	a.lastTickAt = now
	return Snapshot{
		Aggregate: aggSnap,
		Endpoints: endpointSnaps,
		Users:     userSnaps,
		Elapsed:   now.Sub(a.startedAt),
	}
}

func snapshotOne(key EndpointKey, e *endpointStats, windowSeconds float64) EndpointSnapshot {
	return EndpointSnapshot{
		Key:               key,
		Requests:          e.requests,
		Failures:          e.failures,
		Errors:            e.errors,
		Min:               e.min,
		Max:               e.max,
		Avg:               e.avg(),
		Median:            e.median(),
		P90:               e.percentile(90),
		P95:               e.percentile(95),
		P99:               e.percentile(99),
		RequestsPerSecond: float64(e.lastWindowRequests) / windowSeconds,
		FailuresPerSecond: float64(e.lastWindowFailures) / windowSeconds,
	}
}

// Ticker is the handle the orchestrator uses to request snapshots from the
// aggregator's goroutine without touching its state directly.
type Ticker struct {
	tickCh chan tickRequest
}

// RunSupervised launches the aggregator in its own goroutine. An aggregator
// panic is fatal, unlike a user panic: it is not isolated, and is instead
// reported on the returned error channel so the orchestrator can cancel the
// whole test and surface the error rather than swallow it.
//
// The returned Snapshot channel carries exactly one value: the snapshot
// taken the instant the events channel is fully drained and closed, for the
// orchestrator's end-of-test summary. It is never sent to if the aggregator
// panics first.
func RunSupervised(a *Aggregator) (*Ticker, <-chan Snapshot, <-chan error) {
	tickCh := make(chan tickRequest)
	errCh := make(chan error, 1)
	finalCh := make(chan Snapshot, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("aggregator panicked: %v", r)
				return
			}
			close(errCh)
		}()
		finalCh <- a.Run(tickCh)
	}()

	return &Ticker{tickCh: tickCh}, finalCh, errCh
}

// Tick requests a snapshot and blocks until the aggregator produces one.
func (t *Ticker) Tick() Snapshot {
	resp := make(chan Snapshot, 1)
	t.tickCh <- tickRequest{resp: resp}
	return <-resp
}

// Close signals the aggregator to stop accepting tick requests. It does not
// stop the aggregator from draining the events channel; only closing the
// events channel does that.
func (t *Ticker) Close() {
	close(t.tickCh)
}
