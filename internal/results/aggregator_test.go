package results

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"loadgen/internal/events"
)

func newTestAggregator(t *testing.T) (*Aggregator, *events.Channel) {
	t.Helper()
	ch := events.NewChannel()
	return NewAggregator(ch, zap.NewNop()), ch
}

func TestAggregateRowEqualsComponentwiseSum(t *testing.T) {
	a, ch := newTestAggregator(t)
	ticker, _, errCh := RunSupervised(a)
	defer ticker.Close()

	user := events.UserInfo{ID: 1, Name: "u"}
	ch.Send(events.UserSpawned{User: user})
	ch.Send(events.Success{User: user, Key: EndpointKey{Type: "GET", Name: "/a"}, ResponseTime: 100 * time.Millisecond})
	ch.Send(events.Success{User: user, Key: EndpointKey{Type: "GET", Name: "/b"}, ResponseTime: 200 * time.Millisecond})
	ch.Send(events.Failure{User: user, Key: EndpointKey{Type: "GET", Name: "/a"}})

	snap := drainUntilConsistent(t, ticker, 4)

	var sumReq, sumFail uint64
	for _, e := range snap.Endpoints {
		sumReq += e.Requests
		sumFail += e.Failures
	}
	if sumReq != snap.Aggregate.Requests {
		t.Fatalf("aggregate requests %d != componentwise sum %d", snap.Aggregate.Requests, sumReq)
	}
	if sumFail != snap.Aggregate.Failures {
		t.Fatalf("aggregate failures %d != componentwise sum %d", snap.Aggregate.Failures, sumFail)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("unexpected aggregator error: %v", err)
		}
	default:
	}
}

// drainUntilConsistent sleeps 20ms to give the aggregator time to apply the
// n sent messages, then takes a single tick. The aggregator's select does
// not order a tick request after messages still queued in the channel, so
// the sleep is what lets the tick observe them; n itself is not used.
func drainUntilConsistent(t *testing.T, ticker *Ticker, n int) Snapshot {
	t.Helper()
	time.Sleep(20 * time.Millisecond)
	return ticker.Tick()
}

func TestRequestsAtLeastFailuresPlusErrors(t *testing.T) {
	a, ch := newTestAggregator(t)
	ticker, _, _ := RunSupervised(a)
	defer ticker.Close()

	user := events.UserInfo{ID: 1, Name: "u"}
	key := EndpointKey{Type: "GET", Name: "/x"}
	ch.Send(events.Success{User: user, Key: key, ResponseTime: time.Millisecond})
	ch.Send(events.Failure{User: user, Key: key})
	ch.Send(events.Error{User: user, Key: key, Err: nil})

	snap := drainUntilConsistent(t, ticker, 3)
	e := snap.Endpoints[0]
	if e.Requests < e.Failures+e.Errors {
		t.Fatalf("invariant violated: requests=%d failures=%d errors=%d", e.Requests, e.Failures, e.Errors)
	}
	if e.Min > e.Max {
		t.Fatalf("invariant violated: min %v > max %v", e.Min, e.Max)
	}
}

func TestCancelledStatusIsSticky(t *testing.T) {
	a, ch := newTestAggregator(t)
	ticker, _, _ := RunSupervised(a)
	defer ticker.Close()

	user := events.UserInfo{ID: 7, Name: "u"}
	ch.Send(events.UserSpawned{User: user})
	ch.Send(events.UserSelfStopped{User: user})
	// Simulate a stray UserFinished arriving for the same id afterwards.
	ch.Send(events.UserFinished{User: user})

	snap := drainUntilConsistent(t, ticker, 3)
	if len(snap.Users) != 1 {
		t.Fatalf("expected exactly one user, got %d", len(snap.Users))
	}
	if snap.Users[0].Status != UserStatusCancelled {
		t.Fatalf("expected sticky Cancelled status, got %v", snap.Users[0].Status)
	}
}

func TestMedianCappedSampleStillTracksExactMinMaxAvg(t *testing.T) {
	a, ch := newTestAggregator(t)
	ticker, _, _ := RunSupervised(a)
	defer ticker.Close()

	user := events.UserInfo{ID: 1, Name: "u"}
	key := EndpointKey{Type: "GET", Name: "/x"}
	const n = 200
	for i := 0; i < n; i++ {
		ch.Send(events.Success{User: user, Key: key, ResponseTime: time.Duration(i+1) * time.Millisecond})
	}

	snap := drainUntilConsistent(t, ticker, n)
	e := snap.Endpoints[0]
	if e.Requests != n {
		t.Fatalf("expected %d requests recorded, got %d", n, e.Requests)
	}
	wantMin := 1 * time.Millisecond.Seconds()
	wantMax := time.Duration(n) * time.Millisecond
	if e.Min != wantMin {
		t.Fatalf("expected exact min %v, got %v", wantMin, e.Min)
	}
	if e.Max != wantMax.Seconds() {
		t.Fatalf("expected exact max %v, got %v", wantMax.Seconds(), e.Max)
	}
	if e.Avg <= 0 {
		t.Fatalf("expected a positive average, got %v", e.Avg)
	}
}

// TestFinalSnapshotReflectsFullDrain confirms closing the events channel
// yields a final snapshot that accounts for every message sent beforehand,
// even though none of them were observed via an explicit Tick().
func TestFinalSnapshotReflectsFullDrain(t *testing.T) {
	a, ch := newTestAggregator(t)
	ticker, finalCh, errCh := RunSupervised(a)

	user := events.UserInfo{ID: 1, Name: "u"}
	key := EndpointKey{Type: "GET", Name: "/x"}
	for i := 0; i < 50; i++ {
		ch.Send(events.Success{User: user, Key: key, ResponseTime: time.Millisecond})
	}
	ch.Send(events.UserFinished{User: user})
	ticker.Close()
	ch.Close()

	select {
	case final := <-finalCh:
		if final.Aggregate.Requests != 50 {
			t.Fatalf("expected final snapshot to see all 50 requests, got %d", final.Aggregate.Requests)
		}
		if len(final.Users) != 1 || final.Users[0].Status != UserStatusFinished {
			t.Fatalf("expected final snapshot to see the terminal status, got %+v", final.Users)
		}
	case err := <-errCh:
		t.Fatalf("unexpected aggregator error: %v", err)
	}
}
