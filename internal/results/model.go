// Package results implements the single-writer Aggregator: it is the only
// mutator of the endpoint and user stats, and the sole place
// median/min/max/avg derivations happen.
package results

import (
	"math/rand"
	"sort"
	"time"

	"loadgen/internal/events"
)

// EndpointKey re-exports events.EndpointKey so callers of this package never
// need to import events just to build a key.
type EndpointKey = events.EndpointKey

// sampleCap bounds the reservoir used for median computation, resolving an
// otherwise unbounded-memory growth over a long-running test.
const sampleCap = 100_000

// endpointStats is the mutable, aggregator-owned bucket for one endpoint
// (or the synthetic aggregate row). Only the Aggregator ever writes to it.
type endpointStats struct {
	requests           uint64
	failures           uint64
	errors             uint64
	totalResponseTime  float64
	min                float64
	max                float64
	samples            []float64
	seen               uint64 // total successes observed, for reservoir sampling
	lastWindowRequests uint64
	lastWindowFailures uint64
}

func newEndpointStats() *endpointStats {
	return &endpointStats{}
}

func (e *endpointStats) recordSuccess(rt time.Duration, rng *rand.Rand) {
	seconds := rt.Seconds()
	e.requests++
	e.lastWindowRequests++
	e.totalResponseTime += seconds
	if e.requests == 1 {
		e.min, e.max = seconds, seconds
	} else {
		if seconds < e.min {
			e.min = seconds
		}
		if seconds > e.max {
			e.max = seconds
		}
	}
	e.reservoirAdd(seconds, rng)
}

func (e *endpointStats) recordFailure() {
	e.requests++
	e.failures++
	e.lastWindowRequests++
	e.lastWindowFailures++
}

func (e *endpointStats) recordError() {
	e.requests++
	e.errors++
	e.lastWindowRequests++
}

// reservoirAdd implements reservoir sampling (algorithm R) so the sample
// vector is capped regardless of run length, while min/max/avg stay exact
// aggregates independent of the cap.
func (e *endpointStats) reservoirAdd(v float64, rng *rand.Rand) {
	e.seen++
	if len(e.samples) < sampleCap {
		e.samples = append(e.samples, v)
		return
	}
	j := rng.Int63n(int64(e.seen))
	if j < sampleCap {
		e.samples[j] = v
	}
}

func (e *endpointStats) median() float64 {
	if len(e.samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), e.samples...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func (e *endpointStats) avg() float64 {
	if e.requests == 0 {
		return 0
	}
	return e.totalResponseTime / float64(e.requests)
}

// percentile returns the p-th percentile (0-100) of the reservoir sample.
// Sorts the copy with sort.Float64s before indexing - reversing an unsorted
// slice is not the same as sorting it.
func (e *endpointStats) percentile(p float64) float64 {
	if len(e.samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), e.samples...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)) * p / 100)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// EndpointSnapshot is the read-only, point-in-time view handed to external
// readers (HTTP server, writers, stop-condition evaluator) - always a copy,
// never a reference into the live structure.
type EndpointSnapshot struct {
	Key                EndpointKey
	Requests           uint64
	Failures           uint64
	Errors             uint64
	Min                float64
	Max                float64
	Avg                float64
	Median             float64
	P90                float64
	P95                float64
	P99                float64
	RequestsPerSecond  float64
	FailuresPerSecond  float64
}

// UserStatus enumerates the terminal and non-terminal states a user can be in.
type UserStatus int

const (
	UserStatusSpawned UserStatus = iota
	UserStatusFinished
	UserStatusPanicked
	UserStatusCancelled
	UserStatusUnknown
)

func (s UserStatus) String() string {
	switch s {
	case UserStatusSpawned:
		return "Spawned"
	case UserStatusFinished:
		return "Finished"
	case UserStatusPanicked:
		return "Panicked"
	case UserStatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// userStats is the aggregator-owned, mutable per-user record.
type userStats struct {
	id         uint64
	name       string
	status     UserStatus
	totalTasks uint64
}

// UserSnapshot is the read-only copy of one user's stats.
type UserSnapshot struct {
	ID         uint64
	Name       string
	Status     UserStatus
	TotalTasks uint64
}

// Snapshot is the immutable, cloned view published once per update tick:
// (a) to external writers, (b) to the HTTP server state, (c) to the
// stop-condition evaluator. Readers never see the live aggregator structure.
type Snapshot struct {
	Aggregate EndpointSnapshot
	Endpoints []EndpointSnapshot
	Users     []UserSnapshot
	Elapsed   time.Duration
}
