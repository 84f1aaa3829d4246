// Package spawn implements the per-type ticket controller (Spawn Controller,
// C5) and the global apportionment coordinator (Spawn Coordinator, C6),
// ported from rocust_lib/src/test/spawn_coordinator.rs.
package spawn

import "sync"

// Controller enforces one user-type's population cap. SpawnCount clamps the
// requested count to what's left under the cap, updates the running total,
// and forwards the clamped count on Tickets for the type's producer to
// consume.
type Controller struct {
	mu            sync.Mutex
	name          string
	limit         uint64
	totalSpawned  uint64
	tickets       chan uint64
}

// NewController creates a controller for one user type with the given
// population cap. tickets is buffered generously so SpawnCount, called from
// the coordinator's single goroutine, never blocks on a slow producer.
func NewController(name string, limit uint64) *Controller {
	return &Controller{
		name:    name,
		limit:   limit,
		tickets: make(chan uint64, 4096),
	}
}

// Name returns the user-type name this controller guards.
func (c *Controller) Name() string { return c.name }

// Tickets is the channel the type's producer task reads spawn counts from.
func (c *Controller) Tickets() <-chan uint64 { return c.tickets }

// SpawnCount clamps count to what remains under the cap, updates the running
// total, and enqueues the clamped count. A zero clamped count is still sent
// (the Rust source does the same - see spawn_coordinator.rs's
// UserSpawnController::spawn_count), so a producer watching Tickets can
// observe ticks even when a type has nothing left to spawn.
func (c *Controller) SpawnCount(count uint64) {
	c.mu.Lock()
	toSpawn := count
	if c.totalSpawned+count >= c.limit {
		toSpawn = c.limit - c.totalSpawned
		c.totalSpawned = c.limit
	} else {
		c.totalSpawned += count
	}
	c.mu.Unlock()

	c.tickets <- toSpawn
}

// IsComplete reports whether this type's cap has been fully spawned.
func (c *Controller) IsComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalSpawned >= c.limit
}

// TotalSpawned returns the running total spawned so far, for invariant
// checks: total spawned never exceeds the per-type user count.
func (c *Controller) TotalSpawned() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalSpawned
}

// Close closes the tickets channel. Called once the controller is dropped
// from the coordinator's active set, so the type's producer can exit its
// range loop.
func (c *Controller) Close() {
	close(c.tickets)
}
