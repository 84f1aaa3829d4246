package mqttuser

import (
	"sync"
	"testing"
	"time"

	"loadgen/internal/task"
)

type fakeContext struct {
	mu        sync.Mutex
	successes int
	failures  int
	errors    int
	id        uint64
}

func (f *fakeContext) AddSuccess(string, string, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes++
}
func (f *fakeContext) AddFailure(string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
}
func (f *fakeContext) AddError(string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors++
}
func (f *fakeContext) Stop()      {}
func (f *fakeContext) StopTest()  {}
func (f *fakeContext) ID() uint64 { return f.id }

var _ task.Context = (*fakeContext)(nil)

func TestOnStartFailsAfterExhaustingRetriesAgainstUnreachableBroker(t *testing.T) {
	shared := NewShared("tcp://127.0.0.1:1", "", "")()
	c := &fakeContext{id: 7}
	u := New(c, shared)
	u.OnStart(c)

	if c.errors != 1 || c.successes != 0 {
		t.Fatalf("expected one connect error, got successes=%d errors=%d", c.successes, c.errors)
	}
}

func TestPublishWithoutConnectionReportsError(t *testing.T) {
	shared := NewShared("tcp://127.0.0.1:1", "", "")()
	c := &fakeContext{id: 3}
	u := New(c, shared)

	topic := Topic{Name: "telemetry", Path: "loadgen/telemetry", QoS: 0, Weight: 1, Payload: DefaultPayload}
	u.Publish(nil, c, topic)

	if c.errors != 1 {
		t.Fatalf("expected one publish error when not connected, got %d", c.errors)
	}
}

func TestOnStopWithoutConnectionIsNoop(t *testing.T) {
	shared := NewShared("tcp://127.0.0.1:1", "", "")()
	c := &fakeContext{id: 1}
	u := New(c, shared)
	u.OnStop(c)
}

func TestNewUserTypeBuildsOneTaskPerTopic(t *testing.T) {
	ut := NewUserType("mqtt", 1, task.Between{}, "tcp://127.0.0.1:1", "", "", []Topic{
		{Name: "a", Path: "loadgen/a", Weight: 1, Payload: DefaultPayload},
		{Name: "b", Path: "loadgen/b", Weight: 2, Payload: DefaultPayload},
	})
	if len(ut.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(ut.Tasks))
	}
}

func TestClientIDDerivesFromContextID(t *testing.T) {
	shared := NewShared("tcp://127.0.0.1:1", "", "")()
	c := &fakeContext{id: 42}
	u := New(c, shared)
	if u.clientID != "loadgen-42" {
		t.Fatalf("expected clientID loadgen-42, got %s", u.clientID)
	}
}
