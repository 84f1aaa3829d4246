package testctl

import (
	"context"
	"testing"
)

func TestStopIsIdempotent(t *testing.T) {
	c := New(context.Background())
	c.Stop()
	c.Stop()
	c.Stop()
	if !c.Cancelled() {
		t.Fatal("expected controller to be cancelled")
	}
	select {
	case <-c.Done():
	default:
		t.Fatal("expected Done channel to be closed")
	}
}

func TestNotCancelledInitially(t *testing.T) {
	c := New(context.Background())
	if c.Cancelled() {
		t.Fatal("expected a fresh controller to not be cancelled")
	}
}
