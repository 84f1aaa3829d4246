package task

import (
	"context"
	"testing"
)

type dummyUser struct{ calls int }

func TestPickerEmptyTaskListFinishesImmediately(t *testing.T) {
	p := NewPicker[dummyUser](nil, func(n uint64) uint64 { return 0 })
	if _, ok := p.Pick(); ok {
		t.Fatal("expected Pick to return false for an empty task list")
	}
}

func TestPickerAllZeroWeightsFinishesImmediately(t *testing.T) {
	tasks := []Task[dummyUser]{
		{Name: "a", Weight: 0, Body: func(context.Context, *dummyUser, Context) {}},
		{Name: "b", Weight: 0, Body: func(context.Context, *dummyUser, Context) {}},
	}
	p := NewPicker[dummyUser](tasks, func(n uint64) uint64 { return 0 })
	if _, ok := p.Pick(); ok {
		t.Fatal("expected Pick to return false when all weights are zero")
	}
}

func TestPickerRespectsWeightedBuckets(t *testing.T) {
	tasks := []Task[dummyUser]{
		{Name: "a", Weight: 4, Body: func(context.Context, *dummyUser, Context) {}},
		{Name: "b", Weight: 1, Body: func(context.Context, *dummyUser, Context) {}},
	}
	var idx uint64
	p := NewPicker[dummyUser](tasks, func(n uint64) uint64 { return idx })

	idx = 0
	got, ok := p.Pick()
	if !ok || got.Name != "a" {
		t.Fatalf("draw 0 should land in task a, got %+v", got)
	}
	idx = 4
	got, ok = p.Pick()
	if !ok || got.Name != "b" {
		t.Fatalf("draw 4 should land in task b, got %+v", got)
	}
}

func TestPickerTotalWeightMatchesSum(t *testing.T) {
	tasks := []Task[dummyUser]{
		{Name: "a", Weight: 2, Body: func(context.Context, *dummyUser, Context) {}},
		{Name: "b", Weight: 3, Body: func(context.Context, *dummyUser, Context) {}},
	}
	var gotN uint64
	p := NewPicker[dummyUser](tasks, func(n uint64) uint64 {
		gotN = n
		return n
	})
	p.Pick()
	if gotN != 5 {
		t.Fatalf("expected draw to be bounded by total weight 5, picker passed %d", gotN)
	}
}
