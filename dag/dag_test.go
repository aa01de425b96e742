package dag

import (
	"context"
	"errors"
	"testing"
)

func TestRunExecutesInDependencyOrder(t *testing.T) {
	var order []NodeID
	record := func(id NodeID) NodeFunc {
		return func(ctx context.Context, ic *IngestContext) error {
			order = append(order, id)
			return nil
		}
	}

	r := New([]Node{
		{ID: "C1", Fn: record("C1")},
		{ID: "C2", Fn: record("C2"), DependsOn: []NodeID{"C1"}},
		{ID: "C3", Fn: record("C3"), DependsOn: []NodeID{"C1"}},
		{ID: "C7", Fn: record("C7"), DependsOn: []NodeID{"C2", "C3"}},
	})

	res, err := r.Run(context.Background(), &IngestContext{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Statuses["C7"] != StatusSuccess {
		t.Fatalf("expected C7 success, got %s", res.Statuses["C7"])
	}
	if order[0] != "C1" {
		t.Fatalf("expected C1 to run first, got order %v", order)
	}
	if order[len(order)-1] != "C7" {
		t.Fatalf("expected C7 to run last, got order %v", order)
	}
}

func TestRunSkipsDependentsOfNonCriticalFailure(t *testing.T) {
	r := New([]Node{
		{ID: "C1", Fn: func(ctx context.Context, ic *IngestContext) error { return nil }},
		{ID: "C3", Fn: func(ctx context.Context, ic *IngestContext) error {
			return errors.New("heuristic classifier unavailable")
		}, DependsOn: []NodeID{"C1"}},
		{ID: "C7", Fn: func(ctx context.Context, ic *IngestContext) error { return nil },
			DependsOn: []NodeID{"C1", "C3"}, Critical: true},
	})

	res, err := r.Run(context.Background(), &IngestContext{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Statuses["C3"] != StatusFailed {
		t.Fatalf("expected C3 failed, got %s", res.Statuses["C3"])
	}
	if res.Statuses["C7"] != StatusSkipped {
		t.Fatalf("expected C7 skipped because its hard dependency C3 failed, got %s", res.Statuses["C7"])
	}
}

func TestRunToleratesSoftDepFailure(t *testing.T) {
	// MetaTagger (C3) fails; Indexer (C7) only soft-depends on it for
	// ordering, and hard-depends on the chunk pipeline (C1), so it
	// still runs to completion instead of being skipped.
	r := New([]Node{
		{ID: "C1", Fn: func(ctx context.Context, ic *IngestContext) error { return nil }},
		{ID: "C3", Fn: func(ctx context.Context, ic *IngestContext) error {
			return errors.New("heuristic classifier unavailable")
		}, DependsOn: []NodeID{"C1"}},
		{ID: "C7", Fn: func(ctx context.Context, ic *IngestContext) error { return nil },
			DependsOn: []NodeID{"C1"}, SoftDeps: []NodeID{"C3"}, Critical: true},
	})

	res, err := r.Run(context.Background(), &IngestContext{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Statuses["C3"] != StatusFailed {
		t.Fatalf("expected C3 failed, got %s", res.Statuses["C3"])
	}
	if res.Statuses["C7"] != StatusSuccess {
		t.Fatalf("expected C7 to run to success despite its soft dep C3 failing, got %s", res.Statuses["C7"])
	}
}

func TestRunAbortsOnCriticalFailure(t *testing.T) {
	r := New([]Node{
		{ID: "Extractor", Fn: func(ctx context.Context, ic *IngestContext) error {
			return errors.New("unsupported format")
		}, Critical: true},
		{ID: "Indexer", Fn: func(ctx context.Context, ic *IngestContext) error { return nil },
			DependsOn: []NodeID{"Extractor"}, Critical: true},
	})

	_, err := r.Run(context.Background(), &IngestContext{})
	if err == nil {
		t.Fatal("expected an error when a critical node fails")
	}
	var critErr *ErrCritical
	if !errors.As(err, &critErr) {
		t.Fatalf("expected ErrCritical, got %T: %v", err, err)
	}
	if critErr.Node != "Extractor" {
		t.Fatalf("expected Extractor as the critical failure, got %s", critErr.Node)
	}
}

func TestRunDetectsStuckCycle(t *testing.T) {
	r := New([]Node{
		{ID: "A", Fn: func(ctx context.Context, ic *IngestContext) error { return nil }, DependsOn: []NodeID{"B"}},
		{ID: "B", Fn: func(ctx context.Context, ic *IngestContext) error { return nil }, DependsOn: []NodeID{"A"}},
	})

	_, err := r.Run(context.Background(), &IngestContext{})
	var stuckErr *ErrStuck
	if !errors.As(err, &stuckErr) {
		t.Fatalf("expected ErrStuck for a dependency cycle, got %v", err)
	}
}

func TestIngestContextSnapshotDoesNotAliasSlices(t *testing.T) {
	ic := &IngestContext{Errors: []string{"a"}}
	snap, err := ic.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	snap.Errors[0] = "b"
	if ic.Errors[0] != "a" {
		t.Fatalf("expected snapshot to be a deep copy, original mutated to %q", ic.Errors[0])
	}
}
