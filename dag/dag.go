// Package dag executes a declarative ingestion pipeline: a static set
// of named nodes with dependency edges, run level by level, with
// critical-node short-circuit and per-node timing/logs.
package dag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/yourorg/docrag/metatag"
	"github.com/yourorg/docrag/parser"
	"github.com/yourorg/docrag/pii"
	"github.com/yourorg/docrag/store"
)

// NodeID names a DAG node. The ingestion pipeline uses the component
// names C1-C7 refer to (Extractor, Structurer, MetaTagger,
// TableNormalizer, Deduplicator, PIIMasker, Indexer).
type NodeID string

// Status is the terminal (or in-flight) state of a node's execution.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// IngestContext is the transient, per-run state shared across node
// functions: the "arena" each node reads from and writes a disjoint
// subset of. It is owned by a single Runner.Run call and destroyed
// (after being snapshotted into an IngestJob) when the run completes.
type IngestContext struct {
	DocumentID int64
	Path       string
	Filename   string
	Format     string

	Sections []parser.Section
	Tables   []parser.TableData
	Images   []parser.ExtractedImage
	Entities []metatag.Entity
	Chunks   []store.Chunk
	ChunkIDs []int64

	ParseMethod       string
	DocType           metatag.DocType
	ExtractedMetadata map[string][]string
	PIIMasked         pii.Counts
	Duplicates        int

	Errors []string
	Logs   []LogEntry
}

// LogEntry is one append-only entry in an IngestJob's log, recorded by
// the Runner as each node completes.
type LogEntry struct {
	Node       NodeID    `json:"agent"`
	Status     Status    `json:"status"`
	Message    string    `json:"message,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// AddError appends a non-fatal error to the context, safe to call from
// any node (nodes never run concurrently with overlapping field
// access by construction, so no lock is needed here either).
func (c *IngestContext) AddError(node NodeID, err error) {
	c.Errors = append(c.Errors, fmt.Sprintf("%s: %v", node, err))
}

// Snapshot returns a deep copy of the context, suitable for persisting
// into an IngestJob after the run completes without aliasing the live
// context's slices.
func (c *IngestContext) Snapshot() (*IngestContext, error) {
	var dst IngestContext
	if err := deepcopy.Copy(&dst, c); err != nil {
		return nil, fmt.Errorf("snapshotting ingest context: %w", err)
	}
	return &dst, nil
}

// NodeFunc is a unit of work in the DAG. It mutates ctx in place and
// returns an error on failure; failures of non-critical nodes are
// recorded but do not abort the run.
type NodeFunc func(ctx context.Context, ic *IngestContext) error

// Node is one DAG vertex: a function plus its static dependency list.
//
// DependsOn lists hard dependencies: nodes whose output this node
// requires. If any of them fails or is skipped, this node is skipped
// too, and the skip propagates to its own dependents in turn.
//
// SoftDeps lists ordering-only dependencies: nodes this node should
// run after (for log ordering or resource sequencing) but does not
// require the output of. A failed or skipped SoftDep still unblocks
// this node once it reaches a terminal state, and never causes a skip.
type Node struct {
	ID        NodeID
	Fn        NodeFunc
	DependsOn []NodeID
	SoftDeps  []NodeID
	Critical  bool // failure aborts the entire run immediately
}

// Runner executes a static set of Nodes against an IngestContext,
// repeatedly running all nodes whose dependencies have completed
// (successfully or by being skipped) concurrently, until no nodes
// remain or the run is stuck.
type Runner struct {
	nodes []Node
}

// New returns a Runner for the given nodes. Node order does not matter;
// execution order is entirely determined by DependsOn and SoftDeps edges.
func New(nodes []Node) *Runner {
	return &Runner{nodes: nodes}
}

// Result records the outcome of running every node once.
type Result struct {
	Statuses map[NodeID]Status
	Timings  map[NodeID]time.Duration
}

// ErrStuck is returned when no ready nodes remain but unvisited nodes
// do — a dependency cycle or a misconfigured edge list.
type ErrStuck struct {
	Remaining []NodeID
}

func (e *ErrStuck) Error() string {
	return fmt.Sprintf("dag: stuck with %d unvisited node(s): %v", len(e.Remaining), e.Remaining)
}

// ErrCritical is returned when a node marked Critical fails.
type ErrCritical struct {
	Node NodeID
	Err  error
}

func (e *ErrCritical) Error() string {
	return fmt.Sprintf("dag: critical node %s failed: %v", e.Node, e.Err)
}

func (e *ErrCritical) Unwrap() error { return e.Err }

// Run executes the DAG to completion. A node marked skipped (because a
// dependency it requires failed) counts as completed for the purposes
// of unblocking its own dependents. Run returns immediately on a
// critical-node failure; the caller is expected to mark the document
// status "error" and the job status "failed" in that case.
func (r *Runner) Run(ctx context.Context, ic *IngestContext) (*Result, error) {
	byID := make(map[NodeID]Node, len(r.nodes))
	for _, n := range r.nodes {
		byID[n.ID] = n
	}

	status := make(map[NodeID]Status, len(r.nodes))
	timing := make(map[NodeID]time.Duration, len(r.nodes))
	for _, n := range r.nodes {
		status[n.ID] = StatusPending
	}

	remaining := len(r.nodes)
	for remaining > 0 {
		ready := readyNodes(r.nodes, status)
		if len(ready) == 0 {
			var stuck []NodeID
			for id, st := range status {
				if st == StatusPending {
					stuck = append(stuck, id)
				}
			}
			return &Result{Statuses: status, Timings: timing}, &ErrStuck{Remaining: stuck}
		}

		for _, n := range ready {
			// A node depending on a failed non-critical node is skipped
			// rather than run.
			if dependencyFailed(n, status) {
				status[n.ID] = StatusSkipped
				ic.Logs = append(ic.Logs, LogEntry{Node: n.ID, Status: StatusSkipped, Timestamp: time.Now()})
				remaining--
			}
		}
		runnable := filterPending(ready, status)
		if len(runnable) == 0 {
			continue
		}

		type outcome struct {
			id       NodeID
			err      error
			duration time.Duration
		}
		outcomes := make(chan outcome, len(runnable))
		var wg sync.WaitGroup

		for _, n := range runnable {
			wg.Add(1)
			go func(n Node) {
				defer wg.Done()
				start := time.Now()
				err := n.Fn(ctx, ic)
				outcomes <- outcome{id: n.ID, err: err, duration: time.Since(start)}
			}(n)
		}

		go func() {
			wg.Wait()
			close(outcomes)
		}()

		var critical *ErrCritical
		for o := range outcomes {
			n := byID[o.id]
			timing[o.id] = o.duration
			remaining--

			if o.err != nil {
				status[o.id] = StatusFailed
				ic.AddError(o.id, o.err)
				ic.Logs = append(ic.Logs, LogEntry{
					Node: o.id, Status: StatusFailed, Message: o.err.Error(),
					DurationMS: o.duration.Milliseconds(), Timestamp: time.Now(),
				})
				slog.Warn("dag: node failed", "node", o.id, "error", o.err, "elapsed", o.duration)
				if n.Critical && critical == nil {
					critical = &ErrCritical{Node: o.id, Err: o.err}
				}
				continue
			}

			status[o.id] = StatusSuccess
			ic.Logs = append(ic.Logs, LogEntry{
				Node: o.id, Status: StatusSuccess,
				DurationMS: o.duration.Milliseconds(), Timestamp: time.Now(),
			})
			slog.Info("dag: node complete", "node", o.id, "elapsed", o.duration)
		}

		if critical != nil {
			return &Result{Statuses: status, Timings: timing}, critical
		}
	}

	return &Result{Statuses: status, Timings: timing}, nil
}

// readyNodes returns all still-pending nodes whose hard and soft
// dependencies have all reached a terminal state (success, failed, or
// skipped).
func readyNodes(nodes []Node, status map[NodeID]Status) []Node {
	var ready []Node
	for _, n := range nodes {
		if status[n.ID] != StatusPending {
			continue
		}
		allDone := true
		for _, dep := range n.DependsOn {
			if !isTerminal(status[dep]) {
				allDone = false
				break
			}
		}
		if allDone {
			for _, dep := range n.SoftDeps {
				if !isTerminal(status[dep]) {
					allDone = false
					break
				}
			}
		}
		if allDone {
			ready = append(ready, n)
		}
	}
	return ready
}

func isTerminal(s Status) bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// dependencyFailed reports whether any of n's hard (DependsOn)
// dependencies did not succeed. A skipped dependency propagates the
// skip downstream just like a failed one, so a failure's blast radius
// reaches every transitive dependent, not only its immediate ones.
// SoftDeps are ordering-only and never trigger a skip.
func dependencyFailed(n Node, status map[NodeID]Status) bool {
	for _, dep := range n.DependsOn {
		if s := status[dep]; s == StatusFailed || s == StatusSkipped {
			return true
		}
	}
	return false
}

func filterPending(nodes []Node, status map[NodeID]Status) []Node {
	var out []Node
	for _, n := range nodes {
		if status[n.ID] == StatusPending {
			out = append(out, n)
		}
	}
	return out
}
