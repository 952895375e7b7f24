// Package graph runs a set of nodes connected by edges.
package graph

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jittakal/kafetl/internal/errors"
	"golang.org/x/sync/errgroup"
)

// Node is one processing step of a graph.
type Node interface {
	// Name identifies the node in logs, metrics and errors.
	Name() string

	// Execute runs the node until its inputs are exhausted or ctx is done.
	// A node writes EOF to each of its output ports before returning nil.
	Execute(ctx context.Context) error
}

// NodeFunc adapts a function to the Node interface.
type NodeFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewNodeFunc creates a node running fn.
func NewNodeFunc(name string, fn func(ctx context.Context) error) *NodeFunc {
	return &NodeFunc{name: name, fn: fn}
}

// Name returns the node name.
func (n *NodeFunc) Name() string {
	return n.name
}

// Execute runs the wrapped function.
func (n *NodeFunc) Execute(ctx context.Context) error {
	return n.fn(ctx)
}

// Graph owns a set of nodes and the edges between them.
type Graph struct {
	name   string
	runID  string
	logger *slog.Logger

	mu      sync.Mutex
	nodes   []Node
	edges   []*Edge
	names   map[string]struct{}
	running bool
}

// New creates an empty graph with a fresh run ID.
func New(name string, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	runID := uuid.NewString()
	return &Graph{
		name:   name,
		runID:  runID,
		logger: logger.With("graph", name, "run_id", runID),
		names:  make(map[string]struct{}),
	}
}

// Name returns the graph name.
func (g *Graph) Name() string {
	return g.name
}

// RunID returns the identifier shared by everything this graph produces.
func (g *Graph) RunID() string {
	return g.runID
}

// AddNode registers a node. Node names must be unique.
func (g *Graph) AddNode(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return errors.ErrGraphRunning
	}
	if _, dup := g.names[n.Name()]; dup {
		return fmt.Errorf("duplicate node or edge name: %s", n.Name())
	}
	g.names[n.Name()] = struct{}{}
	g.nodes = append(g.nodes, n)
	return nil
}

// AddEdge registers an edge. The graph initializes and closes it.
func (g *Graph) AddEdge(e *Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return errors.ErrGraphRunning
	}
	if _, dup := g.names[e.Name()]; dup {
		return fmt.Errorf("duplicate node or edge name: %s", e.Name())
	}
	g.names[e.Name()] = struct{}{}
	g.edges = append(g.edges, e)
	return nil
}

// Edge returns the named edge.
func (g *Graph) Edge(name string) (*Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, e := range g.edges {
		if e.Name() == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", errors.ErrUnknownEdge, name)
}

// Run executes every node in its own goroutine and waits for all of them.
// The first node failure cancels the others; readers blocked on an edge are
// released. All edges are closed, and their spill files removed, before Run
// returns. The returned error is the first *errors.NodeError, if any.
func (g *Graph) Run(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return errors.ErrGraphRunning
	}
	g.running = true
	nodes := append([]Node(nil), g.nodes...)
	edges := append([]*Edge(nil), g.edges...)
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.running = false
		g.mu.Unlock()
	}()

	for _, e := range edges {
		if err := e.Init(); err != nil {
			return stderrors.Join(fmt.Errorf("failed to init edge %s: %w", e.Name(), err), closeEdges(edges))
		}
	}

	g.logger.Info("graph started", "nodes", len(nodes), "edges", len(edges))
	start := time.Now()

	eg, gctx := errgroup.WithContext(ctx)
	for _, n := range nodes {
		eg.Go(func() error {
			nodeStart := time.Now()
			if err := n.Execute(gctx); err != nil {
				g.logger.Error("node failed",
					"node", n.Name(),
					"error", err,
					"duration", time.Since(nodeStart),
				)
				return &errors.NodeError{Node: n.Name(), Err: err}
			}
			g.logger.Info("node finished", "node", n.Name(), "duration", time.Since(nodeStart))
			return nil
		})
	}

	runErr := eg.Wait()
	closeErr := closeEdges(edges)

	for _, e := range edges {
		s := e.Stats()
		g.logger.Debug("edge summary",
			"edge", e.Name(),
			"spills", s.Spills,
			"direct_swaps", s.DirectSwaps,
			"slot_reads", s.SlotReads,
		)
	}

	if runErr != nil {
		g.logger.Error("graph failed", "error", runErr, "duration", time.Since(start))
		return stderrors.Join(runErr, closeErr)
	}
	if closeErr != nil {
		return closeErr
	}

	g.logger.Info("graph finished", "duration", time.Since(start))
	return nil
}

func closeEdges(edges []*Edge) error {
	var errs []error
	for _, e := range edges {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close edge %s: %w", e.Name(), err))
		}
	}
	return stderrors.Join(errs...)
}
