// Package graph executes a DAG of nodes over mutable workflow state,
// checkpointing before and after every node, with conditional routing
// driven by pure selectors.
package graph

import (
	"context"
	"fmt"

	"github.com/bankflowhq/workflow-engine/internal/bankerr"
	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

// End is the reserved terminal sink node id.
const End = "END"

// NodeFunc is a single node's implementation. It receives the current state
// and mutates it in place (or returns a replacement — the contract is that
// the return value is the post-state).
type NodeFunc func(ctx context.Context, s *wfstate.State) (*wfstate.State, error)

// Selector routes from one node to the next node id. Selectors receive a
// read-only View and must not attempt to mutate state; View simply has no
// mutating methods to call.
type Selector func(v wfstate.View) string

// Edge is either unconditional (Next non-empty) or conditional (Selector
// non-nil, resolved against EdgeMap).
type Edge struct {
	Next     string
	Selector Selector
	EdgeMap  map[string]string
}

// Node pairs a node id with its function and its outgoing edge.
type Node struct {
	ID   string
	Fn   NodeFunc
	Edge *Edge // nil for a node whose only successor is END
}

// Graph is a DAG with a unique entry node and the END sink.
type Graph struct {
	entry string
	nodes map[string]*Node
}

// Builder assembles a Graph node by node.
type Builder struct {
	g *Graph
}

func NewBuilder(entry string) *Builder {
	return &Builder{g: &Graph{entry: entry, nodes: make(map[string]*Node)}}
}

func (b *Builder) AddNode(id string, fn NodeFunc, edge *Edge) *Builder {
	b.g.nodes[id] = &Node{ID: id, Fn: fn, Edge: edge}
	return b
}

// Build validates that every edge target (including conditional edge map
// values) refers to a known node or END, and that the entry node exists.
func (b *Builder) Build() (*Graph, error) {
	g := b.g
	if _, ok := g.nodes[g.entry]; !ok {
		return nil, fmt.Errorf("graph entry node %q not defined", g.entry)
	}
	for id, n := range g.nodes {
		if n.Edge == nil {
			continue
		}
		if n.Edge.Selector == nil {
			if n.Edge.Next != End && g.nodes[n.Edge.Next] == nil {
				return nil, fmt.Errorf("node %q: edge to undefined node %q", id, n.Edge.Next)
			}
			continue
		}
		for key, target := range n.Edge.EdgeMap {
			if target != End && g.nodes[target] == nil {
				return nil, fmt.Errorf("node %q: conditional edge %q targets undefined node %q", id, key, target)
			}
		}
	}
	return g, nil
}

// Entry returns the graph's entry node id.
func (g *Graph) Entry() string { return g.entry }

// Node returns a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// next resolves the node following n given the post-execution state,
// returning End if n has no outgoing edge.
func (g *Graph) next(n *Node, s *wfstate.State) (string, error) {
	if n.Edge == nil {
		return End, nil
	}
	if n.Edge.Selector == nil {
		return n.Edge.Next, nil
	}
	key := n.Edge.Selector(wfstate.NewView(s))
	target, ok := n.Edge.EdgeMap[key]
	if !ok {
		return "", bankerr.New(bankerr.KindRouting, "graph.route",
			fmt.Errorf("node %q: no edge for selector result %q", n.ID, key))
	}
	return target, nil
}
