package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bankflowhq/workflow-engine/internal/bankerr"
	"github.com/bankflowhq/workflow-engine/internal/checkpoint"
	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

// Engine drives a Graph over a session's state, checkpointing before and
// after every node.
type Engine struct {
	graph       *Graph
	checkpoints checkpoint.Store
	logger      *slog.Logger
}

func NewEngine(g *Graph, checkpoints checkpoint.Store, logger *slog.Logger) *Engine {
	return &Engine{graph: g, checkpoints: checkpoints, logger: logger}
}

// Run executes the graph from its entry node until the state halts or a
// node routes to END.
func (e *Engine) Run(ctx context.Context, sessionID string, s *wfstate.State) (*wfstate.State, error) {
	return e.run(ctx, sessionID, e.graph.Entry(), s)
}

// Resume continues execution starting at fromNode, following the normal
// per-node protocol. The facade passes the paused gate node, which passes
// straight through on an approved decision. Resume refuses a state whose
// HILDecision is missing or not approved.
func (e *Engine) Resume(ctx context.Context, sessionID, fromNode string, s *wfstate.State) (*wfstate.State, error) {
	if s.HILDecision == nil || !s.HILDecision.Approved {
		return nil, bankerr.New(bankerr.KindConflict, "graph.resume", errNotApproved)
	}
	return e.run(ctx, sessionID, fromNode, s)
}

var errNotApproved = errors.New("resume requires hil_decision.approved = true")

func (e *Engine) run(ctx context.Context, sessionID, startNode string, s *wfstate.State) (*wfstate.State, error) {
	current := startNode
	for {
		if current == End {
			return s, nil
		}
		if s.Halt {
			return s, nil
		}

		n, ok := e.graph.Node(current)
		if !ok {
			return nil, bankerr.New(bankerr.KindRouting, "graph.run", fmt.Errorf("node %q not found", current))
		}

		if _, err := e.checkpoints.Save(ctx, sessionID, n.ID, s, checkpoint.Metadata{Phase: checkpoint.PhaseStart}); err != nil {
			return nil, bankerr.New(bankerr.KindStorage, "graph.checkpoint.start", err)
		}

		next, err := n.Fn(ctx, s)
		if err != nil {
			return nil, err
		}
		s = next
		s.AppendHistory(n.ID)

		if e.logger != nil {
			e.logger.Info("node executed", "session_id", sessionID, "node", n.ID, "halt", s.Halt)
		}

		// A halted node (a paused HIL gate) has already written its pause
		// checkpoint; writing an end record on top would bury it and break
		// the pause-is-latest guarantee resume depends on.
		if s.Halt {
			return s, nil
		}

		if _, err := e.checkpoints.Save(ctx, sessionID, n.ID, s, checkpoint.Metadata{Phase: checkpoint.PhaseEnd}); err != nil {
			return nil, bankerr.New(bankerr.KindStorage, "graph.checkpoint.end", err)
		}

		target, err := e.graph.next(n, s)
		if err != nil {
			return nil, err
		}
		current = target
	}
}
