package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bankflowhq/workflow-engine/internal/bankerr"
	"github.com/bankflowhq/workflow-engine/internal/checkpoint"
	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

func passthrough(ctx context.Context, s *wfstate.State) (*wfstate.State, error) { return s, nil }

func TestBuildValidation(t *testing.T) {
	t.Run("missing entry", func(t *testing.T) {
		_, err := NewBuilder("a").Build()
		require.Error(t, err)
		require.Contains(t, err.Error(), "entry node")
	})

	t.Run("edge to undefined node", func(t *testing.T) {
		_, err := NewBuilder("a").
			AddNode("a", passthrough, &Edge{Next: "missing"}).
			Build()
		require.Error(t, err)
		require.Contains(t, err.Error(), "undefined node")
	})

	t.Run("conditional edge to undefined node", func(t *testing.T) {
		_, err := NewBuilder("a").
			AddNode("a", passthrough, &Edge{
				Selector: func(v wfstate.View) string { return "x" },
				EdgeMap:  map[string]string{"x": "missing"},
			}).
			Build()
		require.Error(t, err)
	})

	t.Run("edges to END are valid", func(t *testing.T) {
		_, err := NewBuilder("a").
			AddNode("a", passthrough, &Edge{Next: End}).
			Build()
		require.NoError(t, err)
	})
}

func TestRunExecutesInOrderAndCheckpoints(t *testing.T) {
	g, err := NewBuilder("a").
		AddNode("a", passthrough, &Edge{Next: "b"}).
		AddNode("b", passthrough, &Edge{Next: "c"}).
		AddNode("c", passthrough, nil).
		Build()
	require.NoError(t, err)

	store := checkpoint.NewMemoryStore()
	e := NewEngine(g, store, nil)

	out, err := e.Run(context.Background(), "sess_1", &wfstate.State{Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, out.ExecutionHistory)

	cps, err := store.List(context.Background(), "sess_1")
	require.NoError(t, err)
	require.Len(t, cps, 6)
	wantPhases := []checkpoint.Phase{
		checkpoint.PhaseStart, checkpoint.PhaseEnd,
		checkpoint.PhaseStart, checkpoint.PhaseEnd,
		checkpoint.PhaseStart, checkpoint.PhaseEnd,
	}
	for i, cp := range cps {
		require.Equal(t, wantPhases[i], cp.Metadata.Phase)
	}
	for i := 1; i < len(cps); i++ {
		require.True(t, cps[i].CreatedAt.After(cps[i-1].CreatedAt))
	}
}

func TestConditionalRouting(t *testing.T) {
	sel := func(v wfstate.View) string {
		if v.Amount() >= 100 {
			return "big"
		}
		return "small"
	}
	build := func() (*Graph, *checkpoint.MemoryStore, *Engine) {
		g, err := NewBuilder("route").
			AddNode("route", passthrough, &Edge{Selector: sel, EdgeMap: map[string]string{
				"big":   "b",
				"small": End,
			}}).
			AddNode("b", passthrough, nil).
			Build()
		require.NoError(t, err)
		store := checkpoint.NewMemoryStore()
		return g, store, NewEngine(g, store, nil)
	}

	t.Run("selects mapped node", func(t *testing.T) {
		_, _, e := build()
		out, err := e.Run(context.Background(), "s1", &wfstate.State{Amount: 500})
		require.NoError(t, err)
		require.Equal(t, []string{"route", "b"}, out.ExecutionHistory)
	})

	t.Run("selects END", func(t *testing.T) {
		_, _, e := build()
		out, err := e.Run(context.Background(), "s2", &wfstate.State{Amount: 50})
		require.NoError(t, err)
		require.Equal(t, []string{"route"}, out.ExecutionHistory)
	})
}

func TestUnknownEdgeKeyIsRoutingError(t *testing.T) {
	g, err := NewBuilder("a").
		AddNode("a", passthrough, &Edge{
			Selector: func(v wfstate.View) string { return "nowhere" },
			EdgeMap:  map[string]string{"somewhere": End},
		}).
		Build()
	require.NoError(t, err)

	e := NewEngine(g, checkpoint.NewMemoryStore(), nil)
	_, err = e.Run(context.Background(), "s1", &wfstate.State{})
	require.Error(t, err)
	kind, ok := bankerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, bankerr.KindRouting, kind)
}

func TestHaltStopsPropagationWithoutEndCheckpoint(t *testing.T) {
	halting := func(ctx context.Context, s *wfstate.State) (*wfstate.State, error) {
		s.Halt = true
		return s, nil
	}
	g, err := NewBuilder("a").
		AddNode("a", halting, &Edge{Next: "b"}).
		AddNode("b", passthrough, nil).
		Build()
	require.NoError(t, err)

	store := checkpoint.NewMemoryStore()
	e := NewEngine(g, store, nil)

	out, err := e.Run(context.Background(), "s1", &wfstate.State{})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, out.ExecutionHistory)
	require.True(t, out.Halt)

	// Only the start checkpoint: a halting node owns its own snapshot, the
	// engine must not write an end record over it.
	cps, err := store.List(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, cps, 1)
	require.Equal(t, checkpoint.PhaseStart, cps[0].Metadata.Phase)
}

func TestResumeRequiresApprovedDecision(t *testing.T) {
	g, err := NewBuilder("a").
		AddNode("a", passthrough, nil).
		Build()
	require.NoError(t, err)
	e := NewEngine(g, checkpoint.NewMemoryStore(), nil)

	t.Run("nil decision", func(t *testing.T) {
		_, err := e.Resume(context.Background(), "s1", "a", &wfstate.State{})
		require.Error(t, err)
		kind, _ := bankerr.KindOf(err)
		require.Equal(t, bankerr.KindConflict, kind)
	})

	t.Run("rejected decision", func(t *testing.T) {
		_, err := e.Resume(context.Background(), "s1", "a", &wfstate.State{
			HILDecision: &wfstate.HILDecision{Approved: false},
		})
		require.Error(t, err)
	})

	t.Run("approved decision runs", func(t *testing.T) {
		out, err := e.Resume(context.Background(), "s1", "a", &wfstate.State{
			HILDecision: &wfstate.HILDecision{Approved: true},
		})
		require.NoError(t, err)
		require.Equal(t, []string{"a"}, out.ExecutionHistory)
	})
}

func TestRunUnknownStartNode(t *testing.T) {
	g, err := NewBuilder("a").AddNode("a", passthrough, nil).Build()
	require.NoError(t, err)
	e := NewEngine(g, checkpoint.NewMemoryStore(), nil)

	_, err = e.Resume(context.Background(), "s1", "ghost", &wfstate.State{
		HILDecision: &wfstate.HILDecision{Approved: true},
	})
	require.Error(t, err)
	kind, _ := bankerr.KindOf(err)
	require.Equal(t, bankerr.KindRouting, kind)
}
