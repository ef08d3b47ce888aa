package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

func TestScriptedSelector(t *testing.T) {
	engine := NewSelectorEngine()

	sel, err := NewScriptedSelector(engine, `intent`)
	require.NoError(t, err)

	got := sel(wfstate.NewView(&wfstate.State{Intent: "balance_inquiry"}))
	require.Equal(t, "balance_inquiry", got)
}

func TestScriptedSelectorCompileError(t *testing.T) {
	engine := NewSelectorEngine()
	_, err := NewScriptedSelector(engine, `this is not valid risor ((`)
	require.Error(t, err)
}

func TestScriptedPredicate(t *testing.T) {
	engine := NewSelectorEngine()

	p, err := NewScriptedPredicate(engine, `amount >= 5000 || needs_approval`)
	require.NoError(t, err)

	require.True(t, p(wfstate.NewView(&wfstate.State{Amount: 6000})))
	require.True(t, p(wfstate.NewView(&wfstate.State{Amount: 100, NeedsApproval: true})))
	require.False(t, p(wfstate.NewView(&wfstate.State{Amount: 100})))
}
