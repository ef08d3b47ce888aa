package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

func TestSaveAndLoadLatest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	none, err := store.LoadLatest(ctx, "sess_1")
	require.NoError(t, err)
	require.Nil(t, none)

	id1, err := store.Save(ctx, "sess_1", "validate_input", &wfstate.State{Message: "a"}, Metadata{Phase: PhaseStart})
	require.NoError(t, err)
	id2, err := store.Save(ctx, "sess_1", "validate_input", &wfstate.State{Message: "a", Intent: "balance_inquiry"}, Metadata{Phase: PhaseEnd})
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	latest, err := store.LoadLatest(ctx, "sess_1")
	require.NoError(t, err)
	require.Equal(t, id2, latest.CheckpointID)
	require.Equal(t, "balance_inquiry", latest.State.Intent)
}

func TestListIsStrictlyOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 20; i++ {
		_, err := store.Save(ctx, "sess_1", "n", &wfstate.State{}, Metadata{Phase: PhaseStart})
		require.NoError(t, err)
	}

	list, err := store.List(ctx, "sess_1")
	require.NoError(t, err)
	require.Len(t, list, 20)
	for i := 1; i < len(list); i++ {
		require.True(t, list[i].CreatedAt.After(list[i-1].CreatedAt),
			"checkpoint %d not strictly after %d", i, i-1)
	}
}

func TestSavedStateIsIsolatedFromCaller(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	s := &wfstate.State{Message: "a", Entities: map[string]string{"amount": "100"}}
	_, err := store.Save(ctx, "sess_1", "n", s, Metadata{Phase: PhaseStart})
	require.NoError(t, err)

	s.Entities["amount"] = "mutated"

	latest, err := store.LoadLatest(ctx, "sess_1")
	require.NoError(t, err)
	require.Equal(t, "100", latest.State.Entities["amount"])
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Save(ctx, "sess_1", "n", &wfstate.State{}, Metadata{Phase: PhaseStart})
	require.NoError(t, err)
	_, err = store.Save(ctx, "sess_2", "n", &wfstate.State{}, Metadata{Phase: PhaseStart})
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx, "sess_1"))

	list, err := store.List(ctx, "sess_1")
	require.NoError(t, err)
	require.Empty(t, list)

	other, err := store.List(ctx, "sess_2")
	require.NoError(t, err)
	require.Len(t, other, 1)
}
