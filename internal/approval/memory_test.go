package approval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bankflowhq/workflow-engine/internal/bankerr"
)

func TestCreateEnforcesSinglePending(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.Create(ctx, "sess_1", "banking", map[string]any{"amount": 6000.0}, 6000, "kiran")
	require.NoError(t, err)
	require.Equal(t, StatusPending, first.Status)

	_, err = store.Create(ctx, "sess_1", "banking", nil, 100, "bob")
	require.Error(t, err)
	kind, ok := bankerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, bankerr.KindConflict, kind)

	// A different session is unaffected.
	_, err = store.Create(ctx, "sess_2", "banking", nil, 100, "bob")
	require.NoError(t, err)
}

func TestDecisionsAreTerminal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	req, err := store.Create(ctx, "sess_1", "banking", nil, 6000, "kiran")
	require.NoError(t, err)

	approved, err := store.Approve(ctx, req.ApprovalID, "m1", "fine")
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, "m1", approved.ApproverID)
	require.NotNil(t, approved.ApprovedAt)

	// Replayed approve conflicts and does not mutate the record.
	_, err = store.Approve(ctx, req.ApprovalID, "m2", "")
	require.Error(t, err)
	kind, _ := bankerr.KindOf(err)
	require.Equal(t, bankerr.KindConflict, kind)

	got, err := store.Get(ctx, req.ApprovalID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, got.Status)
	require.Equal(t, "m1", got.ApproverID)

	_, err = store.Reject(ctx, req.ApprovalID, "m2", "late")
	require.Error(t, err)
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	req, err := store.Create(ctx, "sess_1", "banking", nil, 6000, "kiran")
	require.NoError(t, err)

	rejected, err := store.Reject(ctx, req.ApprovalID, "m1", "risk")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "risk", rejected.RejectionReason)

	// The session may open a new approval once the old one is decided.
	_, err = store.Create(ctx, "sess_1", "banking", nil, 7000, "kiran")
	require.NoError(t, err)
}

func TestListPendingAndLatestForSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, err := store.Create(ctx, "sess_a", "banking", nil, 6000, "kiran")
	require.NoError(t, err)
	b, err := store.Create(ctx, "sess_b", "banking", nil, 9000, "asha")
	require.NoError(t, err)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	got, err := store.LatestPendingForSession(ctx, "sess_a")
	require.NoError(t, err)
	require.Equal(t, a.ApprovalID, got.ApprovalID)

	_, err = store.Approve(ctx, b.ApprovalID, "m1", "")
	require.NoError(t, err)

	pending, err = store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	none, err := store.LatestPendingForSession(ctx, "sess_b")
	require.NoError(t, err)
	require.Nil(t, none)

	_, err = store.Get(ctx, "appr_missing")
	require.Error(t, err)
	kind, _ := bankerr.KindOf(err)
	require.Equal(t, bankerr.KindNotFound, kind)
}
