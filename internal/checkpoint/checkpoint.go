// Package checkpoint defines the append-only per-session checkpoint log
// contract, generalized from the workflow engine's Checkpoint/Checkpointer
// pair to the banking engine's session/node/phase shape.
package checkpoint

import (
	"context"
	"time"

	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

// Phase classifies why a checkpoint was written.
type Phase string

const (
	PhaseStart    Phase = "start"
	PhaseEnd      Phase = "end"
	PhasePause    Phase = "pause"
	PhaseApproved Phase = "approved"
	PhaseRejected Phase = "rejected"
)

// Metadata is free-form checkpoint metadata; Phase is always present.
type Metadata struct {
	Phase      Phase  `json:"phase"`
	ApprovalID string `json:"approval_id,omitempty"`
	PausedAt   string `json:"paused_at,omitempty"`
}

// Checkpoint is a single durable snapshot of workflow state at a node
// boundary.
type Checkpoint struct {
	CheckpointID string         `json:"checkpoint_id"`
	SessionID    string         `json:"session_id"`
	NodeID       string         `json:"node_id"`
	State        *wfstate.State `json:"state"`
	Metadata     Metadata       `json:"metadata"`
	CreatedAt    time.Time      `json:"created_at"`
}

// UnwrapState returns the raw workflow state a checkpoint carries, handling
// the historical envelope shape per the engine's design notes: if the state
// appears to be a thin wrapper with nothing set except what an envelope
// would carry, callers should prefer the dedicated Envelope decode path at
// the storage boundary (see store packages); this helper covers the common
// in-process case where State is already the raw value.
func (c *Checkpoint) UnwrapState() *wfstate.State {
	if c == nil {
		return nil
	}
	return c.State
}

// Store is the checkpoint log contract. Implementations must never
// overwrite an existing record; Save always appends.
type Store interface {
	// Save persists a new checkpoint with a server-assigned CreatedAt and a
	// unique CheckpointID, returning the id.
	Save(ctx context.Context, sessionID, nodeID string, state *wfstate.State, meta Metadata) (string, error)

	// LoadLatest returns the checkpoint with the largest CreatedAt for the
	// session, or nil, nil if none exists.
	LoadLatest(ctx context.Context, sessionID string) (*Checkpoint, error)

	// List returns every checkpoint for the session ordered ascending by
	// CreatedAt.
	List(ctx context.Context, sessionID string) ([]*Checkpoint, error)

	// Clear removes every checkpoint for the session. Used only by external
	// admin tooling, never by the engine itself.
	Clear(ctx context.Context, sessionID string) error
}
