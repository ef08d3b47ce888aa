// Package hil implements the human-in-the-loop gate: a threshold predicate
// over workflow state that either lets a turn continue or pauses it behind
// an approval request.
package hil

import (
	"context"
	"time"

	"github.com/bankflowhq/workflow-engine/internal/approval"
	"github.com/bankflowhq/workflow-engine/internal/checkpoint"
	"github.com/bankflowhq/workflow-engine/internal/session"
	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

// Predicate is a pure function of state used to decide whether a gate
// pauses. Predicates compose with Or/And, so "high amount OR conversational
// OR low confidence" stays a single boolean expression.
type Predicate func(wfstate.View) bool

// Or returns a predicate that is true if any of ps is true.
func Or(ps ...Predicate) Predicate {
	return func(v wfstate.View) bool {
		for _, p := range ps {
			if p(v) {
				return true
			}
		}
		return false
	}
}

// And returns a predicate that is true only if every one of ps is true.
func And(ps ...Predicate) Predicate {
	return func(v wfstate.View) bool {
		for _, p := range ps {
			if !p(v) {
				return false
			}
		}
		return true
	}
}

// AmountAtLeast returns a predicate true when state.Amount >= threshold.
func AmountAtLeast(threshold float64) Predicate {
	return func(v wfstate.View) bool { return v.Amount() >= threshold }
}

// NeedsApproval returns a predicate true when state.NeedsApproval is set.
func NeedsApproval() Predicate {
	return func(v wfstate.View) bool { return v.NeedsApproval() }
}

// Status is the outcome of Execute.
type Status string

const (
	StatusContinue        Status = "CONTINUE"
	StatusPendingApproval Status = "PENDING_APPROVAL"
)

// Result is returned by Execute.
type Result struct {
	Status       Status
	ApprovalID   string
	CheckpointID string
	Amount       float64
	Recipient    string
	PausedAt     time.Time
}

// Config configures a single HIL gate instance.
type Config struct {
	NodeID             string
	ApprovalMessage    string
	ThresholdPredicate Predicate
	AutoApprove        bool
	TimeoutSeconds     int
}

// Gate evaluates a Config's predicate against state and, on pause, drives
// the approval store and checkpoint store.
type Gate struct {
	cfg         Config
	approvals   approval.Store
	checkpoints checkpoint.Store
	sessions    session.Store
}

func New(cfg Config, approvals approval.Store, checkpoints checkpoint.Store, sessions session.Store) *Gate {
	return &Gate{cfg: cfg, approvals: approvals, checkpoints: checkpoints, sessions: sessions}
}

// Execute implements the gate's pause/continue decision.
func (g *Gate) Execute(ctx context.Context, s *wfstate.State, sess *session.Session) (*Result, error) {
	if g.cfg.AutoApprove || !g.cfg.ThresholdPredicate(wfstate.NewView(s)) {
		s.HILDecision = &wfstate.HILDecision{Approved: true, Auto: true, DecidedAt: time.Now()}
		return &Result{Status: StatusContinue}, nil
	}

	req, err := g.approvals.Create(ctx, sess.SessionID, sess.WorkflowType, s.RequestData, s.Amount, s.Recipient)
	if err != nil {
		return nil, err
	}

	pausedAt := time.Now()
	checkpointID, err := g.checkpoints.Save(ctx, sess.SessionID, g.cfg.NodeID, s, checkpoint.Metadata{
		Phase:      checkpoint.PhasePause,
		ApprovalID: req.ApprovalID,
		PausedAt:   pausedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}

	if err := sess.Transition(session.StatusPendingApproval); err != nil {
		return nil, err
	}
	sess.CurrentNode = g.cfg.NodeID
	if err := g.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	s.Halt = true
	return &Result{
		Status:       StatusPendingApproval,
		ApprovalID:   req.ApprovalID,
		CheckpointID: checkpointID,
		Amount:       s.Amount,
		Recipient:    s.Recipient,
		PausedAt:     pausedAt,
	}, nil
}

// Approve locates the session's single pending approval, transitions it,
// loads the pause checkpoint, merges the decision into its state, and
// writes an "approved" checkpoint. It does not resume graph execution; the
// caller drives the graph engine forward from the returned state.
func (g *Gate) Approve(ctx context.Context, sess *session.Session, approverID, reason string) (*wfstate.State, error) {
	return g.decide(ctx, sess, approverID, reason, true)
}

// Reject mirrors Approve but marks the decision rejected and writes a
// "rejected" checkpoint; the caller must not resume execution afterward.
func (g *Gate) Reject(ctx context.Context, sess *session.Session, approverID, reason string) (*wfstate.State, error) {
	return g.decide(ctx, sess, approverID, reason, false)
}

func (g *Gate) decide(ctx context.Context, sess *session.Session, approverID, reason string, approved bool) (*wfstate.State, error) {
	pending, err := g.approvals.LatestPendingForSession(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, approval.ErrNotFound(sess.SessionID)
	}

	var req *approval.Request
	if approved {
		req, err = g.approvals.Approve(ctx, pending.ApprovalID, approverID, reason)
	} else {
		req, err = g.approvals.Reject(ctx, pending.ApprovalID, approverID, reason)
	}
	if err != nil {
		return nil, err
	}

	cp, err := g.checkpoints.LoadLatest(ctx, sess.SessionID)
	if err != nil {
		return nil, err
	}
	state := unwrap(cp)
	if state == nil {
		state = &wfstate.State{SessionID: sess.SessionID}
	}

	decidedAt := time.Now()
	state.HILDecision = &wfstate.HILDecision{
		Approved:   approved,
		ApproverID: approverID,
		Reason:     reason,
		Auto:       false,
		DecidedAt:  decidedAt,
	}

	phase := checkpoint.PhaseApproved
	if !approved {
		phase = checkpoint.PhaseRejected
	}
	if _, err := g.checkpoints.Save(ctx, sess.SessionID, g.cfg.NodeID, state, checkpoint.Metadata{
		Phase:      phase,
		ApprovalID: req.ApprovalID,
	}); err != nil {
		return nil, err
	}

	return state, nil
}

// unwrap returns the raw state a checkpoint carries. The store backends
// already decode the historical envelope shape at the storage boundary.
func unwrap(cp *checkpoint.Checkpoint) *wfstate.State {
	if cp == nil {
		return nil
	}
	return cp.State
}
