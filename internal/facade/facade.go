// Package facade is the request/response layer over the graph engine: it
// owns session lifecycle for inbound chat turns, drives approve/reject
// decisions through the HIL gates, and serves read-only introspection. It
// holds no workflow state of its own — everything durable lives in the
// three stores.
package facade

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bankflowhq/workflow-engine/internal/approval"
	"github.com/bankflowhq/workflow-engine/internal/bankerr"
	"github.com/bankflowhq/workflow-engine/internal/banking"
	"github.com/bankflowhq/workflow-engine/internal/checkpoint"
	"github.com/bankflowhq/workflow-engine/internal/graph"
	"github.com/bankflowhq/workflow-engine/internal/hil"
	"github.com/bankflowhq/workflow-engine/internal/session"
	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

// WorkflowType is the workflow identifier stamped on every session and
// approval record this facade creates.
const WorkflowType = "banking"

// anonymousUser is the user id recorded when a chat arrives without one.
const anonymousUser = "anonymous"

// Facade coordinates one turn or one resume at a time per session.
type Facade struct {
	engine      *graph.Engine
	sessions    session.Store
	checkpoints checkpoint.Store
	approvals   approval.Store
	gates       map[string]*hil.Gate // HIL node id -> gate
	logger      *slog.Logger

	locks sync.Map // session id -> *sync.Mutex
}

// New wires a Facade. gates maps each HIL node id in the graph to the gate
// that drives its approve/reject transitions.
func New(engine *graph.Engine, sessions session.Store, checkpoints checkpoint.Store, approvals approval.Store, gates map[string]*hil.Gate, logger *slog.Logger) *Facade {
	return &Facade{
		engine:      engine,
		sessions:    sessions,
		checkpoints: checkpoints,
		approvals:   approvals,
		gates:       gates,
		logger:      logger,
	}
}

// lockSession acquires the per-session mutex for the duration of a turn or
// resume, returning the unlock func.
func (f *Facade) lockSession(sessionID string) func() {
	v, _ := f.locks.LoadOrStore(sessionID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ChatRequest is one inbound user message.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// ChatResult is the outcome of a turn: either a terminal reply or a
// pending-approval envelope (Status = pending_approval).
type ChatResult struct {
	Reply            *wfstate.Response `json:"reply"`
	SessionID        string            `json:"session_id"`
	Status           session.Status    `json:"status"`
	ExecutionHistory []string          `json:"execution_history,omitempty"`
}

// Chat runs one turn: load-or-create the session, bump execution_count,
// append the user turn, run the graph, and translate the outcome.
func (f *Facade) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, bankerr.New(bankerr.KindValidation, "facade.chat", errors.New("message must not be empty"))
	}

	var sess *session.Session
	var err error
	if req.SessionID == "" {
		userID := req.UserID
		if userID == "" {
			userID = anonymousUser
		}
		sess, err = f.sessions.Create(ctx, userID, WorkflowType)
		if err != nil {
			return nil, err
		}
	} else {
		sess, err = f.sessions.Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
	}

	unlock := f.lockSession(sess.SessionID)
	defer unlock()

	// Duplicate replay of the previous message returns the stored result
	// without re-executing, so a retried request cannot produce a second
	// downstream side effect.
	if prior, ok := f.replayResult(sess, msg); ok {
		if f.logger != nil {
			f.logger.Info("duplicate message replay", "session_id", sess.SessionID)
		}
		return prior, nil
	}

	if sess.Status != session.StatusActive {
		return nil, bankerr.New(bankerr.KindConflict, "facade.chat",
			errors.New("session is not accepting messages in status "+string(sess.Status)))
	}

	sess.ExecutionCount++
	sess.AppendTurn("user", msg)

	state := &wfstate.State{
		Message:   msg,
		UserID:    sess.UserID,
		SessionID: sess.SessionID,
	}
	if prev := sess.WorkflowState; prev != nil && prev.AwaitingCompletion {
		state.ContextAmount = prev.ContextAmount
		state.ContextRecipient = prev.ContextRecipient
	}

	if err := f.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	// The turn runs on a detached context: an abandoned HTTP client must not
	// cut a node off mid-checkpoint.
	runCtx := banking.WithSession(context.Background(), sess)
	state, err = f.engine.Run(runCtx, sess.SessionID, state)
	if err != nil {
		return nil, f.failTurn(ctx, sess, err)
	}

	return f.finishTurn(ctx, sess, state)
}

// replayResult reports whether msg is a byte-identical replay of the
// session's last user turn and, if so, rebuilds that turn's result.
func (f *Facade) replayResult(sess *session.Session, msg string) (*ChatResult, bool) {
	last, ok := sess.LastUserTurn()
	if !ok || strings.TrimSpace(last.Content) != msg {
		return nil, false
	}
	if sess.WorkflowState == nil || sess.WorkflowState.Response == nil {
		return nil, false
	}
	return &ChatResult{
		Reply:            sess.WorkflowState.Response,
		SessionID:        sess.SessionID,
		Status:           sess.Status,
		ExecutionHistory: sess.WorkflowState.ExecutionHistory,
	}, true
}

// failTurn promotes a fatal engine error to session failure where the
// status machine allows it, then surfaces the original error.
func (f *Facade) failTurn(ctx context.Context, sess *session.Session, err error) error {
	kind, ok := bankerr.KindOf(err)
	if !ok || !bankerr.Fatal(kind) {
		return err
	}
	if sess.Status == session.StatusActive || sess.Status == session.StatusApproved {
		if terr := sess.Transition(session.StatusFailed); terr == nil {
			if serr := f.sessions.Save(ctx, sess); serr != nil && f.logger != nil {
				f.logger.Error("failed to persist session failure", "session_id", sess.SessionID, "error", serr)
			}
		}
	}
	return err
}

// finishTurn persists the post-run session and shapes the result for a turn
// that ended either at a pause or at a terminal node.
func (f *Facade) finishTurn(ctx context.Context, sess *session.Session, state *wfstate.State) (*ChatResult, error) {
	// A node-level failure (downstream error, bad amount) completes the turn
	// with a failure payload; the engine itself succeeded.
	if state.Response == nil && state.Error != "" {
		state.Response = &wfstate.Response{Status: "error", Message: state.Error}
	}
	sess.WorkflowState = state
	if n := len(state.ExecutionHistory); n > 0 {
		sess.CurrentNode = state.ExecutionHistory[n-1]
	}

	if state.Halt {
		// The gate already moved the session to pending_approval and saved
		// it; only the state snapshot and assistant turn remain.
		sess.AppendTurn("assistant", assistantContent(state))
		if err := f.sessions.Save(ctx, sess); err != nil {
			return nil, f.failTurn(ctx, sess, err)
		}
		return &ChatResult{
			Reply:            state.Response,
			SessionID:        sess.SessionID,
			Status:           sess.Status,
			ExecutionHistory: state.ExecutionHistory,
		}, nil
	}

	// A parked clarification keeps the session active for the follow-up
	// turn; everything else reaching a terminal node completes.
	if !state.AwaitingCompletion && sess.Status == session.StatusActive {
		if err := sess.Transition(session.StatusCompleted); err != nil {
			return nil, err
		}
	}
	sess.AppendTurn("assistant", assistantContent(state))
	if err := f.sessions.Save(ctx, sess); err != nil {
		return nil, f.failTurn(ctx, sess, err)
	}

	return &ChatResult{
		Reply:            state.Response,
		SessionID:        sess.SessionID,
		Status:           sess.Status,
		ExecutionHistory: state.ExecutionHistory,
	}, nil
}

func assistantContent(state *wfstate.State) string {
	if state.Response != nil && state.Response.Message != "" {
		return state.Response.Message
	}
	if state.Response != nil && state.Response.Status != "" {
		return state.Response.Status
	}
	if state.Error != "" {
		return state.Error
	}
	return "done"
}

// DecideRequest is an approve/reject decision on a paused session.
type DecideRequest struct {
	SessionID  string
	ApproverID string
	Approved   bool
	Reason     string
}

// DecideResult is the outcome of a decision. On approval it carries the
// resumed turn's final reply; on rejection only the bookkeeping fields.
type DecideResult struct {
	Status           session.Status    `json:"status"`
	SessionID        string            `json:"session_id"`
	Reply            *wfstate.Response `json:"result,omitempty"`
	ExecutionHistory []string          `json:"execution_history,omitempty"`
	Reason           string            `json:"reason,omitempty"`
	RejectedBy       string            `json:"rejected_by,omitempty"`
}

// Decide applies a human decision to the session's pending approval: on
// approve it resumes the graph from the paused gate; on reject it records
// the decision and leaves the session terminal.
func (f *Facade) Decide(ctx context.Context, req DecideRequest) (*DecideResult, error) {
	sess, err := f.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	unlock := f.lockSession(sess.SessionID)
	defer unlock()

	// Re-read under the lock; a concurrent decision may have already moved
	// the session on.
	sess, err = f.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != session.StatusPendingApproval {
		return nil, bankerr.New(bankerr.KindConflict, "facade.decide",
			errors.New("session is not pending approval"))
	}

	gate, ok := f.gates[sess.CurrentNode]
	if !ok {
		return nil, bankerr.New(bankerr.KindRouting, "facade.decide",
			errors.New("no gate registered for node "+sess.CurrentNode))
	}

	if !req.Approved {
		state, err := gate.Reject(ctx, sess, req.ApproverID, req.Reason)
		if err != nil {
			return nil, err
		}
		if err := sess.Transition(session.StatusRejected); err != nil {
			return nil, err
		}
		sess.WorkflowState = state
		sess.AppendTurn("assistant", "Request rejected: "+req.Reason)
		if err := f.sessions.Save(ctx, sess); err != nil {
			return nil, err
		}
		return &DecideResult{
			Status:     session.StatusRejected,
			SessionID:  sess.SessionID,
			Reason:     req.Reason,
			RejectedBy: req.ApproverID,
		}, nil
	}

	state, err := gate.Approve(ctx, sess, req.ApproverID, req.Reason)
	if err != nil {
		return nil, err
	}
	if err := sess.Transition(session.StatusApproved); err != nil {
		return nil, err
	}
	if err := f.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}

	// Re-enter the graph at the paused gate node; the merged decision lets
	// it pass straight through to the post-gate node.
	state.Halt = false
	runCtx := banking.WithSession(context.Background(), sess)
	state, err = f.engine.Resume(runCtx, sess.SessionID, sess.CurrentNode, state)
	if err != nil {
		return nil, f.failTurn(ctx, sess, err)
	}

	if state.Response == nil && state.Error != "" {
		state.Response = &wfstate.Response{Status: "error", Message: state.Error}
	}
	sess.WorkflowState = state
	if n := len(state.ExecutionHistory); n > 0 {
		sess.CurrentNode = state.ExecutionHistory[n-1]
	}
	if err := sess.Transition(session.StatusCompleted); err != nil {
		return nil, err
	}
	sess.AppendTurn("assistant", assistantContent(state))
	if err := f.sessions.Save(ctx, sess); err != nil {
		return nil, f.failTurn(ctx, sess, err)
	}

	return &DecideResult{
		Status:           session.StatusApproved,
		SessionID:        sess.SessionID,
		Reply:            state.Response,
		ExecutionHistory: state.ExecutionHistory,
	}, nil
}

// StatusResult is the read-only session projection for GET status.
type StatusResult struct {
	SessionID           string         `json:"session_id"`
	UserID              string         `json:"user_id"`
	Status              session.Status `json:"status"`
	CurrentNode         string         `json:"current_node"`
	ExecutionCount      int            `json:"execution_count"`
	Checkpoints         int            `json:"checkpoints"`
	ConversationHistory []session.Turn `json:"conversation_history"`
}

// Status returns the session's lifecycle view plus its checkpoint count.
func (f *Facade) Status(ctx context.Context, sessionID string) (*StatusResult, error) {
	sess, err := f.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cps, err := f.checkpoints.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		SessionID:           sess.SessionID,
		UserID:              sess.UserID,
		Status:              sess.Status,
		CurrentNode:         sess.CurrentNode,
		ExecutionCount:      sess.ExecutionCount,
		Checkpoints:         len(cps),
		ConversationHistory: sess.ConversationHistory,
	}, nil
}

// CheckpointSummary is one row of the checkpoint listing.
type CheckpointSummary struct {
	CheckpointID string           `json:"checkpoint_id"`
	NodeID       string           `json:"node_id"`
	Phase        checkpoint.Phase `json:"phase"`
	CreatedAt    string           `json:"created_at"`
}

// Checkpoints returns the session's ordered checkpoint summaries.
func (f *Facade) Checkpoints(ctx context.Context, sessionID string) ([]CheckpointSummary, error) {
	if _, err := f.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	cps, err := f.checkpoints.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]CheckpointSummary, 0, len(cps))
	for _, cp := range cps {
		out = append(out, CheckpointSummary{
			CheckpointID: cp.CheckpointID,
			NodeID:       cp.NodeID,
			Phase:        cp.Metadata.Phase,
			CreatedAt:    cp.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	return out, nil
}

// PendingApprovals lists every approval currently awaiting a decision.
func (f *Facade) PendingApprovals(ctx context.Context) ([]*approval.Request, error) {
	return f.approvals.ListPending(ctx)
}

// Sessions lists session summaries, optionally filtered by user.
func (f *Facade) Sessions(ctx context.Context, userID string) ([]session.Summary, error) {
	all, err := f.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]session.Summary, 0, len(all))
	for _, sess := range all {
		out = append(out, sess.Summary())
	}
	return out, nil
}
