// Package approval implements the approval request bookkeeping contract:
// creation, pending-guarded approve/reject transitions, and pending-list
// enumeration for external sweepers.
package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/bankflowhq/workflow-engine/internal/bankerr"
)

// Status is one of the four approval lifecycle states.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusTimeout  Status = "timeout"
)

// Request is a single approval record.
type Request struct {
	ApprovalID      string         `json:"approval_id"`
	SessionID       string         `json:"session_id"`
	WorkflowType    string         `json:"workflow_type"`
	RequestData     map[string]any `json:"request_data"`
	Status          Status         `json:"status"`
	Amount          float64        `json:"amount"`
	Recipient       string         `json:"recipient"`
	RequestedAt     time.Time      `json:"requested_at"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	ApproverID      string         `json:"approver_id,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
}

// ErrConflict is returned when a caller attempts to decide an approval that
// is no longer pending. Decided approvals are terminal.
func ErrConflict(approvalID string) error {
	return bankerr.New(bankerr.KindConflict, "approval.decide", fmt.Errorf("approval %s is not pending", approvalID))
}

// ErrNotFound is returned when an approval id is unknown.
func ErrNotFound(approvalID string) error {
	return bankerr.New(bankerr.KindNotFound, "approval.get", fmt.Errorf("approval %s not found", approvalID))
}

// Store is the approval bookkeeping contract.
type Store interface {
	Create(ctx context.Context, sessionID, workflowType string, requestData map[string]any, amount float64, recipient string) (*Request, error)
	Approve(ctx context.Context, approvalID, approverID, reason string) (*Request, error)
	Reject(ctx context.Context, approvalID, approverID, reason string) (*Request, error)
	ListPending(ctx context.Context) ([]*Request, error)
	Get(ctx context.Context, approvalID string) (*Request, error)
	// LatestPendingForSession returns the single pending approval for a
	// session, if any. A session holds at most one pending approval.
	LatestPendingForSession(ctx context.Context, sessionID string) (*Request, error)
}
