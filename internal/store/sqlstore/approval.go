package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.jetify.com/typeid"

	"github.com/bankflowhq/workflow-engine/internal/approval"
	"github.com/bankflowhq/workflow-engine/internal/bankerr"
)

func (s *Store) CreateApproval(ctx context.Context, sessionID, workflowType string, requestData map[string]any, amount float64, recipient string) (*approval.Request, error) {
	// At most one pending approval per session.
	var pendingCount int64
	if err := s.db.WithContext(ctx).Model(&approvalRecord{}).
		Where("session_id = ? AND status = ?", sessionID, string(approval.StatusPending)).
		Count(&pendingCount).Error; err != nil {
		return nil, bankerr.New(bankerr.KindStorage, "sqlstore.approval.create", err)
	}
	if pendingCount > 0 {
		return nil, approval.ErrConflict(sessionID)
	}

	id, err := typeid.WithPrefix("appr")
	if err != nil {
		return nil, err
	}
	dataJSON, err := json.Marshal(requestData)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: marshal request data: %w", err)
	}
	rec := approvalRecord{
		ApprovalID:      id.String(),
		SessionID:       sessionID,
		WorkflowType:    workflowType,
		RequestDataJSON: string(dataJSON),
		Status:          string(approval.StatusPending),
		Amount:          amount,
		Recipient:       recipient,
		RequestedAt:     time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, bankerr.New(bankerr.KindStorage, "sqlstore.approval.create", err)
	}
	return decodeApproval(rec)
}

// decideApproval performs the pending-guarded transition as a single atomic
// UPDATE ... WHERE status = 'pending', so two concurrent deciders cannot
// both win.
func (s *Store) decideApproval(ctx context.Context, approvalID, approverID, reason string, approved bool) (*approval.Request, error) {
	now := time.Now()
	next := approval.StatusApproved
	if !approved {
		next = approval.StatusRejected
	}
	updates := map[string]any{
		"status":      string(next),
		"approved_at": now,
		"approver_id": approverID,
	}
	if !approved {
		updates["rejection_reason"] = reason
	}
	res := s.db.WithContext(ctx).Model(&approvalRecord{}).
		Where("approval_id = ? AND status = ?", approvalID, string(approval.StatusPending)).
		Updates(updates)
	if res.Error != nil {
		return nil, bankerr.New(bankerr.KindStorage, "sqlstore.approval.decide", res.Error)
	}
	if res.RowsAffected == 0 {
		var rec approvalRecord
		err := s.db.WithContext(ctx).Where("approval_id = ?", approvalID).First(&rec).Error
		if err != nil {
			if isNotFound(err) {
				return nil, approval.ErrNotFound(approvalID)
			}
			return nil, bankerr.New(bankerr.KindStorage, "sqlstore.approval.decide", err)
		}
		return nil, approval.ErrConflict(approvalID)
	}

	var rec approvalRecord
	if err := s.db.WithContext(ctx).Where("approval_id = ?", approvalID).First(&rec).Error; err != nil {
		return nil, bankerr.New(bankerr.KindStorage, "sqlstore.approval.decide", err)
	}
	return decodeApproval(rec)
}

func (s *Store) ApproveApproval(ctx context.Context, approvalID, approverID, reason string) (*approval.Request, error) {
	return s.decideApproval(ctx, approvalID, approverID, reason, true)
}

func (s *Store) RejectApproval(ctx context.Context, approvalID, approverID, reason string) (*approval.Request, error) {
	return s.decideApproval(ctx, approvalID, approverID, reason, false)
}

func (s *Store) ListPendingApprovals(ctx context.Context) ([]*approval.Request, error) {
	var recs []approvalRecord
	if err := s.db.WithContext(ctx).
		Where("status = ?", string(approval.StatusPending)).
		Order("requested_at ASC").
		Find(&recs).Error; err != nil {
		return nil, bankerr.New(bankerr.KindStorage, "sqlstore.approval.list", err)
	}
	out := make([]*approval.Request, 0, len(recs))
	for _, rec := range recs {
		req, err := decodeApproval(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

func (s *Store) GetApproval(ctx context.Context, approvalID string) (*approval.Request, error) {
	var rec approvalRecord
	err := s.db.WithContext(ctx).Where("approval_id = ?", approvalID).First(&rec).Error
	if err != nil {
		if isNotFound(err) {
			return nil, approval.ErrNotFound(approvalID)
		}
		return nil, bankerr.New(bankerr.KindStorage, "sqlstore.approval.get", err)
	}
	return decodeApproval(rec)
}

func (s *Store) LatestPendingApprovalForSession(ctx context.Context, sessionID string) (*approval.Request, error) {
	var rec approvalRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, string(approval.StatusPending)).
		Order("requested_at DESC").
		First(&rec).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, bankerr.New(bankerr.KindStorage, "sqlstore.approval.pending", err)
	}
	return decodeApproval(rec)
}

func decodeApproval(rec approvalRecord) (*approval.Request, error) {
	req := &approval.Request{
		ApprovalID:      rec.ApprovalID,
		SessionID:       rec.SessionID,
		WorkflowType:    rec.WorkflowType,
		Status:          approval.Status(rec.Status),
		Amount:          rec.Amount,
		Recipient:       rec.Recipient,
		RequestedAt:     rec.RequestedAt,
		ApprovedAt:      rec.ApprovedAt,
		ApproverID:      rec.ApproverID,
		RejectionReason: rec.RejectionReason,
	}
	if rec.RequestDataJSON != "" && rec.RequestDataJSON != "null" {
		if err := json.Unmarshal([]byte(rec.RequestDataJSON), &req.RequestData); err != nil {
			return nil, fmt.Errorf("sqlstore: decode request data: %w", err)
		}
	}
	return req, nil
}

// Approvals adapts the Store to approval.Store. The adapter exists because
// approval.Store and session.Store both declare Create/Get, which one
// receiver cannot satisfy twice.
func (s *Store) Approvals() approval.Store { return approvalAdapter{s} }

type approvalAdapter struct{ s *Store }

func (a approvalAdapter) Create(ctx context.Context, sessionID, workflowType string, requestData map[string]any, amount float64, recipient string) (*approval.Request, error) {
	return a.s.CreateApproval(ctx, sessionID, workflowType, requestData, amount, recipient)
}

func (a approvalAdapter) Approve(ctx context.Context, approvalID, approverID, reason string) (*approval.Request, error) {
	return a.s.ApproveApproval(ctx, approvalID, approverID, reason)
}

func (a approvalAdapter) Reject(ctx context.Context, approvalID, approverID, reason string) (*approval.Request, error) {
	return a.s.RejectApproval(ctx, approvalID, approverID, reason)
}

func (a approvalAdapter) ListPending(ctx context.Context) ([]*approval.Request, error) {
	return a.s.ListPendingApprovals(ctx)
}

func (a approvalAdapter) Get(ctx context.Context, approvalID string) (*approval.Request, error) {
	return a.s.GetApproval(ctx, approvalID)
}

func (a approvalAdapter) LatestPendingForSession(ctx context.Context, sessionID string) (*approval.Request, error) {
	return a.s.LatestPendingApprovalForSession(ctx, sessionID)
}

var _ approval.Store = approvalAdapter{}
