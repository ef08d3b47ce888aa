package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.jetify.com/typeid"

	"github.com/bankflowhq/workflow-engine/internal/approval"
	"github.com/bankflowhq/workflow-engine/internal/bankerr"
)

func (s *Store) CreateApproval(ctx context.Context, sessionID, workflowType string, requestData map[string]any, amount float64, recipient string) (*approval.Request, error) {
	id, err := typeid.WithPrefix("appr")
	if err != nil {
		return nil, err
	}
	req := &approval.Request{
		ApprovalID:   id.String(),
		SessionID:    sessionID,
		WorkflowType: workflowType,
		RequestData:  requestData,
		Status:       approval.StatusPending,
		Amount:       amount,
		Recipient:    recipient,
		RequestedAt:  time.Now(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, bankerr.New(bankerr.KindStorage, "redisstore.approval.create", err)
	}

	// SETNX on the per-session pending marker guards the one-pending-per-
	// session rule: a second concurrent Create loses the race and conflicts.
	ok, err := s.client.SetNX(ctx, s.sessionPendingKey(sessionID), req.ApprovalID, 0).Result()
	if err != nil {
		return nil, bankerr.New(bankerr.KindStorage, "redisstore.approval.create", err)
	}
	if !ok {
		existing, _ := s.client.Get(ctx, s.sessionPendingKey(sessionID)).Result()
		return nil, approval.ErrConflict(existing)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.approvalKey(req.ApprovalID), payload, 0)
	pipe.ZAdd(ctx, s.pendingApprovalsKey(), redis.Z{
		Score:  float64(req.RequestedAt.UnixNano()),
		Member: req.ApprovalID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, bankerr.New(bankerr.KindStorage, "redisstore.approval.create", err)
	}
	return req, nil
}

// decideApproval runs the pending-guarded transition inside a WATCH
// transaction on the approval key, so two concurrent deciders cannot both
// win: the loser's EXEC fails and it re-reads a non-pending record.
func (s *Store) decideApproval(ctx context.Context, approvalID, approverID, reason string, approved bool) (*approval.Request, error) {
	var decided *approval.Request

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, s.approvalKey(approvalID)).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return approval.ErrNotFound(approvalID)
			}
			return err
		}
		var req approval.Request
		if err := json.Unmarshal(data, &req); err != nil {
			return err
		}
		if req.Status != approval.StatusPending {
			return approval.ErrConflict(approvalID)
		}

		now := time.Now()
		req.ApprovedAt = &now
		req.ApproverID = approverID
		if approved {
			req.Status = approval.StatusApproved
		} else {
			req.Status = approval.StatusRejected
			req.RejectionReason = reason
		}
		payload, err := json.Marshal(&req)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.approvalKey(approvalID), payload, 0)
			pipe.ZRem(ctx, s.pendingApprovalsKey(), approvalID)
			pipe.Del(ctx, s.sessionPendingKey(req.SessionID))
			return nil
		})
		if err != nil {
			return err
		}
		decided = &req
		return nil
	}

	err := s.client.Watch(ctx, txn, s.approvalKey(approvalID))
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			// Lost the race; the record is no longer pending.
			return nil, approval.ErrConflict(approvalID)
		}
		var be *bankerr.Error
		if errors.As(err, &be) {
			return nil, err
		}
		return nil, bankerr.New(bankerr.KindStorage, "redisstore.approval.decide", err)
	}
	return decided, nil
}

func (s *Store) ApproveApproval(ctx context.Context, approvalID, approverID, reason string) (*approval.Request, error) {
	return s.decideApproval(ctx, approvalID, approverID, reason, true)
}

func (s *Store) RejectApproval(ctx context.Context, approvalID, approverID, reason string) (*approval.Request, error) {
	return s.decideApproval(ctx, approvalID, approverID, reason, false)
}

func (s *Store) ListPendingApprovals(ctx context.Context) ([]*approval.Request, error) {
	ids, err := s.client.ZRange(ctx, s.pendingApprovalsKey(), 0, -1).Result()
	if err != nil {
		return nil, bankerr.New(bankerr.KindStorage, "redisstore.approval.list", err)
	}
	out := make([]*approval.Request, 0, len(ids))
	for _, id := range ids {
		req, err := s.GetApproval(ctx, id)
		if err != nil {
			if kind, ok := bankerr.KindOf(err); ok && kind == bankerr.KindNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}

func (s *Store) GetApproval(ctx context.Context, approvalID string) (*approval.Request, error) {
	data, err := s.client.Get(ctx, s.approvalKey(approvalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, approval.ErrNotFound(approvalID)
		}
		return nil, bankerr.New(bankerr.KindStorage, "redisstore.approval.get", err)
	}
	var req approval.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, bankerr.New(bankerr.KindStorage, "redisstore.approval.get", err)
	}
	return &req, nil
}

func (s *Store) LatestPendingApprovalForSession(ctx context.Context, sessionID string) (*approval.Request, error) {
	id, err := s.client.Get(ctx, s.sessionPendingKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, bankerr.New(bankerr.KindStorage, "redisstore.approval.pending", err)
	}
	return s.GetApproval(ctx, id)
}

// Approvals adapts the Store to approval.Store.
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
