package approval

import (
	"context"
	"sync"
	"time"

	"go.jetify.com/typeid"
)

// MemoryStore is an in-memory Store used by tests.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*Request
	pending map[string]string // sessionID -> approvalID, present only while pending
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*Request),
		pending: make(map[string]string),
	}
}

func (m *MemoryStore) Create(ctx context.Context, sessionID, workflowType string, requestData map[string]any, amount float64, recipient string) (*Request, error) {
	id, err := typeid.WithPrefix("appr")
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// At most one pending approval per session.
	if existing, ok := m.pending[sessionID]; ok {
		return nil, ErrConflict(existing)
	}
	req := &Request{
		ApprovalID:   id.String(),
		SessionID:    sessionID,
		WorkflowType: workflowType,
		RequestData:  requestData,
		Status:       StatusPending,
		Amount:       amount,
		Recipient:    recipient,
		RequestedAt:  time.Now(),
	}
	m.byID[req.ApprovalID] = req
	m.pending[sessionID] = req.ApprovalID
	return req, nil
}

func (m *MemoryStore) decide(approvalID, approverID, reason string, approved bool) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.byID[approvalID]
	if !ok {
		return nil, ErrNotFound(approvalID)
	}
	if req.Status != StatusPending {
		return nil, ErrConflict(approvalID)
	}
	now := time.Now()
	req.ApprovedAt = &now
	req.ApproverID = approverID
	if approved {
		req.Status = StatusApproved
	} else {
		req.Status = StatusRejected
		req.RejectionReason = reason
	}
	delete(m.pending, req.SessionID)
	copy := *req
	return &copy, nil
}

func (m *MemoryStore) Approve(ctx context.Context, approvalID, approverID, reason string) (*Request, error) {
	return m.decide(approvalID, approverID, reason, true)
}

func (m *MemoryStore) Reject(ctx context.Context, approvalID, approverID, reason string) (*Request, error) {
	return m.decide(approvalID, approverID, reason, false)
}

func (m *MemoryStore) ListPending(ctx context.Context) ([]*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Request
	for _, id := range m.pending {
		out = append(out, m.byID[id])
	}
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, approvalID string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.byID[approvalID]
	if !ok {
		return nil, ErrNotFound(approvalID)
	}
	return req, nil
}

func (m *MemoryStore) LatestPendingForSession(ctx context.Context, sessionID string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.pending[sessionID]
	if !ok {
		return nil, nil
	}
	return m.byID[id], nil
}

var _ Store = (*MemoryStore)(nil)
