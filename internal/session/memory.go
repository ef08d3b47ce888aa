package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.jetify.com/typeid"

	"github.com/bankflowhq/workflow-engine/internal/bankerr"
)

// MemoryStore is an in-memory Store used by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Create(ctx context.Context, userID, workflowType string) (*Session, error) {
	id, err := typeid.WithPrefix("sess")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	s := &Session{
		SessionID:    id.String(),
		UserID:       userID,
		WorkflowType: workflowType,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.mu.Lock()
	m.sessions[s.SessionID] = s
	m.mu.Unlock()
	return s, nil
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, bankerr.New(bankerr.KindNotFound, "session.get", fmt.Errorf("session %s not found", sessionID))
	}
	return s, nil
}

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionID] = s
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if userID == "" || s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
