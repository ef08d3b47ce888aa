package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.jetify.com/typeid"

	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

// MemoryStore is an in-memory Store used by tests. It is safe for
// concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string][]*Checkpoint // sessionID -> ordered checkpoints
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string][]*Checkpoint)}
}

func (m *MemoryStore) Save(ctx context.Context, sessionID, nodeID string, state *wfstate.State, meta Metadata) (string, error) {
	id, err := typeid.WithPrefix("ckpt")
	if err != nil {
		return "", err
	}
	cp := &Checkpoint{
		CheckpointID: id.String(),
		SessionID:    sessionID,
		NodeID:       nodeID,
		State:        state.Clone(),
		Metadata:     meta,
		CreatedAt:    time.Now(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.byID[sessionID]) > 0 {
		last := m.byID[sessionID][len(m.byID[sessionID])-1].CreatedAt
		if !cp.CreatedAt.After(last) {
			cp.CreatedAt = last.Add(time.Nanosecond)
		}
	}
	m.byID[sessionID] = append(m.byID[sessionID], cp)
	return cp.CheckpointID, nil
}

func (m *MemoryStore) LoadLatest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.byID[sessionID]
	if len(list) == 0 {
		return nil, nil
	}
	return list[len(list)-1], nil
}

func (m *MemoryStore) List(ctx context.Context, sessionID string) ([]*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := append([]*Checkpoint(nil), m.byID[sessionID]...)
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

func (m *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, sessionID)
	return nil
}

var _ Store = (*MemoryStore)(nil)
