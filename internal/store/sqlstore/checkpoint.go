package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.jetify.com/typeid"

	"github.com/bankflowhq/workflow-engine/internal/checkpoint"
	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

func (s *Store) Save(ctx context.Context, sessionID, nodeID string, state *wfstate.State, meta checkpoint.Metadata) (string, error) {
	id, err := typeid.WithPrefix("ckpt")
	if err != nil {
		return "", err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("sqlstore: marshal state: %w", err)
	}

	// created_at must stay strictly increasing per session so latest-by-time
	// is unambiguous; two saves in one turn can land on the same clock tick.
	createdAt := time.Now()
	var prev checkpointRecord
	err = s.db.WithContext(ctx).
		Select("created_at").
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		First(&prev).Error
	if err == nil && !createdAt.After(prev.CreatedAt) {
		createdAt = prev.CreatedAt.Add(time.Microsecond)
	} else if err != nil && !isNotFound(err) {
		return "", fmt.Errorf("sqlstore: latest checkpoint time: %w", err)
	}

	rec := checkpointRecord{
		CheckpointID: id.String(),
		SessionID:    sessionID,
		NodeID:       nodeID,
		StateJSON:    string(stateJSON),
		Phase:        string(meta.Phase),
		ApprovalID:   meta.ApprovalID,
		PausedAt:     meta.PausedAt,
		CreatedAt:    createdAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return "", fmt.Errorf("sqlstore: save checkpoint: %w", err)
	}
	return rec.CheckpointID, nil
}

func (s *Store) LoadLatest(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
	var rec checkpointRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		First(&rec).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlstore: load latest checkpoint: %w", err)
	}
	return decodeCheckpoint(rec)
}

func (s *Store) List(ctx context.Context, sessionID string) ([]*checkpoint.Checkpoint, error) {
	var recs []checkpointRecord
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("sqlstore: list checkpoints: %w", err)
	}
	out := make([]*checkpoint.Checkpoint, 0, len(recs))
	for _, rec := range recs {
		cp, err := decodeCheckpoint(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&checkpointRecord{}).Error
}

func decodeCheckpoint(rec checkpointRecord) (*checkpoint.Checkpoint, error) {
	state, err := wfstate.Decode([]byte(rec.StateJSON))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: decode state: %w", err)
	}
	return &checkpoint.Checkpoint{
		CheckpointID: rec.CheckpointID,
		SessionID:    rec.SessionID,
		NodeID:       rec.NodeID,
		State:        state,
		Metadata: checkpoint.Metadata{
			Phase:      checkpoint.Phase(rec.Phase),
			ApprovalID: rec.ApprovalID,
			PausedAt:   rec.PausedAt,
		},
		CreatedAt: rec.CreatedAt,
	}, nil
}

var _ checkpoint.Store = (*Store)(nil)
