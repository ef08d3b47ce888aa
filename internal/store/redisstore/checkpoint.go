package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.jetify.com/typeid"

	"github.com/bankflowhq/workflow-engine/internal/bankerr"
	"github.com/bankflowhq/workflow-engine/internal/checkpoint"
	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

// checkpointDoc is the wire shape written to Redis. State rides as raw JSON
// so the envelope unwrap happens exactly once, at decode.
type checkpointDoc struct {
	CheckpointID string              `json:"checkpoint_id"`
	SessionID    string              `json:"session_id"`
	NodeID       string              `json:"node_id"`
	State        json.RawMessage     `json:"state"`
	Metadata     checkpoint.Metadata `json:"metadata"`
	CreatedAt    time.Time           `json:"created_at"`
}

func (s *Store) Save(ctx context.Context, sessionID, nodeID string, state *wfstate.State, meta checkpoint.Metadata) (string, error) {
	id, err := typeid.WithPrefix("ckpt")
	if err != nil {
		return "", err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return "", bankerr.New(bankerr.KindStorage, "redisstore.checkpoint.save", err)
	}

	createdAt := time.Now()
	if prev, err := s.LoadLatest(ctx, sessionID); err == nil && prev != nil && !createdAt.After(prev.CreatedAt) {
		createdAt = prev.CreatedAt.Add(time.Nanosecond)
	}

	doc := checkpointDoc{
		CheckpointID: id.String(),
		SessionID:    sessionID,
		NodeID:       nodeID,
		State:        stateJSON,
		Metadata:     meta,
		CreatedAt:    createdAt,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", bankerr.New(bankerr.KindStorage, "redisstore.checkpoint.save", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.checkpointLatestKey(sessionID), payload, 0)
	pipe.RPush(ctx, s.checkpointHistoryKey(sessionID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", bankerr.New(bankerr.KindStorage, "redisstore.checkpoint.save", err)
	}
	return doc.CheckpointID, nil
}

func (s *Store) LoadLatest(ctx context.Context, sessionID string) (*checkpoint.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.checkpointLatestKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, bankerr.New(bankerr.KindStorage, "redisstore.checkpoint.latest", err)
	}
	return decodeCheckpoint(data)
}

func (s *Store) List(ctx context.Context, sessionID string) ([]*checkpoint.Checkpoint, error) {
	items, err := s.client.LRange(ctx, s.checkpointHistoryKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, bankerr.New(bankerr.KindStorage, "redisstore.checkpoint.list", err)
	}
	out := make([]*checkpoint.Checkpoint, 0, len(items))
	for _, item := range items {
		cp, err := decodeCheckpoint([]byte(item))
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.checkpointLatestKey(sessionID), s.checkpointHistoryKey(sessionID)).Err(); err != nil {
		return bankerr.New(bankerr.KindStorage, "redisstore.checkpoint.clear", err)
	}
	return nil
}

func decodeCheckpoint(data []byte) (*checkpoint.Checkpoint, error) {
	var doc checkpointDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("redisstore: decode checkpoint: %w", err)
	}
	state, err := wfstate.Decode(doc.State)
	if err != nil {
		return nil, fmt.Errorf("redisstore: decode state: %w", err)
	}
	return &checkpoint.Checkpoint{
		CheckpointID: doc.CheckpointID,
		SessionID:    doc.SessionID,
		NodeID:       doc.NodeID,
		State:        state,
		Metadata:     doc.Metadata,
		CreatedAt:    doc.CreatedAt,
	}, nil
}

var _ checkpoint.Store = (*Store)(nil)
