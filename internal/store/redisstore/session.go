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
	"github.com/bankflowhq/workflow-engine/internal/session"
)

func (s *Store) CreateSession(ctx context.Context, userID, workflowType string) (*session.Session, error) {
	id, err := typeid.WithPrefix("sess")
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sess := &session.Session{
		SessionID:    id.String(),
		UserID:       userID,
		WorkflowType: workflowType,
		Status:       session.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.writeSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, bankerr.New(bankerr.KindNotFound, "redisstore.session.get",
				fmt.Errorf("session %s not found", sessionID))
		}
		return nil, bankerr.New(bankerr.KindStorage, "redisstore.session.get", err)
	}
	var sess session.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("redisstore: decode session: %w", err)
	}
	return &sess, nil
}

func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	return s.writeSession(ctx, sess)
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	indexKey := s.allSessionsKey()
	if userID != "" {
		indexKey = s.userSessionsKey(userID)
	}
	ids, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, bankerr.New(bankerr.KindStorage, "redisstore.session.list", err)
	}
	out := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			// A session evicted between index read and fetch is skipped, not
			// an error: the index is advisory, the session key is truth.
			if kind, ok := bankerr.KindOf(err); ok && kind == bankerr.KindNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Store) writeSession(ctx context.Context, sess *session.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return bankerr.New(bankerr.KindStorage, "redisstore.session.save", err)
	}
	score := float64(sess.CreatedAt.UnixNano())
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.sessionKey(sess.SessionID), payload, 0)
	pipe.ZAdd(ctx, s.allSessionsKey(), redis.Z{Score: score, Member: sess.SessionID})
	if sess.UserID != "" {
		pipe.ZAdd(ctx, s.userSessionsKey(sess.UserID), redis.Z{Score: score, Member: sess.SessionID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return bankerr.New(bankerr.KindStorage, "redisstore.session.save", err)
	}
	return nil
}

// Sessions adapts the Store to session.Store; the adapter exists because
// session.Store and approval.Store both declare Create/Get.
func (s *Store) Sessions() session.Store { return sessionAdapter{s} }

type sessionAdapter struct{ s *Store }

func (a sessionAdapter) Create(ctx context.Context, userID, workflowType string) (*session.Session, error) {
	return a.s.CreateSession(ctx, userID, workflowType)
}

func (a sessionAdapter) Get(ctx context.Context, sessionID string) (*session.Session, error) {
	return a.s.GetSession(ctx, sessionID)
}

func (a sessionAdapter) Save(ctx context.Context, sess *session.Session) error {
	return a.s.SaveSession(ctx, sess)
}

func (a sessionAdapter) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	return a.s.ListSessionsByUser(ctx, userID)
}

var _ session.Store = sessionAdapter{}
