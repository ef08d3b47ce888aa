package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.jetify.com/typeid"

	"github.com/bankflowhq/workflow-engine/internal/bankerr"
	"github.com/bankflowhq/workflow-engine/internal/session"
	"github.com/bankflowhq/workflow-engine/internal/wfstate"
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
	rec, err := encodeSession(sess)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, bankerr.New(bankerr.KindStorage, "sqlstore.session.create", err)
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*session.Session, error) {
	var rec sessionRecord
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&rec).Error
	if err != nil {
		if isNotFound(err) {
			return nil, bankerr.New(bankerr.KindNotFound, "sqlstore.session.get",
				fmt.Errorf("session %s not found", sessionID))
		}
		return nil, bankerr.New(bankerr.KindStorage, "sqlstore.session.get", err)
	}
	return decodeSession(rec)
}

func (s *Store) SaveSession(ctx context.Context, sess *session.Session) error {
	rec, err := encodeSession(sess)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return bankerr.New(bankerr.KindStorage, "sqlstore.session.save", err)
	}
	return nil
}

func (s *Store) ListSessionsByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	q := s.db.WithContext(ctx).Order("created_at ASC")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var recs []sessionRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, bankerr.New(bankerr.KindStorage, "sqlstore.session.list", err)
	}
	out := make([]*session.Session, 0, len(recs))
	for _, rec := range recs {
		sess, err := decodeSession(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, nil
}

func encodeSession(sess *session.Session) (*sessionRecord, error) {
	historyJSON, err := json.Marshal(sess.ConversationHistory)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: marshal history: %w", err)
	}
	stateJSON := []byte("null")
	if sess.WorkflowState != nil {
		if stateJSON, err = json.Marshal(sess.WorkflowState); err != nil {
			return nil, fmt.Errorf("sqlstore: marshal workflow state: %w", err)
		}
	}
	return &sessionRecord{
		SessionID:               sess.SessionID,
		UserID:                  sess.UserID,
		WorkflowType:            sess.WorkflowType,
		Status:                  string(sess.Status),
		CreatedAt:               sess.CreatedAt,
		UpdatedAt:               sess.UpdatedAt,
		CurrentNode:             sess.CurrentNode,
		ExecutionCount:          sess.ExecutionCount,
		ConversationHistoryJSON: string(historyJSON),
		WorkflowStateJSON:       string(stateJSON),
	}, nil
}

func decodeSession(rec sessionRecord) (*session.Session, error) {
	sess := &session.Session{
		SessionID:      rec.SessionID,
		UserID:         rec.UserID,
		WorkflowType:   rec.WorkflowType,
		Status:         session.Status(rec.Status),
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		CurrentNode:    rec.CurrentNode,
		ExecutionCount: rec.ExecutionCount,
	}
	if rec.ConversationHistoryJSON != "" {
		if err := json.Unmarshal([]byte(rec.ConversationHistoryJSON), &sess.ConversationHistory); err != nil {
			return nil, fmt.Errorf("sqlstore: decode history: %w", err)
		}
	}
	if rec.WorkflowStateJSON != "" && rec.WorkflowStateJSON != "null" {
		var state wfstate.State
		if err := json.Unmarshal([]byte(rec.WorkflowStateJSON), &state); err != nil {
			return nil, fmt.Errorf("sqlstore: decode workflow state: %w", err)
		}
		sess.WorkflowState = &state
	}
	return sess, nil
}

// Sessions adapts the Store to session.Store, mirroring Approvals.
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
