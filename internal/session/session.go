// Package session implements the session store contract and status
// machine: persisted session records, conversation history, and the
// execution_count idempotency counter.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

// Status is one of the seven session lifecycle states.
type Status string

const (
	StatusActive          Status = "active"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusTimeout         Status = "timeout"
)

// transitions enumerates every legal status edge. A transition not present
// here is rejected by Session.Transition.
var transitions = map[Status]map[Status]bool{
	StatusActive: {
		StatusPendingApproval: true,
		StatusCompleted:       true,
		StatusFailed:          true,
	},
	StatusPendingApproval: {
		StatusApproved: true,
		StatusRejected: true,
		StatusTimeout:  true,
	},
	StatusApproved: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// Turn is one entry in the conversation history.
type Turn struct {
	Role      string         `json:"role"` // user | assistant | system
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Session is the per-conversation container.
type Session struct {
	SessionID           string         `json:"session_id"`
	UserID              string         `json:"user_id"`
	WorkflowType        string         `json:"workflow_type"`
	Status              Status         `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	CurrentNode         string         `json:"current_node"`
	ExecutionCount      int            `json:"execution_count"`
	ConversationHistory []Turn         `json:"conversation_history"`
	WorkflowState       *wfstate.State `json:"workflow_state"`
}

// Transition moves the session to next, returning an error if the edge is
// not one of the legal transitions.
func (s *Session) Transition(next Status) error {
	allowed := transitions[s.Status]
	if !allowed[next] {
		return fmt.Errorf("illegal session transition %s -> %s", s.Status, next)
	}
	s.Status = next
	s.UpdatedAt = time.Now()
	return nil
}

// AppendTurn appends a conversation turn and bumps UpdatedAt.
func (s *Session) AppendTurn(role, content string) {
	s.ConversationHistory = append(s.ConversationHistory, Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	s.UpdatedAt = time.Now()
}

// LastUserTurn returns the most recent user-role turn, if any.
func (s *Session) LastUserTurn() (Turn, bool) {
	for i := len(s.ConversationHistory) - 1; i >= 0; i-- {
		if s.ConversationHistory[i].Role == "user" {
			return s.ConversationHistory[i], true
		}
	}
	return Turn{}, false
}

// Summary is the read-only projection returned by list/status endpoints.
type Summary struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	WorkflowType   string    `json:"workflow_type"`
	Status         Status    `json:"status"`
	CurrentNode    string    `json:"current_node"`
	ExecutionCount int       `json:"execution_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s *Session) Summary() Summary {
	return Summary{
		SessionID:      s.SessionID,
		UserID:         s.UserID,
		WorkflowType:   s.WorkflowType,
		Status:         s.Status,
		CurrentNode:    s.CurrentNode,
		ExecutionCount: s.ExecutionCount,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// Store persists Session records and enumerates them by user.
type Store interface {
	Create(ctx context.Context, userID, workflowType string) (*Session, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
}
