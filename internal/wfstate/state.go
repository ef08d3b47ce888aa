// Package wfstate defines the mutable state that flows through the banking
// graph. It is modeled as a struct with explicit fields rather than an open
// map: the field list here is the full surface nodes are allowed to read
// and write.
package wfstate

import (
	"encoding/json"
	"time"
)

// HILDecision records the outcome of a human-in-the-loop gate.
type HILDecision struct {
	Approved   bool      `json:"approved"`
	ApproverID string    `json:"approver_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Auto       bool      `json:"auto,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// Response is the terminal result a node produces for the caller.
type Response struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// State is the banking workflow's mutable per-turn state. It is checkpointed
// before and after every node.
type State struct {
	Message string `json:"message"`

	Intent     string            `json:"intent,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Entities   map[string]string `json:"entities,omitempty"`

	UserID      string `json:"user_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	FromAccount string `json:"from_account,omitempty"`

	Amount      float64        `json:"amount,omitempty"`
	Recipient   string         `json:"recipient,omitempty"`
	RequestData map[string]any `json:"request_data,omitempty"`

	ContextAmount      float64 `json:"context_amount,omitempty"`
	ContextRecipient   string  `json:"context_recipient,omitempty"`
	AwaitingCompletion bool    `json:"awaiting_completion,omitempty"`

	// UsedConversationalContext records whether validate_input filled a
	// missing transfer slot from Context* rather than from the current
	// message, which forces approval regardless of amount.
	UsedConversationalContext bool `json:"used_conversational_context,omitempty"`

	// LoanAmount is the amount entity extracted for a loan_inquiry turn; it
	// drives the loan HIL gate.
	LoanAmount float64 `json:"loan_amount,omitempty"`

	NeedsApproval  bool         `json:"needs_approval,omitempty"`
	ApprovalReason string       `json:"approval_reason,omitempty"`
	HILDecision    *HILDecision `json:"hil_decision,omitempty"`

	Response *Response `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`

	ExecutionHistory []string `json:"execution_history,omitempty"`

	// Halt is the internal sentinel that stops further node propagation for
	// this turn. It is never set by a selector (see View), only by nodes.
	Halt bool `json:"_halt,omitempty"`
}

// Clone returns a deep-enough copy of the state for safe checkpointing and
// for handing to a View without aliasing mutable fields.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	if s.Entities != nil {
		out.Entities = make(map[string]string, len(s.Entities))
		for k, v := range s.Entities {
			out.Entities[k] = v
		}
	}
	if s.RequestData != nil {
		out.RequestData = make(map[string]any, len(s.RequestData))
		for k, v := range s.RequestData {
			out.RequestData[k] = v
		}
	}
	if s.ExecutionHistory != nil {
		out.ExecutionHistory = append([]string(nil), s.ExecutionHistory...)
	}
	if s.HILDecision != nil {
		d := *s.HILDecision
		out.HILDecision = &d
	}
	if s.Response != nil {
		r := *s.Response
		out.Response = &r
	}
	return &out
}

// View is a read-only accessor over a State, handed to conditional-edge
// selectors and HIL predicates. It has no mutating methods: a selector has
// nothing to call to make a write persist, which is the enforcement
// mechanism for the "selectors must be pure" rule.
type View struct {
	s *State
}

// NewView wraps a state for read-only access.
func NewView(s *State) View { return View{s: s} }

func (v View) Message() string                 { return v.s.Message }
func (v View) Intent() string                  { return v.s.Intent }
func (v View) Confidence() float64             { return v.s.Confidence }
func (v View) Amount() float64                 { return v.s.Amount }
func (v View) Recipient() string               { return v.s.Recipient }
func (v View) NeedsApproval() bool             { return v.s.NeedsApproval }
func (v View) ApprovalReason() string          { return v.s.ApprovalReason }
func (v View) AwaitingCompletion() bool        { return v.s.AwaitingCompletion }
func (v View) Error() string                   { return v.s.Error }
func (v View) Halted() bool                    { return v.s.Halt }
func (v View) Entity(key string) string        { return v.s.Entities[key] }
func (v View) HILDecision() *HILDecision       { return v.s.HILDecision }
func (v View) ExecutionHistory() []string      { return v.s.ExecutionHistory }
func (v View) LoanAmount() float64             { return v.s.LoanAmount }
func (v View) UsedConversationalContext() bool { return v.s.UsedConversationalContext }
func (v View) Response() *Response             { return v.s.Response }

// AppendHistory records that nodeID ran this turn. Called by the engine,
// never by a selector.
func (s *State) AppendHistory(nodeID string) {
	s.ExecutionHistory = append(s.ExecutionHistory, nodeID)
}

// Envelope is the legacy on-disk shape some historical checkpoints used,
// where the raw state is nested under workflow_state instead of being the
// top-level checkpoint payload. Decode handles both shapes.
type Envelope struct {
	WorkflowState *State `json:"workflow_state"`
}

// Decode parses a serialized state, accepting both the raw shape and the
// historical session envelope whose workflow_state field carries the raw
// state. A raw State never has a workflow_state key, so probing for it is
// an unambiguous discriminator.
func Decode(data []byte) (*State, error) {
	var probe struct {
		WorkflowState json.RawMessage `json:"workflow_state"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && len(probe.WorkflowState) > 0 {
		var env Envelope
		if err := json.Unmarshal(data, &env); err == nil && env.WorkflowState != nil {
			return env.WorkflowState, nil
		}
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
