package graph

import (
	"context"
	"fmt"

	"github.com/bankflowhq/workflow-engine/internal/script"
	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

// stateGlobals converts a state view into the variable map a configured
// expression sees: the state fields a routing or approval rule may read.
func stateGlobals(v wfstate.View) map[string]any {
	return map[string]any{
		"intent":              v.Intent(),
		"confidence":          v.Confidence(),
		"amount":              v.Amount(),
		"loan_amount":         v.LoanAmount(),
		"recipient":           v.Recipient(),
		"needs_approval":      v.NeedsApproval(),
		"approval_reason":     v.ApprovalReason(),
		"awaiting_completion": v.AwaitingCompletion(),
		"error":               v.Error(),
	}
}

// NewSelectorEngine returns the engine selector and rule expressions
// compile against: the safe builtins plus the state fields from
// stateGlobals, registered so the compiler resolves them as globals (their
// real values arrive at evaluation time).
func NewSelectorEngine() *script.Engine {
	return script.NewEngine(stateGlobals(wfstate.NewView(&wfstate.State{})))
}

// NewScriptedSelector compiles an expression once and returns a Selector
// evaluating it against the current state on every call, with the string
// result as the edge key.
func NewScriptedSelector(engine *script.Engine, code string) (Selector, error) {
	expr, err := engine.Compile(context.Background(), code)
	if err != nil {
		return nil, fmt.Errorf("selector expression: %w", err)
	}
	return func(v wfstate.View) string {
		res, err := expr.Eval(context.Background(), stateGlobals(v))
		if err != nil {
			return "fallback"
		}
		return res.Text()
	}, nil
}

// NewScriptedPredicate compiles a boolean expression once and returns a
// state predicate, the shape a HIL gate's threshold rule takes.
func NewScriptedPredicate(engine *script.Engine, code string) (func(wfstate.View) bool, error) {
	expr, err := engine.Compile(context.Background(), code)
	if err != nil {
		return nil, fmt.Errorf("predicate expression: %w", err)
	}
	return func(v wfstate.View) bool {
		res, err := expr.Eval(context.Background(), stateGlobals(v))
		if err != nil {
			return false
		}
		return res.Truthy()
	}, nil
}
