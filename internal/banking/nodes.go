package banking

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bankflowhq/workflow-engine/internal/bankerr"
	"github.com/bankflowhq/workflow-engine/internal/classifier"
	"github.com/bankflowhq/workflow-engine/internal/downstream"
	"github.com/bankflowhq/workflow-engine/internal/graph"
	"github.com/bankflowhq/workflow-engine/internal/hil"
	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

// validateInputNode classifies intent and extracts entities from the raw
// message. It also resolves a conversational continuation: when the prior
// turn left context_amount/context_recipient set (the facade carries those
// forward whenever the previous turn ended awaiting completion), this turn
// is treated as completing that transfer rather than reclassified from
// scratch.
func validateInputNode(cfg Config) graph.NodeFunc {
	return func(ctx context.Context, s *wfstate.State) (*wfstate.State, error) {
		if s.FromAccount == "" {
			s.FromAccount = DefaultAccount
		}

		message := strings.TrimSpace(s.Message)
		if message == "" {
			s.Error = "empty message"
			s.Intent = string(classifier.IntentFallback)
			s.Confidence = 0
			return s, nil
		}

		continuingTransfer := s.ContextRecipient != "" || s.ContextAmount != 0

		res, err := cfg.Classifier.Classify(ctx, s.Message)
		if err != nil {
			// The configured classifier is already wrapped with
			// classifier.WithFallback; an error surfacing here means the
			// fallback itself failed too. Degrade to the fallback intent
			// rather than propagate; classifier errors are never fatal.
			s.Intent = string(classifier.IntentFallback)
			s.Confidence = classifier.FallbackConfidence
		} else {
			s.Intent = string(res.Intent)
			s.Confidence = res.Confidence
			s.Entities = res.Entities
			if v, ok := res.Entities["amount"]; ok {
				if amt, perr := strconv.ParseFloat(v, 64); perr == nil {
					s.Amount = amt
				}
			}
			if v, ok := res.Entities["recipient"]; ok {
				s.Recipient = v
			}
			if v, ok := res.Entities["loan_amount"]; ok {
				if amt, perr := strconv.ParseFloat(v, 64); perr == nil {
					s.LoanAmount = amt
				}
			}
		}

		if continuingTransfer {
			s.Intent = string(classifier.IntentMoneyTransfer)
			if s.Amount == 0 {
				if amt, perr := strconv.ParseFloat(message, 64); perr == nil {
					s.Amount = amt
				}
			}
			if s.Recipient == "" {
				s.Recipient = s.ContextRecipient
			}
			if s.Amount != 0 {
				s.UsedConversationalContext = true
			}
		}

		return s, nil
	}
}

// confidenceCheckNode: low confidence forces approval; an incomplete
// transfer is parked awaiting a clarifying reply instead of being routed to
// the HIL gate; a transfer completed via carried-forward context always
// requires approval regardless of amount.
func confidenceCheckNode(cfg Config) graph.NodeFunc {
	return func(ctx context.Context, s *wfstate.State) (*wfstate.State, error) {
		if s.Error != "" {
			return s, nil
		}

		if s.Confidence < cfg.ConfidenceThreshold {
			s.NeedsApproval = true
			s.ApprovalReason = "low confidence"
		}

		if s.Intent == string(classifier.IntentMoneyTransfer) {
			if s.Amount == 0 {
				s.AwaitingCompletion = true
				s.ContextRecipient = s.Recipient
				s.ContextAmount = 0
				s.Response = &wfstate.Response{
					Status:  "awaiting_info",
					Message: clarificationQuestion(s.Recipient),
				}
				return s, nil
			}
			s.AwaitingCompletion = false
			if s.UsedConversationalContext {
				s.NeedsApproval = true
				s.ApprovalReason = "conversational completion"
			}
		}

		return s, nil
	}
}

func clarificationQuestion(recipient string) string {
	if recipient == "" {
		return "How much would you like to send, and to whom?"
	}
	return fmt.Sprintf("How much would you like to send to %s?", recipient)
}

// routeAfterConfidence is the selector driving confidence_check's outgoing
// edge: an error routes straight to fallback, a parked clarification ends
// the turn, a low-confidence non-gated intent detours through the generic
// confirmation gate, and everything else follows route_intent.
func routeAfterConfidence(v wfstate.View) string {
	if v.Error() != "" {
		return string(classifier.IntentFallback)
	}
	if v.AwaitingCompletion() {
		return "clarify"
	}
	intent := classifier.Intent(v.Intent())
	if v.NeedsApproval() && intent != classifier.IntentMoneyTransfer && intent != classifier.IntentLoanInquiry {
		return "confirm"
	}
	return routeIntentKey(intent)
}

func routeIntentKey(intent classifier.Intent) string {
	switch intent {
	case classifier.IntentBalanceInquiry:
		return string(classifier.IntentBalanceInquiry)
	case classifier.IntentMoneyTransfer:
		return string(classifier.IntentMoneyTransfer)
	case classifier.IntentAccountStatement:
		return string(classifier.IntentAccountStatement)
	case classifier.IntentLoanInquiry:
		return string(classifier.IntentLoanInquiry)
	default:
		return string(classifier.IntentFallback)
	}
}

// routeAfterConfirm resumes the parked low-confidence turn once the
// confirmation gate clears, continuing to the intent's normal terminal
// node. money_transfer and loan_inquiry never reach this edge — they carry
// their own domain-specific gates.
func routeAfterConfirm(v wfstate.View) string {
	return routeIntentKey(classifier.Intent(v.Intent()))
}

func balanceInquiryNode(cfg Config) graph.NodeFunc {
	return func(ctx context.Context, s *wfstate.State) (*wfstate.State, error) {
		account := accountOrDefault(s.FromAccount)
		resp, err := cfg.Downstream.Balance(ctx, account)
		if err != nil {
			s.Error = downstreamErrorMessage(err)
			return s, nil
		}
		s.Response = &wfstate.Response{
			Status: "success",
			Data:   map[string]any{"intent": string(classifier.IntentBalanceInquiry), "accountId": resp.AccountID, "balance": resp.Balance},
		}
		return s, nil
	}
}

// moneyTransferPrepareNode assembles the downstream request payload and
// decides whether this transfer can bypass the HIL gate outright. That
// decision belongs here, in a node, never inside a routing selector.
func moneyTransferPrepareNode(cfg Config) graph.NodeFunc {
	return func(ctx context.Context, s *wfstate.State) (*wfstate.State, error) {
		if s.Amount <= 0 {
			s.Error = "invalid transfer amount"
			return s, nil
		}
		if s.Recipient == "" {
			s.Recipient = "kiran"
		}
		account := accountOrDefault(s.FromAccount)
		s.FromAccount = account
		s.RequestData = map[string]any{
			"fromAccount": account,
			"toAccount":   s.Recipient,
			"amount":      s.Amount,
		}

		if !cfg.TransferRule(wfstate.NewView(s)) {
			s.HILDecision = &wfstate.HILDecision{Approved: true, Auto: true}
		}
		return s, nil
	}
}

// routeAfterPrepare sends a failed preparation straight to END rather than
// into the HIL gate.
func routeAfterPrepare(v wfstate.View) string {
	if v.Error() != "" {
		return "end"
	}
	return "hil"
}

// moneyTransferHILNode passes straight through on any already-approved
// decision: auto-approval from money_transfer_prepare, or a human decision
// merged into the checkpointed state by a resume re-entering this node.
func moneyTransferHILNode(cfg Config) graph.NodeFunc {
	return func(ctx context.Context, s *wfstate.State) (*wfstate.State, error) {
		if s.HILDecision != nil && s.HILDecision.Approved {
			return s, nil
		}
		sess := SessionFromContext(ctx)
		result, err := cfg.TransferGate.Execute(ctx, s, sess)
		if err != nil {
			return nil, err
		}
		if result.Status == hil.StatusPendingApproval {
			s.Response = &wfstate.Response{
				Status: "PENDING_APPROVAL",
				Data: map[string]any{
					"approval_id": result.ApprovalID,
					"amount":      result.Amount,
					"recipient":   result.Recipient,
				},
				Message: "Transfer requires approval",
			}
		}
		return s, nil
	}
}

func moneyTransferExecuteNode(cfg Config) graph.NodeFunc {
	return func(ctx context.Context, s *wfstate.State) (*wfstate.State, error) {
		if s.HILDecision == nil || !s.HILDecision.Approved {
			s.Error = "transfer not approved"
			return s, nil
		}
		if len(s.RequestData) == 0 && s.Amount > 0 {
			account := accountOrDefault(s.FromAccount)
			s.FromAccount = account
			s.RequestData = map[string]any{
				"fromAccount": account,
				"toAccount":   s.Recipient,
				"amount":      s.Amount,
			}
		}

		resp, err := cfg.Downstream.Transfer(ctx, downstream.TransferRequest{
			FromAccount: stringField(s.RequestData, "fromAccount"),
			ToAccount:   stringField(s.RequestData, "toAccount"),
			Amount:      s.Amount,
		})
		if err != nil {
			s.Error = downstreamErrorMessage(err)
			return s, nil
		}

		approvedBy := "auto"
		if s.HILDecision.ApproverID != "" {
			approvedBy = s.HILDecision.ApproverID
		}
		s.Response = &wfstate.Response{
			Status: "success",
			Data: map[string]any{
				"intent":      string(classifier.IntentMoneyTransfer),
				"success":     resp.Success,
				"message":     resp.Message,
				"approved_by": approvedBy,
			},
		}
		return s, nil
	}
}

func accountStatementNode(cfg Config) graph.NodeFunc {
	return func(ctx context.Context, s *wfstate.State) (*wfstate.State, error) {
		account := accountOrDefault(s.FromAccount)
		statement, err := cfg.Downstream.Statement(ctx, account)
		if err != nil {
			s.Error = downstreamErrorMessage(err)
			return s, nil
		}
		s.Response = &wfstate.Response{
			Status: "success",
			Data:   map[string]any{"intent": string(classifier.IntentAccountStatement), "statement": statement},
		}
		return s, nil
	}
}

// loanInquiryPrepareNode mirrors money_transfer_prepare's shape for the
// loan HIL gate: it only decides the auto-approve bypass, the gate itself
// decides the pause.
func loanInquiryPrepareNode(cfg Config) graph.NodeFunc {
	return func(ctx context.Context, s *wfstate.State) (*wfstate.State, error) {
		if s.FromAccount == "" {
			s.FromAccount = DefaultAccount
		}
		// The loan rule reads the gated amount the same way the gate does.
		amount := s.Amount
		s.Amount = s.LoanAmount
		requires := cfg.LoanRule(wfstate.NewView(s))
		s.Amount = amount
		if !requires {
			s.HILDecision = &wfstate.HILDecision{Approved: true, Auto: true}
		}
		return s, nil
	}
}

func loanInquiryHILNode(cfg Config) graph.NodeFunc {
	return func(ctx context.Context, s *wfstate.State) (*wfstate.State, error) {
		if s.HILDecision != nil && s.HILDecision.Approved {
			return s, nil
		}
		sess := SessionFromContext(ctx)
		// The loan gate keys its approval/checkpoint records on amount the
		// same way the transfer gate does; reuse the loan amount as the
		// gated amount so the record shape stays uniform.
		amount := s.Amount
		s.Amount = s.LoanAmount
		result, err := cfg.LoanGate.Execute(ctx, s, sess)
		s.Amount = amount
		if err != nil {
			return nil, err
		}
		if result.Status == hil.StatusPendingApproval {
			s.Response = &wfstate.Response{
				Status: "PENDING_APPROVAL",
				Data: map[string]any{
					"approval_id": result.ApprovalID,
					"loan_amount": s.LoanAmount,
				},
				Message: "Loan inquiry requires approval",
			}
		}
		return s, nil
	}
}

func loanInquiryExecuteNode(cfg Config) graph.NodeFunc {
	return func(ctx context.Context, s *wfstate.State) (*wfstate.State, error) {
		if s.HILDecision == nil || !s.HILDecision.Approved {
			s.Error = "loan inquiry not approved"
			return s, nil
		}
		account := accountOrDefault(s.FromAccount)
		loanInfo, err := cfg.Downstream.Loan(ctx, account)
		if err != nil {
			s.Error = downstreamErrorMessage(err)
			return s, nil
		}
		s.Response = &wfstate.Response{
			Status: "success",
			Data:   map[string]any{"intent": string(classifier.IntentLoanInquiry), "loan_info": loanInfo},
		}
		return s, nil
	}
}

func fallbackNode(cfg Config) graph.NodeFunc {
	return func(ctx context.Context, s *wfstate.State) (*wfstate.State, error) {
		s.Response = &wfstate.Response{
			Status:  "fallback",
			Message: "I didn't understand that. Try: 'What's my balance?' or 'Transfer 1000 to Kiran'.",
		}
		return s, nil
	}
}

// confirmationHILNode is the generic low-confidence gate for intents that
// have no domain-specific HIL gate of their own (balance_inquiry,
// account_statement, fallback). It is only ever entered with
// NeedsApproval already true, so its predicate always fires.
func confirmationHILNode(cfg Config) graph.NodeFunc {
	return func(ctx context.Context, s *wfstate.State) (*wfstate.State, error) {
		if s.HILDecision != nil && s.HILDecision.Approved {
			return s, nil
		}
		sess := SessionFromContext(ctx)
		result, err := cfg.ConfirmGate.Execute(ctx, s, sess)
		if err != nil {
			return nil, err
		}
		if result.Status == hil.StatusPendingApproval {
			s.Response = &wfstate.Response{
				Status:  "PENDING_APPROVAL",
				Data:    map[string]any{"approval_id": result.ApprovalID, "reason": s.ApprovalReason},
				Message: "This request needs confirmation before continuing",
			}
		}
		return s, nil
	}
}

func accountOrDefault(account string) string {
	if account == "" {
		return DefaultAccount
	}
	return account
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func downstreamErrorMessage(err error) string {
	if kind, ok := bankerr.KindOf(err); ok {
		return fmt.Sprintf("%s: %s", kind, err)
	}
	return err.Error()
}
