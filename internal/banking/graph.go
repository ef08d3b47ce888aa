// Package banking defines the concrete banking graph: intent
// classification, confidence gating, and the routed balance / transfer /
// statement / loan / fallback branches, with human-in-the-loop gates on
// transfers, loan inquiries, and low-confidence turns.
package banking

import (
	"github.com/bankflowhq/workflow-engine/internal/graph"
)

const (
	NodeValidateInput        = "validate_input"
	NodeConfidenceCheck      = "confidence_check"
	NodeConfirmationHIL      = "confirmation_hil"
	NodeBalanceInquiry       = "balance_inquiry"
	NodeMoneyTransferPrepare = "money_transfer_prepare"
	NodeMoneyTransferHIL     = "money_transfer_hil"
	NodeMoneyTransferExecute = "money_transfer_execute"
	NodeAccountStatement     = "account_statement"
	NodeLoanInquiryPrepare   = "loan_inquiry_prepare"
	NodeLoanInquiryHIL       = "loan_inquiry_hil"
	NodeLoanInquiryExecute   = "loan_inquiry_execute"
	NodeFallback             = "fallback"
)

// Build assembles the banking graph: entry -> validate_input ->
// confidence_check -> (by intent) -> {balance_inquiry | money_transfer_* |
// account_statement | loan_inquiry_* | fallback}, with confirmation_hil as
// a detour for low-confidence intents that have no gate of their own.
func Build(cfg Config) (*graph.Graph, error) {
	b := graph.NewBuilder(NodeValidateInput)

	b.AddNode(NodeValidateInput, validateInputNode(cfg), &graph.Edge{Next: NodeConfidenceCheck})

	b.AddNode(NodeConfidenceCheck, confidenceCheckNode(cfg), &graph.Edge{
		Selector: routeAfterConfidence,
		EdgeMap: map[string]string{
			"clarify":           graph.End,
			"confirm":           NodeConfirmationHIL,
			"balance_inquiry":   NodeBalanceInquiry,
			"money_transfer":    NodeMoneyTransferPrepare,
			"account_statement": NodeAccountStatement,
			"loan_inquiry":      NodeLoanInquiryPrepare,
			"fallback":          NodeFallback,
		},
	})

	b.AddNode(NodeConfirmationHIL, confirmationHILNode(cfg), &graph.Edge{
		Selector: routeAfterConfirm,
		EdgeMap: map[string]string{
			"balance_inquiry":   NodeBalanceInquiry,
			"account_statement": NodeAccountStatement,
			"fallback":          NodeFallback,
		},
	})

	b.AddNode(NodeBalanceInquiry, balanceInquiryNode(cfg), nil)

	b.AddNode(NodeMoneyTransferPrepare, moneyTransferPrepareNode(cfg), &graph.Edge{
		Selector: routeAfterPrepare,
		EdgeMap: map[string]string{
			"hil": NodeMoneyTransferHIL,
			"end": graph.End,
		},
	})
	b.AddNode(NodeMoneyTransferHIL, moneyTransferHILNode(cfg), &graph.Edge{Next: NodeMoneyTransferExecute})
	b.AddNode(NodeMoneyTransferExecute, moneyTransferExecuteNode(cfg), nil)

	b.AddNode(NodeAccountStatement, accountStatementNode(cfg), nil)

	b.AddNode(NodeLoanInquiryPrepare, loanInquiryPrepareNode(cfg), &graph.Edge{Next: NodeLoanInquiryHIL})
	b.AddNode(NodeLoanInquiryHIL, loanInquiryHILNode(cfg), &graph.Edge{Next: NodeLoanInquiryExecute})
	b.AddNode(NodeLoanInquiryExecute, loanInquiryExecuteNode(cfg), nil)

	b.AddNode(NodeFallback, fallbackNode(cfg), nil)

	return b.Build()
}
