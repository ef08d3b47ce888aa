package banking

import (
	"github.com/bankflowhq/workflow-engine/internal/classifier"
	"github.com/bankflowhq/workflow-engine/internal/downstream"
	"github.com/bankflowhq/workflow-engine/internal/hil"
)

// DefaultAccount is the account id every node falls back to when the turn
// carries none. It matches the downstream service's seeded account.
const DefaultAccount = "123"

// Config wires the banking graph's concrete nodes to the rest of the
// engine: the classifier, the downstream client, and the three HIL gates
// (transfer, loan, and the generic low-confidence confirmation gate for
// intents that have no domain-specific gate of their own).
type Config struct {
	Classifier   classifier.Classifier
	Downstream   *downstream.Client
	TransferGate *hil.Gate
	LoanGate     *hil.Gate
	ConfirmGate  *hil.Gate

	ConfidenceThreshold float64

	// TransferRule/LoanRule are the same predicates baked into
	// TransferGate/LoanGate. The prepare nodes consult them for the
	// auto-approve bypass, so a configured rule and its gate can never
	// disagree; routing selectors are pure and must not make that call.
	TransferRule hil.Predicate
	LoanRule     hil.Predicate
}
