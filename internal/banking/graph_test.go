package banking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bankflowhq/workflow-engine/internal/approval"
	"github.com/bankflowhq/workflow-engine/internal/checkpoint"
	"github.com/bankflowhq/workflow-engine/internal/classifier"
	"github.com/bankflowhq/workflow-engine/internal/classifier/rules"
	"github.com/bankflowhq/workflow-engine/internal/graph"
	"github.com/bankflowhq/workflow-engine/internal/hil"
	"github.com/bankflowhq/workflow-engine/internal/session"
	"github.com/bankflowhq/workflow-engine/internal/wfstate"
)

type erroringClassifier struct{}

func (erroringClassifier) Classify(ctx context.Context, message string) (classifier.Result, error) {
	return classifier.Result{}, errors.New("model unavailable")
}

func testConfig(t *testing.T, cls classifier.Classifier) (Config, *checkpoint.MemoryStore) {
	t.Helper()
	approvals := approval.NewMemoryStore()
	checkpoints := checkpoint.NewMemoryStore()
	sessions := session.NewMemoryStore()

	mk := func(nodeID string, p hil.Predicate) *hil.Gate {
		return hil.New(hil.Config{NodeID: nodeID, ThresholdPredicate: p}, approvals, checkpoints, sessions)
	}
	transferRule := hil.Or(hil.AmountAtLeast(5000), hil.NeedsApproval())
	loanRule := hil.Or(hil.AmountAtLeast(10000), hil.NeedsApproval())
	return Config{
		Classifier:          cls,
		Downstream:          nil, // terminal nodes are not reached in these tests
		TransferGate:        mk(NodeMoneyTransferHIL, transferRule),
		LoanGate:            mk(NodeLoanInquiryHIL, loanRule),
		ConfirmGate:         mk(NodeConfirmationHIL, hil.NeedsApproval()),
		ConfidenceThreshold: 0.80,
		TransferRule:        transferRule,
		LoanRule:            loanRule,
	}, checkpoints
}

func TestBuildWiresEveryNode(t *testing.T) {
	cfg, _ := testConfig(t, rules.New())
	g, err := Build(cfg)
	require.NoError(t, err)
	require.Equal(t, NodeValidateInput, g.Entry())

	for _, id := range []string{
		NodeValidateInput, NodeConfidenceCheck, NodeConfirmationHIL,
		NodeBalanceInquiry, NodeMoneyTransferPrepare, NodeMoneyTransferHIL,
		NodeMoneyTransferExecute, NodeAccountStatement, NodeLoanInquiryPrepare,
		NodeLoanInquiryHIL, NodeLoanInquiryExecute, NodeFallback,
	} {
		_, ok := g.Node(id)
		require.True(t, ok, "node %s missing", id)
	}
}

func TestEmptyMessageRecordsErrorWithoutDownstreamCall(t *testing.T) {
	cfg, checkpoints := testConfig(t, rules.New())
	g, err := Build(cfg)
	require.NoError(t, err)
	e := graph.NewEngine(g, checkpoints, nil)

	out, err := e.Run(context.Background(), "sess_1", &wfstate.State{Message: "   "})
	require.NoError(t, err)
	require.Equal(t, "empty message", out.Error)
	require.Equal(t, string(classifier.IntentFallback), out.Intent)
	// Routed straight to the fallback terminal; no balance/transfer node ran.
	require.Equal(t, []string{NodeValidateInput, NodeConfidenceCheck, NodeFallback}, out.ExecutionHistory)
	require.Equal(t, "fallback", out.Response.Status)
}

func TestClassifierErrorDegradesToFallback(t *testing.T) {
	cfg, _ := testConfig(t, erroringClassifier{})
	g, err := Build(cfg)
	require.NoError(t, err)

	// Without a session in context the confirmation gate cannot pause, so
	// drive only the first node: the classification must degrade, not fail.
	n, ok := g.Node(NodeValidateInput)
	require.True(t, ok)
	out, err := n.Fn(context.Background(), &wfstate.State{Message: "do something odd"})
	require.NoError(t, err)
	require.Equal(t, string(classifier.IntentFallback), out.Intent)
	require.Equal(t, classifier.FallbackConfidence, out.Confidence)
}

func TestMoneyTransferPrepareBuildsRequestData(t *testing.T) {
	cfg, _ := testConfig(t, rules.New())
	node := moneyTransferPrepareNode(cfg)

	s := &wfstate.State{Amount: 1000, Recipient: "kiran"}
	out, err := node(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, DefaultAccount, out.RequestData["fromAccount"])
	require.Equal(t, "kiran", out.RequestData["toAccount"])
	require.Equal(t, 1000.0, out.RequestData["amount"])
	require.NotNil(t, out.HILDecision)
	require.True(t, out.HILDecision.Auto)
}

func TestMoneyTransferPrepareSkipsAutoApprovalWhenFlagged(t *testing.T) {
	cfg, _ := testConfig(t, rules.New())
	node := moneyTransferPrepareNode(cfg)

	s := &wfstate.State{Amount: 1000, Recipient: "kiran", NeedsApproval: true}
	out, err := node(context.Background(), s)
	require.NoError(t, err)
	require.Nil(t, out.HILDecision)
}

func TestMoneyTransferPrepareRejectsInvalidAmount(t *testing.T) {
	cfg, _ := testConfig(t, rules.New())
	node := moneyTransferPrepareNode(cfg)

	out, err := node(context.Background(), &wfstate.State{Amount: 0})
	require.NoError(t, err)
	require.Equal(t, "invalid transfer amount", out.Error)
	require.Equal(t, "end", routeAfterPrepare(wfstate.NewView(out)))
}

func TestExecuteRefusesWithoutApproval(t *testing.T) {
	cfg, _ := testConfig(t, rules.New())
	node := moneyTransferExecuteNode(cfg)

	out, err := node(context.Background(), &wfstate.State{Amount: 1000})
	require.NoError(t, err)
	require.Equal(t, "transfer not approved", out.Error)
	require.Nil(t, out.Response)
}

func TestRouteAfterConfidence(t *testing.T) {
	tests := []struct {
		name  string
		state *wfstate.State
		want  string
	}{
		{"error routes to fallback", &wfstate.State{Error: "empty message"}, "fallback"},
		{"awaiting completion parks the turn", &wfstate.State{AwaitingCompletion: true}, "clarify"},
		{"low confidence balance detours to confirm", &wfstate.State{Intent: "balance_inquiry", NeedsApproval: true}, "confirm"},
		{"low confidence transfer keeps its own gate", &wfstate.State{Intent: "money_transfer", NeedsApproval: true}, "money_transfer"},
		{"balance", &wfstate.State{Intent: "balance_inquiry"}, "balance_inquiry"},
		{"statement", &wfstate.State{Intent: "account_statement"}, "account_statement"},
		{"loan", &wfstate.State{Intent: "loan_inquiry"}, "loan_inquiry"},
		{"unknown intent falls back", &wfstate.State{Intent: "pizza_order"}, "fallback"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, routeAfterConfidence(wfstate.NewView(tc.state)))
		})
	}
}

func TestConfiguredRuleDrivesPrepareBypass(t *testing.T) {
	cfg, _ := testConfig(t, rules.New())
	rule, err := graph.NewScriptedPredicate(graph.NewSelectorEngine(), `amount >= 2000 || needs_approval`)
	require.NoError(t, err)
	cfg.TransferRule = rule
	node := moneyTransferPrepareNode(cfg)

	// Below the configured bar: bypasses the gate.
	out, err := node(context.Background(), &wfstate.State{Amount: 1500, Recipient: "kiran"})
	require.NoError(t, err)
	require.NotNil(t, out.HILDecision)
	require.True(t, out.HILDecision.Auto)

	// Above the configured bar, even though under the default 5000: the
	// bypass must follow the rule, not a stale numeric threshold.
	out, err = node(context.Background(), &wfstate.State{Amount: 2500, Recipient: "kiran"})
	require.NoError(t, err)
	require.Nil(t, out.HILDecision)
}
