package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bankflowhq/workflow-engine/internal/approval"
	"github.com/bankflowhq/workflow-engine/internal/banking"
	"github.com/bankflowhq/workflow-engine/internal/checkpoint"
	"github.com/bankflowhq/workflow-engine/internal/classifier/rules"
	"github.com/bankflowhq/workflow-engine/internal/downstream"
	"github.com/bankflowhq/workflow-engine/internal/facade"
	"github.com/bankflowhq/workflow-engine/internal/graph"
	"github.com/bankflowhq/workflow-engine/internal/hil"
	"github.com/bankflowhq/workflow-engine/internal/server"
	"github.com/bankflowhq/workflow-engine/internal/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()

	transfers := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/balance", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(downstream.BalanceResponse{AccountID: r.URL.Query().Get("accountId"), Balance: 50000})
	})
	mux.HandleFunc("/api/transfer", func(w http.ResponseWriter, r *http.Request) {
		transfers++
		json.NewEncoder(w).Encode(downstream.TransferResponse{Success: true, Message: "Transfer completed"})
	})
	mux.HandleFunc("/api/statement", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Statement"))
	})
	mux.HandleFunc("/api/loan", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Loan offers"))
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)

	checkpoints := checkpoint.NewMemoryStore()
	sessions := session.NewMemoryStore()
	approvals := approval.NewMemoryStore()
	ds := downstream.New(backend.URL, time.Second)

	transferRule := hil.Or(hil.AmountAtLeast(5000), hil.NeedsApproval())
	loanRule := hil.Or(hil.AmountAtLeast(10000), hil.NeedsApproval())
	transferGate := hil.New(hil.Config{
		NodeID:             banking.NodeMoneyTransferHIL,
		ThresholdPredicate: transferRule,
	}, approvals, checkpoints, sessions)
	loanGate := hil.New(hil.Config{
		NodeID:             banking.NodeLoanInquiryHIL,
		ThresholdPredicate: loanRule,
	}, approvals, checkpoints, sessions)
	confirmGate := hil.New(hil.Config{
		NodeID:             banking.NodeConfirmationHIL,
		ThresholdPredicate: hil.NeedsApproval(),
	}, approvals, checkpoints, sessions)

	g, err := banking.Build(banking.Config{
		Classifier:          rules.New(),
		Downstream:          ds,
		TransferGate:        transferGate,
		LoanGate:            loanGate,
		ConfirmGate:         confirmGate,
		ConfidenceThreshold: 0.80,
		TransferRule:        transferRule,
		LoanRule:            loanRule,
	})
	require.NoError(t, err)

	engine := graph.NewEngine(g, checkpoints, nil)
	f := facade.New(engine, sessions, checkpoints, approvals, map[string]*hil.Gate{
		banking.NodeMoneyTransferHIL: transferGate,
		banking.NodeLoanInquiryHIL:   loanGate,
		banking.NodeConfirmationHIL:  confirmGate,
	}, nil)

	srv := httptest.NewServer(server.New(f, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, &transfers
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := getJSON(t, srv.URL+"/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "healthy", body["status"])
}

func TestChatEmptyMessageIs400(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := postJSON(t, srv.URL+"/chat", map[string]any{"message": "", "user_id": "u1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body["error"], "message")
}

func TestChatTerminalEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := postJSON(t, srv.URL+"/chat", map[string]any{"message": "What is my balance?", "user_id": "u1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "completed", body["status"])
	require.NotEmpty(t, body["session_id"])
	require.NotEmpty(t, body["execution_history"])
	reply := body["reply"].(map[string]any)
	require.Equal(t, "success", reply["status"])
}

func TestApprovalFlowOverHTTP(t *testing.T) {
	srv, transfers := newTestServer(t)

	resp, body := postJSON(t, srv.URL+"/chat", map[string]any{"message": "Transfer 6000 to kiran", "user_id": "u1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "PENDING_APPROVAL", body["status"])
	sessionID := body["session_id"].(string)
	require.Zero(t, *transfers)

	resp, body = getJSON(t, srv.URL+"/approvals/pending")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["pending"], 1)

	resp, body = getJSON(t, srv.URL+"/workflow/"+sessionID+"/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "pending_approval", body["status"])

	resp, body = postJSON(t, srv.URL+"/workflow/"+sessionID+"/approve", map[string]any{
		"approver_id": "m1", "approved": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "approved", body["status"])
	result := body["result"].(map[string]any)
	require.Equal(t, "success", result["status"])
	require.Equal(t, 1, *transfers)

	// Replaying the approval conflicts.
	resp, _ = postJSON(t, srv.URL+"/workflow/"+sessionID+"/approve", map[string]any{
		"approver_id": "m1", "approved": true,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = getJSON(t, srv.URL+"/workflow/"+sessionID+"/checkpoints")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, body["checkpoints"])
}

func TestRejectionOverHTTP(t *testing.T) {
	srv, transfers := newTestServer(t)

	_, body := postJSON(t, srv.URL+"/chat", map[string]any{"message": "Transfer 6000 to kiran", "user_id": "u1"})
	sessionID := body["session_id"].(string)

	resp, body := postJSON(t, srv.URL+"/workflow/"+sessionID+"/approve", map[string]any{
		"approver_id": "m1", "approved": false, "reason": "risk",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "rejected", body["status"])
	require.Equal(t, "risk", body["reason"])
	require.Equal(t, "m1", body["rejected_by"])
	require.Zero(t, *transfers)
}

func TestUnknownSessionIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, _ := getJSON(t, srv.URL+"/workflow/sess_missing/status")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionsListing(t *testing.T) {
	srv, _ := newTestServer(t)

	postJSON(t, srv.URL+"/chat", map[string]any{"message": "What is my balance?", "user_id": "u1"})
	postJSON(t, srv.URL+"/chat", map[string]any{"message": "show my statement", "user_id": "u2"})

	resp, body := getJSON(t, srv.URL+"/sessions?user_id=u1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["sessions"], 1)
}

func TestApproveRequiresBody(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, _ := postJSON(t, srv.URL+"/workflow/sess_x/approve", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
