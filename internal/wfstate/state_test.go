package wfstate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("raw state", func(t *testing.T) {
		s, err := Decode([]byte(`{"message":"hi","amount":6000,"recipient":"kiran"}`))
		require.NoError(t, err)
		require.Equal(t, "hi", s.Message)
		require.Equal(t, 6000.0, s.Amount)
		require.Equal(t, "kiran", s.Recipient)
	})

	t.Run("legacy envelope", func(t *testing.T) {
		s, err := Decode([]byte(`{"workflow_state":{"message":"hi","amount":6000}}`))
		require.NoError(t, err)
		require.Equal(t, "hi", s.Message)
		require.Equal(t, 6000.0, s.Amount)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := Decode([]byte(`{`))
		require.Error(t, err)
	})

	t.Run("round trip preserves fractions", func(t *testing.T) {
		in := &State{Message: "x", Amount: 1234.56, Confidence: 0.80}
		data, err := json.Marshal(in)
		require.NoError(t, err)
		out, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, in.Amount, out.Amount)
		require.Equal(t, in.Confidence, out.Confidence)
	})
}

func TestClone(t *testing.T) {
	orig := &State{
		Message:          "transfer",
		Entities:         map[string]string{"amount": "100"},
		RequestData:      map[string]any{"fromAccount": "123"},
		ExecutionHistory: []string{"validate_input"},
		HILDecision:      &HILDecision{Approved: true},
		Response:         &Response{Status: "success"},
	}
	cp := orig.Clone()

	cp.Entities["amount"] = "999"
	cp.RequestData["fromAccount"] = "456"
	cp.ExecutionHistory[0] = "other"
	cp.HILDecision.Approved = false
	cp.Response.Status = "failed"

	require.Equal(t, "100", orig.Entities["amount"])
	require.Equal(t, "123", orig.RequestData["fromAccount"])
	require.Equal(t, "validate_input", orig.ExecutionHistory[0])
	require.True(t, orig.HILDecision.Approved)
	require.Equal(t, "success", orig.Response.Status)
}

func TestCloneNil(t *testing.T) {
	var s *State
	require.Nil(t, s.Clone())
}
