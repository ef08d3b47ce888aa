package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Default()
	require.Equal(t, 5000.0, c.HIL.Threshold)
	require.Equal(t, 10000.0, c.HIL.LoanThreshold)
	require.False(t, c.HIL.AutoApprove)
	require.Equal(t, 3600, c.HIL.TimeoutSeconds)
	require.Equal(t, 0.80, c.Confidence.Threshold)
	require.Equal(t, 60000, c.Downstream.TimeoutMS)
	require.Equal(t, "embedded", c.Storage.Backend)
	require.Equal(t, "rules", c.Classifier.Backend)
	require.Equal(t, ":8080", c.Server.Addr)
	require.Equal(t, "text", c.Log.Format)
}

func TestYAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hil:
  threshold: 2500
  auto_approve: true
  loan_rule: loan_amount >= 50000
downstream:
  base_url: http://bank.internal:9000
storage:
  backend: shared-cache
  path_or_url: redis://localhost:6379/0
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2500.0, c.HIL.Threshold)
	require.True(t, c.HIL.AutoApprove)
	require.Equal(t, "loan_amount >= 50000", c.HIL.LoanRule)
	require.Equal(t, "http://bank.internal:9000", c.Downstream.BaseURL)
	require.Equal(t, "shared-cache", c.Storage.Backend)
	// Untouched keys keep their defaults.
	require.Equal(t, 0.80, c.Confidence.Threshold)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hil:\n  threshold: 2500\n"), 0o644))

	t.Setenv("BANKFLOW_HIL_THRESHOLD", "7500")
	t.Setenv("BANKFLOW_HIL_TRANSFER_RULE", "amount >= 2000 || needs_approval")
	t.Setenv("BANKFLOW_CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("BANKFLOW_HIL_AUTO_APPROVE", "true")
	t.Setenv("BANKFLOW_SERVER_ADDR", ":9999")

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7500.0, c.HIL.Threshold)
	require.Equal(t, "amount >= 2000 || needs_approval", c.HIL.TransferRule)
	require.Equal(t, 0.9, c.Confidence.Threshold)
	require.True(t, c.HIL.AutoApprove)
	require.Equal(t, ":9999", c.Server.Addr)
}

func TestMissingYAMLFileIsNotAnError(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, 5000.0, c.HIL.Threshold)
}

func TestMalformedYAMLIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hil: ["), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
