package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mme/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile = ""
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSubscriberAddNeedsRedis(t *testing.T) {
	_, err := execute(t, "subscriber", "add",
		"--imsi", "001010000000001",
		"--k", "465b5ce8b199b49faa5f0a2ee238a6bc",
		"--opc", "cd63cb71954a9f4e48a5994e37a02baf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hss.backend is redis")
}

func TestSubscriberAddValidatesKeys(t *testing.T) {
	_, err := execute(t, "subscriber", "add",
		"--imsi", "001010000000001",
		"--k", "465b5ce8",
		"--opc", "cd63cb71954a9f4e48a5994e37a02baf")
	assert.Error(t, err)
}

func TestSubscriberAddRequiresOperatorKey(t *testing.T) {
	_, err := execute(t, "subscriber", "add",
		"--imsi", "001010000000001",
		"--k", "465b5ce8b199b49faa5f0a2ee238a6bc")
	assert.Error(t, err)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "mme.yaml")
	require.NoError(t, os.WriteFile(p, []byte("s1ap:\n  transport: udp\n"), 0o600))

	_, err := execute(t, "--config", p)
	assert.ErrorIs(t, err, config.ErrInvalid)
}
