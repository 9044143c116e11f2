package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidahmann/parliament/internal/api"
	"github.com/davidahmann/parliament/internal/auth"
	"github.com/davidahmann/parliament/internal/config"
	"github.com/davidahmann/parliament/internal/crypto"
	"github.com/davidahmann/parliament/internal/gateway"
	"github.com/davidahmann/parliament/pkg/types"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestClassify(t *testing.T) {
	out, err := execute(t, "", "classify", "should", "we", "vote?")
	require.NoError(t, err)
	assert.Equal(t, "GOVERNANCE_REQUEST\n", out)

	out, err = execute(t, "ship it now\n", "classify")
	require.NoError(t, err)
	assert.Equal(t, "EXECUTION_REQUEST\n", out)
}

func TestSignals(t *testing.T) {
	out, err := execute(t, "", "signals", "Is it done? Contact Alice.")
	require.NoError(t, err)

	var got types.ExtractedSignals
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"Is it done?"}, got.Questions)
	assert.Contains(t, got.Entities, "Alice")
}

func TestEvaluateLocal(t *testing.T) {
	out, err := execute(t, "", "evaluate", "--retry-reason", "rate limit exceeded", "--retry-intent", "reject", "send the invoice")
	require.NoError(t, err)

	var resp api.EvaluateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Votes, 5)
	assert.NotEmpty(t, resp.RecordID)

	_, err = execute(t, "", "evaluate", "--retry-intent", "maybe", "send it")
	assert.Error(t, err)
}

func TestRulesLint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"v1\"\nrules:\n  - intent: PLAN_REQUEST\n    keywords: [plan]\n"), 0o600))

	out, err := execute(t, "", "rules", "lint", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ok version=v1 rules=1 rules_hash=sha256:"))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("version: \"v1\"\nrules:\n  - intent: INFO_REQUEST\n    keywords: [x]\n"), 0o600))
	_, err = execute(t, "", "rules", "lint", bad)
	assert.Error(t, err)
}

func TestAuditAgainstGateway(t *testing.T) {
	g, err := gateway.Build(context.Background(), config.Default(), gateway.Options{
		Logger:   zap.NewNop(),
		Registry: prometheus.NewRegistry(),
		Auth:     &auth.DevTokenAuthenticator{Token: "tok"},
	})
	require.NoError(t, err)
	defer g.Close()
	srv := httptest.NewServer(g.Server.Handler)
	defer srv.Close()

	resp, err := g.Service.Decide(context.Background(), api.EvaluateRequest{SessionID: "s1", Text: "what is the eta"})
	require.NoError(t, err)

	out, err := execute(t, "", "audit", "verify", resp.RecordID, "--addr", srv.URL, "--token", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, "valid=true record_id="+resp.RecordID)

	out, err = execute(t, "", "audit", "list", "--session", "s1", "--addr", srv.URL, "--token", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, resp.RecordID)

	zipPath := filepath.Join(t.TempDir(), "pack.zip")
	out, err = execute(t, "", "audit", "export", "--session", "s1", "--out", zipPath, "--addr", srv.URL, "--token", "tok")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+zipPath)
	data, err := os.ReadFile(zipPath)
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data[:2]))

	_, err = execute(t, "", "audit", "verify", resp.RecordID, "--addr", srv.URL, "--token", "wrong")
	assert.Error(t, err)

	_, err = execute(t, "", "audit", "verify", "sha256:missing", "--addr", srv.URL, "--token", "tok")
	assert.Error(t, err)
}

func TestKeygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.key")
	out, err := execute(t, "", "keygen", "--out", path)
	require.NoError(t, err)
	assert.Contains(t, out, "public_key=hex:")

	priv, pub, err := crypto.LoadEd25519PrivateKey(path)
	require.NoError(t, err)
	assert.Len(t, priv, 64)
	assert.Contains(t, out, "public_key=hex:"+hex.EncodeToString(pub))
}
