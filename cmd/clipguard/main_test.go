package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dagbolade/clipboard-guardian/internal/audit"
	"github.com/dagbolade/clipboard-guardian/internal/auth"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := execute(t, "token", "--subject", "alice", "--role", "approver")
	require.NoError(t, err)

	manager := auth.NewManager(auth.Config{JWTSecret: "cli-secret"})
	p, err := manager.ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "alice", p.Subject)
	require.True(t, p.HasRole(auth.RoleApprover))
}

func TestTokenCommandRejectsBadInput(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	_, err := execute(t, "token", "--role", "actor")
	require.Error(t, err)

	_, err = execute(t, "token", "--subject", "x", "--role", "root")
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "")
	_, err = execute(t, "token", "--subject", "x")
	require.Error(t, err)
}

func TestHistoryCommand(t *testing.T) {
	t.Setenv("HISTORY_BACKEND", "")
	path := t.TempDir() + "/history.ndjson"

	store, err := audit.OpenJSONL(path)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Append(ctx, audit.Entry{Timestamp: now, Action: audit.ActionCopy, Decision: audit.DecisionPending, Sample: "one", Note: "Clipboard change detected"}))
	require.NoError(t, store.Append(ctx, audit.Entry{Timestamp: now, Action: audit.ActionCopy, Decision: audit.DecisionBlocked, Sample: "one", Note: "Clipboard change reverted"}))
	require.NoError(t, store.Close())

	out, err := execute(t, "history", "--path", path, "--limit", "1")
	require.NoError(t, err)
	require.Contains(t, out, "Clipboard change reverted")
	require.NotContains(t, out, "Clipboard change detected")

	out, err = execute(t, "history", "--path", path, "--json")
	require.NoError(t, err)
	require.Contains(t, out, `"note": "Clipboard change detected"`)
}

func TestHistoryCommandMissingFile(t *testing.T) {
	t.Setenv("HISTORY_BACKEND", "")
	out, err := execute(t, "history", "--path", t.TempDir()+"/none.ndjson")
	require.NoError(t, err)
	require.Empty(t, out)
}
