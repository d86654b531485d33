package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/relstride/clibridge-mcp/internal/allowlist"
	"github.com/relstride/clibridge-mcp/internal/process"
	"github.com/relstride/clibridge-mcp/internal/session"
	"github.com/relstride/clibridge-mcp/internal/sessionmgr"
	"github.com/relstride/clibridge-mcp/pkg/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStack(t *testing.T) *sessionmgr.Manager {
	t.Helper()
	store := session.NewStore(session.Config{MaxCompleted: 10, MaxAge: time.Hour, HardActiveAge: time.Hour})
	runner := process.New(store, nil, nil, 1<<20, 200*time.Millisecond)
	return sessionmgr.New(runner, store, nil, "/bin/sh")
}

func TestExecuteCommandDeniedByAllowlistReturnsIsError(t *testing.T) {
	mgr := newTestStack(t)
	r := NewRegistry(nil)
	registerExecuteCommand(r, allowlist.New(false, []string{"ls"}), mgr, 1000)

	resp, err := r.Call(context.Background(), mcp.CallToolRequest{
		Name:      "execute_command",
		Arguments: json.RawMessage(`{"command":"rm -rf /"}`),
	})
	require.NoError(t, err)
	assert.True(t, resp.IsError)
	assert.Contains(t, resp.Content[0].Text, "Command not allowed")
}

func TestExecuteCommandAllowedRunsAndReturnsOutput(t *testing.T) {
	mgr := newTestStack(t)
	r := NewRegistry(nil)
	registerExecuteCommand(r, allowlist.New(true, nil), mgr, 1000)

	resp, err := r.Call(context.Background(), mcp.CallToolRequest{
		Name:      "execute_command",
		Arguments: json.RawMessage(`{"command":"echo hi"}`),
	})
	require.NoError(t, err)
	assert.False(t, resp.IsError)
	assert.Equal(t, "hi\n", resp.Content[0].Text)
}

func TestReadOutputUnknownPidIsError(t *testing.T) {
	mgr := newTestStack(t)
	r := NewRegistry(nil)
	registerReadOutput(r, mgr)

	resp, err := r.Call(context.Background(), mcp.CallToolRequest{
		Name:      "read_output",
		Arguments: json.RawMessage(`{"pid":999999}`),
	})
	require.NoError(t, err)
	assert.True(t, resp.IsError)
}

func TestForceTerminateUnknownPidIsError(t *testing.T) {
	mgr := newTestStack(t)
	r := NewRegistry(nil)
	registerForceTerminate(r, mgr)

	resp, err := r.Call(context.Background(), mcp.CallToolRequest{
		Name:      "force_terminate",
		Arguments: json.RawMessage(`{"pid":999999}`),
	})
	require.NoError(t, err)
	assert.True(t, resp.IsError)
}

func TestForceTerminateActiveSessionReportsSigterm(t *testing.T) {
	mgr := newTestStack(t)
	r := NewRegistry(nil)
	registerExecuteCommand(r, allowlist.New(true, nil), mgr, 20)
	registerForceTerminate(r, mgr)

	execResp, err := r.Call(context.Background(), mcp.CallToolRequest{
		Name:      "execute_command",
		Arguments: json.RawMessage(`{"command":"sleep 5","timeout_ms":20}`),
	})
	require.NoError(t, err)
	pid := int(execResp.Metadata["pid"].(int))

	resp, err := r.Call(context.Background(), mcp.CallToolRequest{
		Name:      "force_terminate",
		Arguments: json.RawMessage(fmt.Sprintf(`{"pid":%d}`, pid)),
	})
	require.NoError(t, err)
	assert.False(t, resp.IsError)
	assert.Contains(t, resp.Content[0].Text, "SIGTERM sent")
	assert.Equal(t, "SIGTERM", resp.Metadata["signal"])
}

func TestListSessionsReportsBlockedSession(t *testing.T) {
	mgr := newTestStack(t)
	r := NewRegistry(nil)
	registerExecuteCommand(r, allowlist.New(true, nil), mgr, 20)
	registerListSessions(r, mgr)

	execResp, err := r.Call(context.Background(), mcp.CallToolRequest{
		Name:      "execute_command",
		Arguments: json.RawMessage(`{"command":"sleep 1","timeout_ms":20}`),
	})
	require.NoError(t, err)
	require.True(t, execResp.Metadata["isRunning"].(bool))

	listResp, err := r.Call(context.Background(), mcp.CallToolRequest{Name: "list_sessions", Arguments: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Contains(t, listResp.Content[0].Text, "blocked")

	mgr.Terminate(int(execResp.Metadata["pid"].(int)))
}
