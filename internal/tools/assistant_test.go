package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/relstride/clibridge-mcp/internal/process"
	"github.com/relstride/clibridge-mcp/internal/session"
	"github.com/relstride/clibridge-mcp/internal/sessionmgr"
	"github.com/relstride/clibridge-mcp/pkg/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssistantStack(t *testing.T, binary string) (*Registry, *sessionmgr.Manager) {
	t.Helper()
	store := session.NewStore(session.Config{MaxCompleted: 10, MaxAge: time.Hour, HardActiveAge: time.Hour})
	runner := process.New(store, nil, nil, 1<<20, 200*time.Millisecond)
	mgr := sessionmgr.New(runner, store, nil, "/bin/sh")

	r := NewRegistry(nil)
	registerAssistant(r, AssistantConfig{
		Binary:         binary,
		DefaultTimeout: 2 * time.Second,
		ServerName:     "test",
		ServerVersion:  "0.0.0",
	}, mgr, nil)
	return r, mgr
}

func TestAssistantBlockingHappyPathReturnsStdout(t *testing.T) {
	// The real CLI takes argv [skip-perms, print, prompt]; /bin/echo
	// stands in here and simply prints all three positional words back,
	// the last of which is the shaped prompt.
	r, _ := newAssistantStack(t, "/bin/echo")
	resp, err := r.Call(context.Background(), mcp.CallToolRequest{
		Name:      "assistant",
		Arguments: json.RawMessage(`{"prompt":"hello"}`),
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Content[0].Text, "hello")
}

func TestAssistantBlockingPollsUntilCompletion(t *testing.T) {
	r, _ := newAssistantStack(t, "./testdata/fake_assistant.sh")
	// DefaultTimeout (2s) is shorter than the fixture's 3s sleep, so the
	// initial execute() call returns blocked and the poll loop must pick
	// up the eventual completion.
	resp, err := r.Call(context.Background(), mcp.CallToolRequest{
		Name:      "assistant",
		Arguments: json.RawMessage(`{"prompt":"SLEEP3"}`),
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Content[0].Text, "done")
}

func TestAssistantSpawnFailurePropagatesAsInternalError(t *testing.T) {
	r, _ := newAssistantStack(t, "/no/such/assistant-binary")
	_, err := r.Call(context.Background(), mcp.CallToolRequest{
		Name:      "assistant",
		Arguments: json.RawMessage(`{"prompt":"hello"}`),
	})
	require.Error(t, err)
	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, "InternalError", code)
}

func TestAssistantDetachedReportsPidAndRunning(t *testing.T) {
	r, mgr := newAssistantStack(t, "./testdata/fake_assistant.sh")
	resp, err := r.Call(context.Background(), mcp.CallToolRequest{
		Name:      "assistant",
		Arguments: json.RawMessage(`{"prompt":"SLEEP for a while","wait":false}`),
	})
	require.NoError(t, err)
	require.False(t, resp.IsError)
	assert.Contains(t, resp.Content[0].Text, "Claude Code task started with PID")
	pid := int(resp.Metadata["pid"].(int))
	mgr.Terminate(pid)
}

func TestOrchestratorModeShapesPromptAndScrubsEnv(t *testing.T) {
	tool := &assistantTool{cfg: AssistantConfig{OrchestratorMode: true}}
	shaped := tool.shapePrompt("do the thing")
	assert.Contains(t, shaped, orchestratorPreamble)
	assert.Contains(t, shaped, "do the thing")

	env := tool.buildChildEnv()
	for _, kv := range env {
		assert.NotContains(t, kv, "ORCHESTRATOR_MODE=")
	}
	assert.Contains(t, env, "DEBUG=false")
}
