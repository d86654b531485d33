package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/relstride/clibridge-mcp/internal/allowlist"
	"github.com/relstride/clibridge-mcp/internal/sessionmgr"
	"github.com/relstride/clibridge-mcp/pkg/mcp"
)

func textReply(text string, isError bool) *mcp.CallToolResponse {
	return &mcp.CallToolResponse{
		Content: []mcp.ContentItem{{Type: "text", Text: text}},
		IsError: isError,
	}
}

const executeCommandSchema = `{
  "type": "object",
  "properties": {
    "command": {"type": "string"},
    "timeout_ms": {"type": "integer"},
    "shell": {"type": "string"},
    "cwd": {"type": "string"},
    "wait": {"type": "boolean"}
  },
  "required": ["command"]
}`

type executeCommandArgs struct {
	Command   string `json:"command"`
	TimeoutMs int    `json:"timeout_ms"`
	Shell     string `json:"shell"`
	Cwd       string `json:"cwd"`
	Wait      *bool  `json:"wait"`
}

// registerExecuteCommand wires execute_command (spec §4.6): an
// allowlist check, then a plain execute() on the session manager.
func registerExecuteCommand(r *Registry, list *allowlist.List, mgr *sessionmgr.Manager, defaultTimeoutMs int) {
	r.Register("execute_command",
		"Execute a shell command, subject to an allowlist, and track it as a session.",
		executeCommandSchema,
		func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResponse, error) {
			var a executeCommandArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, err
			}
			if !list.IsAllowed(a.Command) {
				return textReply(fmt.Sprintf("Command not allowed: %s", a.Command), true), nil
			}

			timeoutMs := a.TimeoutMs
			if timeoutMs <= 0 {
				timeoutMs = defaultTimeoutMs
			}
			res := mgr.Execute(ctx, a.Command, sessionmgr.ExecuteOpts{
				TimeoutMs: timeoutMs,
				Cwd:       a.Cwd,
				Shell:     a.Shell,
			})

			if res.Pid == -1 {
				return textReply(res.Output, true), nil
			}
			if !res.IsBlocked {
				return textReply(res.Output, false), nil
			}
			resp := textReply(fmt.Sprintf("Command started with PID %d\n%s", res.Pid, res.Output), false)
			resp.Metadata = map[string]interface{}{"pid": res.Pid, "isRunning": true}
			return resp, nil
		})
}

const readOutputSchema = `{
  "type": "object",
  "properties": {"pid": {"type": "integer"}},
  "required": ["pid"]
}`

type pidArgs struct {
	Pid int `json:"pid"`
}

// registerReadOutput wires read_output (spec §4.6): delegates to readNew.
func registerReadOutput(r *Registry, mgr *sessionmgr.Manager) {
	r.Register("read_output",
		"Read newly available output for a tracked process, identified by pid.",
		readOutputSchema,
		func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResponse, error) {
			var a pidArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, err
			}
			text, found := mgr.ReadNew(a.Pid)
			if !found {
				return textReply(fmt.Sprintf("No session found for pid %d", a.Pid), true), nil
			}

			resp := textReply(text, false)
			info, active := mgr.ActiveInfoFor(a.Pid)
			if active {
				resp.Metadata = map[string]interface{}{
					"isRunning": true,
					"runtime":   int64(float64(info.RuntimeMs) / 1000),
				}
			} else {
				resp.Metadata = map[string]interface{}{"isRunning": false}
			}
			return resp, nil
		})
}

// registerForceTerminate wires force_terminate (spec §4.6): delegates
// to terminate and reports the signal stage terminate() actually
// reached, rather than assuming the cooperative signal alone was
// sufficient (SIGKILL is only observable after the grace period via a
// follow-up list_sessions/read_output call, since terminate() itself
// returns immediately after issuing SIGTERM).
func registerForceTerminate(r *Registry, mgr *sessionmgr.Manager) {
	r.Register("force_terminate",
		"Send a termination request to a tracked process, identified by pid.",
		readOutputSchema,
		func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResponse, error) {
			var a pidArgs
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, err
			}
			ok, signal := mgr.Terminate(a.Pid)
			resp := textReply("", false)
			if ok {
				resp.Content[0].Text = fmt.Sprintf(
					"Termination requested for pid %d (%s sent; escalates to SIGKILL after the grace period if the process hasn't exited)",
					a.Pid, signal)
				resp.Metadata = map[string]interface{}{"isRunning": false, "signal": signal}
			} else {
				resp.Content[0].Text = fmt.Sprintf("No active session found for pid %d", a.Pid)
				resp.IsError = true
				resp.Metadata = map[string]interface{}{"isRunning": false}
			}
			return resp, nil
		})
}

const emptyObjectSchema = `{"type": "object", "properties": {}}`

// registerListSessions wires list_sessions (spec §4.6), with the
// blocked/detached breakdown supplement from SPEC_FULL.md.
func registerListSessions(r *Registry, mgr *sessionmgr.Manager) {
	r.Register("list_sessions",
		"List all currently active (running, blocked, or detached) sessions.",
		emptyObjectSchema,
		func(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResponse, error) {
			active := mgr.ListActive()
			if len(active) == 0 {
				return textReply("No active sessions", false), nil
			}
			out := ""
			for _, s := range active {
				phase := "detached"
				if s.IsBlocked {
					phase = "blocked"
				}
				line := fmt.Sprintf("PID %d: %s, running for %.1fs", s.Pid, phase, (time.Duration(s.RuntimeMs) * time.Millisecond).Seconds())
				if s.LastSignal != "" {
					line += fmt.Sprintf(" (terminating, last signal %s)", s.LastSignal)
				}
				out += line + "\n"
			}
			return textReply(out, false), nil
		})
}
