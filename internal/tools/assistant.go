package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/relstride/clibridge-mcp/internal/sessionmgr"
	"github.com/relstride/clibridge-mcp/pkg/mcp"
	"go.uber.org/zap"
)

const assistantSchema = `{
  "type": "object",
  "properties": {
    "prompt": {"type": "string"},
    "workFolder": {"type": "string"},
    "wait": {"type": "boolean"}
  },
  "required": ["prompt"]
}`

type assistantArgs struct {
	Prompt     string `json:"prompt"`
	WorkFolder string `json:"workFolder"`
	Wait       *bool  `json:"wait"`
}

// orchestratorPreamble is prepended to the prompt when ORCHESTRATOR_MODE
// is set (spec §4.7 point 2). It tells the assistant it is running
// headless, under supervision, without a human to ask for confirmation.
const orchestratorPreamble = "You are running in orchestrator mode: non-interactively, supervised by another process, with no human available to answer clarifying questions. Proceed using your best judgment and report results plainly.\n\n"

// AssistantConfig carries the construction-time parameters for the
// assistant tool (spec §4.7).
type AssistantConfig struct {
	Binary           string
	OrchestratorMode bool
	DefaultTimeout   time.Duration
	ServerName       string
	ServerVersion    string
}

// assistantTool implements the Assistant Tool (C7): the one tool that
// builds an argument vector for the external CLI, resolves the working
// directory, and chooses blocking vs. detached execution.
type assistantTool struct {
	cfg       AssistantConfig
	mgr       *sessionmgr.Manager
	log       *zap.Logger
	startedAt time.Time
	once      sync.Once
}

// registerAssistant wires the assistant tool into r.
func registerAssistant(r *Registry, cfg AssistantConfig, mgr *sessionmgr.Manager, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	t := &assistantTool{
		cfg:       cfg,
		mgr:       mgr,
		log:       log.With(zap.String("component", "assistant_tool")),
		startedAt: time.Now(),
	}
	r.Register("assistant",
		"Run a single headless invocation of the external command-line assistant.",
		assistantSchema,
		t.handle)
}

func (t *assistantTool) handle(ctx context.Context, raw json.RawMessage) (*mcp.CallToolResponse, error) {
	var a assistantArgs
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}

	t.once.Do(func() {
		t.log.Info("assistant tool first invocation",
			zap.String("server", t.cfg.ServerName),
			zap.String("version", t.cfg.ServerVersion),
			zap.Time("started_at", t.startedAt),
		)
	})

	cwd := t.resolveWorkDir(a.WorkFolder)
	prompt := t.shapePrompt(a.Prompt)
	env := t.buildChildEnv()
	argv := []string{"--dangerously-skip-permissions", "--print", prompt}

	wait := true
	if a.Wait != nil {
		wait = *a.Wait
	}

	if wait {
		return t.runBlocking(ctx, cwd, env, argv)
	}
	return t.runDetached(ctx, cwd, env, argv)
}

// resolveWorkDir implements spec §4.7 point 1: use workFolder if it
// exists, else the user's home directory, warning on either a
// nonexistent requested folder or an unset one.
func (t *assistantTool) resolveWorkDir(workFolder string) string {
	if workFolder != "" {
		if info, err := os.Stat(workFolder); err == nil && info.IsDir() {
			return workFolder
		}
		t.log.Warn("workFolder does not exist, falling back to home directory", zap.String("workFolder", workFolder))
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.log.Warn("no workFolder given and home directory unavailable, using current directory")
		return "."
	}
	if workFolder == "" {
		t.log.Warn("no workFolder given, defaulting to home directory", zap.String("home", home))
	}
	return home
}

func (t *assistantTool) shapePrompt(prompt string) string {
	if t.cfg.OrchestratorMode {
		return orchestratorPreamble + prompt
	}
	return prompt
}

// buildChildEnv implements spec §4.7 point 4: start from the server's
// environment, and when ORCHESTRATOR_MODE is set, strip the keys that
// would make a nested invocation think it is itself orchestrated, and
// force-disable its debug logging.
func (t *assistantTool) buildChildEnv() []string {
	base := os.Environ()
	if !t.cfg.OrchestratorMode {
		return base
	}
	env := make([]string, 0, len(base)+1)
	for _, kv := range base {
		if strings.HasPrefix(kv, "ORCHESTRATOR_MODE=") || strings.HasPrefix(kv, "DEBUG=") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, "DEBUG=false")
	return env
}

// runBlocking implements the wait=true branch of spec §4.7 point 6.
func (t *assistantTool) runBlocking(ctx context.Context, cwd string, env, argv []string) (*mcp.CallToolResponse, error) {
	timeout := t.cfg.DefaultTimeout
	res := t.mgr.Execute(ctx, "", sessionmgr.ExecuteOpts{
		TimeoutMs: int(timeout.Milliseconds()),
		Cwd:       cwd,
		Env:       env,
		Path:      t.cfg.Binary,
		Args:      argv,
	})
	if res.Pid == -1 {
		return nil, fmt.Errorf("%s", res.Output)
	}
	if !res.IsBlocked {
		return textReply(res.Output, false), nil
	}

	// Per the concurrency model, the blocking branch has no timer of its
	// own: it observes completion purely through readNew, polling every
	// second until the session leaves the active partition. A caller
	// that wants an externally imposed timeout cancels ctx.
	for {
		select {
		case <-ctx.Done():
			t.mgr.Terminate(res.Pid)
			return nil, fmt.Errorf("timed out after %.0fs: %s", timeout.Seconds(), ctx.Err())
		case <-time.After(time.Second):
		}

		text, found := t.mgr.ReadNew(res.Pid)
		if !found {
			return nil, fmt.Errorf("session for pid %d disappeared before completion", res.Pid)
		}
		if _, active := t.mgr.ActiveInfoFor(res.Pid); !active {
			return textReply(text, false), nil
		}
	}
}

// runDetached implements the wait=false branch of spec §4.7 point 6.
func (t *assistantTool) runDetached(ctx context.Context, cwd string, env, argv []string) (*mcp.CallToolResponse, error) {
	const initialWait = 5 * time.Second
	startTime := time.Now()
	res := t.mgr.Execute(ctx, "", sessionmgr.ExecuteOpts{
		TimeoutMs: int(initialWait.Milliseconds()),
		Cwd:       cwd,
		Env:       env,
		Path:      t.cfg.Binary,
		Args:      argv,
	})
	if res.Pid == -1 {
		return nil, fmt.Errorf("%s", res.Output)
	}
	if !res.IsBlocked {
		return textReply(res.Output, false), nil
	}

	resp := textReply(
		fmt.Sprintf("Claude Code task started with PID %d\n%s\nUse read_output to check progress.", res.Pid, res.Output),
		false,
	)
	resp.Metadata = map[string]interface{}{
		"pid":       res.Pid,
		"isRunning": true,
		"startTime": startTime.Format(time.RFC3339),
	}
	return resp, nil
}
