// Package sessionmgr implements the Session Manager facade (spec §4.4):
// the single entry point tool handlers use, combining the Bounded
// Output Buffer, Session Store, and Process Runner into execute,
// readNew, terminate, listActive, and sweep.
package sessionmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/relstride/clibridge-mcp/internal/process"
	"github.com/relstride/clibridge-mcp/internal/session"
	"go.uber.org/zap"
)

// ExecuteOpts carries the optional parameters execute() accepts.
type ExecuteOpts struct {
	TimeoutMs int
	Cwd       string
	Env       []string
	// Shell, if empty, defaults to Manager.defaultShell. When Path/Args
	// are set directly (the assistant tool's case) Shell is ignored.
	Shell string
	Path  string   // overrides "shell -c command" with a direct exec
	Args  []string // used only when Path is set
}

// ActiveInfo is the listActive() projection, spec §4.4.
type ActiveInfo struct {
	Pid       int
	IsBlocked bool
	RuntimeMs int64
	// LastSignal is the most recent termination signal sent to this
	// session ("" if terminate() was never called against it).
	LastSignal string
}

// Manager is the public Session Manager facade.
type Manager struct {
	runner       *process.Runner
	store        *session.Store
	log          *zap.Logger
	defaultShell string
}

// New creates a Manager. defaultShell is used for execute() calls that
// don't specify one (e.g. "/bin/bash" or "/bin/sh").
func New(runner *process.Runner, store *session.Store, log *zap.Logger, defaultShell string) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if defaultShell == "" {
		defaultShell = "/bin/bash"
	}
	return &Manager{
		runner:       runner,
		store:        store,
		log:          log.With(zap.String("component", "session_manager")),
		defaultShell: defaultShell,
	}
}

// Execute spawns command (or, when opts.Path is set, execs that path
// directly with opts.Args — used by the assistant tool) and returns a
// result. Per spec §4.4, no error is ever surfaced to the caller:
// failure is encoded as Pid == -1 with an explanatory message in Output.
func (m *Manager) Execute(ctx context.Context, command string, opts ExecuteOpts) *process.Result {
	path := opts.Path
	args := opts.Args
	if path == "" {
		shell := opts.Shell
		if shell == "" {
			shell = m.defaultShell
		}
		path = shell
		args = []string{"-c", command}
	}

	timeout := time.Duration(opts.TimeoutMs) * time.Millisecond
	res, err := m.runner.Spawn(ctx, path, args, process.Opts{
		Cwd:         opts.Cwd,
		Env:         opts.Env,
		InitialWait: timeout,
	})
	if err != nil {
		m.log.Debug("execute failed to spawn", zap.Error(err), zap.String("command", command))
	}
	return res
}

// ReadNew implements spec §4.4's readNew: drains an active session's
// buffer (or reports "No new output available" if it drained empty),
// renders a completed session's full summary, or reports absence.
func (m *Manager) ReadNew(pid int) (text string, found bool) {
	m.store.WithSession(pid, func(s *session.Session) {
		if s == nil {
			found = false
			return
		}
		found = true
		if s.IsActive() {
			drained := s.Buffer.Drain()
			if drained == "" {
				text = "No new output available"
			} else {
				text = drained
			}
			return
		}
		text = renderCompleted(s)
	})
	return text, found
}

// renderCompleted formats the summary block for a finished session:
// "Process completed with exit code N..." for a Completed session, and
// "Process failed: <reason>..." for a Failed one (which includes a child
// killed by a signal).
func renderCompleted(s *session.Session) string {
	runtime := s.RuntimeSeconds(s.End)
	if s.State == session.StateFailed {
		return fmt.Sprintf(
			"Process failed: %s\nRuntime: %.1fs\nFinal output:\n%s",
			s.FailReason, runtime, s.Full.Peek(),
		)
	}
	return fmt.Sprintf(
		"Process completed with exit code %d\nRuntime: %.1fs\nFinal output:\n%s",
		s.ExitCode, runtime, s.Full.Peek(),
	)
}

// Terminate implements spec §4.4's terminate: returns ok=false if pid
// names no active session, otherwise issues the cooperative signal and
// returns immediately with the signal stage just reached ("SIGTERM";
// escalation to "SIGKILL" after the grace period is observed later via
// ActiveInfoFor or ListActive).
func (m *Manager) Terminate(pid int) (ok bool, signal string) {
	m.store.WithSession(pid, func(s *session.Session) {
		if s != nil && s.IsActive() {
			s.Proc.Terminate()
			ok = true
			signal = s.Proc.LastSignal()
		}
	})
	return ok, signal
}

// ActiveInfoFor reports the ActiveInfo projection for a single pid, or
// false if it is not currently in the active partition.
func (m *Manager) ActiveInfoFor(pid int) (ActiveInfo, bool) {
	var info ActiveInfo
	found := false
	m.store.WithSession(pid, func(s *session.Session) {
		if s == nil || !s.IsActive() {
			return
		}
		found = true
		info = ActiveInfo{
			Pid:        s.Pid,
			IsBlocked:  s.State == session.StateBlocked,
			RuntimeMs:  int64(s.RuntimeSeconds(time.Now()) * 1000),
			LastSignal: s.Proc.LastSignal(),
		}
	})
	return info, found
}

// ListActive implements spec §4.4's listActive.
func (m *Manager) ListActive() []ActiveInfo {
	now := time.Now()
	sessions := m.store.Active()
	out := make([]ActiveInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, ActiveInfo{
			Pid:        s.Pid,
			IsBlocked:  s.State == session.StateBlocked,
			RuntimeMs:  int64(s.RuntimeSeconds(now) * 1000),
			LastSignal: s.Proc.LastSignal(),
		})
	}
	return out
}

// Sweep implements spec §4.4's sweep.
func (m *Manager) Sweep() {
	m.store.Sweep(time.Now())
}
