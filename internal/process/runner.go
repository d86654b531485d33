// Package process implements the Process Runner (spec §4.3): it spawns
// a child, streams its combined stdout+stderr into a Session's bounded
// buffer, and carries out the cooperative-then-forceful termination
// protocol. It is the only package that calls os/exec.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/relstride/clibridge-mcp/internal/metrics"
	"github.com/relstride/clibridge-mcp/internal/session"
	"go.uber.org/zap"
)

// MaxScannerLine is the maximum size for a single line the stdout/stderr
// scanners will accept before erroring. Commands can legitimately emit a
// single very long line (e.g. pretty-printed JSON); the default 64KB
// bufio.Scanner limit is too small for that.
const MaxScannerLine = 1024 * 1024

// Opts configures a single spawn.
type Opts struct {
	Cwd           string
	Env           []string // nil means "inherit os.Environ()"
	InitialWait   time.Duration
	SigtermGrace  time.Duration
}

// SpawnError is the structured error returned when a child never starts
// (executable missing, permission denied, etc.), per spec §4.3 point 2.
type SpawnError struct {
	Path   string
	Err    error
	Stderr string
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %q: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Result is what Spawn returns to its caller, matching the three
// first-event outcomes in spec §4.3.
type Result struct {
	Pid       int
	Output    string
	IsBlocked bool
}

// Runner spawns processes and tracks them in a session.Store.
type Runner struct {
	store        *session.Store
	log          *zap.Logger
	metrics      *metrics.Collector
	maxBuf       int
	sigtermGrace time.Duration
}

// New creates a Runner backed by store. maxBuf bounds every session's
// buffers (spec §3 invariant 3); sigtermGrace is the default grace
// period between cooperative and forceful termination (spec §4.3),
// used when an individual Spawn's Opts.SigtermGrace is zero.
func New(store *session.Store, log *zap.Logger, m *metrics.Collector, maxBuf int, sigtermGrace time.Duration) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		store:        store,
		log:          log.With(zap.String("component", "process_runner")),
		metrics:      m,
		maxBuf:       maxBuf,
		sigtermGrace: sigtermGrace,
	}
}

// Spawn starts path with args and races the initial-wait timer against
// the child's exit, per the three outcomes in spec §4.3.
func (r *Runner) Spawn(ctx context.Context, path string, args []string, opts Opts) (*Result, error) {
	cmd := exec.Command(path, args...)
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	// stdin is closed to the child per spec §4.3.
	cmd.Stdin = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.spawnFailure(path, err, "")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return r.spawnFailure(path, err, "")
	}

	if err := cmd.Start(); err != nil {
		if r.metrics != nil {
			r.metrics.SpawnFailures.Inc()
		}
		return r.spawnFailure(path, err, "")
	}

	pid := cmd.Process.Pid
	now := time.Now()

	grace := opts.SigtermGrace
	if grace <= 0 {
		grace = r.sigtermGrace
	}
	handle := &procHandle{pid: pid, cmd: cmd, runner: r, grace: grace}

	sess := session.New(pid, strings.Join(append([]string{path}, args...), " "), r.maxBuf, handle, now)
	r.store.InsertActive(sess)

	var pumpWG sync.WaitGroup
	pumpWG.Add(2)
	go r.pump(&pumpWG, pid, stdout)
	go r.pump(&pumpWG, pid, stderr)

	type waitResult struct{ err error }
	doneCh := make(chan waitResult, 1)
	go func() {
		pumpWG.Wait() // drain all output before reporting exit
		err := cmd.Wait()
		doneCh <- waitResult{err: err}
	}()

	initialWait := opts.InitialWait
	if initialWait <= 0 {
		initialWait = 30 * time.Second
	}
	timer := time.NewTimer(initialWait)
	defer timer.Stop()

	select {
	case res := <-doneCh:
		r.finalize(pid, res.err)
		return &Result{Pid: pid, Output: r.drain(pid), IsBlocked: false}, nil
	case <-timer.C:
		r.store.WithSession(pid, func(s *session.Session) {
			if s != nil {
				s.MarkBlocked()
			}
		})
		go func() {
			res := <-doneCh
			r.finalize(pid, res.err)
		}()
		return &Result{Pid: pid, Output: r.drain(pid), IsBlocked: true}, nil
	case <-ctx.Done():
		// Caller gave up; the child keeps running and will finalize
		// asynchronously exactly like the timer-elapsed branch.
		go func() {
			res := <-doneCh
			r.finalize(pid, res.err)
		}()
		return &Result{Pid: pid, Output: r.drain(pid), IsBlocked: true}, nil
	}
}

func (r *Runner) spawnFailure(path string, err error, stderrText string) (*Result, error) {
	spawnErr := &SpawnError{Path: path, Err: err, Stderr: stderrText}
	return &Result{
		Pid:       -1,
		Output:    fmt.Sprintf("failed to start %q: %v", path, err),
		IsBlocked: false,
	}, spawnErr
}

func (r *Runner) drain(pid int) string {
	var out string
	r.store.WithSession(pid, func(s *session.Session) {
		if s != nil {
			out = s.Buffer.Drain()
		}
	})
	return out
}

// pump reads a pipe line-by-line and appends into the session's buffer,
// merging stdout and stderr in arrival order (spec §4.3, §4.1).
func (r *Runner) pump(wg *sync.WaitGroup, pid int, rc io.Reader) {
	defer wg.Done()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxScannerLine)

	for scanner.Scan() {
		line := scanner.Bytes()
		chunk := make([]byte, 0, len(line)+1)
		chunk = append(chunk, line...)
		chunk = append(chunk, '\n')
		r.store.WithSession(pid, func(s *session.Session) {
			if s != nil {
				s.Append(chunk)
			}
		})
	}
	if err := scanner.Err(); err != nil {
		r.log.Debug("pump scanner error", zap.Int("pid", pid), zap.Error(err))
	}
}

// finalize performs the at-most-once transition to Completed/Failed and
// moves the session into the completed partition (spec §4.3, invariant 4).
func (r *Runner) finalize(pid int, waitErr error) {
	now := time.Now()
	r.store.WithSession(pid, func(s *session.Session) {
		if s == nil {
			return
		}
		exitCode := 0
		failed := false
		reason := ""

		var exitErr *exec.ExitError
		switch {
		case waitErr == nil:
			// exit code 0
		case errors.As(waitErr, &exitErr):
			exitCode = exitErr.ExitCode()
			if exitCode < 0 {
				// Negative ExitCode means killed by signal.
				failed = true
				reason = exitErr.Error()
			}
		default:
			failed = true
			reason = waitErr.Error()
		}

		s.Finalize(now, exitCode, failed, reason)
	})
	r.store.Complete(pid, now)
}

// procHandle implements session.ProcessHandle, bridging the session
// package (which knows nothing about os/exec) back to this Runner.
type procHandle struct {
	pid    int
	cmd    *exec.Cmd
	runner *Runner
	grace  time.Duration
	once   sync.Once

	sigMu      sync.Mutex
	lastSignal string
}

func (p *procHandle) Pid() int { return p.pid }

// LastSignal reports the most recent signal this handle has sent, so a
// caller of terminate() can tell SIGTERM-just-issued apart from
// SIGKILL-after-grace-period instead of assuming the cooperative signal
// alone was enough. Guarded by its own mutex, not the Store's, since
// Terminate is called from within a Store.WithSession closure and the
// Store's mutex is not reentrant.
func (p *procHandle) LastSignal() string {
	p.sigMu.Lock()
	defer p.sigMu.Unlock()
	return p.lastSignal
}

// Terminate sends SIGTERM immediately, then escalates to SIGKILL after
// the grace period if the session is still active, per spec §4.3. The
// cooperative signal is sent synchronously, before Terminate returns,
// matching the contract that terminate() "returns true immediately
// after issuing the cooperative signal"; the grace wait and any
// escalation happen in a goroutine.
func (p *procHandle) Terminate() {
	p.once.Do(func() {
		if p.runner.metrics != nil {
			p.runner.metrics.Terminations.Inc()
		}
		p.signal(syscall.SIGTERM, "SIGTERM")
		go p.escalate()
	})
}

func (p *procHandle) signal(sig syscall.Signal, name string) {
	if p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Signal(sig)
	p.sigMu.Lock()
	p.lastSignal = name
	p.sigMu.Unlock()
}

func (p *procHandle) escalate() {
	grace := p.grace
	if grace <= 0 {
		grace = time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	<-timer.C

	stillActive := false
	p.runner.store.WithSession(p.pid, func(s *session.Session) {
		if s != nil && s.IsActive() {
			stillActive = true
		}
	})
	if stillActive {
		p.signal(syscall.SIGKILL, "SIGKILL")
	}
}
