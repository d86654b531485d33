// Package session defines the Session data model (spec §3) and the
// in-memory store that tracks sessions by OS pid (spec §4.2). It holds
// no subprocess logic of its own — the Process Runner (internal/process)
// mutates a Session's buffer and state through the accessors here, under
// the Store's lock, per the serialization discipline in spec §5.
package session

import (
	"time"

	"github.com/relstride/clibridge-mcp/internal/buffer"
)

// State is a tagged variant of the four states a Session can be in.
// Transitions go through the methods below (MarkBlocked, Finalize),
// which only take the allowed edges and never move Completed back to
// Running. The State field itself is exported, so nothing stops a caller
// from assigning it directly.
type State int

const (
	// StateRunning is the initial state: the process is alive and the
	// call that spawned it has not yet returned.
	StateRunning State = iota
	// StateBlocked means the initial-wait timer elapsed before the
	// child exited; the process keeps running in the background.
	StateBlocked
	// StateCompleted means the child exited on its own (zero or
	// non-zero status).
	StateCompleted
	// StateFailed means the child never produced a usable exit (spawn
	// error, or killed by signal without a reportable code).
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProcessHandle is the opaque handle a Session holds on its backing
// process. The session package never calls exec directly; internal/process
// implements this interface and the Store hands sessions back to it for
// signaling.
type ProcessHandle interface {
	// Pid returns the OS process identifier, or -1 if none was assigned.
	Pid() int
	// Terminate begins the cooperative-then-forceful termination
	// protocol described in spec §4.3. It returns immediately after
	// issuing the cooperative signal.
	Terminate()
	// LastSignal reports the most recent signal this handle has sent
	// ("", "SIGTERM", or "SIGKILL"), so a caller that asked for
	// termination can observe which stage is actually in flight.
	LastSignal() string
}

// Session is one tracked child-process execution, keyed by pid.
type Session struct {
	Pid        int
	Buffer     *buffer.Bounded // not yet consumed by readNew
	Full       *buffer.Bounded // full record since spawn, bounded at MAX_BUF
	Start      time.Time
	End        time.Time // zero until finalized
	State      State
	ExitCode   int
	FailReason string
	Proc       ProcessHandle
	Command    string
}

// New creates a session in the initial Running state.
func New(pid int, command string, maxBuf int, proc ProcessHandle, start time.Time) *Session {
	return &Session{
		Pid:     pid,
		Buffer:  buffer.New(maxBuf),
		Full:    buffer.New(maxBuf),
		Start:   start,
		State:   StateRunning,
		Command: command,
		Proc:    proc,
	}
}

// Append records output observed from the child. It is a no-op once the
// Session has been finalized (invariant 4 in spec §3). Session itself
// has no mutex: callers hold the Store lock, which serialises all
// mutation per spec §5.
func (s *Session) Append(data []byte) {
	if s.isTerminal() {
		return
	}
	s.Buffer.Append(data)
	s.Full.Append(data)
}

// MarkBlocked transitions Running -> Blocked. A no-op if already past
// Running (the race between the initial-wait timer and a fast exit is
// resolved by whichever caller reaches the Store's lock first).
func (s *Session) MarkBlocked() {
	if s.State == StateRunning {
		s.State = StateBlocked
	}
}

// Finalize transitions Running/Blocked -> Completed or Failed, stamps
// End, and is a no-op if the session is already terminal (at-most-once,
// invariant 4).
func (s *Session) Finalize(end time.Time, exitCode int, failed bool, reason string) {
	if s.isTerminal() {
		return
	}
	s.End = end
	if failed {
		s.State = StateFailed
		s.FailReason = reason
	} else {
		s.State = StateCompleted
		s.ExitCode = exitCode
	}
}

func (s *Session) isTerminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

// IsActive reports whether the session still belongs in the active
// partition (Running or Blocked).
func (s *Session) IsActive() bool {
	return s.State == StateRunning || s.State == StateBlocked
}

// RuntimeSeconds returns elapsed seconds, measured to End if finalized
// or to now otherwise.
func (s *Session) RuntimeSeconds(now time.Time) float64 {
	end := s.End
	if end.IsZero() {
		end = now
	}
	return end.Sub(s.Start).Seconds()
}
