package session

import (
	"sync"
	"time"

	"github.com/relstride/clibridge-mcp/internal/metrics"
	"go.uber.org/zap"
)

// Store is the in-memory registry described in spec §4.2: two keyed
// partitions (active, completed), with all mutation serialized by a
// single mutex per the concurrency model in spec §5.
type Store struct {
	mu sync.Mutex

	active        map[int]*Session
	activeOrder   []int
	completed     map[int]*Session
	completedOrder []int // FIFO by completion time

	maxCompleted  int
	maxAge        time.Duration
	hardActiveAge time.Duration

	metrics *metrics.Collector
	log     *zap.Logger
}

// Config bundles the tunables a Store needs at construction.
type Config struct {
	MaxCompleted  int
	MaxAge        time.Duration
	HardActiveAge time.Duration
	Metrics       *metrics.Collector
	Logger        *zap.Logger
}

// NewStore creates an empty Store.
func NewStore(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		active:        make(map[int]*Session),
		completed:     make(map[int]*Session),
		maxCompleted:  cfg.MaxCompleted,
		maxAge:        cfg.MaxAge,
		hardActiveAge: cfg.HardActiveAge,
		metrics:       cfg.Metrics,
		log:           logger.With(zap.String("component", "session_store")),
	}
}

// InsertActive adds a newly spawned session to the active partition.
// Invariant 1 (pid uniqueness) is the caller's responsibility: pids come
// from the OS and the Process Runner only calls this once per spawn.
func (st *Store) InsertActive(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.active[s.Pid] = s
	st.activeOrder = append(st.activeOrder, s.Pid)
	if st.metrics != nil {
		st.metrics.ActiveSessions.Set(float64(len(st.active)))
	}
}

// Get returns the session for pid from either partition, or nil if
// there is none — i.e. readNew(pid) == null per spec §4.4.
func (st *Store) Get(pid int) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lookupLocked(pid)
}

func (st *Store) lookupLocked(pid int) *Session {
	if s, ok := st.active[pid]; ok {
		return s
	}
	if s, ok := st.completed[pid]; ok {
		return s
	}
	return nil
}

// WithSession runs fn with the store lock held and the session for pid
// (nil if absent). Used by readNew/terminate to observe-and-mutate
// atomically without leaking the mutex to callers.
func (st *Store) WithSession(pid int, fn func(s *Session)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fn(st.lookupLocked(pid))
}

// Complete moves a session from active to completed, applying the FIFO
// cap from invariant 5. Called by the Process Runner at finalization.
// A session already absent from active (evicted while still technically
// running, e.g. after a forced kill plus sweep) is simply dropped, per
// spec §4.3's finalization note.
func (st *Store) Complete(pid int, now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.active[pid]
	if !ok {
		return
	}
	delete(st.active, pid)
	st.removeFromOrder(&st.activeOrder, pid)

	st.completed[pid] = s
	st.completedOrder = append(st.completedOrder, pid)

	if st.metrics != nil {
		st.metrics.ActiveSessions.Set(float64(len(st.active)))
		st.metrics.CompletedSessions.Set(float64(len(st.completed)))
		st.metrics.CommandDuration.Observe(s.RuntimeSeconds(now))
	}

	st.enforceCompletedCapLocked()
}

// enforceCompletedCapLocked evicts the oldest completed sessions (by
// completion order) until the count is within maxCompleted. Must be
// called with st.mu held.
func (st *Store) enforceCompletedCapLocked() {
	if st.maxCompleted <= 0 {
		return
	}
	for len(st.completedOrder) > st.maxCompleted {
		oldest := st.completedOrder[0]
		st.completedOrder = st.completedOrder[1:]
		delete(st.completed, oldest)
		if st.metrics != nil {
			st.metrics.CompletedSessions.Set(float64(len(st.completed)))
			st.metrics.Evictions.WithLabelValues("count_cap").Inc()
		}
	}
}

// Active returns a snapshot of active sessions in insertion order.
func (st *Store) Active() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Session, 0, len(st.activeOrder))
	for _, pid := range st.activeOrder {
		if s, ok := st.active[pid]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Sweep removes completed sessions older than maxAge and force-terminates
// active sessions older than hardActiveAge, per spec §3 invariants 6-7.
// Termination itself happens asynchronously (Session.Proc.Terminate());
// the swept session is removed from active once the Process Runner
// observes its exit and calls Complete.
func (st *Store) Sweep(now time.Time) {
	st.mu.Lock()

	var toTerminate []*Session
	if st.hardActiveAge > 0 {
		for _, pid := range st.activeOrder {
			s, ok := st.active[pid]
			if !ok {
				continue
			}
			if now.Sub(s.Start) > st.hardActiveAge {
				toTerminate = append(toTerminate, s)
			}
		}
	}

	var evictedCompleted int
	if st.maxAge > 0 {
		kept := st.completedOrder[:0]
		for _, pid := range st.completedOrder {
			s, ok := st.completed[pid]
			if !ok {
				continue
			}
			if now.Sub(s.End) > st.maxAge {
				delete(st.completed, pid)
				evictedCompleted++
				continue
			}
			kept = append(kept, pid)
		}
		st.completedOrder = kept
	}

	if st.metrics != nil {
		st.metrics.CompletedSessions.Set(float64(len(st.completed)))
		if evictedCompleted > 0 {
			st.metrics.Evictions.WithLabelValues("age").Add(float64(evictedCompleted))
		}
	}
	st.mu.Unlock()

	for _, s := range toTerminate {
		st.log.Warn("force-terminating session past hard active age",
			zap.Int("pid", s.Pid), zap.Duration("age", now.Sub(s.Start)))
		s.Proc.Terminate()
	}
}

// CompletedCount and ActiveCount are exposed for tests and list_sessions
// style summaries.
func (st *Store) CompletedCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.completed)
}

func (st *Store) ActiveCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.active)
}

func (st *Store) removeFromOrder(order *[]int, pid int) {
	for i, p := range *order {
		if p == pid {
			*order = append((*order)[:i], (*order)[i+1:]...)
			return
		}
	}
}
