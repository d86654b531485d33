package process

import (
	"context"
	"testing"
	"time"

	"github.com/relstride/clibridge-mcp/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T) (*Runner, *session.Store) {
	t.Helper()
	store := session.NewStore(session.Config{
		MaxCompleted:  10,
		MaxAge:        time.Hour,
		HardActiveAge: time.Hour,
	})
	return New(store, nil, nil, 1<<20, 200*time.Millisecond), store
}

func TestSpawnFastExitCompletesSynchronously(t *testing.T) {
	r, store := newTestRunner(t)
	res, err := r.Spawn(context.Background(), "/bin/echo", []string{"hello"}, Opts{InitialWait: time.Second})
	require.NoError(t, err)
	assert.False(t, res.IsBlocked)
	assert.Equal(t, "hello\n", res.Output)

	// On a fast exit Spawn finalizes before returning, so the session is
	// already in the completed partition.
	require.Eventually(t, func() bool {
		return store.CompletedCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSpawnMissingExecutableFails(t *testing.T) {
	r, _ := newTestRunner(t)
	res, err := r.Spawn(context.Background(), "/no/such/executable-xyz", nil, Opts{InitialWait: time.Second})
	require.Error(t, err)
	assert.Equal(t, -1, res.Pid)

	spawnErr, ok := err.(*SpawnError)
	require.True(t, ok)
	assert.Equal(t, "/no/such/executable-xyz", spawnErr.Path)
}

func TestSpawnBlocksWhenInitialWaitElapses(t *testing.T) {
	r, store := newTestRunner(t)
	res, err := r.Spawn(context.Background(), "/bin/sh", []string{"-c", "sleep 0.3"}, Opts{InitialWait: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, res.IsBlocked)

	got := store.Get(res.Pid)
	require.NotNil(t, got)
	assert.Equal(t, session.StateBlocked, got.State)

	require.Eventually(t, func() bool {
		return store.CompletedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTerminateKillsBlockedSession(t *testing.T) {
	r, store := newTestRunner(t)
	res, err := r.Spawn(context.Background(), "/bin/sh", []string{"-c", "sleep 5"}, Opts{InitialWait: 30 * time.Millisecond})
	require.NoError(t, err)
	require.True(t, res.IsBlocked)

	sess := store.Get(res.Pid)
	require.NotNil(t, sess)
	sess.Proc.Terminate()
	assert.Equal(t, "SIGTERM", sess.Proc.LastSignal())

	require.Eventually(t, func() bool {
		return store.CompletedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
