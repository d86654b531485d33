package buffer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendUnderCapacity(t *testing.T) {
	b := New(1024)
	b.Append([]byte("hello "))
	b.Append([]byte("world"))
	assert.Equal(t, "hello world", b.Peek())
	assert.False(t, b.HasTruncationNotice())
}

func TestDrainResetsBuffer(t *testing.T) {
	b := New(1024)
	b.Append([]byte("abc"))
	got := b.Drain()
	require.Equal(t, "abc", got)
	assert.Equal(t, "", b.Peek())
	assert.Equal(t, 0, b.Size())
}

func TestEmptyDrain(t *testing.T) {
	b := New(1024)
	assert.Equal(t, "", b.Drain())
}

func TestOverflowInsertsTruncationNoticeOnce(t *testing.T) {
	b := New(100)
	b.Append([]byte(strings.Repeat("a", 200)))
	out := b.Peek()
	assert.True(t, b.HasTruncationNotice())
	assert.LessOrEqual(t, len(out), 100)
	// Notice appears exactly once.
	assert.Equal(t, 1, strings.Count(out, strings.TrimSpace(TruncationNotice)))
}

func TestOverflowKeepsMostRecentBytes(t *testing.T) {
	b := New(100)
	b.Append([]byte(strings.Repeat("x", 90)))
	b.Append([]byte("RECENT_MARKER"))
	out := b.Peek()
	assert.Contains(t, out, "RECENT_MARKER")
	assert.LessOrEqual(t, len(out), 100)
}

func TestRepeatedOverflowReemitsNotice(t *testing.T) {
	b := New(100)
	b.Append([]byte(strings.Repeat("a", 200)))
	first := b.Peek()
	require.True(t, b.HasTruncationNotice())

	b.Append([]byte(strings.Repeat("b", 200)))
	second := b.Peek()
	assert.True(t, strings.Contains(second, strings.TrimSpace(TruncationNotice)))
	assert.NotEqual(t, first, second)
}

func TestSizeNeverExceedsMax(t *testing.T) {
	b := New(100)
	for i := 0; i < 50; i++ {
		b.Append([]byte("0123456789"))
		assert.LessOrEqual(t, b.Size(), 100)
	}
}
