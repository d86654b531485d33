package allowlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowAnyBypassesPrefixCheck(t *testing.T) {
	l := New(true, []string{"ls"})
	assert.True(t, l.IsAllowed("rm -rf /"))
}

func TestPrefixMatchIsCaseSensitiveAndExact(t *testing.T) {
	l := New(false, []string{"ls"})
	assert.True(t, l.IsAllowed("ls -la"))
	assert.False(t, l.IsAllowed("LS -la"))
	assert.False(t, l.IsAllowed("rm -rf /"))
}

func TestLeadingWhitespaceIsTrimmedBeforeMatching(t *testing.T) {
	l := New(false, []string{"git status"})
	assert.True(t, l.IsAllowed("   git status"))
}

func TestRawCommandIncludingPipesIsMatchedVerbatim(t *testing.T) {
	l := New(false, []string{"cat"})
	assert.True(t, l.IsAllowed("cat file.txt | grep foo"))
	assert.False(t, l.IsAllowed("echo x > file.txt && cat file.txt"))
}

func TestEmptyPrefixesFallsBackToDefaults(t *testing.T) {
	l := New(false, nil)
	assert.True(t, l.IsAllowed("pwd"))
	assert.False(t, l.IsAllowed("sudo rm -rf /"))
}
