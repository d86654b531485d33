// Package allowlist implements the Command Allowlist (spec §4.5): a
// conservative hint, not a security sandbox, that decides whether a raw
// shell command string is permitted before execute_command ever spawns
// a shell.
package allowlist

import "strings"

// DefaultPrefixes mirrors the kind of read-mostly, low-risk commands a
// conservative default would permit. Operators override this wholesale
// via ALLOWED_COMMANDS or disable checking entirely via ALLOW_ALL_COMMANDS.
var DefaultPrefixes = []string{
	"ls", "cat", "pwd", "echo", "head", "tail", "grep", "find",
	"git status", "git diff", "git log", "git show", "git branch",
	"wc", "file", "df", "du", "whoami", "date", "uname", "env",
	"go version", "go vet", "go build", "go test", "node --version",
	"npm list", "python3 --version", "which",
}

// List is the compiled policy: either "anything goes" (AllowAny) or a
// fixed set of byte-exact, case-sensitive prefixes.
type List struct {
	AllowAny bool
	Prefixes []string
}

// New builds a List. An empty prefixes slice falls back to DefaultPrefixes.
func New(allowAny bool, prefixes []string) *List {
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}
	return &List{AllowAny: allowAny, Prefixes: prefixes}
}

// IsAllowed reports whether command is permitted. Matching is against
// the raw command string (including any pipe or redirection tokens) —
// deliberately: the allowlist is a hint about intent, not a parser that
// understands shell grammar. See spec §4.5 and §9.
func (l *List) IsAllowed(command string) bool {
	if l.AllowAny {
		return true
	}
	trimmed := strings.TrimLeft(command, " \t")
	for _, prefix := range l.Prefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}
