// Package env normalizes the process environment before the server
// wires up its dependencies, so commands dispatched through
// execute_command and the assistant binary configured via
// ASSISTANT_BINARY_NAME still resolve when this server is launched from
// a minimal-PATH context (Claude Desktop, systemd, cron) rather than an
// interactive shell.
package env

import (
	"os"
	"path/filepath"
	"strings"
)

// unixStandardPaths and windowsStandardPaths are prepended to PATH, in
// order, when missing.
var (
	unixStandardPaths = []string{
		"/usr/local/bin",
		"/usr/bin",
		"/bin",
		"/usr/local/sbin",
		"/usr/sbin",
		"/sbin",
	}
	windowsStandardPaths = []string{
		`C:\Windows\system32`,
		`C:\Windows`,
		`C:\Windows\System32\Wbem`,
		`C:\Windows\System32\WindowsPowerShell\v1.0`,
	}
)

// EnsureStandardPaths prepends whichever platform's standard system
// directories are missing from PATH. Safe to call once at startup,
// before any allowlisted command or the assistant binary is spawned.
func EnsureStandardPaths() {
	current := os.Getenv("PATH")

	standard := unixStandardPaths
	if runningOnWindows() {
		standard = windowsStandardPaths
	}

	present := make(map[string]bool)
	for _, p := range strings.Split(current, string(os.PathListSeparator)) {
		if p != "" {
			present[p] = true
		}
	}

	var missing []string
	for _, p := range standard {
		if !present[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return
	}

	// Standard paths go first: they're the ones a minimal launch context
	// is missing, so they should win any resolution ambiguity.
	newPath := strings.Join(missing, string(os.PathListSeparator))
	if current != "" {
		newPath += string(os.PathListSeparator) + current
	}
	os.Setenv("PATH", newPath)
}

func runningOnWindows() bool {
	return filepath.Separator == '\\' || strings.Contains(strings.ToLower(os.Getenv("OS")), "windows")
}
