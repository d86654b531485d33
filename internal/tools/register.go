package tools

import (
	"github.com/relstride/clibridge-mcp/internal/allowlist"
	"github.com/relstride/clibridge-mcp/internal/sessionmgr"
	"go.uber.org/zap"
)

// RegisterAll builds the five-tool catalog (spec §4.6) on top of a
// Session Manager and Command Allowlist.
func RegisterAll(mgr *sessionmgr.Manager, list *allowlist.List, assistant AssistantConfig, defaultCmdTimeoutMs int, log *zap.Logger) *Registry {
	r := NewRegistry(log)
	registerAssistant(r, assistant, mgr, log)
	registerExecuteCommand(r, list, mgr, defaultCmdTimeoutMs)
	registerReadOutput(r, mgr)
	registerForceTerminate(r, mgr)
	registerListSessions(r, mgr)
	return r
}
