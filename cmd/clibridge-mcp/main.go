// Command clibridge-mcp runs the RPC server described in spec §1: a
// long-lived process that exposes the external command-line assistant
// as a structured tool over line-delimited JSON on stdin/stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relstride/clibridge-mcp/internal/allowlist"
	"github.com/relstride/clibridge-mcp/internal/config"
	"github.com/relstride/clibridge-mcp/internal/logging"
	"github.com/relstride/clibridge-mcp/internal/metrics"
	"github.com/relstride/clibridge-mcp/internal/process"
	"github.com/relstride/clibridge-mcp/internal/session"
	"github.com/relstride/clibridge-mcp/internal/sessionmgr"
	"github.com/relstride/clibridge-mcp/internal/tools"
	"github.com/relstride/clibridge-mcp/pkg/env"
	"github.com/relstride/clibridge-mcp/pkg/mcp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	serverName    = "clibridge-mcp"
	serverVersion = "0.1.0"

	// hardActiveAge is the fixed ceiling past which sweep force-terminates
	// an active session regardless of MAX_AGE_MS (spec §3 invariant 7).
	// Not part of the configuration table by design: it's a backstop, not
	// a knob.
	hardActiveAge = 24 * time.Hour
)

func main() {
	env.EnsureStandardPaths()

	root := &cobra.Command{
		Use:           serverName,
		Short:         "Expose an external CLI assistant as a structured MCP tool over stdio",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd())
	root.AddCommand(buildVersionCmd())
	root.AddCommand(buildConfigCmd())
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the RPC server on stdio (the default action)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server name and version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("%s %s\n", serverName, serverVersion)
			return nil
		},
	}
}

func buildConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logging.New(cfg.Debug)
	defer log.Sync()
	zl := log.Named("main")
	zl.Info("starting", zap.String("version", serverVersion))

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				zl.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	store := session.NewStore(session.Config{
		MaxCompleted:  cfg.MaxCompleted,
		MaxAge:        cfg.MaxAge,
		HardActiveAge: hardActiveAge,
		Metrics:       m,
		Logger:        log.Named("session_store"),
	})
	runner := process.New(store, log.Named("process_runner"), m, cfg.MaxBuf, cfg.SigtermGrace)
	mgr := sessionmgr.New(runner, store, log.Named("session_manager"), "/bin/bash")

	list := allowlist.New(cfg.AllowAny, cfg.AllowedPrefixes)
	registry := tools.RegisterAll(mgr, list, tools.AssistantConfig{
		Binary:           cfg.AssistantBinary,
		OrchestratorMode: cfg.OrchestratorMode,
		DefaultTimeout:   cfg.DefaultAssistantTimeout,
		ServerName:       serverName,
		ServerVersion:    serverVersion,
	}, int(cfg.DefaultCmdTimeout.Milliseconds()), log.Named("tools"))

	server := mcp.NewServer(
		mcp.ServerInfo{Name: serverName, Version: serverVersion},
		mcp.ServerConfig{Capabilities: mcp.ServerCapabilities{
			Tools: map[string]interface{}{"list": true, "call": true},
		}},
		log.Named("rpc_server"),
	)
	registerToolHandlers(server, registry)

	sweeper := cron.New()
	sweepSpec := fmt.Sprintf("@every %s", cfg.SweepInterval.String())
	if _, err := sweeper.AddFunc(sweepSpec, func() {
		zl.Debug("sweep tick")
		mgr.Sweep()
	}); err != nil {
		return fmt.Errorf("scheduling sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		zl.Info("shutdown signal received, running best-effort sweep")
		mgr.Sweep()
		os.Exit(0)
	}()

	transport := mcp.NewStdioTransport(log.Named("stdio_transport"))
	if err := server.Connect(transport); err != nil {
		return fmt.Errorf("starting transport: %w", err)
	}

	zl.Info("ready", zap.String("assistant_binary", cfg.AssistantBinary))
	select {}
}

// registerToolHandlers bridges the JSON-RPC method names (tools/list,
// tools/call, plus their legacy no-slash aliases) to the tool registry
// (spec §4.6, §4.8).
func registerToolHandlers(server *mcp.Server, registry *tools.Registry) {
	server.SetRequestHandler("tools/list", func(params json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(mcp.ListToolsResponse{Tools: registry.List()})
	})
	server.SetRequestHandler("list_tools", func(params json.RawMessage) (json.RawMessage, error) {
		return server.GetHandler("tools/list")(params)
	})

	server.SetRequestHandler("tools/call", func(params json.RawMessage) (json.RawMessage, error) {
		var req mcp.CallToolRequest
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, &mcp.ErrorResponse{Code: "InvalidParams", Message: fmt.Sprintf("invalid call parameters: %v", err)}
		}
		resp, err := registry.Call(context.Background(), req)
		if err != nil {
			code := "InternalError"
			if c, ok := tools.CodeOf(err); ok {
				code = c
			}
			return nil, &mcp.ErrorResponse{Code: code, Message: err.Error()}
		}
		return json.Marshal(resp)
	})
	server.SetRequestHandler("call_tool", func(params json.RawMessage) (json.RawMessage, error) {
		return server.GetHandler("tools/call")(params)
	})
}
