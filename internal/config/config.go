// Package config resolves the process-wide configuration table from
// spec.md §3, loaded once at startup with no hot-reload. Precedence,
// highest first: explicit environment variables (the exact names listed
// in spec §6) > a config.json next to the executable or in the working
// directory > built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/relstride/clibridge-mcp/internal/allowlist"
	"github.com/spf13/viper"
)

// Config is the resolved, immutable configuration snapshot.
type Config struct {
	DefaultCmdTimeout       time.Duration
	DefaultAssistantTimeout time.Duration
	MaxCompleted            int
	MaxAge                  time.Duration
	SigtermGrace            time.Duration
	SweepInterval           time.Duration
	MaxBuf                  int
	AllowedPrefixes         []string
	AllowAny                bool
	AssistantBinary         string
	OrchestratorMode        bool
	Debug                   bool
	// MetricsAddr, if non-empty, is the listen address for /metrics.
	// Not part of spec.md; an additive operational knob (see SPEC_FULL.md).
	MetricsAddr string
}

const configFileBaseName = "config"

// key names, matching spec.md §3/§6 verbatim — these are the external
// interface and must not be renamed.
const (
	keyDefaultCmdTimeoutMs       = "DEFAULT_CMD_TIMEOUT_MS"
	keyDefaultAssistantTimeoutMs = "DEFAULT_ASSISTANT_TIMEOUT_MS"
	keyMaxCompleted              = "MAX_COMPLETED"
	keyMaxAgeMs                  = "MAX_AGE_MS"
	keySigtermGraceMs            = "SIGTERM_GRACE_MS"
	keySweepIntervalMs           = "SWEEP_INTERVAL_MS"
	keyMaxBuf                    = "MAX_BUF"
	keyAllowedCommands           = "ALLOWED_COMMANDS"
	keyAllowAllCommands          = "ALLOW_ALL_COMMANDS"
	keyAssistantBinaryName       = "ASSISTANT_BINARY_NAME"
	keyOrchestratorMode          = "ORCHESTRATOR_MODE"
	keyDebug                     = "DEBUG"
	keyMetricsAddr               = "METRICS_ADDR"
)

// Load resolves the configuration: defaults, then an optional config
// file, then environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault(keyDefaultCmdTimeoutMs, 30_000)
	v.SetDefault(keyDefaultAssistantTimeoutMs, 1_800_000)
	v.SetDefault(keyMaxCompleted, 100)
	v.SetDefault(keyMaxAgeMs, 3_600_000)
	v.SetDefault(keySigtermGraceMs, 1_000)
	v.SetDefault(keySweepIntervalMs, 600_000)
	v.SetDefault(keyMaxBuf, 1_048_576)
	v.SetDefault(keyAllowedCommands, "")
	v.SetDefault(keyAllowAllCommands, false)
	v.SetDefault(keyAssistantBinaryName, "claude")
	v.SetDefault(keyOrchestratorMode, false)
	v.SetDefault(keyDebug, false)
	v.SetDefault(keyMetricsAddr, "")

	v.SetConfigName(configFileBaseName)
	v.SetConfigType("json")
	for _, dir := range configSearchDirs() {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	for _, key := range []string{
		keyDefaultCmdTimeoutMs, keyDefaultAssistantTimeoutMs, keyMaxCompleted,
		keyMaxAgeMs, keySigtermGraceMs, keySweepIntervalMs, keyMaxBuf,
		keyAllowedCommands, keyAllowAllCommands, keyAssistantBinaryName,
		keyOrchestratorMode, keyDebug, keyMetricsAddr,
	} {
		if err := v.BindEnv(key, key); err != nil {
			return nil, fmt.Errorf("binding env var %s: %w", key, err)
		}
	}

	binaryName := v.GetString(keyAssistantBinaryName)
	if err := validateAssistantBinary(binaryName); err != nil {
		return nil, err
	}

	var prefixes []string
	if raw := v.GetString(keyAllowedCommands); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				prefixes = append(prefixes, p)
			}
		}
	} else {
		prefixes = allowlist.DefaultPrefixes
	}

	return &Config{
		DefaultCmdTimeout:       time.Duration(v.GetInt64(keyDefaultCmdTimeoutMs)) * time.Millisecond,
		DefaultAssistantTimeout: time.Duration(v.GetInt64(keyDefaultAssistantTimeoutMs)) * time.Millisecond,
		MaxCompleted:            v.GetInt(keyMaxCompleted),
		MaxAge:                  time.Duration(v.GetInt64(keyMaxAgeMs)) * time.Millisecond,
		SigtermGrace:            time.Duration(v.GetInt64(keySigtermGraceMs)) * time.Millisecond,
		SweepInterval:           time.Duration(v.GetInt64(keySweepIntervalMs)) * time.Millisecond,
		MaxBuf:                  v.GetInt(keyMaxBuf),
		AllowedPrefixes:         prefixes,
		AllowAny:                v.GetBool(keyAllowAllCommands),
		AssistantBinary:         binaryName,
		OrchestratorMode:        v.GetBool(keyOrchestratorMode),
		Debug:                   v.GetBool(keyDebug),
		MetricsAddr:             v.GetString(keyMetricsAddr),
	}, nil
}

// validateAssistantBinary rejects relative paths per spec §6: the value
// must be a simple name (resolved via PATH later, outside this spec's
// scope per §1) or an absolute path.
func validateAssistantBinary(name string) error {
	if name == "" {
		return fmt.Errorf("%s must not be empty", keyAssistantBinaryName)
	}
	if strings.ContainsAny(name, "/\\") && !filepath.IsAbs(name) {
		return fmt.Errorf("%s must be a simple name or an absolute path, got relative path %q", keyAssistantBinaryName, name)
	}
	return nil
}

// configSearchDirs returns the directory the executable lives in and
// the current working directory, matching the teacher's two-location
// fallback for config.json.
func configSearchDirs() []string {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		if real, err := filepath.EvalSymlinks(exe); err == nil {
			dirs = append(dirs, filepath.Dir(real))
		} else {
			dirs = append(dirs, filepath.Dir(exe))
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	return dirs
}
