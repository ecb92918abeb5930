package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/recomma/dexfixture/pkg/auditlog"
)

func TestFlagsTakePrecedenceOverEnv(t *testing.T) {
	t.Setenv("DEXFIXTURE_MARKET", "ETH/USDC")
	t.Setenv("DEXFIXTURE_START_INDEX", "3")
	t.Setenv("DEXFIXTURE_LOG_GROUPS", "patches,-fixture")

	cfg := DefaultConfig()
	fs := NewConfigFlagSet(&cfg)
	require.NoError(t, fs.Parse([]string{"--market", "SOL/USDC", "open-orders"}))
	require.NoError(t, ApplyEnvDefaults(fs, &cfg))

	require.Equal(t, "SOL/USDC", cfg.Market)
	require.Equal(t, 3, cfg.StartIndex)
	require.Equal(t, []string{"patches", "-fixture"}, cfg.LogGroups)
	require.Equal(t, "open-orders", fs.Arg(0))
}

func TestApplyEnvDefaultsRejectsBadValues(t *testing.T) {
	t.Setenv("DEXFIXTURE_START_INDEX", "first")

	cfg := DefaultConfig()
	fs := NewConfigFlagSet(&cfg)
	require.NoError(t, fs.Parse(nil))
	require.ErrorContains(t, ApplyEnvDefaults(fs, &cfg), "DEXFIXTURE_START_INDEX")
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		command string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{name: "keys", command: "keys"},
		{name: "ticker", command: "ticker"},
		{name: "ticker without market", command: "ticker", mutate: func(c *AppConfig) { c.Market = "" }, wantErr: "market"},
		{name: "negative start", command: "open-orders", mutate: func(c *AppConfig) { c.StartIndex = -1 }, wantErr: "start-index"},
		{name: "export without out", command: "export", wantErr: "out"},
		{name: "activations without db", command: "activations", wantErr: "audit-db"},
		{name: "activations", command: "activations", mutate: func(c *AppConfig) { c.AuditDB = "audit.db" }},
		{name: "order-id without id", command: "order-id", wantErr: "order-id"},
		{name: "no command", command: "", wantErr: "unknown command"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(tt *testing.T) {
			cfg := DefaultConfig()
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			err := ValidateConfig(cfg, tc.command)
			if tc.wantErr == "" {
				require.NoError(tt, err)
				return
			}
			require.ErrorContains(tt, err, tc.wantErr)
		})
	}
}

func TestLogHandlerWritesFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "dexfixture.log")
	cfg.LogLevel = "debug"
	cfg.LogFormatJSON = true

	handler, closer, err := GetLogHandler(cfg)
	require.NoError(t, err)
	logger := slog.New(handler)
	require.True(t, handler.Enabled(context.Background(), slog.LevelDebug))

	logger.WithGroup("patches").Debug("patch active")
	require.NoError(t, closer.Close())

	raw, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	require.Contains(t, string(raw), "patch active")
}

func TestLogHandlerDefaults(t *testing.T) {
	handler, closer, err := GetLogHandler(AppConfig{LogLevel: "loud"})
	require.NoError(t, err)
	require.NoError(t, closer.Close())
	require.False(t, handler.Enabled(context.Background(), slog.LevelDebug))
	require.True(t, handler.Enabled(context.Background(), slog.LevelInfo))
}

func TestLogHandlerRecordsActivations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuditDB = filepath.Join(t.TempDir(), "audit.db")
	cfg.LogGroups = []string{"-patches"}

	handler, closer, err := GetLogHandler(cfg)
	require.NoError(t, err)

	logger := slog.New(handler).WithGroup("patches").With(slog.String("session", "s-1"))
	logger.Debug("patch active", slog.String("patch", "exchange/loadFills"))
	require.NoError(t, closer.Close())

	sink, err := auditlog.OpenSQLite(context.Background(), cfg.AuditDB)
	require.NoError(t, err)
	defer sink.Close()

	entries, err := sink.Entries(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "exchange/loadFills", entries[0].Patch)
}
