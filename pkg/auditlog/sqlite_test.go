package auditlog_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/recomma/dexfixture/config"
	"github.com/recomma/dexfixture/dex"
	"github.com/recomma/dexfixture/fixture"
	"github.com/recomma/dexfixture/patches"
	"github.com/recomma/dexfixture/pkg/auditlog"
)

func TestSQLiteSinkRecordsRegistryActivations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.db")

	sink, err := auditlog.OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	handler, err := auditlog.NewHandler(sink)
	require.NoError(t, err)

	store, err := fixture.Default()
	require.NoError(t, err)
	session := config.Defaults()
	cfg, err := patches.ConfigFromSession(&session)
	require.NoError(t, err)
	cfg.Logger = slog.New(handler).WithGroup("patches")

	conn := dex.NewConnector(nil, nil)
	reg := patches.New(conn, store, cfg)
	t.Cleanup(reg.Journal().Restore)

	require.NoError(t, reg.Activate(ctx, patches.GetMarketsInformation))
	require.NoError(t, reg.Activate(ctx, patches.LoadMarket))
	require.Error(t, reg.Activate(ctx, patches.GetTicker))
	require.NoError(t, handler.Close(ctx))

	id := reg.Session().String()
	entries, err := sink.Entries(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var patchesSeen []string
	for _, e := range entries {
		require.Equal(t, id, e.Session)
		require.Equal(t, "patches", e.Scope)
		patchesSeen = append(patchesSeen, e.Patch)
	}
	require.Contains(t, patchesSeen, string(patches.GetMarketsInformation))
	require.Contains(t, patchesSeen, string(patches.LoadMarket))

	last := entries[len(entries)-1]
	require.Equal(t, string(patches.GetTicker), last.Patch)
	require.Equal(t, "WARN", last.Level)
	require.Contains(t, last.Attrs["error"], "missing argument")

	other, err := sink.Entries(ctx, "another-session")
	require.NoError(t, err)
	require.Empty(t, other)

	all, err := sink.Entries(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, len(entries))
}
