package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/recomma/dexfixture/cmd/dexfixture/internal/config"
	"github.com/recomma/dexfixture/dex"
	"github.com/recomma/dexfixture/fixture"
	"github.com/recomma/dexfixture/internal/testutil"
	rlog "github.com/recomma/dexfixture/log"
	"github.com/recomma/dexfixture/openorders"
	"github.com/recomma/dexfixture/orderid"
	"github.com/recomma/dexfixture/patches"
	"github.com/recomma/dexfixture/pkg/auditlog"
)

const scenarioYAML = `
- marketName: BTC/USDC
  owner: 0x1111111111111111111111111111111111111111
  side: buy
  price: 100
  size: 1
- marketName: BTC/USDC
  owner: "0x2222222222222222222222222222222222222222"
  side: SELL
  price: 101
  size: 2
`

func runCommand(t *testing.T, cfg config.AppConfig, command string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), cfg, command, &out)
	return out.String(), err
}

func TestKeysListsDataset(t *testing.T) {
	out, err := runCommand(t, config.DefaultConfig(), "keys")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 13)
	require.Contains(t, lines, "exchange/getMarketsInformation")
	require.Contains(t, lines, fixture.TickerKey(testutil.BTCUSDC).String())
}

func TestTickerCommand(t *testing.T) {
	out, err := runCommand(t, config.DefaultConfig(), "ticker")
	require.NoError(t, err)

	var ticker dex.Ticker
	require.NoError(t, json.Unmarshal([]byte(out), &ticker))
	require.InDelta(t, 16832.5, ticker.Price, 1e-9)
	require.Equal(t, int64(1668086152104), ticker.Timestamp)
}

func TestTickerWithPatchesDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DisablePatches = true

	_, err := runCommand(t, cfg, "ticker")
	require.ErrorIs(t, err, dex.ErrBackendUnavailable)
}

func TestOpenOrdersCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0o600))

	cfg := config.DefaultConfig()
	cfg.CandidatesPath = path
	cfg.Owner = testutil.OwnerA.Hex()
	cfg.StartIndex = 4

	out, err := runCommand(t, cfg, "open-orders")
	require.NoError(t, err)

	var accounts []dex.OpenOrdersAccount
	require.NoError(t, json.Unmarshal([]byte(out), &accounts))
	require.Len(t, accounts, 2)
	require.Equal(t, 4, accounts[0].Slot)
	require.Equal(t, testutil.OwnerA, accounts[0].Owner)
	require.Equal(t, 5, accounts[1].Slot)
	require.Equal(t, testutil.OwnerB, accounts[1].Owner)
}

func TestOpenOrdersRejectsNonFiniteCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- marketName: BTC/USDC
  owner: "0x1111111111111111111111111111111111111111"
  side: buy
  price: .inf
  size: 1
`), 0o600))

	cfg := config.DefaultConfig()
	cfg.CandidatesPath = path

	_, err := runCommand(t, cfg, "open-orders")
	require.ErrorIs(t, err, openorders.ErrInvalidCandidate)
}

func TestOpenOrdersRejectsMarketOutsideSession(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Market = "SRM/USDC"

	_, err := runCommand(t, cfg, "open-orders")
	require.ErrorContains(t, err, "not in the session markets")
}

func TestExportRoundTrip(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutPath = filepath.Join(t.TempDir(), "fixtures.db")

	_, err := runCommand(t, cfg, "export")
	require.NoError(t, err)

	store, err := fixture.OpenSQLite(context.Background(), cfg.OutPath, nil)
	require.NoError(t, err)
	require.Equal(t, 13, store.Len())

	// A recorded dataset drives the other commands.
	cfg.FixturesPath = cfg.OutPath
	out, err := runCommand(t, cfg, "keys")
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 13)

	_, err = runCommand(t, cfg, "export")
	require.ErrorContains(t, err, "already exists")
}

func TestLoadCandidates(t *testing.T) {
	dir := t.TempDir()

	candidates, err := loadCandidates("")
	require.NoError(t, err)
	require.Nil(t, candidates)

	jsonPath := filepath.Join(dir, "c.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"marketName":"ETH/USDC","owner":"0x3333333333333333333333333333333333333333","side":"Buy","price":1200,"size":0.5}]`), 0o600))
	candidates, err = loadCandidates(jsonPath)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, dex.SideBuy, candidates[0].Side)
	require.Equal(t, testutil.OwnerC, candidates[0].Owner)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("- side: hold\n"), 0o600))
	_, err = loadCandidates(badPath)
	require.ErrorContains(t, err, "candidate #0")
}

func TestActivationsCommand(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "error"
	cfg.AuditDB = filepath.Join(t.TempDir(), "audit.db")

	_, err := runCommand(t, cfg, "activations")
	require.ErrorContains(t, err, "audit db")

	handler, closer, err := config.GetLogHandler(cfg)
	require.NoError(t, err)
	ctx := rlog.ContextWithLogger(context.Background(), slog.New(handler))
	require.NoError(t, run(ctx, cfg, "ticker", io.Discard))
	require.NoError(t, closer.Close())

	out, err := runCommand(t, cfg, "activations")
	require.NoError(t, err)

	var entries []auditlog.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.NotEmpty(t, entries)

	seen := map[string]bool{}
	for _, e := range entries {
		require.NotEmpty(t, e.Session)
		seen[e.Patch] = true
	}
	require.True(t, seen[string(patches.GetTicker)])
	require.True(t, seen[string(patches.LoadMarket)])

	cfg.AuditSession = "unknown"
	out, err = runCommand(t, cfg, "activations")
	require.NoError(t, err)
	require.JSONEq(t, "[]", out)
}

func TestOrderIDCommand(t *testing.T) {
	id := orderid.New(testutil.ETHUSDC, testutil.OwnerB, 3)

	cfg := config.DefaultConfig()
	cfg.OrderID = id.Hex()
	out, err := runCommand(t, cfg, "order-id")
	require.NoError(t, err)

	var decoded struct {
		Market     uint32 `json:"market"`
		Owner      uint32 `json:"owner"`
		Sequence   uint32 `json:"sequence"`
		MarketName string `json:"marketName"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, id.Market, decoded.Market)
	require.Equal(t, id.Owner, decoded.Owner)
	require.Equal(t, uint32(3), decoded.Sequence)
	require.Equal(t, "ETH/USDC", decoded.MarketName)

	raw := id.AsHex()
	raw[15] ^= 0xff
	cfg.OrderID = hex.EncodeToString(raw)
	_, err = runCommand(t, cfg, "order-id")
	require.ErrorIs(t, err, orderid.ErrIncorrectChecksum)
}
