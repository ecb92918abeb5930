package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/recomma/dexfixture/cmd/dexfixture/internal/config"
	sessionconfig "github.com/recomma/dexfixture/config"
	"github.com/recomma/dexfixture/dex"
	"github.com/recomma/dexfixture/fixture"
	rlog "github.com/recomma/dexfixture/log"
	"github.com/recomma/dexfixture/orderid"
	"github.com/recomma/dexfixture/patches"
	"github.com/recomma/dexfixture/pkg/auditlog"
)

func run(ctx context.Context, cfg config.AppConfig, command string, out io.Writer) error {
	logger := rlog.LoggerFromContext(ctx)

	if command == "activations" {
		return listActivations(ctx, cfg.AuditDB, cfg.AuditSession, out)
	}

	session, err := sessionconfig.Load(cfg.ConfigPath)
	if err != nil {
		return err
	}
	if cfg.DisablePatches {
		session.DisablePatches = true
	}
	if err := session.Validate(); err != nil {
		return err
	}

	store, err := loadStore(ctx, cfg.FixturesPath, logger.WithGroup("fixture"))
	if err != nil {
		return err
	}
	logger.Debug("fixtures loaded", slog.Int("records", store.Len()))

	switch command {
	case "keys":
		for _, key := range store.Keys() {
			if _, err := fmt.Fprintln(out, key.String()); err != nil {
				return err
			}
		}
		return nil
	case "export":
		if err := fixture.SaveSQLite(ctx, cfg.OutPath, store, logger.WithGroup("fixture")); err != nil {
			return err
		}
		logger.Info("fixtures exported", slog.String("path", cfg.OutPath), slog.Int("records", store.Len()))
		return nil
	case "order-id":
		decoded, err := decodeOrderID(store, cfg.OrderID)
		if err != nil {
			return err
		}
		return writeJSON(out, decoded)
	}

	h, err := newHarness(session, store, logger)
	if err != nil {
		return err
	}
	defer h.reg.Journal().Restore()

	switch command {
	case "ticker":
		ticker, err := h.ticker(ctx, cfg.Market)
		if err != nil {
			return err
		}
		return writeJSON(out, ticker)
	case "open-orders":
		if !slices.Contains(session.Markets, cfg.Market) {
			return fmt.Errorf("market %q is not in the session markets %v", cfg.Market, session.Markets)
		}
		candidates, err := loadCandidates(cfg.CandidatesPath)
		if err != nil {
			return err
		}
		owner := h.wallet.Owner
		if cfg.Owner != "" {
			if !common.IsHexAddress(cfg.Owner) {
				return fmt.Errorf("owner %q is not an address", cfg.Owner)
			}
			owner = common.HexToAddress(cfg.Owner)
		}
		accounts, err := h.openOrders(ctx, cfg.Market, owner, cfg.StartIndex, candidates)
		if err != nil {
			return err
		}
		return writeJSON(out, accounts)
	}
	return fmt.Errorf("unknown command %q", command)
}

func listActivations(ctx context.Context, path, session string, out io.Writer) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("audit db %q: %w", path, err)
	}
	sink, err := auditlog.OpenSQLite(ctx, path)
	if err != nil {
		return err
	}
	defer sink.Close()

	entries, err := sink.Entries(ctx, session)
	if err != nil {
		return err
	}
	return writeJSON(out, entries)
}

type decodedOrderID struct {
	orderid.OrderId
	MarketName string `json:"marketName,omitempty"`
}

// decodeOrderID parses a synthesized order id and names its market when the
// dataset lists one with a matching address tag.
func decodeOrderID(store *fixture.Store, raw string) (decodedOrderID, error) {
	id, err := orderid.FromHexString(raw)
	if err != nil {
		return decodedOrderID{}, err
	}
	out := decodedOrderID{OrderId: *id}

	var infos []dex.MarketInfo
	if err := store.Decode(fixture.MarketsInformationKey(), &infos); err != nil {
		return decodedOrderID{}, err
	}
	for _, info := range infos {
		if id.InMarket(info.Address) {
			out.MarketName = info.Name
			break
		}
	}
	return out, nil
}

func loadStore(ctx context.Context, path string, logger *slog.Logger) (*fixture.Store, error) {
	if path == "" {
		return fixture.Default()
	}
	return fixture.Load(ctx, path, logger)
}

// harness is a connector with no live backend and the session's registry.
type harness struct {
	conn    *dex.Connector
	reg     *patches.Registry
	wallet  sessionconfig.Wallet
	markets []string
}

func newHarness(session *sessionconfig.Session, store *fixture.Store, logger *slog.Logger) (*harness, error) {
	pcfg, err := patches.ConfigFromSession(session)
	if err != nil {
		return nil, err
	}
	pcfg.Logger = logger.WithGroup("patches")

	conn := dex.NewConnector(nil, nil, dex.WithConnectorLogger(logger.WithGroup("connector")))
	return &harness{
		conn:    conn,
		reg:     patches.New(conn, store, pcfg),
		wallet:  pcfg.Wallet,
		markets: session.Markets,
	}, nil
}

func (h *harness) activate(ctx context.Context, id patches.ID, args ...patches.Arg) error {
	return h.reg.Activate(ctx, id, args...)
}

func (h *harness) marketFixtures(ctx context.Context) error {
	for _, id := range []patches.ID{patches.GetMarketsInformation, patches.LoadMarket} {
		if err := h.activate(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (h *harness) ticker(ctx context.Context, market string) (dex.Ticker, error) {
	if err := h.marketFixtures(ctx); err != nil {
		return dex.Ticker{}, err
	}
	if err := h.activate(ctx, patches.GetTicker, patches.WithMarket(market)); err != nil {
		return dex.Ticker{}, err
	}
	return h.conn.GetTicker(ctx, market)
}

func (h *harness) openOrders(ctx context.Context, market string, owner common.Address, startIndex int, candidates []dex.CandidateOrder) ([]dex.OpenOrdersAccount, error) {
	if err := h.marketFixtures(ctx); err != nil {
		return nil, err
	}
	if err := h.activate(ctx, patches.AsksBidsForAllMarkets); err != nil {
		return nil, err
	}

	books, err := h.conn.GetOrderBooks(ctx, h.markets...)
	if err != nil {
		return nil, err
	}
	if err := h.activate(ctx, patches.FindOpenOrdersAccountsForOwner,
		patches.WithStartIndex(startIndex),
		patches.WithOrderBooks(books),
		patches.WithCandidates(candidates),
	); err != nil {
		return nil, err
	}
	return h.conn.GetOpenOrdersAccounts(ctx, market, owner)
}

// loadCandidates reads a YAML or JSON list of candidate orders. An empty
// path means none.
func loadCandidates(path string) ([]dex.CandidateOrder, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates: %w", err)
	}

	var candidates []dex.CandidateOrder
	if err := yaml.Unmarshal(raw, &candidates); err != nil {
		return nil, fmt.Errorf("decode candidates %s: %w", path, err)
	}
	for i := range candidates {
		side, err := dex.ParseSide(string(candidates[i].Side))
		if err != nil {
			return nil, fmt.Errorf("candidate #%d: %w", i, err)
		}
		candidates[i].Side = side
	}
	return candidates, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
