package patches

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/recomma/dexfixture/dex"
	"github.com/recomma/dexfixture/fixture"
	rlog "github.com/recomma/dexfixture/log"
	"github.com/recomma/dexfixture/patch"
	"github.com/shopspring/decimal"
	"github.com/sonirico/go-hyperliquid"
)

func (r *Registry) getMarketsInformation(ctx context.Context, _ Args) error {
	var infos []dex.MarketInfo
	if err := r.store.Decode(fixture.MarketsInformationKey(), &infos); err != nil {
		return err
	}

	patch.Apply(r.journal, &r.conn.Exchange.MarketsInformation, func(context.Context) ([]dex.MarketInfo, error) {
		return slices.Clone(infos), nil
	})
	rlog.LoggerFromContext(ctx).Debug("markets listed from fixture", slog.Int("markets", len(infos)))
	return nil
}

// loadMarket decodes the market descriptor on every call, so a market
// without a recorded descriptor fails when it is loaded, not at activation.
func (r *Registry) loadMarket(context.Context, Args) error {
	store := r.store
	patch.Apply(r.journal, &r.conn.Exchange.LoadMarket, func(_ context.Context, address common.Address) (*dex.Market, error) {
		var info dex.MarketInfo
		if err := store.Decode(fixture.MarketKey(address), &info); err != nil {
			return nil, err
		}
		return dex.NewMarket(info), nil
	})
	return nil
}

type tickerFixture struct {
	Market      string `json:"market"`
	Price       string `json:"price"`
	LastUpdated string `json:"last_updated"`
}

func (t tickerFixture) ticker() (dex.Ticker, error) {
	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return dex.Ticker{}, fmt.Errorf("ticker price %q: %w", t.Price, err)
	}
	updated, err := time.Parse(time.RFC3339Nano, t.LastUpdated)
	if err != nil {
		return dex.Ticker{}, fmt.Errorf("ticker last_updated %q: %w", t.LastUpdated, err)
	}
	return dex.Ticker{
		Price:     price.InexactFloat64(),
		Timestamp: updated.UnixMilli(),
	}, nil
}

// getTicker adds the market's recorded ticker to the session's table and
// installs a replacement that answers from that table.
func (r *Registry) getTicker(ctx context.Context, args Args) error {
	if args.Market == "" {
		return fmt.Errorf("%w: market", ErrMissingArgument)
	}

	market, err := r.conn.GetMarket(ctx, args.Market)
	if err != nil {
		return err
	}

	var raw tickerFixture
	if err := r.store.Decode(fixture.TickerKey(market.Address), &raw); err != nil {
		return err
	}
	ticker, err := raw.ticker()
	if err != nil {
		return fmt.Errorf("%s: %w", fixture.TickerKey(market.Address), err)
	}

	r.mu.Lock()
	r.tickers[args.Market] = ticker
	r.mu.Unlock()

	patch.Apply(r.journal, &r.conn.Exchange.Ticker, r.lookupTicker)

	rlog.LoggerFromContext(ctx).Debug("ticker fixture loaded",
		slog.String("market", args.Market),
		slog.Float64("price", ticker.Price),
		slog.Int64("timestamp", ticker.Timestamp),
	)
	return nil
}

func (r *Registry) lookupTicker(_ context.Context, marketName string) (dex.Ticker, error) {
	r.mu.Lock()
	ticker, ok := r.tickers[marketName]
	r.mu.Unlock()
	if !ok {
		return dex.Ticker{}, fmt.Errorf("%w: ticker for market %q", fixture.ErrNotFound, marketName)
	}
	return ticker, nil
}

func (r *Registry) loadFills(context.Context, Args) error {
	patch.Apply(r.journal, &r.conn.Exchange.LoadFills, func(context.Context, *dex.Market, int) ([]dex.Fill, error) {
		return []dex.Fill{}, nil
	})
	return nil
}

func (r *Registry) placeOrders(context.Context, Args) error {
	sigs := r.sigs
	patch.Apply(r.journal, &r.conn.Exchange.PlaceOrders, func(_ context.Context, _ *dex.Market, orders []hyperliquid.CreateOrderRequest) (string, error) {
		return sigs.Signature(len(orders)), nil
	})
	return nil
}

func (r *Registry) cancelOrdersAndSettleFunds(context.Context, Args) error {
	sigs := r.sigs
	patch.Apply(r.journal, &r.conn.Exchange.CancelOrdersAndSettleFunds, func(_ context.Context, _ *dex.Market, _ common.Address, orders []dex.Order) (dex.CancelResult, error) {
		return dex.CancelResult{
			Cancellation:    sigs.Signature(len(orders)),
			FundsSettlement: sigs.Signature(len(orders)),
		}, nil
	})
	return nil
}

func (r *Registry) settleFunds(context.Context, Args) error {
	sigs := r.sigs
	patch.Apply(r.journal, &r.conn.Exchange.SettleFunds, func(context.Context, *dex.Market, common.Address) (string, error) {
		return sigs.Signature(1), nil
	})
	return nil
}

func (r *Registry) settleSeveralFunds(context.Context, Args) error {
	sigs := r.sigs
	patch.Apply(r.journal, &r.conn.Exchange.SettleSeveralFunds, func(_ context.Context, _ *dex.Market, settlements []dex.Settlement) (string, error) {
		return sigs.Signature(len(settlements)), nil
	})
	return nil
}

func (r *Registry) settleFundsForMarket(context.Context, Args) error {
	sigs := r.sigs
	patch.Apply(r.journal, &r.conn.Exchange.SettleFundsForMarket, func(context.Context, string, common.Address) (string, error) {
		return sigs.Signature(1), nil
	})
	return nil
}

// findForMarketAndOwner guards the legacy lookup: code under test must not
// reach it.
func (r *Registry) findForMarketAndOwner(context.Context, Args) error {
	patch.Apply(r.journal, &r.conn.Exchange.FindOpenOrdersForMarketAndOwner, func(context.Context, common.Address, common.Address) ([]dex.OpenOrdersAccount, error) {
		return nil, ErrNotImplemented
	})
	return nil
}
