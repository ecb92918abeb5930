package patches

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/recomma/dexfixture/dex"
	"github.com/recomma/dexfixture/fixture"
	rlog "github.com/recomma/dexfixture/log"
	"github.com/recomma/dexfixture/openorders"
	"github.com/recomma/dexfixture/patch"
)

func (r *Registry) loadAsks(ctx context.Context, args Args) error {
	market, asks, err := r.bookSide(ctx, args, fixture.AsksKey)
	if err != nil {
		return err
	}
	patch.Apply(r.journal, &market.Native.LoadAsks, serveOrders(asks))
	return nil
}

func (r *Registry) loadBids(ctx context.Context, args Args) error {
	market, bids, err := r.bookSide(ctx, args, fixture.BidsKey)
	if err != nil {
		return err
	}
	patch.Apply(r.journal, &market.Native.LoadBids, serveOrders(bids))
	return nil
}

// bookSide resolves the named market and the recorded orders of one side of
// its book.
func (r *Registry) bookSide(ctx context.Context, args Args, keyFor func(common.Address) fixture.Key) (*dex.Market, []dex.Order, error) {
	if args.Market == "" {
		return nil, nil, fmt.Errorf("%w: market", ErrMissingArgument)
	}
	market, err := r.conn.GetMarket(ctx, args.Market)
	if err != nil {
		return nil, nil, err
	}

	var orders []dex.Order
	if err := r.store.Decode(keyFor(market.Address), &orders); err != nil {
		return nil, nil, err
	}
	return market, orders, nil
}

func serveOrders(orders []dex.Order) func(context.Context) ([]dex.Order, error) {
	return func(context.Context) ([]dex.Order, error) {
		return slices.Clone(orders), nil
	}
}

func (r *Registry) asksBidsForAllMarkets(ctx context.Context, _ Args) error {
	var b batch
	for _, name := range r.cfg.Markets {
		market := []Arg{WithMarket(name)}
		b.record(name, errors.Join(
			r.activateEntry(ctx, r.entries[LoadAsks], market),
			r.activateEntry(ctx, r.entries[LoadBids], market),
		))
	}
	return b.err()
}

// loadOrdersForOwner makes every allowed market report the candidates
// declared for it. The owner argument of the replaced call is ignored.
func (r *Registry) loadOrdersForOwner(ctx context.Context, args Args) error {
	var b batch
	for _, name := range r.cfg.Markets {
		mctx := rlog.ContextWithAttrs(ctx, slog.String("market", name))
		b.record(name, r.serveOwnerOrders(mctx, name, args.Candidates))
	}
	return b.err()
}

func (r *Registry) serveOwnerOrders(ctx context.Context, name string, candidates []dex.CandidateOrder) error {
	market, err := r.conn.GetMarket(ctx, name)
	if err != nil {
		return err
	}

	orders := []dex.Order{}
	if candidates != nil {
		orders, err = openorders.Normalize(market, candidates)
		if err != nil {
			return err
		}
	}

	patch.Apply(r.journal, &market.Native.LoadOrdersForOwner, func(context.Context, common.Address) ([]dex.Order, error) {
		return slices.Clone(orders), nil
	})
	rlog.LoggerFromContext(ctx).Debug("owner orders fixed", slog.Int("orders", len(orders)))
	return nil
}

// findOpenOrdersAccountsForOwner reconstructs the open orders accounts of
// every allowed market from its book and candidates, starting at the given
// slot. The accounts are computed once, here; the owner argument of the
// replaced call is ignored.
func (r *Registry) findOpenOrdersAccountsForOwner(ctx context.Context, args Args) error {
	if !args.hasStartIndex {
		return fmt.Errorf("%w: start index", ErrMissingArgument)
	}
	if args.OrderBooks == nil {
		return fmt.Errorf("%w: order books", ErrMissingArgument)
	}

	names, groups := openorders.GroupByMarket(args.Candidates)

	var b batch
	allowed := make(map[string]struct{}, len(r.cfg.Markets))
	for _, name := range r.cfg.Markets {
		allowed[name] = struct{}{}
		mctx := rlog.ContextWithAttrs(ctx, slog.String("market", name))
		b.record(name, r.serveAccounts(mctx, args.StartIndex, args.OrderBooks[name], groups[name]))
	}

	for _, name := range names {
		if _, ok := allowed[name]; ok {
			continue
		}
		if _, ok := args.OrderBooks[name]; !ok {
			b.failed = append(b.failed, &MarketError{Market: name, Err: dex.ErrOrderBookNotFound})
		}
	}
	return b.err()
}

func (r *Registry) serveAccounts(ctx context.Context, startIndex int, book *dex.OrderBook, candidates []dex.CandidateOrder) error {
	accounts, err := openorders.Reconstruct(startIndex, book, candidates)
	if err != nil {
		return err
	}

	market := book.Market
	if market.Native == nil {
		market.Native = dex.UnavailableMarketOps()
	}
	patch.Apply(r.journal, &market.Native.FindOpenOrdersAccountsForOwner, func(context.Context, common.Address) ([]dex.OpenOrdersAccount, error) {
		return cloneAccounts(accounts), nil
	})

	rlog.LoggerFromContext(ctx).Debug("open orders accounts reconstructed",
		slog.Int("start", startIndex),
		slog.Int("accounts", len(accounts)),
	)
	return nil
}

func cloneAccounts(accounts []dex.OpenOrdersAccount) []dex.OpenOrdersAccount {
	out := make([]dex.OpenOrdersAccount, len(accounts))
	for i, account := range accounts {
		account.Orders = slices.Clone(account.Orders)
		out[i] = account
	}
	return out
}
