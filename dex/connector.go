package dex

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sonirico/go-hyperliquid"
	"golang.org/x/sync/singleflight"
)

// Connector is the trading connector. Every network-facing call goes through
// its Chain and Exchange operation sets, so swapping a function on either set
// changes what the connector observes.
type Connector struct {
	Chain    *ChainOps
	Exchange *ExchangeOps

	logger *slog.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	markets map[string]*Market
}

type ConnectorOption func(*Connector)

func WithConnectorLogger(logger *slog.Logger) ConnectorOption {
	return func(c *Connector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConnector wires the connector to the supplied operation sets. A nil set
// is replaced by one that fails every call.
func NewConnector(chain *ChainOps, exchange *ExchangeOps, opts ...ConnectorOption) *Connector {
	if chain == nil {
		chain = UnavailableChainOps()
	}
	if exchange == nil {
		exchange = UnavailableExchangeOps()
	}
	c := &Connector{
		Chain:    chain,
		Exchange: exchange,
		logger:   slog.Default().WithGroup("connector"),
		markets:  make(map[string]*Market),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetMarket resolves a market handle by name. The first resolution lists the
// exchange's markets and loads the matching one; later calls return the
// cached handle, so operations replaced on its Native set stay in effect.
func (c *Connector) GetMarket(ctx context.Context, name string) (*Market, error) {
	c.mu.RLock()
	market, ok := c.markets[name]
	c.mu.RUnlock()
	if ok {
		return market, nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		return c.loadMarket(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Market), nil
}

func (c *Connector) loadMarket(ctx context.Context, name string) (*Market, error) {
	c.mu.RLock()
	cached, ok := c.markets[name]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	infos, err := c.Exchange.MarketsInformation(ctx)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	var info *MarketInfo
	for i := range infos {
		if infos[i].Name == name {
			info = &infos[i]
			break
		}
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %q", ErrMarketNotFound, name)
	}

	market, err := c.Exchange.LoadMarket(ctx, info.Address)
	if err != nil {
		return nil, fmt.Errorf("load market %q: %w", name, err)
	}
	if market == nil {
		return nil, fmt.Errorf("%w: %q", ErrMarketNotFound, name)
	}
	if market.Name == "" {
		market.Name = name
	}
	if market.Native == nil {
		market.Native = UnavailableMarketOps()
	}

	c.mu.Lock()
	c.markets[name] = market
	c.mu.Unlock()

	c.logger.Debug("market resolved",
		slog.String("market", name),
		slog.String("address", market.Address.Hex()),
	)
	return market, nil
}

// GetMarkets resolves every named market.
func (c *Connector) GetMarkets(ctx context.Context, names ...string) (map[string]*Market, error) {
	out := make(map[string]*Market, len(names))
	for _, name := range names {
		market, err := c.GetMarket(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = market
	}
	return out, nil
}

// GetOrderBook loads both sides of a market's book.
func (c *Connector) GetOrderBook(ctx context.Context, name string) (*OrderBook, error) {
	market, err := c.GetMarket(ctx, name)
	if err != nil {
		return nil, err
	}

	bids, err := market.Native.LoadBids(ctx)
	if err != nil {
		return nil, fmt.Errorf("load bids for %q: %w", name, err)
	}
	asks, err := market.Native.LoadAsks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load asks for %q: %w", name, err)
	}

	return &OrderBook{Market: market, Bids: bids, Asks: asks}, nil
}

// GetOrderBooks loads the book of every named market, keyed by name.
func (c *Connector) GetOrderBooks(ctx context.Context, names ...string) (map[string]*OrderBook, error) {
	out := make(map[string]*OrderBook, len(names))
	for _, name := range names {
		book, err := c.GetOrderBook(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = book
	}
	return out, nil
}

func (c *Connector) GetTicker(ctx context.Context, name string) (Ticker, error) {
	return c.Exchange.Ticker(ctx, name)
}

// GetOpenOrders returns the owner's resting orders in a market.
func (c *Connector) GetOpenOrders(ctx context.Context, name string, owner common.Address) ([]Order, error) {
	market, err := c.GetMarket(ctx, name)
	if err != nil {
		return nil, err
	}
	return market.Native.LoadOrdersForOwner(ctx, owner)
}

// GetOpenOrdersAccounts returns the owner's open orders accounts in a market.
func (c *Connector) GetOpenOrdersAccounts(ctx context.Context, name string, owner common.Address) ([]OpenOrdersAccount, error) {
	market, err := c.GetMarket(ctx, name)
	if err != nil {
		return nil, err
	}
	return market.Native.FindOpenOrdersAccountsForOwner(ctx, owner)
}

func (c *Connector) GetFills(ctx context.Context, name string, limit int) ([]Fill, error) {
	market, err := c.GetMarket(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.Exchange.LoadFills(ctx, market, limit)
}

// PlaceOrders submits candidates grouped per market, in the order markets
// first appear. It returns the transaction signature of each market.
func (c *Connector) PlaceOrders(ctx context.Context, candidates []CandidateOrder) (map[string]string, error) {
	var names []string
	byMarket := make(map[string][]hyperliquid.CreateOrderRequest)
	for _, candidate := range candidates {
		if _, ok := byMarket[candidate.MarketName]; !ok {
			names = append(names, candidate.MarketName)
		}
		byMarket[candidate.MarketName] = append(byMarket[candidate.MarketName], candidate.CreateOrderRequest())
	}

	signatures := make(map[string]string, len(names))
	for _, name := range names {
		market, err := c.GetMarket(ctx, name)
		if err != nil {
			return signatures, err
		}
		sig, err := c.Exchange.PlaceOrders(ctx, market, byMarket[name])
		if err != nil {
			return signatures, fmt.Errorf("place orders on %q: %w", name, err)
		}
		signatures[name] = sig
	}
	return signatures, nil
}

// CancelOrders cancels every resting order of the owner in a market and
// settles the released funds.
func (c *Connector) CancelOrders(ctx context.Context, name string, owner common.Address) (CancelResult, error) {
	market, err := c.GetMarket(ctx, name)
	if err != nil {
		return CancelResult{}, err
	}
	orders, err := market.Native.LoadOrdersForOwner(ctx, owner)
	if err != nil {
		return CancelResult{}, fmt.Errorf("load orders for %q: %w", name, err)
	}
	return c.Exchange.CancelOrdersAndSettleFunds(ctx, market, owner, orders)
}

func (c *Connector) SettleFunds(ctx context.Context, name string, owner common.Address) (string, error) {
	return c.Exchange.SettleFundsForMarket(ctx, name, owner)
}

func (c *Connector) Keypair(ctx context.Context, address string) (*ecdsa.PrivateKey, error) {
	return c.Chain.Keypair(ctx, address)
}
