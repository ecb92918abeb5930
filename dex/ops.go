package dex

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sonirico/go-hyperliquid"
)

var (
	ErrBackendUnavailable = errors.New("dex: backend unavailable")
	ErrMarketNotFound     = errors.New("dex: market not found")
	ErrOrderBookNotFound  = errors.New("dex: order book not found")
)

func unavailable(op string) error {
	return fmt.Errorf("%w: %s", ErrBackendUnavailable, op)
}

// ChainOps is the set of chain client operations the connector depends on.
type ChainOps struct {
	LoadTokens func(ctx context.Context) (map[string]Token, error)
	Keypair    func(ctx context.Context, address string) (*ecdsa.PrivateKey, error)
}

// ExchangeOps is the set of exchange client operations the connector
// depends on.
type ExchangeOps struct {
	MarketsInformation         func(ctx context.Context) ([]MarketInfo, error)
	LoadMarket                 func(ctx context.Context, address common.Address) (*Market, error)
	Ticker                     func(ctx context.Context, marketName string) (Ticker, error)
	LoadFills                  func(ctx context.Context, market *Market, limit int) ([]Fill, error)
	PlaceOrders                func(ctx context.Context, market *Market, orders []hyperliquid.CreateOrderRequest) (string, error)
	CancelOrdersAndSettleFunds func(ctx context.Context, market *Market, owner common.Address, orders []Order) (CancelResult, error)
	SettleFunds                func(ctx context.Context, market *Market, owner common.Address) (string, error)
	SettleSeveralFunds         func(ctx context.Context, market *Market, settlements []Settlement) (string, error)
	SettleFundsForMarket       func(ctx context.Context, marketName string, owner common.Address) (string, error)

	// FindOpenOrdersForMarketAndOwner is the legacy per-account lookup.
	FindOpenOrdersForMarketAndOwner func(ctx context.Context, market, owner common.Address) ([]OpenOrdersAccount, error)
}

// MarketOps is the set of operations on a native market object.
type MarketOps struct {
	LoadBids                       func(ctx context.Context) ([]Order, error)
	LoadAsks                       func(ctx context.Context) ([]Order, error)
	LoadOrdersForOwner             func(ctx context.Context, owner common.Address) ([]Order, error)
	FindOpenOrdersAccountsForOwner func(ctx context.Context, owner common.Address) ([]OpenOrdersAccount, error)
}

// UnavailableChainOps returns chain operations that fail every call.
func UnavailableChainOps() *ChainOps {
	return &ChainOps{
		LoadTokens: func(context.Context) (map[string]Token, error) {
			return nil, unavailable("loadTokens")
		},
		Keypair: func(context.Context, string) (*ecdsa.PrivateKey, error) {
			return nil, unavailable("keypair")
		},
	}
}

// UnavailableExchangeOps returns exchange operations that fail every call.
func UnavailableExchangeOps() *ExchangeOps {
	return &ExchangeOps{
		MarketsInformation: func(context.Context) ([]MarketInfo, error) {
			return nil, unavailable("marketsInformation")
		},
		LoadMarket: func(context.Context, common.Address) (*Market, error) {
			return nil, unavailable("loadMarket")
		},
		Ticker: func(context.Context, string) (Ticker, error) {
			return Ticker{}, unavailable("ticker")
		},
		LoadFills: func(context.Context, *Market, int) ([]Fill, error) {
			return nil, unavailable("loadFills")
		},
		PlaceOrders: func(context.Context, *Market, []hyperliquid.CreateOrderRequest) (string, error) {
			return "", unavailable("placeOrders")
		},
		CancelOrdersAndSettleFunds: func(context.Context, *Market, common.Address, []Order) (CancelResult, error) {
			return CancelResult{}, unavailable("cancelOrdersAndSettleFunds")
		},
		SettleFunds: func(context.Context, *Market, common.Address) (string, error) {
			return "", unavailable("settleFunds")
		},
		SettleSeveralFunds: func(context.Context, *Market, []Settlement) (string, error) {
			return "", unavailable("settleSeveralFunds")
		},
		SettleFundsForMarket: func(context.Context, string, common.Address) (string, error) {
			return "", unavailable("settleFundsForMarket")
		},
		FindOpenOrdersForMarketAndOwner: func(context.Context, common.Address, common.Address) ([]OpenOrdersAccount, error) {
			return nil, unavailable("findOpenOrdersForMarketAndOwner")
		},
	}
}

// UnavailableMarketOps returns native market operations that fail every call.
func UnavailableMarketOps() *MarketOps {
	return &MarketOps{
		LoadBids: func(context.Context) ([]Order, error) {
			return nil, unavailable("loadBids")
		},
		LoadAsks: func(context.Context) ([]Order, error) {
			return nil, unavailable("loadAsks")
		},
		LoadOrdersForOwner: func(context.Context, common.Address) ([]Order, error) {
			return nil, unavailable("loadOrdersForOwner")
		},
		FindOpenOrdersAccountsForOwner: func(context.Context, common.Address) ([]OpenOrdersAccount, error) {
			return nil, unavailable("findOpenOrdersAccountsForOwner")
		},
	}
}
