package dex

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sonirico/go-hyperliquid"
)

// Side is the direction of a candidate order as a test declares it.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide accepts buy/sell in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown order side %q", s)
}

// Native maps the side onto the exchange's book side.
func (s Side) Native() (hyperliquid.OrderSide, error) {
	switch s {
	case SideBuy:
		return hyperliquid.OrderSideBid, nil
	case SideSell:
		return hyperliquid.OrderSideAsk, nil
	}
	return "", fmt.Errorf("unknown order side %q", string(s))
}

// OrderType selects the time in force used when a candidate is placed.
type OrderType string

const (
	OrderTypeLimit OrderType = "limit"
	OrderTypeIOC   OrderType = "ioc"
)

// CandidateOrder is an order a test wants to appear as already resting on
// the exchange.
type CandidateOrder struct {
	MarketName string         `json:"marketName" yaml:"marketName"`
	Owner      common.Address `json:"owner" yaml:"owner"`
	Side       Side           `json:"side" yaml:"side"`
	Price      float64        `json:"price" yaml:"price"`
	Size       float64        `json:"size" yaml:"size"`
	Type       OrderType      `json:"type,omitempty" yaml:"type,omitempty"`
	ClientID   string         `json:"clientId,omitempty" yaml:"clientId,omitempty"`
}

// CreateOrderRequest converts the candidate into the request the exchange
// client submits when placing it.
func (c CandidateOrder) CreateOrderRequest() hyperliquid.CreateOrderRequest {
	tif := hyperliquid.TifGtc
	if c.Type == OrderTypeIOC {
		tif = hyperliquid.TifIoc
	}

	req := hyperliquid.CreateOrderRequest{
		Coin:  c.MarketName,
		IsBuy: c.Side == SideBuy,
		Price: c.Price,
		Size:  c.Size,
		OrderType: hyperliquid.OrderType{
			Limit: &hyperliquid.LimitOrderType{Tif: tif},
		},
	}
	if c.ClientID != "" {
		cloid := c.ClientID
		req.ClientOrderID = &cloid
	}
	return req
}

// MarketInfo describes a market as listed by the exchange.
type MarketInfo struct {
	Name         string         `json:"name"`
	Address      common.Address `json:"address"`
	ProgramID    common.Address `json:"programId"`
	BaseMint     common.Address `json:"baseMint"`
	QuoteMint    common.Address `json:"quoteMint"`
	TickSize     float64        `json:"tickSize"`
	MinOrderSize float64        `json:"minOrderSize"`
	Deprecated   bool           `json:"deprecated"`
}

// Market is a resolved market handle. Native is the exchange client's own
// market object; its operations are the ones fixtures replace.
type Market struct {
	MarketInfo
	Native *MarketOps
}

// NewMarket builds a market handle whose native operations are all
// unavailable until something supplies them.
func NewMarket(info MarketInfo) *Market {
	return &Market{
		MarketInfo: info,
		Native:     UnavailableMarketOps(),
	}
}

// Order is a resting order in the exchange's native representation.
type Order struct {
	OrderID           string                `json:"orderId"`
	ClientID          string                `json:"clientId,omitempty"`
	Owner             common.Address        `json:"owner"`
	OpenOrdersAddress common.Address        `json:"openOrdersAddress"`
	OpenOrdersSlot    int                   `json:"openOrdersSlot"`
	Side              hyperliquid.OrderSide `json:"side"`
	Price             float64               `json:"price"`
	PriceLots         int64                 `json:"priceLots"`
	Size              float64               `json:"size"`
	SizeLots          int64                 `json:"sizeLots"`
	FeeTier           int                   `json:"feeTier"`
}

// OrderBook is a market's book snapshot together with the market handle.
type OrderBook struct {
	Market *Market
	Bids   []Order
	Asks   []Order
}

// OpenOrdersAccount holds one owner's resting orders within one market.
type OpenOrdersAccount struct {
	Address         common.Address `json:"address"`
	Market          common.Address `json:"market"`
	Owner           common.Address `json:"owner"`
	Slot            int            `json:"slot"`
	BaseTokenFree   float64        `json:"baseTokenFree"`
	BaseTokenTotal  float64        `json:"baseTokenTotal"`
	QuoteTokenFree  float64        `json:"quoteTokenFree"`
	QuoteTokenTotal float64        `json:"quoteTokenTotal"`
	Orders          []Order        `json:"orders"`
}

// Ticker is the last traded price of a market. Timestamp is unix millis.
type Ticker struct {
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// Fill is an executed trade reported by the market's event queue.
type Fill struct {
	OrderID   string                `json:"orderId"`
	Side      hyperliquid.OrderSide `json:"side"`
	Price     float64               `json:"price"`
	Size      float64               `json:"size"`
	FeeCost   float64               `json:"feeCost"`
	OpenOrder common.Address        `json:"openOrders"`
}

// Token is a token known to the chain client.
type Token struct {
	Symbol   string         `json:"symbol"`
	Address  common.Address `json:"address"`
	Decimals int            `json:"decimals"`
}

// Settlement is one owner's request to settle an open orders account.
type Settlement struct {
	Owner          common.Address
	OpenOrders     OpenOrdersAccount
	BaseWallet     common.Address
	QuoteWallet    common.Address
	ReferrerWallet *common.Address
}

// CancelResult carries the transaction signatures of a cancel-and-settle.
type CancelResult struct {
	Cancellation    string `json:"cancelation"`
	FundsSettlement string `json:"fundsSettlement"`
}
