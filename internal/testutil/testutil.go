// internal/testutil/testutil.go
package testutil

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/recomma/dexfixture/dex"
)

var (
	OwnerA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	OwnerB = common.HexToAddress("0x2222222222222222222222222222222222222222")
	OwnerC = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// Markets of the embedded default dataset.
var (
	BTCUSDC = common.HexToAddress("0xc3519d1e631458631e8eb430f93c70599e2081e0")
	ETHUSDC = common.HexToAddress("0x3cde7c181ee0045681d54da0a8020010e2677ddf")
	SOLUSDC = common.HexToAddress("0x227ce89ba828e03e6a222864b89511f1ada73ddf")
)

type CandidateOpt func(*dex.CandidateOrder)

func NewCandidate(t *testing.T, market string, owner common.Address, opts ...CandidateOpt) dex.CandidateOrder {
	t.Helper()

	c := dex.CandidateOrder{
		MarketName: market,
		Owner:      owner,
		Side:       dex.SideBuy,
		Price:      1.0,
		Size:       1.0,
		Type:       dex.OrderTypeLimit,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Modifiers
func WithSide(side dex.Side) CandidateOpt {
	return func(c *dex.CandidateOrder) { c.Side = side }
}
func WithPrice(val float64) CandidateOpt {
	return func(c *dex.CandidateOrder) { c.Price = val }
}
func WithSize(val float64) CandidateOpt {
	return func(c *dex.CandidateOrder) { c.Size = val }
}
func WithType(typ dex.OrderType) CandidateOpt {
	return func(c *dex.CandidateOrder) { c.Type = typ }
}
func WithClientID(id string) CandidateOpt {
	return func(c *dex.CandidateOrder) { c.ClientID = id }
}

// NewOrderBook returns an empty book for a market built from the given
// parameters.
func NewOrderBook(t *testing.T, name string, address common.Address, tickSize, minOrderSize float64) *dex.OrderBook {
	t.Helper()

	market := dex.NewMarket(dex.MarketInfo{
		Name:         name,
		Address:      address,
		TickSize:     tickSize,
		MinOrderSize: minOrderSize,
	})
	return &dex.OrderBook{Market: market}
}
