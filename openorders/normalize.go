// Package openorders turns the orders a test declares into the structures
// the exchange client reports for resting orders.
package openorders

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/recomma/dexfixture/dex"
	"github.com/recomma/dexfixture/orderid"
	"github.com/shopspring/decimal"
)

var ErrInvalidCandidate = errors.New("openorders: invalid candidate order")

// ForMarket keeps the candidates of one market in submission order.
func ForMarket(candidates []dex.CandidateOrder, marketName string) []dex.CandidateOrder {
	var out []dex.CandidateOrder
	for _, c := range candidates {
		if c.MarketName == marketName {
			out = append(out, c)
		}
	}
	return out
}

// GroupByMarket splits candidates per market. names lists the markets in the
// order they first appear.
func GroupByMarket(candidates []dex.CandidateOrder) (names []string, groups map[string][]dex.CandidateOrder) {
	groups = make(map[string][]dex.CandidateOrder)
	for _, c := range candidates {
		if _, ok := groups[c.MarketName]; !ok {
			names = append(names, c.MarketName)
		}
		groups[c.MarketName] = append(groups[c.MarketName], c)
	}
	return names, groups
}

// Normalize converts the market's candidates into native resting orders.
// The i-th kept candidate gets sequence i (1-based), which feeds its order
// id and, when the candidate has none, its client id.
func Normalize(market *dex.Market, candidates []dex.CandidateOrder) ([]dex.Order, error) {
	kept := ForMarket(candidates, market.Name)
	out := make([]dex.Order, 0, len(kept))

	for i, c := range kept {
		side, err := c.Side.Native()
		if err != nil {
			return nil, fmt.Errorf("%w: %s #%d: %v", ErrInvalidCandidate, market.Name, i, err)
		}
		if !positive(c.Price) || !positive(c.Size) {
			return nil, fmt.Errorf("%w: %s #%d: price %v and size %v must be positive and finite",
				ErrInvalidCandidate, market.Name, i, c.Price, c.Size)
		}

		seq := uint32(i + 1)
		oid := orderid.New(market.Address, c.Owner, seq)

		clientID := c.ClientID
		if clientID == "" {
			clientID = strconv.FormatUint(uint64(seq), 10)
		}

		out = append(out, dex.Order{
			OrderID:   oid.Hex(),
			ClientID:  clientID,
			Owner:     c.Owner,
			Side:      side,
			Price:     c.Price,
			PriceLots: lots(decimal.NewFromFloat(c.Price), market.TickSize),
			Size:      c.Size,
			SizeLots:  lots(decimal.NewFromFloat(c.Size), market.MinOrderSize),
		})
	}
	return out, nil
}

// positive rejects NaN and infinities, which decimal cannot represent.
func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func lots(v decimal.Decimal, step float64) int64 {
	if step <= 0 {
		return 0
	}
	return v.Div(decimal.NewFromFloat(step)).Round(0).IntPart()
}
