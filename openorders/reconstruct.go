package openorders

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/recomma/dexfixture/dex"
	"github.com/shopspring/decimal"
	"github.com/sonirico/go-hyperliquid"
)

var ErrInvalidStartIndex = errors.New("openorders: start index must not be negative")

// Reconstruct synthesizes the open orders accounts the exchange would report
// for the book's market if the candidates were resting on it.
//
// Candidates are grouped by owner in the order owners first appear. Group i
// occupies slot startIndex+i. A market without candidates yields no accounts.
// The book is read, never modified.
func Reconstruct(startIndex int, book *dex.OrderBook, candidates []dex.CandidateOrder) ([]dex.OpenOrdersAccount, error) {
	if book == nil || book.Market == nil {
		return nil, dex.ErrOrderBookNotFound
	}
	if startIndex < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStartIndex, startIndex)
	}

	market := book.Market
	orders, err := Normalize(market, candidates)
	if err != nil {
		return nil, err
	}

	var owners []common.Address
	byOwner := make(map[common.Address][]dex.Order)
	for _, o := range orders {
		if _, ok := byOwner[o.Owner]; !ok {
			owners = append(owners, o.Owner)
		}
		byOwner[o.Owner] = append(byOwner[o.Owner], o)
	}

	accounts := make([]dex.OpenOrdersAccount, 0, len(owners))
	for i, owner := range owners {
		slot := startIndex + i
		account := dex.OpenOrdersAccount{
			Address: AccountAddress(market.Address, owner, slot),
			Market:  market.Address,
			Owner:   owner,
			Slot:    slot,
		}

		base, quote := decimal.Zero, decimal.Zero
		for _, o := range byOwner[owner] {
			o.OpenOrdersAddress = account.Address
			o.OpenOrdersSlot = slot

			size := decimal.NewFromFloat(o.Size)
			if o.Side == hyperliquid.OrderSideAsk {
				base = base.Add(size)
			} else {
				quote = quote.Add(size.Mul(decimal.NewFromFloat(o.Price)))
			}
			account.Orders = append(account.Orders, o)
		}
		account.BaseTokenTotal, _ = base.Float64()
		account.QuoteTokenTotal, _ = quote.Float64()

		accounts = append(accounts, account)
	}
	return accounts, nil
}

// AccountAddress derives the address of the open orders account in the
// given slot.
func AccountAddress(market, owner common.Address, slot int) common.Address {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], uint64(slot))
	return common.BytesToAddress(crypto.Keccak256(market.Bytes(), owner.Bytes(), idx[:]))
}

// Flatten returns every order of the accounts in slot order.
func Flatten(accounts []dex.OpenOrdersAccount) []dex.Order {
	var out []dex.Order
	for _, account := range accounts {
		out = append(out, account.Orders...)
	}
	return out
}
