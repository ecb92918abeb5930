package fixture

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DomainChain    = "chain"
	DomainExchange = "exchange"
)

// Key addresses one recorded payload. Lookups match all three segments
// exactly.
type Key struct {
	Domain    string `yaml:"domain"`
	Operation string `yaml:"operation"`
	Entity    string `yaml:"entity"`
}

// String joins the non-empty segments with "/".
func (k Key) String() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{k.Domain, k.Operation, k.Entity} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "/")
}

// AddressEntity is the entity segment used for on-chain addresses.
func AddressEntity(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func MarketsInformationKey() Key {
	return Key{Domain: DomainExchange, Operation: "getMarketsInformation"}
}

func MarketKey(market common.Address) Key {
	return Key{Domain: DomainExchange, Operation: "market", Entity: AddressEntity(market)}
}

func AsksKey(market common.Address) Key {
	return Key{Domain: DomainExchange, Operation: "market/asks", Entity: AddressEntity(market)}
}

func BidsKey(market common.Address) Key {
	return Key{Domain: DomainExchange, Operation: "market/bids", Entity: AddressEntity(market)}
}

func TickerKey(market common.Address) Key {
	return Key{Domain: DomainExchange, Operation: "getTicker", Entity: AddressEntity(market)}
}
