package patches

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/recomma/dexfixture/dex"
	"github.com/recomma/dexfixture/patch"
)

func (r *Registry) loadTokens(context.Context, Args) error {
	patch.Apply(r.journal, &r.conn.Chain.LoadTokens, func(context.Context) (map[string]dex.Token, error) {
		return map[string]dex.Token{}, nil
	})
	return nil
}

// getKeypair answers only for the configured wallet owner.
func (r *Registry) getKeypair(context.Context, Args) error {
	wallet := r.cfg.Wallet
	patch.Apply(r.journal, &r.conn.Chain.Keypair, func(_ context.Context, address string) (*ecdsa.PrivateKey, error) {
		if wallet.PrivateKey != nil && common.IsHexAddress(address) && common.HexToAddress(address) == wallet.Owner {
			return wallet.PrivateKey, nil
		}
		return nil, fmt.Errorf("%w %q", ErrUnrecognizedAddress, address)
	})
	return nil
}
