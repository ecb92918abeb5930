// Package config holds the test-session configuration consumed by the fixture
// layer: which markets batch patches cover, the wallet identity the keypair
// patch answers for, and the switch that turns every patch into a no-op.
package config

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/recomma/dexfixture/signature"
)

// DefaultPrivateKeyHex is a throwaway key for fixture sessions. It must never
// hold funds.
const DefaultPrivateKeyHex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

const defaultSignatureLabel = "dexfixture"

var ErrWalletMismatch = errors.New("config: wallet owner does not match private key")

type Session struct {
	// Markets is the allow-list batch patches iterate, in order.
	Markets []string `toml:"markets"`

	// DisablePatches turns every activation into a no-op so the same tests
	// run against a live backend.
	DisablePatches bool `toml:"disable_patches"`

	// SignatureSeed seeds synthesized transaction signatures. Zero derives
	// the seed from SignatureLabel.
	SignatureSeed  uint64 `toml:"signature_seed"`
	SignatureLabel string `toml:"signature_label"`

	Wallet WalletConfig `toml:"wallet"`
}

// WalletConfig is the wallet identity as written in configuration.
type WalletConfig struct {
	Owner      string `toml:"owner"`
	PrivateKey string `toml:"private_key"`
}

// Wallet is a parsed wallet identity.
type Wallet struct {
	Owner      common.Address
	PrivateKey *ecdsa.PrivateKey
}

func Defaults() Session {
	return Session{
		Markets:        []string{"BTC/USDC", "ETH/USDC", "SOL/USDC"},
		SignatureLabel: defaultSignatureLabel,
		Wallet: WalletConfig{
			PrivateKey: DefaultPrivateKeyHex,
		},
	}
}

// Seed returns the signature seed of the session.
func (s *Session) Seed() uint64 {
	if s.SignatureSeed != 0 {
		return s.SignatureSeed
	}
	label := s.SignatureLabel
	if label == "" {
		label = defaultSignatureLabel
	}
	return signature.SeedFromLabel(label)
}

// Validate reports every problem at once.
func (s *Session) Validate() error {
	var errs []string

	if len(s.Markets) == 0 {
		errs = append(errs, "markets: at least one market is required")
	}
	seen := make(map[string]struct{}, len(s.Markets))
	for _, name := range s.Markets {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, "markets: empty market name")
			continue
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Sprintf("markets: %q listed twice", name))
		}
		seen[name] = struct{}{}
	}

	if _, err := s.Wallet.Resolve(); err != nil {
		errs = append(errs, "wallet: "+err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid session config:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

// Resolve parses the private key and derives the owner address from it. When
// Owner is set it must match the derived address.
func (w WalletConfig) Resolve() (Wallet, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(w.PrivateKey), "0x")
	if raw == "" {
		return Wallet{}, errors.New("private_key is required")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse private_key: %w", err)
	}
	derived := crypto.PubkeyToAddress(key.PublicKey)

	if owner := strings.TrimSpace(w.Owner); owner != "" {
		if !common.IsHexAddress(owner) {
			return Wallet{}, fmt.Errorf("owner %q is not an address", owner)
		}
		if common.HexToAddress(owner) != derived {
			return Wallet{}, fmt.Errorf("%w: %s != %s", ErrWalletMismatch, owner, derived.Hex())
		}
	}

	return Wallet{Owner: derived, PrivateKey: key}, nil
}
