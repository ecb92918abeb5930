package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path on top of Defaults, then applies
// DEXFIXTURE_* environment overrides. An empty path skips the file. The
// result is not validated.
func Load(path string) (*Session, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("decode %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides reports every malformed value; a typo in the kill-switch
// must not leave fixtures silently active.
func applyEnvOverrides(cfg *Session) error {
	setStringSlice(&cfg.Markets, "DEXFIXTURE_MARKETS")
	setStr(&cfg.SignatureLabel, "DEXFIXTURE_SIGNATURE_LABEL")
	setStr(&cfg.Wallet.Owner, "DEXFIXTURE_WALLET_OWNER")
	setStr(&cfg.Wallet.PrivateKey, "DEXFIXTURE_WALLET_PRIVATE_KEY")

	return errors.Join(
		setBool(&cfg.DisablePatches, "DEXFIXTURE_DISABLE_PATCHES"),
		setUint64(&cfg.SignatureSeed, "DEXFIXTURE_SIGNATURE_SEED"),
	)
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	*dst = b
	return nil
}

func setUint64(dst *uint64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %q is not an unsigned integer", key, v)
	}
	*dst = n
	return nil
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
