// Package orderid encodes the identifiers given to synthesized resting
// orders. An id is 16 bytes: the leading four bytes of the market and owner
// addresses, a per-market sequence and a CRC32 over the first twelve bytes,
// all big endian.
package orderid

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const size = 16

var (
	ErrHexTooShort       = errors.New("orderid: want 16 bytes")
	ErrIncorrectChecksum = errors.New("orderid: checksum does not match")
)

type OrderId struct {
	Market   uint32 `json:"market"`
	Owner    uint32 `json:"owner"`
	Sequence uint32 `json:"sequence"`
}

func New(market, owner common.Address, sequence uint32) OrderId {
	return OrderId{
		Market:   tag(market),
		Owner:    tag(owner),
		Sequence: sequence,
	}
}

func tag(addr common.Address) uint32 {
	return binary.BigEndian.Uint32(addr[:4])
}

// InMarket reports whether the id was issued for the market at addr.
func (id OrderId) InMarket(addr common.Address) bool {
	return id.Market == tag(addr)
}

// OwnedBy reports whether the id was issued for owner.
func (id OrderId) OwnedBy(owner common.Address) bool {
	return id.Owner == tag(owner)
}

func (id *OrderId) Hex() string {
	return "0x" + hex.EncodeToString(id.AsHex())
}

// AsHex returns the 16 byte encoding.
func (id *OrderId) AsHex() []byte {
	out := make([]byte, 0, size)
	out = binary.BigEndian.AppendUint32(out, id.Market)
	out = binary.BigEndian.AppendUint32(out, id.Owner)
	out = binary.BigEndian.AppendUint32(out, id.Sequence)
	return binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(out))
}

// FromHex decodes the 16 byte encoding and verifies its checksum.
func FromHex(v []byte) (*OrderId, error) {
	if len(v) != size {
		return nil, ErrHexTooShort
	}
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc32.ChecksumIEEE(v[:12]))
	if !bytes.Equal(sum[:], v[12:]) {
		return nil, ErrIncorrectChecksum
	}

	return &OrderId{
		Market:   binary.BigEndian.Uint32(v[0:4]),
		Owner:    binary.BigEndian.Uint32(v[4:8]),
		Sequence: binary.BigEndian.Uint32(v[8:12]),
	}, nil
}

// FromHexString accepts the Hex form, with or without the 0x prefix and
// with spaces between groups.
func FromHexString(s string) (*OrderId, error) {
	s = strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(s), "0x"), " ", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("orderid: decode %q: %w", s, err)
	}
	return FromHex(b)
}
