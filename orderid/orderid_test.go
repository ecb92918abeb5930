package orderid

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func mustHex(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, " ", "")
	out, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return out
}

func TestAsHex(t *testing.T) {
	for _, tc := range getTests() {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.oid.AsHex()
			want := mustHex(tc.hex)
			if !bytes.Equal(want, got) {
				t.Fatalf("not equal\nwant: % X\ngot:  % X", want, got)
			}
		})
	}
}

func TestFromHex(t *testing.T) {
	for _, tc := range getTests() {
		t.Run(tc.name, func(tt *testing.T) {
			oid, err := FromHex(mustHex(tc.hex))
			require.NoError(tt, err)

			if diff := cmp.Diff(tc.oid, *oid); diff != "" {
				tt.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFromHexString(t *testing.T) {
	for _, tc := range getTests() {
		t.Run(tc.name, func(tt *testing.T) {
			oid, err := FromHexString("0x" + strings.ReplaceAll(tc.hex, " ", ""))
			require.NoError(tt, err)
			require.Equal(tt, tc.oid, *oid)
		})
	}
}

func TestFromHexRejectsBadInput(t *testing.T) {
	_, err := FromHex(mustHex("00000001 00000002"))
	require.ErrorIs(t, err, ErrHexTooShort)

	_, err = FromHex(mustHex("00000001 00000002 00000003 00 00 00 00"))
	require.ErrorIs(t, err, ErrIncorrectChecksum)

	_, err = FromHexString("0xzz")
	require.Error(t, err)
}

func TestNewTagsAddresses(t *testing.T) {
	market := common.HexToAddress("0xa8dda56b5d7c3bfb2c9b4cf6b0c4ebd5d2a4a1b1")
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")

	oid := New(market, owner, 1)
	require.Equal(t, OrderId{Market: 0xa8dda56b, Owner: 0x11111111, Sequence: 1}, oid)
	require.Equal(t, "0xa8dda56b1111111100000001c316868c", oid.Hex())
	require.True(t, oid.InMarket(market))
	require.True(t, oid.OwnedBy(owner))
	require.False(t, oid.InMarket(owner))
}

type hexData struct {
	name string
	oid  OrderId
	hex  string
}

func getTests() []hexData {
	return []hexData{
		{
			name: "Empty",
			oid:  OrderId{},
			hex:  "00000000 00000000 00000000 7B D5 C6 6F",
		},
		{
			name: "small values sample",
			oid:  OrderId{Market: 1, Owner: 2, Sequence: 3},
			hex:  "00000001 00000002 00000003 8F 67 D0 F6",
		},
		{
			name: "boundary",
			oid: OrderId{
				Market:   0x01020304,
				Owner:    0xAABBCCDD,
				Sequence: 3735928559, // 0xDEADBEEF within uint32
			},
			hex: "01020304 AABBCCDD DEADBEEF 5D AF 20 B1",
		},
	}
}
