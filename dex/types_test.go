package dex

import (
	"testing"

	"github.com/sonirico/go-hyperliquid"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{in: "buy", want: SideBuy},
		{in: " SELL ", want: SideSell},
		{in: "Buy", want: SideBuy},
		{in: "bid", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseSide(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestSideNative(t *testing.T) {
	bid, err := SideBuy.Native()
	require.NoError(t, err)
	require.Equal(t, hyperliquid.OrderSideBid, bid)

	ask, err := SideSell.Native()
	require.NoError(t, err)
	require.Equal(t, hyperliquid.OrderSideAsk, ask)

	_, err = Side("hold").Native()
	require.Error(t, err)
}

func TestCandidateCreateOrderRequest(t *testing.T) {
	c := CandidateOrder{MarketName: "BTC/USDC", Side: SideBuy, Price: 100, Size: 1}

	req := c.CreateOrderRequest()
	require.Equal(t, "BTC/USDC", req.Coin)
	require.True(t, req.IsBuy)
	require.Equal(t, 100.0, req.Price)
	require.Equal(t, 1.0, req.Size)
	require.NotNil(t, req.OrderType.Limit)
	require.Equal(t, hyperliquid.TifGtc, req.OrderType.Limit.Tif)
	require.Nil(t, req.ClientOrderID)

	c.Side = SideSell
	c.Type = OrderTypeIOC
	c.ClientID = "abc"
	req = c.CreateOrderRequest()
	require.False(t, req.IsBuy)
	require.Equal(t, hyperliquid.TifIoc, req.OrderType.Limit.Tif)
	require.NotNil(t, req.ClientOrderID)
	require.Equal(t, "abc", *req.ClientOrderID)
}

func TestNewMarketIsUnavailable(t *testing.T) {
	m := NewMarket(MarketInfo{Name: "BTC/USDC"})
	require.NotNil(t, m.Native)
	_, err := m.Native.LoadAsks(t.Context())
	require.ErrorIs(t, err, ErrBackendUnavailable)
}
