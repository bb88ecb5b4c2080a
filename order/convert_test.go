package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiplierConverter(t *testing.T) {
	tests := []struct {
		name       string
		in         LimitOrder
		spec       DependentPairSpec
		wantPrice  float64
		wantVolume float64
		wantSide   TradeType
	}{
		{
			name:       "无乘数原样复制",
			in:         NewLimitOrder(d(110), d(5), TradeTypeSell),
			spec:       DependentPairSpec{AssetPairID: "BTCEUR"},
			wantPrice:  110,
			wantVolume: -5,
			wantSide:   TradeTypeSell,
		},
		{
			name:       "价格与数量乘数",
			in:         NewLimitOrder(d(100), d(2), TradeTypeBuy),
			spec:       DependentPairSpec{AssetPairID: "BTCEUR", PriceMultiplier: d(0.9), VolumeMultiplier: d(0.5)},
			wantPrice:  90,
			wantVolume: 1,
			wantSide:   TradeTypeBuy,
		},
		{
			name:       "反向交易对",
			in:         NewLimitOrder(d(4), d(2), TradeTypeSell),
			spec:       DependentPairSpec{AssetPairID: "USDBTC", Inverted: true},
			wantPrice:  0.25,
			wantVolume: 8,
			wantSide:   TradeTypeBuy,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := MultiplierConverter{}.Convert(context.Background(), tc.in, tc.spec)
			require.NoError(t, err)
			assert.True(t, out.Price.Equal(d(tc.wantPrice)), out.Price.String())
			assert.True(t, out.Volume.Equal(d(tc.wantVolume)), out.Volume.String())
			assert.Equal(t, tc.wantSide, out.TradeType)
			assert.NotEqual(t, tc.in.ID, out.ID)
		})
	}
}

func TestMultiplierConverter_InvertZeroPrice(t *testing.T) {
	_, err := MultiplierConverter{}.Convert(context.Background(),
		NewLimitOrder(d(0), d(1), TradeTypeBuy),
		DependentPairSpec{AssetPairID: "USDBTC", Inverted: true})
	assert.ErrorIs(t, err, errZeroPrice)
}

func TestDepthAdditionalVolume(t *testing.T) {
	base := []LimitOrder{
		NewLimitOrder(d(110), d(5), TradeTypeSell),
		NewLimitOrder(d(90), d(5), TradeTypeBuy),
		NewLimitOrder(d(120), d(5), TradeTypeSell),
		NewLimitOrder(d(80), d(5), TradeTypeBuy),
	}
	gen := DepthAdditionalVolume{Count: 2, PriceStep: d(10), Volume: d(1)}

	extra, err := gen.Orders(context.Background(), base)
	require.NoError(t, err)
	require.Len(t, extra, 4)

	assert.True(t, extra[0].Price.Equal(d(130)))
	assert.True(t, extra[0].Volume.Equal(d(-1)))
	assert.True(t, extra[1].Price.Equal(d(70)))
	assert.True(t, extra[1].Volume.Equal(d(1)))
	assert.True(t, extra[2].Price.Equal(d(140)))
	assert.True(t, extra[3].Price.Equal(d(60)))
}

func TestDepthAdditionalVolume_Edges(t *testing.T) {
	// 买价不能为非正
	extra, err := DepthAdditionalVolume{Count: 3, PriceStep: d(5), Volume: d(1)}.Orders(context.Background(), []LimitOrder{
		NewLimitOrder(d(8), d(1), TradeTypeBuy),
	})
	require.NoError(t, err)
	require.Len(t, extra, 1)
	assert.True(t, extra[0].Price.Equal(d(3)))

	extra, err = DepthAdditionalVolume{}.Orders(context.Background(), []LimitOrder{NewLimitOrder(d(8), d(1), TradeTypeBuy)})
	require.NoError(t, err)
	assert.Empty(t, extra)

	extra, err = NoAdditionalVolume{}.Orders(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, extra)
}

func TestPairInfo_Rounding(t *testing.T) {
	info := PairInfo{AssetPairID: "BTCUSD", PriceAccuracy: 2, VolumeAccuracy: 4, MinVolume: d(0.001)}

	assert.True(t, info.RoundPrice(d(100.456)).Equal(d(100.46)))
	assert.True(t, info.RoundVolume(d(-1.23456)).Equal(d(1.2346)))
	assert.True(t, info.BelowMinVolume(d(0.0004)))
	assert.False(t, info.BelowMinVolume(d(-0.001)))
	assert.NoError(t, info.Validate())

	assert.Error(t, PairInfo{}.Validate())
	assert.Error(t, PairInfo{AssetPairID: "X", PriceAccuracy: -1}.Validate())
	assert.Error(t, PairInfo{AssetPairID: "X", MinVolume: d(-1)}.Validate())

	_, err := StaticPairInfo{}.PairInfo("BTCUSD")
	assert.ErrorIs(t, err, ErrUnknownPair)
}

func TestTrade_SignedVolume(t *testing.T) {
	assert.True(t, Trade{Volume: d(3), Type: TradeTypeSell}.SignedVolume().Equal(d(-3)))
	assert.True(t, Trade{Volume: d(3), Type: TradeTypeBuy}.SignedVolume().Equal(d(3)))
	assert.True(t, Trade{Volume: d(-3), Type: TradeTypeBuy}.SignedVolume().Equal(d(3)))
}
