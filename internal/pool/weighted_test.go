package pool

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexter-zone/dexvault/internal/types"
	"github.com/dexter-zone/dexvault/internal/utils"
)

func weightedPool(t *testing.T, bps uint16, balances map[types.AssetInfo]int64, weights map[types.AssetInfo]int64, exitFee *sdkmath.LegacyDec) types.PoolInfo {
	t.Helper()
	pool := newPool(types.EngineWeighted, bps, 6, balances)
	params := WeightedInitParams{ExitFee: exitFee}
	for _, info := range pool.AssetInfos() {
		params.Weights = append(params.Weights, WeightedAsset{Info: info, Amount: sdkmath.NewInt(weights[info])})
	}
	instantiate(t, Weighted{}, &pool, params)
	return pool
}

func TestPow(t *testing.T) {
	got, err := pow(sdkmath.LegacyMustNewDecFromStr("0.8"), sdkmath.LegacyMustNewDecFromStr("0.32"))
	require.NoError(t, err)
	assert.InDelta(t, 0.93108385, got.MustFloat64(), 1e-7)

	got, err = pow(sdkmath.LegacyMustNewDecFromStr("1.45"), sdkmath.LegacyMustNewDecFromStr("1.5"))
	require.NoError(t, err)
	assert.InDelta(t, 1.74603121, got.MustFloat64(), 1e-6)

	got, err = pow(sdkmath.LegacyMustNewDecFromStr("1.5"), sdkmath.LegacyNewDec(2))
	require.NoError(t, err)
	assert.True(t, got.Equal(sdkmath.LegacyMustNewDecFromStr("2.25")))

	got, err = pow(sdkmath.LegacyMustNewDecFromStr("0.3"), sdkmath.LegacyZeroDec())
	require.NoError(t, err)
	assert.True(t, got.Equal(sdkmath.LegacyOneDec()))

	_, err = pow(sdkmath.LegacyNewDec(2), sdkmath.LegacyMustNewDecFromStr("0.5"))
	assert.ErrorIs(t, err, errPowBase)
}

func TestWeightedInstantiate(t *testing.T) {
	pool := weightedPool(t, 30, map[types.AssetInfo]int64{atom: 0, osmo: 0}, map[types.AssetInfo]int64{atom: 1, osmo: 3}, nil)
	p := pool.Math.Weighted
	require.NotNil(t, p)
	assert.True(t, p.Weights[0].Weight.Equal(sdkmath.LegacyMustNewDecFromStr("0.25")))
	assert.True(t, p.Weights[1].Weight.Equal(sdkmath.LegacyMustNewDecFromStr("0.75")))
	assert.True(t, p.ExitFee.IsZero())
	assert.Equal(t, uint8(6), pool.LpPrecision)

	bad := []WeightedInitParams{
		{Weights: []WeightedAsset{{Info: atom, Amount: sdkmath.NewInt(1)}}},
		{Weights: []WeightedAsset{{Info: atom, Amount: sdkmath.NewInt(1)}, {Info: osmo, Amount: sdkmath.ZeroInt()}}},
		{Weights: []WeightedAsset{{Info: atom, Amount: sdkmath.NewInt(1)}, {Info: usdc, Amount: sdkmath.NewInt(1)}}},
		{Weights: []WeightedAsset{{Info: atom, Amount: sdkmath.NewInt(1)}, {Info: osmo, Amount: sdkmath.NewInt(1)}}, ExitFee: decPtr("0.02")},
	}
	for _, params := range bad {
		probe := newPool(types.EngineWeighted, 30, 6, map[types.AssetInfo]int64{atom: 0, osmo: 0})
		raw := mustJSON(t, params)
		_, err := Weighted{}.Instantiate(InstantiateRequest{AssetInfos: probe.AssetInfos(), Precisions: probe.Precisions, InitParams: raw})
		assert.Error(t, err)
	}
}

func TestWeightedJoin(t *testing.T) {
	pool := weightedPool(t, 0, map[types.AssetInfo]int64{atom: 0, osmo: 0}, map[types.AssetInfo]int64{atom: 1, osmo: 1}, nil)

	partial := Weighted{}.OnJoin(snap(pool, 0, 0), JoinRequest{AssetsIn: []types.Asset{types.NewAsset(atom, sdkmath.NewInt(100))}})
	assert.False(t, partial.Response.IsSuccess())

	first := Weighted{}.OnJoin(snap(pool, 0, 0), JoinRequest{AssetsIn: []types.Asset{
		types.NewAsset(atom, sdkmath.NewInt(1_000)),
		types.NewAsset(osmo, sdkmath.NewInt(1_000)),
	}})
	require.True(t, first.Response.IsSuccess(), first.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(100_000_000), first.NewShares)

	pool.Assets[0].Amount = sdkmath.NewInt(1_000)
	pool.Assets[1].Amount = sdkmath.NewInt(1_000)

	proportional := Weighted{}.OnJoin(snap(pool, 100, 0), JoinRequest{AssetsIn: []types.Asset{
		types.NewAsset(atom, sdkmath.NewInt(100)),
		types.NewAsset(osmo, sdkmath.NewInt(100)),
	}})
	require.True(t, proportional.Response.IsSuccess(), proportional.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(10), proportional.NewShares)

	// (1210/1000)^0.5 = 1.1, so the single asset join mints about a tenth of the supply
	single := Weighted{}.OnJoin(snap(pool, 100, 0), JoinRequest{AssetsIn: []types.Asset{types.NewAsset(atom, sdkmath.NewInt(210))}})
	require.True(t, single.Response.IsSuccess(), single.Response.Reason)
	assert.True(t, single.NewShares.GTE(sdkmath.NewInt(9)))
	assert.True(t, single.NewShares.LTE(sdkmath.NewInt(10)))

	tooLarge := Weighted{}.OnJoin(snap(pool, 100, 0), JoinRequest{AssetsIn: []types.Asset{types.NewAsset(atom, sdkmath.NewInt(1_000))}})
	assert.False(t, tooLarge.Response.IsSuccess())
}

func TestWeightedSingleAssetJoinChargesFee(t *testing.T) {
	pool := weightedPool(t, 100, map[types.AssetInfo]int64{atom: 1_000_000, osmo: 1_000_000}, map[types.AssetInfo]int64{atom: 1, osmo: 1}, nil)
	resp := Weighted{}.OnJoin(snap(pool, 1_000_000, 0), JoinRequest{AssetsIn: []types.Asset{types.NewAsset(atom, sdkmath.NewInt(100_000))}})
	require.True(t, resp.Response.IsSuccess(), resp.Response.Reason)
	// 1 - (1 - 0.5) * 1% leaves 99.5% of the deposit
	assert.Equal(t, sdkmath.NewInt(500), resp.Fee[0].Amount)
	assert.True(t, resp.Fee[1].Amount.IsZero())
}

func TestWeightedExit(t *testing.T) {
	pool := weightedPool(t, 30, map[types.AssetInfo]int64{atom: 1_000, osmo: 1_000}, map[types.AssetInfo]int64{atom: 1, osmo: 1}, decPtr("0.01"))
	s := snap(pool, 100, 0)

	resp := Weighted{}.OnExit(s, types.ExactLpBurn(sdkmath.NewInt(10)))
	require.True(t, resp.Response.IsSuccess(), resp.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(10), resp.BurnShares)
	assert.Equal(t, sdkmath.NewInt(90), resp.AssetsOut[0].Amount)
	assert.Equal(t, sdkmath.NewInt(90), resp.AssetsOut[1].Amount)

	assert.False(t, Weighted{}.OnExit(s, types.ExactAssetsOut([]types.Asset{types.NewAsset(atom, sdkmath.NewInt(1))})).Response.IsSuccess())
	assert.False(t, Weighted{}.OnExit(s, types.ExactLpBurn(sdkmath.NewInt(101))).Response.IsSuccess())
}

func TestWeightedSwap(t *testing.T) {
	pool := weightedPool(t, 30, map[types.AssetInfo]int64{atom: 1_000_000, osmo: 1_000_000}, map[types.AssetInfo]int64{atom: 1, osmo: 1}, nil)
	s := snap(pool, 100_000_000, 0)

	in := Weighted{}.OnSwap(s, SwapRequest{SwapType: types.GiveIn, OfferAsset: atom, AskAsset: osmo, Amount: sdkmath.NewInt(10_000)})
	require.True(t, in.Response.IsSuccess(), in.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(9_871), in.TradeParams.AmountOut)
	assert.Equal(t, sdkmath.NewInt(30), in.Fee.Amount)
	assert.True(t, in.Fee.Info.Equal(atom))

	out := Weighted{}.OnSwap(s, SwapRequest{SwapType: types.GiveOut, OfferAsset: atom, AskAsset: osmo, Amount: sdkmath.NewInt(9_871)})
	require.True(t, out.Response.IsSuccess(), out.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(9_871), out.TradeParams.AmountOut)
	assert.True(t, out.TradeParams.AmountIn.GTE(sdkmath.NewInt(9_999)))
	assert.True(t, out.TradeParams.AmountIn.LTE(sdkmath.NewInt(10_001)))

	// more than half of the ask side puts the power base above 2
	big := Weighted{}.OnSwap(s, SwapRequest{SwapType: types.GiveOut, OfferAsset: atom, AskAsset: osmo, Amount: sdkmath.NewInt(600_000)})
	assert.False(t, big.Response.IsSuccess())

	tooLarge := Weighted{}.OnSwap(s, SwapRequest{SwapType: types.GiveIn, OfferAsset: atom, AskAsset: osmo, Amount: utils.MaxUint128.AddRaw(1)})
	assert.False(t, tooLarge.Response.IsSuccess())
}

func TestMulIntDec(t *testing.T) {
	v, err := mulIntDec(sdkmath.NewInt(1_000), sdkmath.LegacyMustNewDecFromStr("0.9995"))
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(999), v)

	_, err = mulIntDec(utils.MaxUint128, sdkmath.LegacyNewDecFromInt(utils.MaxUint128).MulInt64(4))
	assert.ErrorIs(t, err, utils.ErrOverflow)
}

func TestWeightedSpotPrice(t *testing.T) {
	pool := weightedPool(t, 30, map[types.AssetInfo]int64{atom: 1_000, osmo: 3_000}, map[types.AssetInfo]int64{atom: 1, osmo: 3}, nil)
	price, err := Weighted{}.SpotPrice(snap(pool, 100, 0), atom, osmo)
	require.NoError(t, err)
	assert.True(t, price.Equal(sdkmath.LegacyOneDec()), price.String())
}
