package pool

import (
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexter-zone/dexvault/internal/types"
	"github.com/dexter-zone/dexvault/internal/utils"
)

func TestForKind(t *testing.T) {
	for _, kind := range Kinds() {
		e, err := ForKind(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, e.Kind())
	}
	_, err := ForKind("curve")
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestXYKInstantiate(t *testing.T) {
	pool := newPool(types.EngineXYK, 30, 6, map[types.AssetInfo]int64{atom: 0, osmo: 0})
	res, err := XYK{}.Instantiate(InstantiateRequest{AssetInfos: pool.AssetInfos(), Precisions: pool.Precisions})
	require.NoError(t, err)
	assert.Equal(t, DefaultLpPrecision, res.LpPrecision)

	_, err = XYK{}.Instantiate(InstantiateRequest{
		AssetInfos: []types.AssetInfo{atom, osmo, usdc},
		Precisions: pool.Precisions,
	})
	assert.ErrorIs(t, err, ErrInvalidNumberOfAssets)

	_, err = XYK{}.Instantiate(InstantiateRequest{AssetInfos: pool.AssetInfos(), Precisions: pool.Precisions[:1]})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestXYKSwapGiveIn(t *testing.T) {
	pool := newPool(types.EngineXYK, 30, 6, map[types.AssetInfo]int64{atom: 1_000_000, osmo: 1_000_000})
	req := SwapRequest{
		SwapType:   types.GiveIn,
		OfferAsset: atom,
		AskAsset:   osmo,
		Amount:     sdkmath.NewInt(10_000),
		MaxSpread:  decPtr("0.02"),
	}

	resp := XYK{}.OnSwap(snap(pool, 1_000_000, 0), req)
	require.True(t, resp.Response.IsSuccess(), resp.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(10_000), resp.TradeParams.AmountIn)
	assert.Equal(t, sdkmath.NewInt(9_871), resp.TradeParams.AmountOut)
	assert.Equal(t, sdkmath.NewInt(100), resp.TradeParams.Spread)
	require.NotNil(t, resp.Fee)
	assert.True(t, resp.Fee.Info.Equal(osmo))
	assert.Equal(t, sdkmath.NewInt(29), resp.Fee.Amount)

	// 1% spread breaks the default 0.5% limit
	req.MaxSpread = nil
	resp = XYK{}.OnSwap(snap(pool, 1_000_000, 0), req)
	assert.False(t, resp.Response.IsSuccess())
}

func TestXYKSwapGiveOut(t *testing.T) {
	pool := newPool(types.EngineXYK, 30, 6, map[types.AssetInfo]int64{atom: 1_000_000, osmo: 1_000_000})
	resp := XYK{}.OnSwap(snap(pool, 1_000_000, 0), SwapRequest{
		SwapType:   types.GiveOut,
		OfferAsset: atom,
		AskAsset:   osmo,
		Amount:     sdkmath.NewInt(9_871),
		MaxSpread:  decPtr("0.02"),
	})
	require.True(t, resp.Response.IsSuccess(), resp.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(10_001), resp.TradeParams.AmountIn)
	assert.Equal(t, sdkmath.NewInt(9_871), resp.TradeParams.AmountOut)
	assert.Equal(t, sdkmath.NewInt(30), resp.Fee.Amount)

	resp = XYK{}.OnSwap(snap(pool, 1_000_000, 0), SwapRequest{
		SwapType:   types.GiveOut,
		OfferAsset: atom,
		AskAsset:   osmo,
		Amount:     sdkmath.NewInt(1_000_000),
	})
	assert.False(t, resp.Response.IsSuccess())
}

func TestXYKSwapRejectsBadAssets(t *testing.T) {
	pool := newPool(types.EngineXYK, 30, 6, map[types.AssetInfo]int64{atom: 1_000_000, osmo: 1_000_000})
	s := snap(pool, 1_000_000, 0)

	resp := XYK{}.OnSwap(s, SwapRequest{SwapType: types.GiveIn, OfferAsset: atom, AskAsset: atom, Amount: sdkmath.NewInt(1)})
	assert.False(t, resp.Response.IsSuccess())
	resp = XYK{}.OnSwap(s, SwapRequest{SwapType: types.GiveIn, OfferAsset: atom, AskAsset: usdc, Amount: sdkmath.NewInt(1)})
	assert.False(t, resp.Response.IsSuccess())
	resp = XYK{}.OnSwap(s, SwapRequest{SwapType: types.GiveIn, OfferAsset: atom, AskAsset: osmo, Amount: sdkmath.ZeroInt()})
	assert.False(t, resp.Response.IsSuccess())
}

func TestXYKSwapOutOfRangeAmounts(t *testing.T) {
	pool := newPool(types.EngineXYK, 30, 6, map[types.AssetInfo]int64{atom: 1_000_000, osmo: 1_000_000})
	huge := sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 250))

	for _, st := range []types.SwapType{types.GiveIn, types.GiveOut} {
		resp := XYK{}.OnSwap(snap(pool, 1_000_000, 0), SwapRequest{SwapType: st, OfferAsset: atom, AskAsset: osmo, Amount: huge})
		assert.False(t, resp.Response.IsSuccess(), st)
	}

	// the largest in-range trade on the largest in-range pool stays inside the 256-bit products
	for i := range pool.Assets {
		pool.Assets[i].Amount = utils.MaxUint128
	}
	var resp types.SwapResponse
	require.NotPanics(t, func() {
		resp = XYK{}.OnSwap(snap(pool, 1_000_000, 0), SwapRequest{
			SwapType:   types.GiveIn,
			OfferAsset: atom,
			AskAsset:   osmo,
			Amount:     utils.MaxUint128,
			MaxSpread:  decPtr("0.5"),
		})
	})
	assert.Equal(t, utils.MaxUint128, resp.TradeParams.AmountIn)
	assert.True(t, resp.TradeParams.AmountOut.LT(utils.MaxUint128))
}

func TestXYKJoin(t *testing.T) {
	pool := newPool(types.EngineXYK, 30, 6, map[types.AssetInfo]int64{atom: 0, osmo: 0})
	first := XYK{}.OnJoin(snap(pool, 0, 0), JoinRequest{AssetsIn: []types.Asset{
		types.NewAsset(osmo, sdkmath.NewInt(4_000)),
		types.NewAsset(atom, sdkmath.NewInt(1_000)),
	}})
	require.True(t, first.Response.IsSuccess(), first.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(2_000), first.NewShares)

	pool.Assets[0].Amount = sdkmath.NewInt(1_000)
	pool.Assets[1].Amount = sdkmath.NewInt(4_000)
	next := XYK{}.OnJoin(snap(pool, 2_000, 0), JoinRequest{AssetsIn: []types.Asset{
		types.NewAsset(atom, sdkmath.NewInt(100)),
		types.NewAsset(osmo, sdkmath.NewInt(500)),
	}})
	require.True(t, next.Response.IsSuccess(), next.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(200), next.NewShares)
	assert.Equal(t, sdkmath.NewInt(100), next.ProvidedAssets[0].Amount)
	assert.Equal(t, sdkmath.NewInt(400), next.ProvidedAssets[1].Amount)

	oneSided := XYK{}.OnJoin(snap(pool, 2_000, 0), JoinRequest{AssetsIn: []types.Asset{
		types.NewAsset(atom, sdkmath.NewInt(100)),
	}})
	assert.False(t, oneSided.Response.IsSuccess())

	repeated := XYK{}.OnJoin(snap(pool, 2_000, 0), JoinRequest{AssetsIn: []types.Asset{
		types.NewAsset(atom, sdkmath.NewInt(100)),
		types.NewAsset(atom, sdkmath.NewInt(100)),
	}})
	assert.False(t, repeated.Response.IsSuccess())

	skewed := XYK{}.OnJoin(snap(pool, 2_000, 0), JoinRequest{
		AssetsIn: []types.Asset{
			types.NewAsset(atom, sdkmath.NewInt(100)),
			types.NewAsset(osmo, sdkmath.NewInt(100)),
		},
		SlippageTolerance: decPtr("0.1"),
	})
	assert.False(t, skewed.Response.IsSuccess())
}

func TestXYKExit(t *testing.T) {
	pool := newPool(types.EngineXYK, 30, 6, map[types.AssetInfo]int64{atom: 1_000, osmo: 4_000})
	s := snap(pool, 2_000, 0)

	resp := XYK{}.OnExit(s, types.ExactLpBurn(sdkmath.NewInt(500)))
	require.True(t, resp.Response.IsSuccess(), resp.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(250), resp.AssetsOut[0].Amount)
	assert.Equal(t, sdkmath.NewInt(1_000), resp.AssetsOut[1].Amount)
	assert.Equal(t, sdkmath.NewInt(500), resp.BurnShares)

	assert.False(t, XYK{}.OnExit(s, types.ExactLpBurn(sdkmath.NewInt(2_001))).Response.IsSuccess())
	assert.False(t, XYK{}.OnExit(s, types.ExactLpBurn(sdkmath.ZeroInt())).Response.IsSuccess())
	assert.False(t, XYK{}.OnExit(s, types.ExactAssetsOut([]types.Asset{types.NewAsset(atom, sdkmath.NewInt(1))})).Response.IsSuccess())
}

func TestAssertMaxSpread(t *testing.T) {
	offer := sdkmath.NewInt(1_000)

	assert.True(t, assertMaxSpread(nil, nil, MaxAllowedSpread, offer, sdkmath.NewInt(996), sdkmath.NewInt(4)).IsSuccess())
	assert.False(t, assertMaxSpread(nil, nil, MaxAllowedSpread, offer, sdkmath.NewInt(990), sdkmath.NewInt(10)).IsSuccess())
	assert.False(t, assertMaxSpread(nil, decPtr("0.6"), MaxAllowedSpread, offer, offer, sdkmath.ZeroInt()).IsSuccess())

	belief := decPtr("1")
	assert.False(t, assertMaxSpread(belief, nil, MaxAllowedSpread, offer, sdkmath.NewInt(990), sdkmath.ZeroInt()).IsSuccess())
	assert.True(t, assertMaxSpread(belief, decPtr("0.02"), MaxAllowedSpread, offer, sdkmath.NewInt(990), sdkmath.ZeroInt()).IsSuccess())
	// returning more than expected is never a spread violation
	assert.True(t, assertMaxSpread(belief, nil, MaxAllowedSpread, offer, sdkmath.NewInt(1_100), sdkmath.ZeroInt()).IsSuccess())
}
