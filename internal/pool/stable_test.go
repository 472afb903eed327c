package pool

import (
	"encoding/json"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexter-zone/dexvault/internal/types"
	"github.com/dexter-zone/dexvault/internal/utils"
)

const day = uint64(86_400)

func stablePool(t *testing.T, bps uint16, balances map[types.AssetInfo]int64, params StableInitParams) types.PoolInfo {
	t.Helper()
	pool := newPool(types.EngineStable, bps, 6, balances)
	instantiate(t, Stable{}, &pool, params)
	return pool
}

func xpOf(t *testing.T, s Snapshot) []*big.Int {
	t.Helper()
	c, reason := newStableCtx(s)
	require.Empty(t, reason)
	return c.xp
}

func TestStableInstantiate(t *testing.T) {
	pool := stablePool(t, 30, map[types.AssetInfo]int64{atom: 0, osmo: 0}, StableInitParams{Amp: 100})
	require.NotNil(t, pool.Math.Stable)
	assert.Equal(t, uint64(10_000), pool.Math.Stable.InitAmp)
	assert.Equal(t, uint64(10_000), pool.Math.Stable.NextAmp)
	assert.Equal(t, uint8(6), pool.LpPrecision)
	assert.Equal(t, MaxAllowedSpread, pool.Math.Stable.MaxAllowedSpread)
	for _, sf := range pool.Math.Stable.ScalingFactors {
		assert.Equal(t, sdkmath.LegacyOneDec(), sf.ScalingFactor)
	}

	infos := pool.AssetInfos()
	cases := []struct {
		name   string
		infos  []types.AssetInfo
		params StableInitParams
		err    error
	}{
		{"zero amp", infos, StableInitParams{Amp: 0}, ErrIncorrectAmp},
		{"amp too large", infos, StableInitParams{Amp: MaxAmp + 1}, ErrIncorrectAmp},
		{"one asset", infos[:1], StableInitParams{Amp: 100}, ErrInvalidNumberOfAssets},
		{"spread of one", infos, StableInitParams{Amp: 100, MaxAllowedSpread: decPtr("1")}, ErrInvalidParams},
		{"foreign scaling factor", infos, StableInitParams{Amp: 100, ScalingFactors: []types.AssetScalingFactor{
			{Info: usdc, ScalingFactor: sdkmath.LegacyOneDec()},
		}}, ErrInvalidAsset},
		{"manager missing", infos, StableInitParams{Amp: 100, SupportsScalingFactorsUpdate: true}, ErrInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := json.Marshal(tc.params)
			require.NoError(t, err)
			_, err = Stable{}.Instantiate(InstantiateRequest{AssetInfos: tc.infos, Precisions: pool.Precisions, InitParams: raw})
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestComputeDBalanced(t *testing.T) {
	xp := []*big.Int{big.NewInt(500), big.NewInt(500)}
	assert.Equal(t, big.NewInt(1_000), computeD(10_000, xp))

	xp = []*big.Int{big.NewInt(500), big.NewInt(0)}
	assert.Equal(t, 0, computeD(10_000, xp).Sign())
}

func TestStableJoinAndExactExit(t *testing.T) {
	pool := stablePool(t, 30, map[types.AssetInfo]int64{atom: 0, osmo: 0}, StableInitParams{Amp: 100})
	deposit := []types.Asset{
		types.NewAsset(atom, sdkmath.NewInt(500)),
		types.NewAsset(osmo, sdkmath.NewInt(500)),
	}

	first := Stable{}.OnJoin(snap(pool, 0, 0), JoinRequest{AssetsIn: deposit})
	require.True(t, first.Response.IsSuccess(), first.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(1_000), first.NewShares)

	pool.Assets = types.CloneAssets(deposit)
	exit := Stable{}.OnExit(snap(pool, 1_000, 0), types.ExactLpBurn(sdkmath.NewInt(1_000)))
	require.True(t, exit.Response.IsSuccess(), exit.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(500), exit.AssetsOut[0].Amount)
	assert.Equal(t, sdkmath.NewInt(500), exit.AssetsOut[1].Amount)
	assert.Equal(t, sdkmath.NewInt(1_000), exit.BurnShares)
}

func TestStableJoinRules(t *testing.T) {
	empty := stablePool(t, 30, map[types.AssetInfo]int64{atom: 0, osmo: 0}, StableInitParams{Amp: 100})
	resp := Stable{}.OnJoin(snap(empty, 0, 0), JoinRequest{AssetsIn: []types.Asset{types.NewAsset(atom, sdkmath.NewInt(10))}})
	assert.False(t, resp.Response.IsSuccess(), "zero into an empty pool")

	pool := stablePool(t, 30, map[types.AssetInfo]int64{atom: 500, osmo: 500}, StableInitParams{Amp: 100})
	s := snap(pool, 1_000, 0)

	resp = Stable{}.OnJoin(s, JoinRequest{AssetsIn: []types.Asset{types.NewAsset(atom, sdkmath.ZeroInt())}})
	assert.False(t, resp.Response.IsSuccess(), "all zero")

	resp = Stable{}.OnJoin(s, JoinRequest{AssetsIn: []types.Asset{types.NewAsset(usdc, sdkmath.NewInt(10))}})
	assert.False(t, resp.Response.IsSuccess(), "foreign asset")

	balanced := Stable{}.OnJoin(s, JoinRequest{AssetsIn: []types.Asset{
		types.NewAsset(atom, sdkmath.NewInt(100)),
		types.NewAsset(osmo, sdkmath.NewInt(100)),
	}})
	require.True(t, balanced.Response.IsSuccess(), balanced.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(200), balanced.NewShares)
	for _, f := range balanced.Fee {
		assert.True(t, f.Amount.IsZero())
	}

	large := stablePool(t, 30, map[types.AssetInfo]int64{atom: 500_000_000, osmo: 500_000_000}, StableInitParams{Amp: 100})
	single := Stable{}.OnJoin(snap(large, 1_000_000_000, 0), JoinRequest{AssetsIn: []types.Asset{
		types.NewAsset(atom, sdkmath.NewInt(100_000_000)),
	}})
	require.True(t, single.Response.IsSuccess(), single.Response.Reason)
	assert.True(t, single.NewShares.IsPositive())
	assert.True(t, single.NewShares.LT(sdkmath.NewInt(100_000_000)))
	assert.True(t, single.Fee[0].Amount.IsPositive())
	assert.True(t, single.ProvidedAssets[1].Amount.IsZero())
}

func TestStableImbalancedExit(t *testing.T) {
	pool := stablePool(t, 30, map[types.AssetInfo]int64{atom: 500, osmo: 500}, StableInitParams{Amp: 100})
	s := snap(pool, 1_000, 0)

	resp := Stable{}.OnExit(s, types.ExactAssetsOut([]types.Asset{types.NewAsset(atom, sdkmath.NewInt(100))}))
	require.True(t, resp.Response.IsSuccess(), resp.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(100), resp.AssetsOut[0].Amount)
	assert.True(t, resp.AssetsOut[1].Amount.IsZero())
	assert.True(t, resp.BurnShares.GT(sdkmath.NewInt(100)))
	assert.True(t, resp.BurnShares.LT(sdkmath.NewInt(200)))

	drain := Stable{}.OnExit(s, types.ExactAssetsOut([]types.Asset{types.NewAsset(atom, sdkmath.NewInt(500))}))
	assert.False(t, drain.Response.IsSuccess())
}

func TestStableSwap(t *testing.T) {
	pool := stablePool(t, 30, map[types.AssetInfo]int64{atom: 1_000_000, osmo: 1_000_000}, StableInitParams{Amp: 100})
	s := snap(pool, 2_000_000, 0)

	in := Stable{}.OnSwap(s, SwapRequest{SwapType: types.GiveIn, OfferAsset: atom, AskAsset: osmo, Amount: sdkmath.NewInt(1_000)})
	require.True(t, in.Response.IsSuccess(), in.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(1_000), in.TradeParams.AmountIn)
	require.NotNil(t, in.Fee)
	assert.True(t, in.Fee.Info.Equal(atom))
	assert.Equal(t, sdkmath.NewInt(3), in.Fee.Amount)
	assert.True(t, in.TradeParams.AmountOut.LTE(sdkmath.NewInt(997)))
	assert.True(t, in.TradeParams.AmountOut.GTE(sdkmath.NewInt(995)))

	out := Stable{}.OnSwap(s, SwapRequest{SwapType: types.GiveOut, OfferAsset: atom, AskAsset: osmo, Amount: sdkmath.NewInt(996)})
	require.True(t, out.Response.IsSuccess(), out.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(996), out.TradeParams.AmountOut)
	assert.True(t, out.TradeParams.AmountIn.GT(sdkmath.NewInt(996)))
	assert.True(t, out.Fee.Info.Equal(atom))
	assert.True(t, out.Fee.Amount.IsPositive())
}

// scaledStablePool builds an atom/osmo stable pool with per-asset precisions and scaling factors. Balances are
// whole tokens.
func scaledStablePool(t *testing.T, precisions [2]uint8, scales [2]string, balances [2]int64) types.PoolInfo {
	t.Helper()
	infos := []types.AssetInfo{atom, osmo}
	pool := types.PoolInfo{
		PoolID:   1,
		PoolType: string(types.EngineStable),
		Engine:   types.EngineStable,
		FeeInfo:  types.FeeInfo{TotalFeeBps: 30},
	}
	params := StableInitParams{Amp: 100}
	for i, info := range infos {
		pool.Assets = append(pool.Assets, types.NewAsset(info, tokens(balances[i], precisions[i])))
		pool.Precisions = append(pool.Precisions, types.AssetPrecision{Info: info, Precision: precisions[i]})
		params.ScalingFactors = append(params.ScalingFactors, types.AssetScalingFactor{
			Info:          info,
			ScalingFactor: sdkmath.LegacyMustNewDecFromStr(scales[i]),
		})
	}
	pool.Twap.CumulativePrices = InitialCumulativePrices(infos)
	instantiate(t, Stable{}, &pool, params)
	return pool
}

func tokens(n int64, precision uint8) sdkmath.Int {
	return sdkmath.NewInt(n).Mul(utils.Pow10(precision))
}

// atPar converts amount from one asset to another at the 1:1 rate of the scaled balances.
func atPar(amount sdkmath.Int, from, to uint8, sFrom, sTo sdkmath.LegacyDec) sdkmath.Int {
	v := sdkmath.LegacyNewDecFromInt(amount).Mul(sFrom).Quo(sTo)
	return v.MulInt(utils.Pow10(to)).QuoInt(utils.Pow10(from)).TruncateInt()
}

func TestStableSwapScaledPairs(t *testing.T) {
	cases := []struct {
		name       string
		precisions [2]uint8
		scales     [2]string
		balances   [2]int64
	}{
		{"6/18 precisions", [2]uint8{6, 18}, [2]string{"1", "1"}, [2]int64{1_000_000, 1_000_000}},
		{"6/9 precisions", [2]uint8{6, 9}, [2]string{"1", "1"}, [2]int64{1_000_000, 1_000_000}},
		{"scaling 0.98", [2]uint8{6, 6}, [2]string{"1", "0.98"}, [2]int64{980_000, 1_000_000}},
		{"scaling 2", [2]uint8{6, 6}, [2]string{"2", "1"}, [2]int64{1_000_000, 2_000_000}},
		{"18/6 precisions with scaling 2", [2]uint8{18, 6}, [2]string{"2", "1"}, [2]int64{1_000_000, 2_000_000}},
	}
	for _, tc := range cases {
		pool := scaledStablePool(t, tc.precisions, tc.scales, tc.balances)
		scales := [2]sdkmath.LegacyDec{
			sdkmath.LegacyMustNewDecFromStr(tc.scales[0]),
			sdkmath.LegacyMustNewDecFromStr(tc.scales[1]),
		}
		t.Run(tc.name+" join and exit", func(t *testing.T) {
			empty := scaledStablePool(t, tc.precisions, tc.scales, [2]int64{0, 0})
			deposit := types.CloneAssets(pool.Assets)
			first := Stable{}.OnJoin(snap(empty, 0, 0), JoinRequest{AssetsIn: deposit})
			require.True(t, first.Response.IsSuccess(), first.Response.Reason)
			total := first.NewShares
			require.True(t, total.IsPositive())

			// a 1% top-up at the pool ratio mints 1% of the supply
			topUp := []types.Asset{
				types.NewAsset(atom, deposit[0].Amount.QuoRaw(100)),
				types.NewAsset(osmo, deposit[1].Amount.QuoRaw(100)),
			}
			more := Stable{}.OnJoin(NewSnapshot(pool, total, 0), JoinRequest{AssetsIn: topUp})
			require.True(t, more.Response.IsSuccess(), more.Response.Reason)
			gap := more.NewShares.Sub(total.QuoRaw(100)).Abs()
			assert.True(t, gap.LTE(total.QuoRaw(1_000_000_000).AddRaw(3)), "minted %s for a 1%% top-up of %s", more.NewShares, total)

			exit := Stable{}.OnExit(NewSnapshot(pool, total, 0), types.ExactLpBurn(total))
			require.True(t, exit.Response.IsSuccess(), exit.Response.Reason)
			assert.Equal(t, deposit[0].Amount, exit.AssetsOut[0].Amount)
			assert.Equal(t, deposit[1].Amount, exit.AssetsOut[1].Amount)
		})

		for _, dir := range [][2]int{{0, 1}, {1, 0}} {
			oi, ai := dir[0], dir[1]
			for _, st := range []types.SwapType{types.GiveIn, types.GiveOut} {
				name := tc.name + " " + pool.Assets[oi].Info.ID() + "->" + pool.Assets[ai].Info.ID() + " " + string(st)
				t.Run(name, func(t *testing.T) {
					s := snap(pool, 1, 0)
					before := computeD(currentAmp(pool.Math.Stable, 0), xpOf(t, s))

					amount := tokens(1_000, tc.precisions[oi])
					if st == types.GiveOut {
						amount = tokens(1_000, tc.precisions[ai])
					}
					resp := Stable{}.OnSwap(s, SwapRequest{
						SwapType:   st,
						OfferAsset: pool.Assets[oi].Info,
						AskAsset:   pool.Assets[ai].Info,
						Amount:     amount,
					})
					require.True(t, resp.Response.IsSuccess(), resp.Response.Reason)
					require.NotNil(t, resp.Fee)
					trade := resp.TradeParams

					par := atPar(trade.AmountIn.Sub(resp.Fee.Amount), tc.precisions[oi], tc.precisions[ai], scales[oi], scales[ai])
					assert.True(t, trade.AmountOut.LTE(par), "return %s above par %s", trade.AmountOut, par)
					assert.True(t, trade.Spread.LTE(par.QuoRaw(1_000)), "spread %s too large against par %s", trade.Spread, par)
					if st == types.GiveIn {
						assert.True(t, trade.AmountOut.GTE(par.MulRaw(999).QuoRaw(1_000)), "return %s far below par %s", trade.AmountOut, par)
						gap := par.Sub(trade.AmountOut.Add(trade.Spread)).Abs()
						assert.True(t, gap.LTE(sdkmath.OneInt()), "return %s + spread %s != par %s", trade.AmountOut, trade.Spread, par)
					} else {
						assert.Equal(t, amount, trade.AmountOut)
						assert.True(t, trade.AmountOut.Add(trade.Spread).LTE(par.AddRaw(1)))
					}

					next := pool
					next.Assets = types.CloneAssets(pool.Assets)
					next.Assets[oi].Amount = next.Assets[oi].Amount.Add(trade.AmountIn)
					next.Assets[ai].Amount = next.Assets[ai].Amount.Sub(trade.AmountOut)
					after := computeD(currentAmp(pool.Math.Stable, 0), xpOf(t, snap(next, 1, 0)))
					assert.True(t, after.Cmp(before) >= 0, "D decreased")
				})
			}
		}
	}
}

// A 1:2 scaled pair must not read the scale difference as spread in either direction.
func TestStableSwapSpreadUsesScalingFactors(t *testing.T) {
	pool := stablePool(t, 30, map[types.AssetInfo]int64{atom: 1_000_000, osmo: 2_000_000}, StableInitParams{
		Amp: 100,
		ScalingFactors: []types.AssetScalingFactor{
			{Info: atom, ScalingFactor: sdkmath.LegacyNewDec(2)},
			{Info: osmo, ScalingFactor: sdkmath.LegacyOneDec()},
		},
	})
	s := snap(pool, 1, 0)

	toAtom := Stable{}.OnSwap(s, SwapRequest{SwapType: types.GiveIn, OfferAsset: osmo, AskAsset: atom, Amount: sdkmath.NewInt(1_000), MaxSpread: decPtr("0.5")})
	require.True(t, toAtom.Response.IsSuccess(), toAtom.Response.Reason)
	assert.Equal(t, sdkmath.NewInt(498), toAtom.TradeParams.AmountOut)
	assert.True(t, toAtom.TradeParams.Spread.LTE(sdkmath.OneInt()))

	toOsmo := Stable{}.OnSwap(s, SwapRequest{SwapType: types.GiveIn, OfferAsset: atom, AskAsset: osmo, Amount: sdkmath.NewInt(1_000)})
	require.True(t, toOsmo.Response.IsSuccess(), toOsmo.Response.Reason)
	assert.True(t, toOsmo.TradeParams.AmountOut.GTE(sdkmath.NewInt(1_990)))
	assert.True(t, toOsmo.TradeParams.Spread.LTE(sdkmath.NewInt(4)))
}

func TestStableSwapKeepsInvariant(t *testing.T) {
	pool := stablePool(t, 30, map[types.AssetInfo]int64{atom: 1_000_000, osmo: 3_000_000}, StableInitParams{Amp: 50})
	amounts := []int64{10_000, 250_000, 1, 77_777}

	for i, amt := range amounts {
		offer, ask := 0, 1
		if i%2 == 1 {
			offer, ask = 1, 0
		}
		s := snap(pool, 4_000_000, 0)
		before := computeD(currentAmp(pool.Math.Stable, 0), xpOf(t, s))

		resp := Stable{}.OnSwap(s, SwapRequest{
			SwapType:   types.GiveIn,
			OfferAsset: pool.Assets[offer].Info,
			AskAsset:   pool.Assets[ask].Info,
			Amount:     sdkmath.NewInt(amt),
			MaxSpread:  decPtr("0.5"),
		})
		if !resp.Response.IsSuccess() {
			continue
		}
		pool.Assets[offer].Amount = pool.Assets[offer].Amount.Add(resp.TradeParams.AmountIn)
		pool.Assets[ask].Amount = pool.Assets[ask].Amount.Sub(resp.TradeParams.AmountOut)

		after := computeD(currentAmp(pool.Math.Stable, 0), xpOf(t, snap(pool, 4_000_000, 0)))
		assert.True(t, after.Cmp(before) >= 0, "D decreased on swap %d", i)
	}
}

func TestStableAmpRamp(t *testing.T) {
	start := 2 * day
	pool := stablePool(t, 30, map[types.AssetInfo]int64{atom: 1_000, osmo: 1_000}, StableInitParams{Amp: 100})

	update := func(blockTime uint64, isOwner bool, upd StableUpdateParams) (types.MathParams, error) {
		raw, err := json.Marshal(upd)
		require.NoError(t, err)
		return Stable{}.UpdateParams(snap(pool, 2_000, blockTime), UpdateRequest{Sender: "owner", IsOwner: isOwner, Params: raw})
	}
	ramp := func(next, at uint64) StableUpdateParams {
		return StableUpdateParams{StartChangingAmp: &StartChangingAmp{NextAmp: next, NextAmpTime: at}}
	}

	_, err := update(start, false, ramp(200, start+2*day))
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = update(start, true, ramp(0, start+2*day))
	assert.ErrorIs(t, err, ErrIncorrectAmp)
	_, err = update(start, true, ramp(MaxAmp+1, start+2*day))
	assert.ErrorIs(t, err, ErrIncorrectAmp)
	_, err = update(start, true, ramp(1_001, start+2*day))
	assert.ErrorIs(t, err, ErrMaxAmpChange)
	_, err = update(start, true, ramp(9, start+2*day))
	assert.ErrorIs(t, err, ErrMaxAmpChange)
	_, err = update(start, true, ramp(200, start+day-1))
	assert.ErrorIs(t, err, ErrMinAmpChangingTime)
	_, err = update(day-1, true, ramp(200, 3*day))
	assert.ErrorIs(t, err, ErrMinAmpChangingTime)

	params, err := update(start, true, ramp(200, start+2*day))
	require.NoError(t, err)
	pool.Math = params
	p := pool.Math.Stable
	assert.Equal(t, uint64(10_000), p.InitAmp)
	assert.Equal(t, uint64(20_000), p.NextAmp)
	assert.Equal(t, start, p.InitAmpTime)

	assert.Equal(t, uint64(10_000), currentAmp(p, start))
	assert.Equal(t, uint64(15_000), currentAmp(p, start+day))
	assert.Equal(t, uint64(20_000), currentAmp(p, start+2*day))
	assert.Equal(t, uint64(20_000), currentAmp(p, start+10*day))

	amp, err := Amp(pool, start+day)
	require.NoError(t, err)
	assert.Equal(t, uint64(15_000), amp.CurrentAmp)

	stopped, err := update(start+day, true, StableUpdateParams{StopChangingAmp: &struct{}{}})
	require.NoError(t, err)
	assert.Equal(t, uint64(15_000), stopped.Stable.InitAmp)
	assert.Equal(t, uint64(15_000), stopped.Stable.NextAmp)
	assert.Equal(t, uint64(15_000), currentAmp(stopped.Stable, start+5*day))
}

func TestStableAmpRampDown(t *testing.T) {
	p := &types.StableMathParams{InitAmp: 20_000, NextAmp: 10_000, InitAmpTime: 0, NextAmpTime: 2 * day}
	assert.Equal(t, uint64(15_000), currentAmp(p, day))
	assert.Equal(t, uint64(10_000), currentAmp(p, 3*day))
}

func TestStableScalingFactorUpdate(t *testing.T) {
	locked := stablePool(t, 30, map[types.AssetInfo]int64{atom: 1_000, osmo: 1_000}, StableInitParams{Amp: 100})
	raw, err := json.Marshal(StableUpdateParams{UpdateScalingFactor: &UpdateScalingFactor{Asset: atom, ScalingFactor: sdkmath.LegacyNewDec(2)}})
	require.NoError(t, err)

	_, err = Stable{}.UpdateParams(snap(locked, 2_000, 0), UpdateRequest{Sender: "manager", Params: raw})
	assert.ErrorIs(t, err, ErrUnsupported)

	pool := stablePool(t, 30, map[types.AssetInfo]int64{atom: 1_000, osmo: 1_000}, StableInitParams{
		Amp:                          100,
		ScalingFactorManager:         "manager",
		SupportsScalingFactorsUpdate: true,
	})
	_, err = Stable{}.UpdateParams(snap(pool, 2_000, 0), UpdateRequest{Sender: "owner", IsOwner: true, Params: raw})
	assert.ErrorIs(t, err, ErrUnauthorized)

	params, err := Stable{}.UpdateParams(snap(pool, 2_000, 0), UpdateRequest{Sender: "manager", Params: raw})
	require.NoError(t, err)
	assert.Equal(t, sdkmath.LegacyNewDec(2), scalingFactorOf(params.Stable, atom))
	// the snapshot copy was not touched
	assert.Equal(t, sdkmath.LegacyOneDec(), scalingFactorOf(pool.Math.Stable, atom))
}
