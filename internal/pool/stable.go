package pool

import (
	"encoding/json"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/types"
	"github.com/dexter-zone/dexvault/internal/utils"
)

const (
	stableMinAssets = 2
	stableMaxAssets = 5
)

// StableInitParams is the init_params payload of a stableswap pool.
type StableInitParams struct {
	Amp                          uint64                     `json:"amp"`
	ScalingFactors               []types.AssetScalingFactor `json:"scaling_factors,omitempty"`
	ScalingFactorManager         string                     `json:"scaling_factor_manager,omitempty"`
	SupportsScalingFactorsUpdate bool                       `json:"supports_scaling_factors_update"`
	MaxAllowedSpread             *sdkmath.LegacyDec         `json:"max_allowed_spread,omitempty"`
}

// StartChangingAmp begins a linear amp ramp. NextAmp is given without AmpPrecision.
type StartChangingAmp struct {
	NextAmp     uint64 `json:"next_amp"`
	NextAmpTime uint64 `json:"next_amp_time"`
}

// UpdateScalingFactor replaces the scaling factor of one asset.
type UpdateScalingFactor struct {
	Asset         types.AssetInfo   `json:"asset"`
	ScalingFactor sdkmath.LegacyDec `json:"scaling_factor"`
}

// StableUpdateParams is the payload of UpdatePoolParams for stableswap pools; exactly one field is set.
type StableUpdateParams struct {
	StartChangingAmp    *StartChangingAmp    `json:"start_changing_amp,omitempty"`
	StopChangingAmp     *struct{}            `json:"stop_changing_amp,omitempty"`
	UpdateScalingFactor *UpdateScalingFactor `json:"update_scaling_factor,omitempty"`
}

// AmpParams is the read model of the amp ramp.
type AmpParams struct {
	InitAmp     uint64 `json:"init_amp"`
	InitAmpTime uint64 `json:"init_amp_time"`
	NextAmp     uint64 `json:"next_amp"`
	NextAmpTime uint64 `json:"next_amp_time"`
	CurrentAmp  uint64 `json:"current_amp"`
}

// Stable is the stableswap engine with amp ramping and per-asset scaling factors.
type Stable struct{}

func (Stable) Kind() types.EngineKind { return types.EngineStable }

func (Stable) Instantiate(req InstantiateRequest) (InstantiateResult, error) {
	n := len(req.AssetInfos)
	if n < stableMinAssets || n > stableMaxAssets {
		return InstantiateResult{}, fmt.Errorf("%w: stableswap pools take %d to %d assets, got %d",
			ErrInvalidNumberOfAssets, stableMinAssets, stableMaxAssets, n)
	}
	if err := checkPrecisions(req.AssetInfos, req.Precisions); err != nil {
		return InstantiateResult{}, err
	}
	if len(req.InitParams) == 0 {
		return InstantiateResult{}, fmt.Errorf("%w: init params are required", ErrInvalidParams)
	}
	var init StableInitParams
	if err := json.Unmarshal(req.InitParams, &init); err != nil {
		return InstantiateResult{}, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if init.Amp == 0 || init.Amp > MaxAmp {
		return InstantiateResult{}, ErrIncorrectAmp
	}

	maxSpread := MaxAllowedSpread
	if init.MaxAllowedSpread != nil {
		maxSpread = *init.MaxAllowedSpread
		if maxSpread.IsNil() || !maxSpread.IsPositive() || maxSpread.GTE(sdkmath.LegacyOneDec()) {
			return InstantiateResult{}, fmt.Errorf("%w: max_allowed_spread must be in (0, 1)", ErrInvalidParams)
		}
	}

	factors := make([]types.AssetScalingFactor, n)
	for i, info := range req.AssetInfos {
		factors[i] = types.AssetScalingFactor{Info: info, ScalingFactor: sdkmath.LegacyOneDec()}
	}
	seen := map[string]bool{}
	for _, sf := range init.ScalingFactors {
		idx := indexOfInfo(req.AssetInfos, sf.Info)
		if idx < 0 {
			return InstantiateResult{}, fmt.Errorf("%w: scaling factor for %s", ErrInvalidAsset, sf.Info.ID())
		}
		if seen[sf.Info.Key()] {
			return InstantiateResult{}, fmt.Errorf("%w: duplicate scaling factor for %s", ErrInvalidParams, sf.Info.ID())
		}
		seen[sf.Info.Key()] = true
		if sf.ScalingFactor.IsNil() || !sf.ScalingFactor.IsPositive() {
			return InstantiateResult{}, fmt.Errorf("%w: scaling factor of %s must be positive", ErrInvalidParams, sf.Info.ID())
		}
		factors[idx].ScalingFactor = sf.ScalingFactor
	}
	if init.SupportsScalingFactorsUpdate && init.ScalingFactorManager == "" {
		return InstantiateResult{}, fmt.Errorf("%w: scaling_factor_manager is required when updates are supported", ErrInvalidParams)
	}

	greatest := greatestPrecision(req.Precisions)
	amp := init.Amp * AmpPrecision
	return InstantiateResult{
		Math: types.MathParams{Stable: &types.StableMathParams{
			InitAmp:                      amp,
			InitAmpTime:                  req.BlockTime,
			NextAmp:                      amp,
			NextAmpTime:                  req.BlockTime,
			GreatestPrecision:            greatest,
			ScalingFactors:               factors,
			ScalingFactorManager:         init.ScalingFactorManager,
			SupportsScalingFactorsUpdate: init.SupportsScalingFactorsUpdate,
			MaxAllowedSpread:             maxSpread,
		}},
		LpPrecision: greatest,
	}, nil
}

// stableCtx bundles what every stableswap computation needs from the snapshot.
type stableCtx struct {
	params     *types.StableMathParams
	amp        uint64
	precisions []uint8
	scaling    []sdkmath.LegacyDec
	xp         []*big.Int
}

func newStableCtx(s Snapshot) (*stableCtx, string) {
	p := s.Pool.Math.Stable
	if p == nil {
		return nil, "Missing stableswap parameters"
	}
	ctx := &stableCtx{
		params:     p,
		amp:        currentAmp(p, s.BlockTime),
		precisions: make([]uint8, len(s.Pool.Assets)),
		scaling:    make([]sdkmath.LegacyDec, len(s.Pool.Assets)),
		xp:         make([]*big.Int, len(s.Pool.Assets)),
	}
	if ctx.amp == 0 {
		return nil, "Invalid amp value"
	}
	for i, a := range s.Pool.Assets {
		prec, err := s.Pool.PrecisionOf(a.Info)
		if err != nil {
			return nil, err.Error()
		}
		ctx.precisions[i] = prec
		ctx.scaling[i] = scalingFactorOf(p, a.Info)
		ctx.xp[i] = toXp(a.AmountOrZero(), prec, ctx.scaling[i])
	}
	return ctx, ""
}

func scalingFactorOf(p *types.StableMathParams, info types.AssetInfo) sdkmath.LegacyDec {
	for _, sf := range p.ScalingFactors {
		if sf.Info.Equal(info) && !sf.ScalingFactor.IsNil() && sf.ScalingFactor.IsPositive() {
			return sf.ScalingFactor
		}
	}
	return sdkmath.LegacyOneDec()
}

// imbalanceFeeAtoms is total_fee * n / (4 * (n - 1)) as 18 decimal atoms. Two asset pools pay half the swap fee.
func imbalanceFeeAtoms(fee types.FeeInfo, n int) *big.Int {
	out := new(big.Int).Mul(fee.Rate().BigInt(), big.NewInt(int64(n)))
	return out.Quo(out, big.NewInt(int64(4*(n-1))))
}

// chargeImbalanceFee deducts the deviation fee from balances in place and returns the fee per asset in raw units.
func (c *stableCtx) chargeImbalanceFee(fee types.FeeInfo, infos []types.AssetInfo, old, balances []*big.Int, d0, d1 *big.Int) []types.Asset {
	rate := imbalanceFeeAtoms(fee, len(balances))
	fees := make([]types.Asset, len(balances))
	for i := range balances {
		ideal := new(big.Int).Mul(d1, old[i])
		ideal.Quo(ideal, d0)
		charged := absDiff(ideal, balances[i])
		charged.Mul(charged, rate).Quo(charged, decScale)
		balances[i] = new(big.Int).Sub(balances[i], charged)
		fees[i] = types.NewAsset(infos[i], fromXp(charged, c.precisions[i], c.scaling[i]))
	}
	return fees
}

func (Stable) OnJoin(s Snapshot, req JoinRequest) types.AfterJoinResponse {
	if len(req.AssetsIn) == 0 {
		return types.JoinFailure("No assets provided")
	}
	deposits, reason := normalizeAssetsIn(s.Pool, req.AssetsIn)
	if reason != "" {
		return types.JoinFailure(reason)
	}
	nonZero := false
	for i, d := range deposits {
		if d.Amount.IsPositive() {
			nonZero = true
		} else if !s.Pool.Assets[i].AmountOrZero().IsPositive() {
			return types.JoinFailure("Cannot deposit zero into an empty pool")
		}
	}
	if !nonZero {
		return types.JoinFailure("No non-zero assets provided")
	}

	c, reason := newStableCtx(s)
	if reason != "" {
		return types.JoinFailure(reason)
	}
	infos := s.Pool.AssetInfos()

	newXp := make([]*big.Int, len(c.xp))
	for i := range c.xp {
		newXp[i] = new(big.Int).Add(c.xp[i], toXp(deposits[i].Amount, c.precisions[i], c.scaling[i]))
	}
	d0 := computeD(c.amp, c.xp)
	d1 := computeD(c.amp, newXp)
	lpUnit := utils.Pow10(utils.MaxPrecision - c.params.GreatestPrecision).BigInt()

	var mint sdkmath.Int
	fees := zeroFees(s.Pool)
	if !s.TotalShare.IsPositive() {
		mint = sdkmath.NewIntFromBigInt(new(big.Int).Quo(d1, lpUnit))
	} else {
		if d0.Sign() == 0 {
			return types.JoinFailure("Pool invariant is zero")
		}
		fees = c.chargeImbalanceFee(s.Pool.FeeInfo, infos, c.xp, newXp, d0, d1)
		d2 := computeD(c.amp, newXp)
		if d2.Cmp(d0) <= 0 {
			return types.JoinFailure("Mint amount is zero")
		}
		minted := new(big.Int).Sub(d2, d0)
		minted.Mul(minted, s.TotalShare.BigInt()).Quo(minted, d0)
		mint = sdkmath.NewIntFromBigInt(minted)
	}
	if !mint.IsPositive() {
		return types.JoinFailure("Mint amount is zero")
	}

	return types.AfterJoinResponse{
		ProvidedAssets: deposits,
		NewShares:      mint,
		Response:       types.Success(),
		Fee:            fees,
	}
}

func (Stable) OnExit(s Snapshot, exit types.ExitType) types.AfterExitResponse {
	if !exit.IsImbalanced() {
		resp := exactLpBurn(s, *exit.ExactLpBurn)
		if resp.Response.IsSuccess() {
			resp.Fee = zeroFees(s.Pool)
		}
		return resp
	}

	if len(exit.ExactAssetsOut) > len(s.Pool.Assets) {
		return types.ExitFailure("Invalid number of assets")
	}
	outs, reason := normalizeAssetsIn(s.Pool, exit.ExactAssetsOut)
	if reason != "" {
		return types.ExitFailure(reason)
	}
	if !s.TotalShare.IsPositive() {
		return types.ExitFailure("Pool has no liquidity")
	}
	c, reason := newStableCtx(s)
	if reason != "" {
		return types.ExitFailure(reason)
	}
	infos := s.Pool.AssetInfos()

	anyOut := false
	newXp := make([]*big.Int, len(c.xp))
	for i := range c.xp {
		if outs[i].Amount.IsPositive() {
			anyOut = true
		}
		if outs[i].Amount.GTE(s.Pool.Assets[i].AmountOrZero()) && outs[i].Amount.IsPositive() {
			return types.ExitFailure(fmt.Sprintf("Withdrawal of %s would empty the pool", infos[i].ID()))
		}
		newXp[i] = new(big.Int).Sub(c.xp[i], toXpCeil(outs[i].Amount, c.precisions[i], c.scaling[i]))
		if newXp[i].Sign() <= 0 {
			return types.ExitFailure(fmt.Sprintf("Withdrawal of %s would empty the pool", infos[i].ID()))
		}
	}
	if !anyOut {
		return types.ExitFailure("No assets requested")
	}

	d0 := computeD(c.amp, c.xp)
	d1 := computeD(c.amp, newXp)
	if d0.Sign() == 0 {
		return types.ExitFailure("Pool invariant is zero")
	}
	fees := c.chargeImbalanceFee(s.Pool.FeeInfo, infos, c.xp, newXp, d0, d1)
	for _, x := range newXp {
		if x.Sign() <= 0 {
			return types.ExitFailure("Withdrawal fee exceeds the remaining balance")
		}
	}
	d2 := computeD(c.amp, newXp)
	if d2.Cmp(d0) >= 0 {
		return types.ExitFailure("Invariant did not decrease")
	}

	burn := new(big.Int).Sub(d0, d2)
	burn.Mul(burn, s.TotalShare.BigInt()).Quo(burn, d0).Add(burn, bigOne)
	burnShares := sdkmath.NewIntFromBigInt(burn)
	if burnShares.GT(s.TotalShare) {
		return types.ExitFailure("Burn amount is greater than total share")
	}

	return types.AfterExitResponse{
		AssetsOut:  outs,
		BurnShares: burnShares,
		Response:   types.Success(),
		Fee:        fees,
	}
}

func (Stable) OnSwap(s Snapshot, req SwapRequest) types.SwapResponse {
	oi, ai, reason := selectPools(s.Pool, req.OfferAsset, req.AskAsset)
	if reason != "" {
		return types.SwapFailure(reason)
	}
	if req.Amount.IsNil() || !req.Amount.IsPositive() {
		return types.SwapFailure("Swap amount must be positive")
	}
	if req.Amount.GT(utils.MaxUint128) {
		return types.SwapFailure("Swap amount exceeds the 128-bit range")
	}
	c, reason := newStableCtx(s)
	if reason != "" {
		return types.SwapFailure(reason)
	}
	for _, x := range c.xp {
		if x.Sign() <= 0 {
			return types.SwapFailure("Pool has no liquidity")
		}
	}
	offerPrec, askPrec := c.precisions[oi], c.precisions[ai]

	var offerAmount, returnAmount, spread, fee sdkmath.Int
	switch req.SwapType {
	case types.GiveIn:
		offerAmount = req.Amount
		fee = s.Pool.FeeInfo.TotalFee(offerAmount)
		offerXp := toXp(offerAmount.Sub(fee), offerPrec, c.scaling[oi])
		newOffer := new(big.Int).Add(c.xp[oi], offerXp)
		y, err := calcY(c.amp, c.xp, oi, ai, newOffer)
		if err != nil {
			return types.SwapFailure(err.Error())
		}
		if y.Cmp(c.xp[ai]) >= 0 {
			return types.SwapFailure("Swap amount too small")
		}
		returnAmount = fromXp(new(big.Int).Sub(c.xp[ai], y), askPrec, c.scaling[ai])
		if !returnAmount.IsPositive() {
			return types.SwapFailure("Swap amount too small")
		}
		// Scaled balances trade 1:1, so any shortfall against the scaled offer is spread.
		spread = utils.SubOrZero(fromXp(offerXp, askPrec, c.scaling[ai]), returnAmount)
	case types.GiveOut:
		returnAmount = req.Amount
		if returnAmount.GTE(s.Pool.Assets[ai].AmountOrZero()) {
			return types.SwapFailure("Ask amount exceeds pool liquidity")
		}
		newAsk := new(big.Int).Sub(c.xp[ai], toXpCeil(returnAmount, askPrec, c.scaling[ai]))
		if newAsk.Sign() <= 0 {
			return types.SwapFailure("Ask amount exceeds pool liquidity")
		}
		y, err := calcY(c.amp, c.xp, ai, oi, newAsk)
		if err != nil {
			return types.SwapFailure(err.Error())
		}
		if y.Cmp(c.xp[oi]) <= 0 {
			return types.SwapFailure("Swap amount too small")
		}
		offerXp := new(big.Int).Sub(y, c.xp[oi])
		offerRaw := fromXpCeil(offerXp, offerPrec, c.scaling[oi])
		rate := s.Pool.FeeInfo.Rate()
		offerAmount = sdkmath.LegacyNewDecFromInt(offerRaw).Quo(sdkmath.LegacyOneDec().Sub(rate)).Ceil().TruncateInt()
		fee = offerAmount.Sub(offerRaw)
		spread = utils.SubOrZero(fromXp(offerXp, askPrec, c.scaling[ai]), returnAmount)
	default:
		return types.SwapFailure("Invalid swap type")
	}

	trade := types.Trade{AmountIn: offerAmount, AmountOut: returnAmount, Spread: spread}
	resp := assertMaxSpread(req.BeliefPrice, req.MaxSpread, c.params.MaxAllowedSpread, offerAmount, returnAmount, spread)
	if !resp.IsSuccess() {
		out := types.SwapFailure(resp.Reason)
		out.TradeParams = trade
		return out
	}
	feeAsset := types.NewAsset(req.OfferAsset, fee)
	return types.SwapResponse{TradeParams: trade, Response: types.Success(), Fee: &feeAsset}
}

// SpotPrice simulates a fee-less swap of one whole offer token.
func (Stable) SpotPrice(s Snapshot, offer, ask types.AssetInfo) (sdkmath.LegacyDec, error) {
	oi, ai, reason := selectPools(s.Pool, offer, ask)
	if reason != "" {
		return sdkmath.LegacyZeroDec(), ErrInvalidAsset
	}
	c, reason := newStableCtx(s)
	if reason != "" {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s", ErrInvalidParams, reason)
	}
	unit := utils.Pow10(c.precisions[oi])
	newOffer := new(big.Int).Add(c.xp[oi], toXp(unit, c.precisions[oi], c.scaling[oi]))
	y, err := calcY(c.amp, c.xp, oi, ai, newOffer)
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	if y.Cmp(c.xp[ai]) >= 0 {
		return sdkmath.LegacyZeroDec(), errEmptyBalance
	}
	out := fromXp(new(big.Int).Sub(c.xp[ai], y), c.precisions[ai], c.scaling[ai])
	return sdkmath.LegacyNewDecFromInt(out).QuoInt(unit), nil
}

func (Stable) UpdateParams(s Snapshot, req UpdateRequest) (types.MathParams, error) {
	if s.Pool.Math.Stable == nil {
		return types.MathParams{}, fmt.Errorf("%w: missing stableswap parameters", ErrInvalidParams)
	}
	var upd StableUpdateParams
	if err := json.Unmarshal(req.Params, &upd); err != nil {
		return types.MathParams{}, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	set := 0
	for _, b := range []bool{upd.StartChangingAmp != nil, upd.StopChangingAmp != nil, upd.UpdateScalingFactor != nil} {
		if b {
			set++
		}
	}
	if set != 1 {
		return types.MathParams{}, fmt.Errorf("%w: exactly one update must be given", ErrInvalidParams)
	}

	out := s.Pool.Math.Clone()
	p := out.Stable
	switch {
	case upd.StartChangingAmp != nil:
		if !req.IsOwner {
			return types.MathParams{}, ErrUnauthorized
		}
		if err := startChangingAmp(p, s.BlockTime, *upd.StartChangingAmp); err != nil {
			return types.MathParams{}, err
		}
	case upd.StopChangingAmp != nil:
		if !req.IsOwner {
			return types.MathParams{}, ErrUnauthorized
		}
		amp := currentAmp(p, s.BlockTime)
		p.InitAmp, p.NextAmp = amp, amp
		p.InitAmpTime, p.NextAmpTime = s.BlockTime, s.BlockTime
	case upd.UpdateScalingFactor != nil:
		if !p.SupportsScalingFactorsUpdate {
			return types.MathParams{}, fmt.Errorf("%w: scaling factor updates are disabled for this pool", ErrUnsupported)
		}
		if req.Sender != p.ScalingFactorManager {
			return types.MathParams{}, ErrUnauthorized
		}
		u := upd.UpdateScalingFactor
		if u.ScalingFactor.IsNil() || !u.ScalingFactor.IsPositive() {
			return types.MathParams{}, fmt.Errorf("%w: scaling factor must be positive", ErrInvalidParams)
		}
		found := false
		for i := range p.ScalingFactors {
			if p.ScalingFactors[i].Info.Equal(u.Asset) {
				p.ScalingFactors[i].ScalingFactor = u.ScalingFactor
				found = true
			}
		}
		if !found {
			return types.MathParams{}, fmt.Errorf("%w: %s", ErrInvalidAsset, u.Asset.ID())
		}
	}
	return out, nil
}

// startChangingAmp validates and applies a ramp request.
func startChangingAmp(p *types.StableMathParams, blockTime uint64, req StartChangingAmp) error {
	if req.NextAmp == 0 || req.NextAmp > MaxAmp {
		return ErrIncorrectAmp
	}
	cur := currentAmp(p, blockTime)
	next := req.NextAmp * AmpPrecision
	if next*MaxAmpChange < cur || next > cur*MaxAmpChange {
		return ErrMaxAmpChange
	}
	if blockTime < p.InitAmpTime+MinAmpChangingTime || req.NextAmpTime < blockTime+MinAmpChangingTime {
		return ErrMinAmpChangingTime
	}
	p.InitAmp = cur
	p.NextAmp = next
	p.InitAmpTime = blockTime
	p.NextAmpTime = req.NextAmpTime
	engineLogger.Debug().Uint64("from", cur).Uint64("to", next).Uint64("until", req.NextAmpTime).Msg("Amp ramp started")
	return nil
}

// Amp returns the ramp state of a stableswap pool at blockTime.
func Amp(pool types.PoolInfo, blockTime uint64) (AmpParams, error) {
	p := pool.Math.Stable
	if p == nil {
		return AmpParams{}, fmt.Errorf("%w: pool %d is not a stableswap pool", ErrUnsupported, pool.PoolID)
	}
	return AmpParams{
		InitAmp:     p.InitAmp,
		InitAmpTime: p.InitAmpTime,
		NextAmp:     p.NextAmp,
		NextAmpTime: p.NextAmpTime,
		CurrentAmp:  currentAmp(p, blockTime),
	}, nil
}

func indexOfInfo(infos []types.AssetInfo, info types.AssetInfo) int {
	for i, x := range infos {
		if x.Equal(info) {
			return i
		}
	}
	return -1
}
