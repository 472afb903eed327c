package pool

import (
	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/types"
	"github.com/dexter-zone/dexvault/internal/utils"
)

// XYK is the constant product engine for exactly two assets.
type XYK struct{}

func (XYK) Kind() types.EngineKind { return types.EngineXYK }

func (XYK) Instantiate(req InstantiateRequest) (InstantiateResult, error) {
	if len(req.AssetInfos) != 2 {
		return InstantiateResult{}, ErrInvalidNumberOfAssets
	}
	if err := checkPrecisions(req.AssetInfos, req.Precisions); err != nil {
		return InstantiateResult{}, err
	}
	return InstantiateResult{LpPrecision: DefaultLpPrecision}, nil
}

func (XYK) OnJoin(s Snapshot, req JoinRequest) types.AfterJoinResponse {
	if len(req.AssetsIn) != 2 {
		return types.JoinFailure("XYK pools accept deposits of exactly both assets")
	}
	deposits, reason := normalizeAssetsIn(s.Pool, req.AssetsIn)
	if reason != "" {
		return types.JoinFailure(reason)
	}
	for _, d := range deposits {
		if !d.Amount.IsPositive() {
			return types.JoinFailure("Both deposit amounts must be non-zero")
		}
	}
	pools := s.Pool.Assets

	if req.SlippageTolerance != nil && s.TotalShare.IsPositive() {
		if resp := assertSlippageTolerance(*req.SlippageTolerance, deposits, pools); !resp.IsSuccess() {
			return types.AfterJoinResponse{NewShares: sdkmath.ZeroInt(), Response: resp}
		}
	}

	var shares sdkmath.Int
	provided := types.CloneAssets(deposits)
	if !s.TotalShare.IsPositive() {
		product, err := deposits[0].Amount.SafeMul(deposits[1].Amount)
		if err != nil {
			return types.JoinFailure("Deposit product overflows")
		}
		shares = utils.IntegerSqrt(product)
	} else {
		for _, p := range pools {
			if !p.AmountOrZero().IsPositive() {
				return types.JoinFailure("Pool has an empty side")
			}
		}
		a, err := utils.MulRatio(deposits[0].Amount, s.TotalShare, pools[0].Amount)
		if err != nil {
			return types.JoinFailure(err.Error())
		}
		b, err := utils.MulRatio(deposits[1].Amount, s.TotalShare, pools[1].Amount)
		if err != nil {
			return types.JoinFailure(err.Error())
		}
		shares = utils.MinInt(a, b)
		// Only the amounts backing the minted shares are taken; the rest is refunded by the ledger.
		for i, p := range pools {
			need, err := ceilRatio(shares, p.Amount, s.TotalShare)
			if err != nil {
				return types.JoinFailure(err.Error())
			}
			provided[i] = types.NewAsset(p.Info, utils.MinInt(need, deposits[i].Amount))
		}
	}
	if !shares.IsPositive() {
		return types.JoinFailure("Deposit too small to mint LP tokens")
	}

	return types.AfterJoinResponse{
		ProvidedAssets: provided,
		NewShares:      shares,
		Response:       types.Success(),
		Fee:            zeroFees(s.Pool),
	}
}

func (XYK) OnExit(s Snapshot, exit types.ExitType) types.AfterExitResponse {
	if exit.IsImbalanced() {
		return types.ExitFailure("XYK pools only support exact_lp_burn exits")
	}
	return exactLpBurn(s, *exit.ExactLpBurn)
}

func (XYK) OnSwap(s Snapshot, req SwapRequest) types.SwapResponse {
	oi, ai, reason := selectPools(s.Pool, req.OfferAsset, req.AskAsset)
	if reason != "" {
		return types.SwapFailure(reason)
	}
	offerPool := s.Pool.Assets[oi].AmountOrZero()
	askPool := s.Pool.Assets[ai].AmountOrZero()
	if !offerPool.IsPositive() || !askPool.IsPositive() {
		return types.SwapFailure("Pool has no liquidity")
	}
	if req.Amount.IsNil() || !req.Amount.IsPositive() {
		return types.SwapFailure("Swap amount must be positive")
	}
	if req.Amount.GT(utils.MaxUint128) {
		return types.SwapFailure("Swap amount exceeds the 128-bit range")
	}
	bps := s.Pool.FeeInfo.TotalFeeBps

	var offerAmount, returnAmount, spread, fee sdkmath.Int
	switch req.SwapType {
	case types.GiveIn:
		offerAmount = req.Amount
		// return = ask * dx / (x + dx), spread = ask * dx / x - return
		var err error
		if returnAmount, err = utils.MulRatio(askPool, offerAmount, offerPool.Add(offerAmount)); err != nil {
			return types.SwapFailure(err.Error())
		}
		ideal, err := utils.MulRatio(offerAmount, askPool, offerPool)
		if err != nil {
			return types.SwapFailure(err.Error())
		}
		spread = utils.SubOrZero(ideal, returnAmount)
		fee = types.CalculateUnderlyingFees(returnAmount, bps)
	case types.GiveOut:
		// The requested amount is net of fees, so gross it up first.
		rate := s.Pool.FeeInfo.Rate()
		beforeFee := sdkmath.LegacyNewDecFromInt(req.Amount).Quo(sdkmath.LegacyOneDec().Sub(rate)).Ceil().TruncateInt()
		if beforeFee.GTE(askPool) {
			return types.SwapFailure("Ask amount exceeds pool liquidity")
		}
		total, err := ceilRatio(offerPool, askPool, askPool.Sub(beforeFee))
		if err != nil {
			return types.SwapFailure(err.Error())
		}
		offerAmount = total.Sub(offerPool)
		returnAmount = beforeFee
		fee = beforeFee.Sub(req.Amount)
		ideal, err := utils.MulRatio(offerAmount, askPool, offerPool)
		if err != nil {
			return types.SwapFailure(err.Error())
		}
		spread = utils.SubOrZero(ideal, beforeFee)
	default:
		return types.SwapFailure("Invalid swap type")
	}

	resp := assertMaxSpread(req.BeliefPrice, req.MaxSpread, MaxAllowedSpread, offerAmount, returnAmount, spread)
	if !resp.IsSuccess() {
		out := types.SwapFailure(resp.Reason)
		out.TradeParams = types.Trade{AmountIn: offerAmount, AmountOut: returnAmount.Sub(fee), Spread: spread}
		return out
	}

	feeAsset := types.NewAsset(req.AskAsset, fee)
	return types.SwapResponse{
		TradeParams: types.Trade{AmountIn: offerAmount, AmountOut: returnAmount.Sub(fee), Spread: spread},
		Response:    types.Success(),
		Fee:         &feeAsset,
	}
}

// SpotPrice of the constant product curve is ask/offer.
func (XYK) SpotPrice(s Snapshot, offer, ask types.AssetInfo) (sdkmath.LegacyDec, error) {
	oi, ai, reason := selectPools(s.Pool, offer, ask)
	if reason != "" {
		return sdkmath.LegacyZeroDec(), ErrInvalidAsset
	}
	offerPool := s.Pool.Assets[oi].AmountOrZero()
	if !offerPool.IsPositive() {
		return sdkmath.LegacyZeroDec(), utils.ErrDivisionByZero
	}
	return sdkmath.LegacyNewDecFromInt(s.Pool.Assets[ai].AmountOrZero()).QuoInt(offerPool), nil
}

func (XYK) UpdateParams(Snapshot, UpdateRequest) (types.MathParams, error) {
	return types.MathParams{}, ErrUnsupported
}

// assertSlippageTolerance rejects a two-sided deposit whose ratio deviates from the pool ratio by more than
// the tolerance in either direction.
func assertSlippageTolerance(tolerance sdkmath.LegacyDec, deposits, pools []types.Asset) types.Response {
	if tolerance.IsNegative() || tolerance.GT(MaxAllowedSpread) {
		return types.Failure("Slippage tolerance must be between 0 and 0.5")
	}
	oneMinus := sdkmath.LegacyOneDec().Sub(tolerance)
	d0 := sdkmath.LegacyNewDecFromInt(deposits[0].Amount)
	d1 := sdkmath.LegacyNewDecFromInt(deposits[1].Amount)
	p0 := sdkmath.LegacyNewDecFromInt(pools[0].Amount)
	p1 := sdkmath.LegacyNewDecFromInt(pools[1].Amount)
	if d0.Quo(d1).Mul(oneMinus).GT(p0.Quo(p1)) || d1.Quo(d0).Mul(oneMinus).GT(p1.Quo(p0)) {
		return types.Failure("Operation exceeds max slippage tolerance")
	}
	return types.Success()
}

// ceilDiv returns ceil(a / b) for positive b.
func ceilDiv(a, b sdkmath.Int) sdkmath.Int {
	q := a.Quo(b)
	if !q.Mul(b).Equal(a) {
		q = q.AddRaw(1)
	}
	return q
}

// ceilRatio returns ceil(v * num / den), failing when the product leaves the 256-bit range.
func ceilRatio(v, num, den sdkmath.Int) (sdkmath.Int, error) {
	if !den.IsPositive() {
		return sdkmath.Int{}, utils.ErrDivisionByZero
	}
	product, err := v.SafeMul(num)
	if err != nil {
		return sdkmath.Int{}, utils.ErrOverflow
	}
	return ceilDiv(product, den), nil
}
