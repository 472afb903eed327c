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
	weightedMinAssets = 2
	weightedMaxAssets = 8
	// initLpTokens is the whole number of LP tokens minted by the first join.
	initLpTokens = 100
)

// MaxExitFee caps the weighted pool exit fee at 1%.
var MaxExitFee = sdkmath.LegacyNewDecWithPrec(1, 2)

// WeightedAsset is an unnormalized weight as supplied in init params.
type WeightedAsset struct {
	Info   types.AssetInfo `json:"info"`
	Amount sdkmath.Int     `json:"amount"`
}

// WeightedInitParams is the init_params payload of a weighted pool.
type WeightedInitParams struct {
	Weights []WeightedAsset    `json:"weights"`
	ExitFee *sdkmath.LegacyDec `json:"exit_fee,omitempty"`
}

// Weighted is the Balancer style engine. Weights are fixed at creation.
type Weighted struct{}

func (Weighted) Kind() types.EngineKind { return types.EngineWeighted }

func (Weighted) Instantiate(req InstantiateRequest) (InstantiateResult, error) {
	n := len(req.AssetInfos)
	if n < weightedMinAssets || n > weightedMaxAssets {
		return InstantiateResult{}, fmt.Errorf("%w: weighted pools take %d to %d assets, got %d",
			ErrInvalidNumberOfAssets, weightedMinAssets, weightedMaxAssets, n)
	}
	if err := checkPrecisions(req.AssetInfos, req.Precisions); err != nil {
		return InstantiateResult{}, err
	}
	if len(req.InitParams) == 0 {
		return InstantiateResult{}, fmt.Errorf("%w: init params are required", ErrInvalidParams)
	}
	var init WeightedInitParams
	if err := json.Unmarshal(req.InitParams, &init); err != nil {
		return InstantiateResult{}, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if len(init.Weights) != n {
		return InstantiateResult{}, fmt.Errorf("%w: expected %d weights, got %d", ErrInvalidParams, n, len(init.Weights))
	}

	exitFee := sdkmath.LegacyZeroDec()
	if init.ExitFee != nil {
		exitFee = *init.ExitFee
		if exitFee.IsNil() || exitFee.IsNegative() || exitFee.GT(MaxExitFee) {
			return InstantiateResult{}, fmt.Errorf("%w: exit_fee must be between 0 and %s", ErrInvalidParams, MaxExitFee)
		}
	}

	total := sdkmath.ZeroInt()
	raw := make([]sdkmath.Int, n)
	for _, w := range init.Weights {
		idx := indexOfInfo(req.AssetInfos, w.Info)
		if idx < 0 {
			return InstantiateResult{}, fmt.Errorf("%w: weight for %s", ErrInvalidAsset, w.Info.ID())
		}
		if !raw[idx].IsNil() {
			return InstantiateResult{}, fmt.Errorf("%w: duplicate weight for %s", ErrInvalidParams, w.Info.ID())
		}
		if w.Amount.IsNil() || !w.Amount.IsPositive() {
			return InstantiateResult{}, fmt.Errorf("%w: weight of %s must be positive", ErrInvalidParams, w.Info.ID())
		}
		raw[idx] = w.Amount
		total = total.Add(w.Amount)
	}

	weights := make([]types.AssetWeight, n)
	for i, info := range req.AssetInfos {
		weights[i] = types.AssetWeight{
			Info:   info,
			Weight: sdkmath.LegacyNewDecFromInt(raw[i]).QuoInt(total),
		}
	}

	greatest := greatestPrecision(req.Precisions)
	return InstantiateResult{
		Math: types.MathParams{Weighted: &types.WeightedMathParams{
			Weights:           weights,
			ExitFee:           exitFee,
			GreatestPrecision: greatest,
		}},
		LpPrecision: greatest,
	}, nil
}

func weightOf(p *types.WeightedMathParams, info types.AssetInfo) (sdkmath.LegacyDec, bool) {
	for _, w := range p.Weights {
		if w.Info.Equal(info) {
			return w.Weight, true
		}
	}
	return sdkmath.LegacyZeroDec(), false
}

func (Weighted) OnJoin(s Snapshot, req JoinRequest) types.AfterJoinResponse {
	p := s.Pool.Math.Weighted
	if p == nil {
		return types.JoinFailure("Missing weighted parameters")
	}
	if len(req.AssetsIn) == 0 {
		return types.JoinFailure("No assets provided")
	}
	deposits, reason := normalizeAssetsIn(s.Pool, req.AssetsIn)
	if reason != "" {
		return types.JoinFailure(reason)
	}
	allNonZero, anyNonZero := true, false
	for _, d := range deposits {
		if d.Amount.IsPositive() {
			anyNonZero = true
		} else {
			allNonZero = false
		}
	}
	if !anyNonZero {
		return types.JoinFailure("No non-zero assets provided")
	}

	fees := zeroFees(s.Pool)
	if !s.TotalShare.IsPositive() {
		if !allNonZero {
			return types.JoinFailure("Initial join must provide every pool asset")
		}
		return types.AfterJoinResponse{
			ProvidedAssets: deposits,
			NewShares:      sdkmath.NewInt(initLpTokens).Mul(utils.Pow10(s.Pool.LpPrecision)),
			Response:       types.Success(),
			Fee:            fees,
		}
	}

	balances := make([]sdkmath.Int, len(s.Pool.Assets))
	for i, a := range s.Pool.Assets {
		balances[i] = a.AmountOrZero()
		if !balances[i].IsPositive() {
			return types.JoinFailure("Pool has an empty side")
		}
	}
	total := s.TotalShare
	minted := sdkmath.ZeroInt()
	remaining := make([]sdkmath.Int, len(deposits))
	for i, d := range deposits {
		remaining[i] = d.Amount
	}

	if allNonZero {
		// Exact ratio part: the largest share amount every deposit can back proportionally.
		shares := sdkmath.Int{}
		for i := range deposits {
			v, err := utils.MulRatio(deposits[i].Amount, total, balances[i])
			if err != nil {
				return types.JoinFailure(err.Error())
			}
			if shares.IsNil() || v.LT(shares) {
				shares = v
			}
		}
		if shares.IsPositive() {
			for i := range deposits {
				need, err := ceilRatio(shares, balances[i], total)
				if err != nil {
					return types.JoinFailure(err.Error())
				}
				used := utils.MinInt(need, deposits[i].Amount)
				remaining[i] = deposits[i].Amount.Sub(used)
				balances[i] = balances[i].Add(used)
			}
			minted = minted.Add(shares)
			total = total.Add(shares)
		}
	}

	rate := s.Pool.FeeInfo.Rate()
	for i, info := range s.Pool.AssetInfos() {
		if !remaining[i].IsPositive() {
			continue
		}
		w, ok := weightOf(p, info)
		if !ok {
			return types.JoinFailure(fmt.Sprintf("Missing weight for %s", info.ID()))
		}
		afterFee := sdkmath.LegacyNewDecFromInt(remaining[i]).Mul(feeRatio(w, rate)).TruncateInt()
		if afterFee.GTE(balances[i]) {
			return types.JoinFailure(fmt.Sprintf("Single asset deposit of %s must be smaller than its pool balance", info.ID()))
		}
		bal := sdkmath.LegacyNewDecFromInt(balances[i])
		out, err := solveConstantFunctionInvariant(
			bal.Add(sdkmath.LegacyNewDecFromInt(afterFee)), bal, w,
			sdkmath.LegacyNewDecFromInt(total), sdkmath.LegacyOneDec(),
		)
		if err != nil {
			return types.JoinFailure(err.Error())
		}
		shares := out.TruncateInt()
		fees[i] = types.NewAsset(info, remaining[i].Sub(afterFee))
		balances[i] = balances[i].Add(remaining[i])
		minted = minted.Add(shares)
		total = total.Add(shares)
	}

	if !minted.IsPositive() {
		return types.JoinFailure("Mint amount is zero")
	}
	return types.AfterJoinResponse{
		ProvidedAssets: deposits,
		NewShares:      minted,
		Response:       types.Success(),
		Fee:            fees,
	}
}

// OnExit pays out the burned share minus the exit fee; the fee share stays with remaining LPs.
func (Weighted) OnExit(s Snapshot, exit types.ExitType) types.AfterExitResponse {
	p := s.Pool.Math.Weighted
	if p == nil {
		return types.ExitFailure("Missing weighted parameters")
	}
	if exit.IsImbalanced() {
		return types.ExitFailure("Weighted pools only support exact_lp_burn exits")
	}
	burn := *exit.ExactLpBurn
	if burn.IsNil() || !burn.IsPositive() {
		return types.ExitFailure("Burn amount is zero")
	}
	if burn.GT(s.TotalShare) {
		return types.ExitFailure("Burn amount is greater than total share")
	}
	effective := burn
	if !p.ExitFee.IsNil() && p.ExitFee.IsPositive() {
		effective = sdkmath.LegacyNewDecFromInt(burn).Mul(sdkmath.LegacyOneDec().Sub(p.ExitFee)).TruncateInt()
	}
	return types.AfterExitResponse{
		AssetsOut:  shareInAssets(s.Pool.Assets, effective, s.TotalShare),
		BurnShares: burn,
		Response:   types.Success(),
		Fee:        zeroFees(s.Pool),
	}
}

func (Weighted) OnSwap(s Snapshot, req SwapRequest) types.SwapResponse {
	p := s.Pool.Math.Weighted
	if p == nil {
		return types.SwapFailure("Missing weighted parameters")
	}
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
	offerPool := s.Pool.Assets[oi].AmountOrZero()
	askPool := s.Pool.Assets[ai].AmountOrZero()
	if !offerPool.IsPositive() || !askPool.IsPositive() {
		return types.SwapFailure("Pool has no liquidity")
	}
	wOffer, _ := weightOf(p, req.OfferAsset)
	wAsk, _ := weightOf(p, req.AskAsset)
	if !wOffer.IsPositive() || !wAsk.IsPositive() {
		return types.SwapFailure("Missing asset weights")
	}
	bOffer := sdkmath.LegacyNewDecFromInt(offerPool)
	bAsk := sdkmath.LegacyNewDecFromInt(askPool)
	spot := bAsk.Quo(wAsk).Quo(bOffer.Quo(wOffer))

	var offerAmount, returnAmount, fee sdkmath.Int
	switch req.SwapType {
	case types.GiveIn:
		offerAmount = req.Amount
		fee = s.Pool.FeeInfo.TotalFee(offerAmount)
		in := sdkmath.LegacyNewDecFromInt(offerAmount.Sub(fee))
		out, err := solveConstantFunctionInvariant(bOffer, bOffer.Add(in), wOffer, bAsk, wAsk)
		if err != nil {
			return types.SwapFailure(err.Error())
		}
		returnAmount = out.TruncateInt()
	case types.GiveOut:
		returnAmount = req.Amount
		if returnAmount.GTE(askPool) {
			return types.SwapFailure("Ask amount exceeds pool liquidity")
		}
		// offer = B_offer * ((B_ask / (B_ask - out))^(w_ask/w_offer) - 1)
		in, err := solveConstantFunctionInvariant(bAsk, bAsk.Sub(sdkmath.LegacyNewDecFromInt(returnAmount)), wAsk, bOffer, wOffer)
		if err != nil {
			return types.SwapFailure(err.Error())
		}
		exact := in.Ceil().TruncateInt()
		rate := s.Pool.FeeInfo.Rate()
		offerAmount = sdkmath.LegacyNewDecFromInt(exact).Quo(sdkmath.LegacyOneDec().Sub(rate)).Ceil().TruncateInt()
		fee = offerAmount.Sub(exact)
	default:
		return types.SwapFailure("Invalid swap type")
	}
	if !returnAmount.IsPositive() {
		return types.SwapFailure("Swap amount too small")
	}

	expected, err := mulIntDec(offerAmount.Sub(fee), spot)
	if err != nil {
		return types.SwapFailure(err.Error())
	}
	feeAsset := types.NewAsset(req.OfferAsset, fee)
	return types.SwapResponse{
		TradeParams: types.Trade{AmountIn: offerAmount, AmountOut: returnAmount, Spread: utils.SubOrZero(expected, returnAmount)},
		Response:    types.Success(),
		Fee:         &feeAsset,
	}
}

// SpotPrice is (B_ask / w_ask) / (B_offer / w_offer).
func (Weighted) SpotPrice(s Snapshot, offer, ask types.AssetInfo) (sdkmath.LegacyDec, error) {
	p := s.Pool.Math.Weighted
	if p == nil {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: missing weighted parameters", ErrInvalidParams)
	}
	oi, ai, reason := selectPools(s.Pool, offer, ask)
	if reason != "" {
		return sdkmath.LegacyZeroDec(), ErrInvalidAsset
	}
	wOffer, _ := weightOf(p, offer)
	wAsk, _ := weightOf(p, ask)
	offerPool := s.Pool.Assets[oi].AmountOrZero()
	if !offerPool.IsPositive() || !wOffer.IsPositive() || !wAsk.IsPositive() {
		return sdkmath.LegacyZeroDec(), utils.ErrDivisionByZero
	}
	num := sdkmath.LegacyNewDecFromInt(s.Pool.Assets[ai].AmountOrZero()).Quo(wAsk)
	return num.Quo(sdkmath.LegacyNewDecFromInt(offerPool).Quo(wOffer)), nil
}

func (Weighted) UpdateParams(Snapshot, UpdateRequest) (types.MathParams, error) {
	return types.MathParams{}, fmt.Errorf("%w: weights are immutable", ErrUnsupported)
}

// mulIntDec returns trunc(v * d), failing when the product leaves the 256-bit range.
func mulIntDec(v sdkmath.Int, d sdkmath.LegacyDec) (sdkmath.Int, error) {
	product := new(big.Int).Mul(v.BigInt(), d.BigInt())
	product.Quo(product, utils.Pow10(sdkmath.LegacyPrecision).BigInt())
	if product.BitLen() > sdkmath.MaxBitLen {
		return sdkmath.Int{}, utils.ErrOverflow
	}
	return sdkmath.NewIntFromBigInt(product), nil
}
