package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/pool"
	"github.com/dexter-zone/dexvault/internal/types"
	"github.com/dexter-zone/dexvault/internal/utils"
)

// SwapMsg trades one pool asset for another. Amount is the offer amount for give_in swaps and the ask
// amount for give_out swaps.
type SwapMsg struct {
	PoolID      uint64             `json:"pool_id"`
	SwapType    types.SwapType     `json:"swap_type"`
	OfferAsset  types.AssetInfo    `json:"offer_asset"`
	AskAsset    types.AssetInfo    `json:"ask_asset"`
	Amount      sdkmath.Int        `json:"amount"`
	MaxSpread   *sdkmath.LegacyDec `json:"max_spread,omitempty"`
	BeliefPrice *sdkmath.LegacyDec `json:"belief_price,omitempty"`
	Recipient   string             `json:"recipient,omitempty"`
	MinReceive  *sdkmath.Int       `json:"min_receive,omitempty"`
	MaxSpend    *sdkmath.Int       `json:"max_spend,omitempty"`
}

// SwapResult reports what a committed swap settled.
type SwapResult struct {
	AmountIn  sdkmath.Int  `json:"amount_in"`
	AmountOut sdkmath.Int  `json:"amount_out"`
	Spread    sdkmath.Int  `json:"spread"`
	Fee       *types.Asset `json:"fee,omitempty"`
}

// Swap prices a trade with the pool engine and settles it. The commission is charged in whichever asset the
// engine reports; its protocol and developer parts leave the pool balance.
func (v *Vault) Swap(ctx context.Context, env Env, msg SwapMsg) (SwapResult, error) {
	var result SwapResult
	err := v.execute(ctx, types.MsgSwap, env, msg.PoolID, func(tx *txn) error {
		cfg := tx.Config()
		if err := checkAmount(msg.Amount, "swap amount"); err != nil {
			return err
		}
		if msg.OfferAsset.Equal(msg.AskAsset) {
			return fail(ErrSameToken, "%s", msg.OfferAsset.ID())
		}
		if err := msg.SwapType.Validate(); err != nil {
			return failWith(ErrInvalidParams, err)
		}
		rec, err := tx.Pool(msg.PoolID)
		if err != nil {
			return err
		}
		p := rec.Pool
		paused, err := effectivePause(tx, p)
		if err != nil {
			return err
		}
		if paused.Swap {
			return fail(ErrPoolPaused, "swaps in pool %d are paused", p.PoolID)
		}
		oi := types.FindAsset(p.Assets, msg.OfferAsset)
		ai := types.FindAsset(p.Assets, msg.AskAsset)
		if oi < 0 || ai < 0 {
			return fail(ErrMismatchedAssets, "%s/%s not in pool %d", msg.OfferAsset.ID(), msg.AskAsset.ID(), p.PoolID)
		}

		engine, err := engineFor(p)
		if err != nil {
			return err
		}
		snap := pool.NewSnapshot(p, rec.TotalShare, env.BlockTime)
		resp := engine.OnSwap(snap, pool.SwapRequest{
			SwapType:    msg.SwapType,
			OfferAsset:  msg.OfferAsset,
			AskAsset:    msg.AskAsset,
			Amount:      msg.Amount,
			MaxSpread:   msg.MaxSpread,
			BeliefPrice: msg.BeliefPrice,
		})
		if !resp.Response.IsSuccess() {
			return fail(ErrPoolQueryFailed, "%s", resp.Response.Reason)
		}
		in, out := resp.TradeParams.AmountIn, resp.TradeParams.AmountOut
		if in.IsNil() || out.IsNil() || !in.IsPositive() || !out.IsPositive() {
			return fail(ErrSwapAmountZero, "")
		}
		if msg.MinReceive != nil && out.LT(*msg.MinReceive) {
			return fail(ErrMinReceive, "return %s, min_receive %s", out, msg.MinReceive)
		}
		if msg.MaxSpend != nil && in.GT(*msg.MaxSpend) {
			return fail(ErrMaxSpend, "offer %s, max_spend %s", in, msg.MaxSpend)
		}

		if twap, changed := pool.AccumulatePrices(engine, snap); changed {
			p.Twap = twap
		}

		protocolFee, devFee := sdkmath.ZeroInt(), sdkmath.ZeroInt()
		feeInOffer := false
		if resp.Fee != nil {
			fi := resp.Fee.Info
			if !fi.Equal(msg.OfferAsset) && !fi.Equal(msg.AskAsset) {
				return fail(ErrPoolQueryFailed, "fee charged in foreign asset %s", fi.ID())
			}
			feeInOffer = fi.Equal(msg.OfferAsset)
			protocolFee, devFee = p.FeeInfo.Breakup(resp.Fee.AmountOrZero(), cfg.FeeCollector != "")
		}
		carved := protocolFee.Add(devFee)

		offerBal, err := p.Assets[oi].AmountOrZero().SafeAdd(in)
		if err != nil || offerBal.GT(utils.MaxUint128) {
			return fail(ErrInvalidAmount, "pool %d %s balance would exceed the 128-bit range", p.PoolID, msg.OfferAsset.ID())
		}
		askDebit := out
		if feeInOffer {
			if offerBal.LT(carved) {
				return fail(ErrBalanceUnderflow, "pool %d %s", p.PoolID, msg.OfferAsset.ID())
			}
			offerBal = offerBal.Sub(carved)
		} else {
			askDebit = askDebit.Add(carved)
		}
		askBal := p.Assets[ai].AmountOrZero()
		if askBal.LT(askDebit) {
			return fail(ErrBalanceUnderflow, "pool %d %s: balance %s, debit %s", p.PoolID, msg.AskAsset.ID(), askBal, askDebit)
		}
		p.Assets[oi] = types.NewAsset(msg.OfferAsset, offerBal)
		p.Assets[ai] = types.NewAsset(msg.AskAsset, askBal.Sub(askDebit))
		p.BlockTimeLast = env.BlockTime

		funds, err := newFundsTracker(env.Funds)
		if err != nil {
			return err
		}
		offer := types.NewAsset(msg.OfferAsset, in)
		if err := pull(tx, funds, env.Sender, offer, "swap"); err != nil {
			return err
		}
		recipient := msg.Recipient
		if recipient == "" {
			recipient = env.Sender
		}
		tx.transfer(cfg.VaultAddress, recipient, types.NewAsset(msg.AskAsset, out), "swap")
		if resp.Fee != nil {
			payFees(tx, p.FeeInfo, resp.Fee.Info, protocolFee, devFee)
		}

		rec.Pool = p
		tx.SetPool(rec)

		result = SwapResult{AmountIn: in, AmountOut: out, Spread: resp.TradeParams.Spread}
		if resp.Fee != nil {
			fee := *resp.Fee
			result.Fee = &fee
			tx.onCommit(func() { v.metrics.addFee(p.PoolID, fee) })
		}
		tx.onCommit(func() { v.metrics.addSwap(p.PoolID, offer) })

		tx.attr("offer_asset", msg.OfferAsset.ID())
		tx.attr("ask_asset", msg.AskAsset.ID())
		tx.attr("offer_amount", in.String())
		tx.attr("return_amount", out.String())
		tx.attr("recipient", recipient)
		if s := funds.surplus(); !s.IsZero() {
			tx.attr("unused_funds", s.String())
		}
		return nil
	})
	return result, err
}
