package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/pool"
	"github.com/dexter-zone/dexvault/internal/types"
)

// ExitPoolMsg returns LP tokens for pool assets. LpSent is the LP amount the sender hands over with the
// message; whatever the exit does not burn is sent back.
type ExitPoolMsg struct {
	PoolID       uint64         `json:"pool_id"`
	Recipient    string         `json:"recipient,omitempty"`
	ExitType     types.ExitType `json:"exit_type"`
	LpSent       sdkmath.Int    `json:"lp_sent"`
	MinAssetsOut []types.Asset  `json:"min_assets_out,omitempty"`
	MaxLpToBurn  *sdkmath.Int   `json:"max_lp_to_burn,omitempty"`
}

// ExitResult reports what a committed exit settled.
type ExitResult struct {
	AssetsOut []types.Asset `json:"assets_out"`
	LpBurned  sdkmath.Int   `json:"lp_burned"`
	LpRefund  sdkmath.Int   `json:"lp_refund"`
	Fees      []types.Asset `json:"fees"`
}

// ExitPool burns LP tokens and pays out the pool's share. Proportional exits are never paused; exits for
// exact assets honour the imbalanced_withdraw flag.
func (v *Vault) ExitPool(ctx context.Context, env Env, msg ExitPoolMsg) (ExitResult, error) {
	var result ExitResult
	err := v.execute(ctx, types.MsgExitPool, env, msg.PoolID, func(tx *txn) error {
		cfg := tx.Config()
		rec, err := tx.Pool(msg.PoolID)
		if err != nil {
			return err
		}
		p := rec.Pool
		if err := checkAmount(msg.LpSent, "lp_sent"); err != nil {
			return err
		}
		if err := checkExitType(msg.ExitType); err != nil {
			return err
		}
		if msg.ExitType.IsImbalanced() {
			paused, err := effectivePause(tx, p)
			if err != nil {
				return err
			}
			if paused.ImbalancedWithdraw {
				return fail(ErrPoolPaused, "imbalanced withdrawals from pool %d are paused", p.PoolID)
			}
			if msg.MinAssetsOut != nil {
				return fail(ErrInvalidExitRequest, "min_assets_out only applies to exact_lp_burn")
			}
		} else {
			if !msg.ExitType.ExactLpBurn.Equal(msg.LpSent) {
				return fail(ErrUnexpectedLpTokens, "sent %s, exact_lp_burn %s", msg.LpSent, msg.ExitType.ExactLpBurn)
			}
			if msg.MaxLpToBurn != nil {
				return fail(ErrInvalidExitRequest, "max_lp_to_burn only applies to exact_assets_out")
			}
		}

		engine, err := engineFor(p)
		if err != nil {
			return err
		}
		snap := pool.NewSnapshot(p, rec.TotalShare, env.BlockTime)
		resp := engine.OnExit(snap, msg.ExitType)
		if !resp.Response.IsSuccess() {
			return fail(ErrPoolQueryFailed, "%s", resp.Response.Reason)
		}
		burn := resp.BurnShares
		if burn.IsNil() || !burn.IsPositive() {
			return fail(ErrBurnAmountZero, "")
		}
		if burn.GT(msg.LpSent) {
			return fail(ErrInsufficientLpTokensToExit, "burn %s, sent %s", burn, msg.LpSent)
		}
		if burn.GT(rec.TotalShare) {
			return fail(ErrBalanceUnderflow, "burn %s exceeds supply %s", burn, rec.TotalShare)
		}
		if msg.MaxLpToBurn != nil && burn.GT(*msg.MaxLpToBurn) {
			return fail(ErrMaxLpToBurn, "burn %s, max %s", burn, msg.MaxLpToBurn)
		}
		for _, min := range msg.MinAssetsOut {
			got := types.AmountOf(resp.AssetsOut, min.Info)
			if got.LT(min.AmountOrZero()) {
				return fail(ErrMinAssetsOut, "%s: got %s, wanted %s", min.Info.ID(), got, min.Amount)
			}
		}

		if twap, changed := pool.AccumulatePrices(engine, snap); changed {
			p.Twap = twap
		}

		lpInfo := types.TokenAsset(p.LpTokenAddr)
		tx.transfer(env.Sender, cfg.VaultAddress, types.NewAsset(lpInfo, msg.LpSent), "exit")
		tx.burn(cfg.VaultAddress, types.NewAsset(lpInfo, burn), "exit")
		refund := msg.LpSent.Sub(burn)
		tx.transfer(cfg.VaultAddress, env.Sender, types.NewAsset(lpInfo, refund), "exit_refund")

		recipient := msg.Recipient
		if recipient == "" {
			recipient = env.Sender
		}
		hasCollector := cfg.FeeCollector != ""
		outs := make([]types.Asset, len(p.Assets))
		fees := make([]types.Asset, len(p.Assets))
		for i, pa := range p.Assets {
			out := types.AmountOf(resp.AssetsOut, pa.Info)
			fee := types.AmountOf(resp.Fee, pa.Info)
			protocolFee, devFee := p.FeeInfo.Breakup(fee, hasCollector)

			debit := out.Add(protocolFee).Add(devFee)
			if pa.AmountOrZero().LT(debit) {
				return fail(ErrBalanceUnderflow, "pool %d %s: balance %s, debit %s", p.PoolID, pa.Info.ID(), pa.Amount, debit)
			}
			p.Assets[i] = types.NewAsset(pa.Info, pa.AmountOrZero().Sub(debit))

			outs[i] = types.NewAsset(pa.Info, out)
			fees[i] = types.NewAsset(pa.Info, fee)
			tx.transfer(cfg.VaultAddress, recipient, outs[i], "exit")
			payFees(tx, p.FeeInfo, pa.Info, protocolFee, devFee)

			poolID := p.PoolID
			feeAsset := fees[i]
			tx.onCommit(func() { v.metrics.addFee(poolID, feeAsset) })
		}
		p.BlockTimeLast = env.BlockTime

		rec.Pool = p
		rec.TotalShare = rec.TotalShare.Sub(burn)
		tx.SetPool(rec)

		result = ExitResult{AssetsOut: outs, LpBurned: burn, LpRefund: refund, Fees: fees}
		tx.attr("lp_burned", burn.String())
		tx.attr("recipient", recipient)
		return nil
	})
	return result, err
}
