package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/pool"
	"github.com/dexter-zone/dexvault/internal/types"
	"github.com/dexter-zone/dexvault/internal/utils"
)

// JoinPoolMsg deposits assets into a pool for LP tokens.
type JoinPoolMsg struct {
	PoolID            uint64             `json:"pool_id"`
	Recipient         string             `json:"recipient,omitempty"`
	Assets            []types.Asset      `json:"assets"`
	// LpToMint is advisory. It is passed to the engine, and the built-in engines price the deposit from
	// Assets and ignore it.
	LpToMint          *sdkmath.Int       `json:"lp_to_mint,omitempty"`
	SlippageTolerance *sdkmath.LegacyDec `json:"slippage_tolerance,omitempty"`
	MinLpToReceive    *sdkmath.Int       `json:"min_lp_to_receive,omitempty"`
	AutoStake         bool               `json:"auto_stake,omitempty"`
}

// JoinResult reports what a committed join settled.
type JoinResult struct {
	ProvidedAssets []types.Asset `json:"provided_assets"`
	LpMinted       sdkmath.Int   `json:"lp_minted"`
	Fees           []types.Asset `json:"fees"`
}

// JoinPool prices a deposit with the pool engine, pulls the consumed assets from the sender and mints LP
// tokens to the recipient or bonds them on its behalf.
func (v *Vault) JoinPool(ctx context.Context, env Env, msg JoinPoolMsg) (JoinResult, error) {
	var result JoinResult
	err := v.execute(ctx, types.MsgJoinPool, env, msg.PoolID, func(tx *txn) error {
		cfg := tx.Config()
		rec, err := tx.Pool(msg.PoolID)
		if err != nil {
			return err
		}
		p := rec.Pool
		paused, err := effectivePause(tx, p)
		if err != nil {
			return err
		}
		if paused.Deposit {
			return fail(ErrPoolPaused, "deposits to pool %d are paused", p.PoolID)
		}
		if msg.AutoStake && (!cfg.AutoStakeImpl.Enabled() || v.staking == nil) {
			return fail(ErrAutoStakeDisabled, "")
		}
		if err := checkAssets(msg.Assets); err != nil {
			return err
		}

		engine, err := engineFor(p)
		if err != nil {
			return err
		}
		snap := pool.NewSnapshot(p, rec.TotalShare, env.BlockTime)
		resp := engine.OnJoin(snap, pool.JoinRequest{
			AssetsIn:          msg.Assets,
			MintAmount:        msg.LpToMint,
			SlippageTolerance: msg.SlippageTolerance,
		})
		if !resp.Response.IsSuccess() {
			return fail(ErrPoolQueryFailed, "%s", resp.Response.Reason)
		}
		if resp.NewShares.IsNil() || !resp.NewShares.IsPositive() {
			return fail(ErrPoolQueryFailed, "join would mint no LP tokens")
		}
		if rec.TotalShare.Add(resp.NewShares).GT(utils.MaxUint128) {
			return fail(ErrInvalidAmount, "pool %d LP supply would exceed the 128-bit range", p.PoolID)
		}
		if len(resp.ProvidedAssets) != len(p.Assets) {
			return fail(ErrPoolQueryFailed, "engine returned %d provided assets for %d pool assets",
				len(resp.ProvidedAssets), len(p.Assets))
		}
		if msg.MinLpToReceive != nil && resp.NewShares.LT(*msg.MinLpToReceive) {
			return fail(ErrSlippageExceeded, "minted %s, wanted at least %s", resp.NewShares, msg.MinLpToReceive)
		}

		funds, err := newFundsTracker(env.Funds)
		if err != nil {
			return err
		}
		if twap, changed := pool.AccumulatePrices(engine, snap); changed {
			p.Twap = twap
		}

		hasCollector := cfg.FeeCollector != ""
		fees := make([]types.Asset, len(p.Assets))
		for i, pa := range p.Assets {
			provided := resp.ProvidedAssets[i]
			if !provided.Info.Equal(pa.Info) {
				return fail(ErrMismatchedAssets, "provided %s at position of %s", provided.Info.ID(), pa.Info.ID())
			}
			amount := provided.AmountOrZero()
			if err := pull(tx, funds, env.Sender, provided, "join"); err != nil {
				return err
			}

			fee := types.AmountOf(resp.Fee, pa.Info)
			fees[i] = types.NewAsset(pa.Info, fee)
			protocolFee, devFee := p.FeeInfo.Breakup(fee, hasCollector)
			payFees(tx, p.FeeInfo, pa.Info, protocolFee, devFee)

			next := pa.AmountOrZero().Add(amount)
			if next.GT(utils.MaxUint128) {
				return fail(ErrInvalidAmount, "pool %d %s balance would exceed the 128-bit range", p.PoolID, pa.Info.ID())
			}
			if next.LT(protocolFee.Add(devFee)) {
				return fail(ErrBalanceUnderflow, "pool %d %s", p.PoolID, pa.Info.ID())
			}
			p.Assets[i] = types.NewAsset(pa.Info, next.Sub(protocolFee).Sub(devFee))

			poolID := p.PoolID
			feeAsset := fees[i]
			tx.onCommit(func() { v.metrics.addFee(poolID, feeAsset) })
		}
		p.BlockTimeLast = env.BlockTime

		recipient := msg.Recipient
		if recipient == "" {
			recipient = env.Sender
		}
		lp := types.NewAsset(types.TokenAsset(p.LpTokenAddr), resp.NewShares)
		if msg.AutoStake {
			tx.mint(cfg.AutoStakeImpl.Multistaking, lp, "join_auto_stake")
			tx.bond(types.Bond{Beneficiary: recipient, LpToken: p.LpTokenAddr, Amount: resp.NewShares})
		} else {
			tx.mint(recipient, lp, "join")
		}

		rec.Pool = p
		rec.TotalShare = rec.TotalShare.Add(resp.NewShares)
		tx.SetPool(rec)

		result = JoinResult{
			ProvidedAssets: types.CloneAssets(resp.ProvidedAssets),
			LpMinted:       resp.NewShares,
			Fees:           fees,
		}
		tx.attr("lp_minted", resp.NewShares.String())
		tx.attr("recipient", recipient)
		if s := funds.surplus(); !s.IsZero() {
			tx.attr("unused_funds", s.String())
		}
		return nil
	})
	return result, err
}
