package vault

import (
	"context"
	"strconv"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/types"
)

// RefundResult is the outcome for one user of a refund batch.
type RefundResult struct {
	User     string        `json:"user"`
	LpAmount sdkmath.Int   `json:"lp_amount"`
	Refund   []types.Asset `json:"refund"`
	Skipped  bool          `json:"skipped"`
}

// DefunctPool freezes a pool: its balances and LP supply are snapshotted and the pool leaves the active set.
// Owner only. Pools with reward schedules that are running or still to start cannot be made defunct.
func (v *Vault) DefunctPool(ctx context.Context, env Env, poolID uint64) error {
	return v.execute(ctx, types.MsgDefunctPool, env, poolID, func(tx *txn) error {
		if err := v.requireOwner(tx, env.Sender); err != nil {
			return err
		}
		rec, err := tx.Pool(poolID)
		if err != nil {
			return err
		}
		if v.staking != nil {
			active, err := v.staking.HasRewardSchedules(ctx, rec.Pool.LpTokenAddr, env.BlockTime)
			if err != nil {
				return failWith(ErrInvalidParams, err)
			}
			if active {
				return fail(ErrActiveRewardSchedules, "pool %d", poolID)
			}
		}

		tx.SetDefunct(types.DefunctInfo{
			PoolID:                 poolID,
			PoolType:               rec.Pool.PoolType,
			LpTokenAddr:            rec.Pool.LpTokenAddr,
			SnapshotAssets:         types.CloneAssets(rec.Pool.Assets),
			TotalLpSupplyAtDefunct: rec.TotalShare,
			TotalLpRefunded:        sdkmath.ZeroInt(),
			DefunctedAt:            env.BlockTime,
		})
		tx.RemovePool(poolID)
		tx.attr("total_lp_supply", rec.TotalShare.String())
		vaultLogger.Info().Uint64("pool_id", poolID).Str("lp_supply", rec.TotalShare.String()).Msg("Pool made defunct")
		return nil
	})
}

// ProcessRefundBatch pays users of a defunct pool their share of the snapshot. A user's LP position counts both
// the tokens held directly and everything held by the staking collaborator; the direct holding is burned.
// Users already refunded are skipped. Owner only.
func (v *Vault) ProcessRefundBatch(ctx context.Context, env Env, poolID uint64, users []string) ([]RefundResult, error) {
	var results []RefundResult
	err := v.execute(ctx, types.MsgProcessRefundBatch, env, poolID, func(tx *txn) error {
		if err := v.requireOwner(tx, env.Sender); err != nil {
			return err
		}
		d, ok := tx.Defunct(poolID)
		if !ok {
			return fail(ErrPoolNotDefunct, "pool %d", poolID)
		}
		cfg := tx.Config()
		lpInfo := types.TokenAsset(d.LpTokenAddr)
		seen := map[string]struct{}{}
		refunded := 0
		for _, user := range users {
			if _, dup := seen[user]; dup {
				continue
			}
			seen[user] = struct{}{}
			if tx.IsRefunded(poolID, user) {
				results = append(results, RefundResult{User: user, LpAmount: sdkmath.ZeroInt(), Skipped: true})
				continue
			}

			direct, err := v.bank.Balance(ctx, user, lpInfo)
			if err != nil {
				return failWith(ErrInvalidParams, err)
			}
			lp := direct
			if v.staking != nil {
				pos, err := v.staking.Position(ctx, d.LpTokenAddr, user)
				if err != nil {
					return failWith(ErrInvalidParams, err)
				}
				lp = lp.Add(pos.Total())
			}

			res := RefundResult{User: user, LpAmount: lp}
			if lp.IsPositive() {
				if d.TotalLpRefunded.Add(lp).GT(d.TotalLpSupplyAtDefunct) {
					return fail(ErrRefundExceedsSnapshot, "pool %d user %s", poolID, user)
				}
				for _, a := range d.SnapshotAssets {
					share := a.AmountOrZero().Mul(lp).Quo(d.TotalLpSupplyAtDefunct)
					asset := types.NewAsset(a.Info, share)
					res.Refund = append(res.Refund, asset)
					tx.transfer(cfg.VaultAddress, user, asset, "defunct_refund")
				}
				d.TotalLpRefunded = d.TotalLpRefunded.Add(lp)
				// Directly held LP is burned with the refund.
				burned := types.NewAsset(lpInfo, direct)
				tx.transfer(user, cfg.VaultAddress, burned, "defunct_refund")
				tx.burn(cfg.VaultAddress, burned, "defunct_refund")
			}
			tx.MarkRefunded(poolID, user)
			results = append(results, res)
			refunded++
		}
		tx.SetDefunct(d)
		tx.attr("users_refunded", strconv.Itoa(refunded))
		tx.attr("total_lp_refunded", d.TotalLpRefunded.String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
