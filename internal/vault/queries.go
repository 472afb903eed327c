package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/pool"
	"github.com/dexter-zone/dexvault/internal/types"
)

// view runs fn against the committed ledger. Nothing fn stages is applied.
func (v *Vault) view(fn func(tx *txn) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return fn(newTxn(v.st))
}

// at returns blockTime, or the time of the last committed message when blockTime is zero.
func (v *Vault) at(blockTime uint64) uint64 {
	if blockTime == 0 {
		return v.st.blockTime
	}
	return blockTime
}

func (v *Vault) Config() types.Config {
	var cfg types.Config
	_ = v.view(func(tx *txn) error {
		cfg = tx.Config()
		return nil
	})
	return cfg
}

// BlockTime returns the block time of the last committed message.
func (v *Vault) BlockTime() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.st.blockTime
}

func (v *Vault) QueryRegistry(poolType string) (types.PoolTypeConfig, error) {
	var out types.PoolTypeConfig
	err := v.view(func(tx *txn) (err error) {
		out, err = tx.PoolType(poolType)
		return err
	})
	return out, err
}

func (v *Vault) GetPoolById(id uint64) (types.PoolRecord, error) {
	var out types.PoolRecord
	err := v.view(func(tx *txn) (err error) {
		out, err = tx.Pool(id)
		return err
	})
	return out, err
}

func (v *Vault) GetPoolByAddress(addr string) (types.PoolRecord, error) {
	var out types.PoolRecord
	err := v.view(func(tx *txn) (err error) {
		id, ok := v.st.byAddr[addr]
		if !ok {
			return fail(ErrPoolNotFound, "address %s", addr)
		}
		out, err = tx.Pool(id)
		return err
	})
	return out, err
}

func (v *Vault) GetPoolByLpToken(addr string) (types.PoolRecord, error) {
	var out types.PoolRecord
	err := v.view(func(tx *txn) (err error) {
		id, ok := v.st.byLpToken[addr]
		if !ok {
			return fail(ErrPoolNotFound, "lp token %s", addr)
		}
		out, err = tx.Pool(id)
		return err
	})
	return out, err
}

// ListPools returns the active pools ordered by id.
func (v *Vault) ListPools() []types.PoolRecord {
	return v.Snapshot().Pools
}

// snapshotOf returns an engine snapshot of an active pool at blockTime.
func (v *Vault) snapshotOf(tx *txn, poolID, blockTime uint64) (pool.Engine, pool.Snapshot, error) {
	rec, err := tx.Pool(poolID)
	if err != nil {
		return nil, pool.Snapshot{}, err
	}
	engine, err := engineFor(rec.Pool)
	if err != nil {
		return nil, pool.Snapshot{}, err
	}
	return engine, pool.NewSnapshot(rec.Pool, rec.TotalShare, v.at(blockTime)), nil
}

// OnJoinPool simulates a join. Engine failures are reported in the response, not as an error.
func (v *Vault) OnJoinPool(poolID, blockTime uint64, req pool.JoinRequest) (types.AfterJoinResponse, error) {
	var out types.AfterJoinResponse
	err := v.view(func(tx *txn) error {
		if err := checkAssets(req.AssetsIn); err != nil {
			return err
		}
		engine, snap, err := v.snapshotOf(tx, poolID, blockTime)
		if err != nil {
			return err
		}
		out = engine.OnJoin(snap, req)
		return nil
	})
	return out, err
}

// OnExitPool simulates an exit.
func (v *Vault) OnExitPool(poolID, blockTime uint64, exit types.ExitType) (types.AfterExitResponse, error) {
	var out types.AfterExitResponse
	err := v.view(func(tx *txn) error {
		if err := checkExitType(exit); err != nil {
			return err
		}
		engine, snap, err := v.snapshotOf(tx, poolID, blockTime)
		if err != nil {
			return err
		}
		out = engine.OnExit(snap, exit)
		return nil
	})
	return out, err
}

// OnSwap simulates a swap.
func (v *Vault) OnSwap(poolID, blockTime uint64, req pool.SwapRequest) (types.SwapResponse, error) {
	var out types.SwapResponse
	err := v.view(func(tx *txn) error {
		if err := req.SwapType.Validate(); err != nil {
			return failWith(ErrInvalidParams, err)
		}
		if err := checkAmount(req.Amount, "swap amount"); err != nil {
			return err
		}
		engine, snap, err := v.snapshotOf(tx, poolID, blockTime)
		if err != nil {
			return err
		}
		out = engine.OnSwap(snap, req)
		return nil
	})
	return out, err
}

// accumulated returns the TWAP of a pool advanced to blockTime without persisting it.
func (v *Vault) accumulated(tx *txn, poolID, blockTime uint64) (types.PoolInfo, sdkmath.Int, error) {
	engine, snap, err := v.snapshotOf(tx, poolID, blockTime)
	if err != nil {
		return types.PoolInfo{}, sdkmath.Int{}, err
	}
	p := snap.Pool
	if twap, changed := pool.AccumulatePrices(engine, snap); changed {
		p.Twap = twap
	}
	return p, snap.TotalShare, nil
}

// CumulativePrice returns the counter of one ordered pair as of blockTime.
func (v *Vault) CumulativePrice(poolID, blockTime uint64, offer, ask types.AssetInfo) (types.CumulativePriceResponse, error) {
	var out types.CumulativePriceResponse
	err := v.view(func(tx *txn) error {
		p, total, err := v.accumulated(tx, poolID, blockTime)
		if err != nil {
			return err
		}
		rate, err := pool.CumulativePrice(p, offer, ask)
		if err != nil {
			return failWith(ErrMismatchedAssets, err)
		}
		out = types.CumulativePriceResponse{ExchangeInfo: rate, TotalShare: total}
		return nil
	})
	return out, err
}

// CumulativePrices returns every counter of a pool as of blockTime.
func (v *Vault) CumulativePrices(poolID, blockTime uint64) (types.CumulativePricesResponse, error) {
	var out types.CumulativePricesResponse
	err := v.view(func(tx *txn) error {
		p, total, err := v.accumulated(tx, poolID, blockTime)
		if err != nil {
			return err
		}
		out = types.CumulativePricesResponse{ExchangeInfos: pool.CumulativePrices(p), TotalShare: total}
		return nil
	})
	return out, err
}

// AmpParams reports the amp ramp of a stableswap pool.
func (v *Vault) AmpParams(poolID, blockTime uint64) (pool.AmpParams, error) {
	var out pool.AmpParams
	err := v.view(func(tx *txn) error {
		rec, err := tx.Pool(poolID)
		if err != nil {
			return err
		}
		out, err = pool.Amp(rec.Pool, v.at(blockTime))
		if err != nil {
			return failWith(ErrInvalidParams, err)
		}
		return nil
	})
	return out, err
}

func (v *Vault) GetDefunctPoolInfo(poolID uint64) (types.DefunctInfo, error) {
	var out types.DefunctInfo
	err := v.view(func(tx *txn) error {
		d, ok := tx.Defunct(poolID)
		if !ok {
			return fail(ErrPoolNotDefunct, "pool %d", poolID)
		}
		out = d
		return nil
	})
	return out, err
}

func (v *Vault) IsUserRefunded(poolID uint64, user string) (bool, error) {
	var out bool
	err := v.view(func(tx *txn) error {
		if _, ok := tx.Defunct(poolID); !ok {
			return fail(ErrPoolNotDefunct, "pool %d", poolID)
		}
		out = tx.IsRefunded(poolID, user)
		return nil
	})
	return out, err
}

// OwnershipProposal returns the pending owner transfer, if any.
func (v *Vault) OwnershipProposal() *types.OwnershipProposal {
	var out *types.OwnershipProposal
	_ = v.view(func(tx *txn) error {
		out = tx.Proposal()
		return nil
	})
	return out
}

// LpBalance returns the LP tokens of user in a pool, held directly or through the staking collaborator.
func (v *Vault) LpBalance(ctx context.Context, poolID uint64, user string) (sdkmath.Int, error) {
	lpToken := ""
	err := v.view(func(tx *txn) error {
		if rec, err := tx.Pool(poolID); err == nil {
			lpToken = rec.Pool.LpTokenAddr
			return nil
		}
		if d, ok := tx.Defunct(poolID); ok {
			lpToken = d.LpTokenAddr
			return nil
		}
		return fail(ErrPoolNotFound, "pool %d", poolID)
	})
	if err != nil {
		return sdkmath.Int{}, err
	}
	lp, err := v.bank.Balance(ctx, user, types.TokenAsset(lpToken))
	if err != nil {
		return sdkmath.Int{}, err
	}
	if v.staking != nil {
		pos, err := v.staking.Position(ctx, lpToken, user)
		if err != nil {
			return sdkmath.Int{}, err
		}
		lp = lp.Add(pos.Total())
	}
	return lp, nil
}
