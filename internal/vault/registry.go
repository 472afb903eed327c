package vault

import (
	"context"
	"encoding/json"
	"strconv"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/pool"
	"github.com/dexter-zone/dexvault/internal/types"
)

// CreatePoolInstanceMsg creates a pool of a registered type.
type CreatePoolInstanceMsg struct {
	PoolType              string                 `json:"pool_type"`
	AssetInfos            []types.AssetInfo      `json:"asset_infos"`
	NativeAssetPrecisions []types.AssetPrecision `json:"native_asset_precisions"`
	FeeInfo               *types.FeeInfo         `json:"fee_info,omitempty"`
	InitParams            json.RawMessage        `json:"init_params,omitempty"`
}

func validatePoolTypeConfig(pc types.PoolTypeConfig) error {
	if pc.PoolType == "" {
		return fail(ErrInvalidParams, "pool_type cannot be empty")
	}
	if _, err := pool.ForKind(pc.Engine); err != nil {
		return failWith(ErrUnknownEngine, err)
	}
	if err := pc.DefaultFeeInfo.Validate(); err != nil {
		return failWith(ErrInvalidFeeInfo, err)
	}
	if !pc.AllowInstantiation.Valid() {
		return fail(ErrInvalidParams, "allow_instantiation %q", pc.AllowInstantiation)
	}
	return nil
}

// validateCreationFee requires an enabled fee to be positive and to have a fee collector.
func validateCreationFee(fee types.PoolCreationFee, collector string) error {
	if !fee.Enabled {
		return nil
	}
	if collector == "" {
		return fail(ErrInvalidPoolCreationFee, "a fee collector is required")
	}
	if err := fee.Fee.Validate(); err != nil {
		return failWith(ErrInvalidPoolCreationFee, err)
	}
	if !fee.Fee.AmountOrZero().IsPositive() {
		return fail(ErrInvalidPoolCreationFee, "")
	}
	return nil
}

// AddToRegistry registers a new pool type. Owner only.
func (v *Vault) AddToRegistry(ctx context.Context, env Env, pc types.PoolTypeConfig) error {
	return v.execute(ctx, types.MsgAddToRegistry, env, 0, func(tx *txn) error {
		if env.Sender != tx.Config().Owner {
			return fail(ErrUnauthorized, "")
		}
		if tx.HasPoolType(pc.PoolType) {
			return fail(ErrPoolTypeAlreadyExists, "%q", pc.PoolType)
		}
		if err := validatePoolTypeConfig(pc); err != nil {
			return err
		}
		tx.SetPoolType(pc)
		tx.attr("pool_type", pc.PoolType)
		tx.attr("engine", string(pc.Engine))
		return nil
	})
}

// canInstantiate applies the instantiation policy of a pool type.
func canInstantiate(cfg types.Config, pc types.PoolTypeConfig, sender string) bool {
	if sender == cfg.Owner {
		return true
	}
	switch pc.AllowInstantiation {
	case types.AllowAnyone:
		return true
	case types.AllowOwnerAndWhitelist:
		return cfg.IsWhitelisted(sender)
	}
	return false
}

// CreatePoolInstance validates the request, charges the creation fee and registers a new pool. The engine
// validates its own parameters; nothing is stored when it refuses them.
func (v *Vault) CreatePoolInstance(ctx context.Context, env Env, msg CreatePoolInstanceMsg) (uint64, error) {
	var poolID uint64
	err := v.execute(ctx, types.MsgCreatePoolInstance, env, 0, func(tx *txn) error {
		cfg := tx.Config()
		pc, err := tx.PoolType(msg.PoolType)
		if err != nil {
			return err
		}
		if pc.IsDisabled {
			return fail(ErrPoolTypeDisabled, "%q", pc.PoolType)
		}
		if !canInstantiate(cfg, pc, env.Sender) {
			return fail(ErrUnauthorized, "sender cannot create %q pools", pc.PoolType)
		}

		infos, err := validateAssetInfos(msg.AssetInfos)
		if err != nil {
			return err
		}
		precisions, err := v.resolvePrecisions(ctx, infos, msg.NativeAssetPrecisions)
		if err != nil {
			return err
		}

		feeInfo := pc.DefaultFeeInfo
		if msg.FeeInfo != nil {
			feeInfo = *msg.FeeInfo
		}
		if err := feeInfo.Validate(); err != nil {
			return failWith(ErrInvalidFeeInfo, err)
		}

		funds, err := newFundsTracker(env.Funds)
		if err != nil {
			return err
		}
		if cfg.PoolCreationFee.Enabled {
			fee := cfg.PoolCreationFee.Fee
			if cfg.FeeCollector == "" {
				return fail(ErrInvalidPoolCreationFee, "a fee collector is required")
			}
			if err := pull(tx, funds, env.Sender, fee, "pool_creation_fee"); err != nil {
				return err
			}
			tx.transfer(cfg.VaultAddress, cfg.FeeCollector, fee, "pool_creation_fee")
		}

		engine, err := pool.ForKind(pc.Engine)
		if err != nil {
			return failWith(ErrUnknownEngine, err)
		}
		id := cfg.NextPoolID
		res, err := engine.Instantiate(pool.InstantiateRequest{
			PoolID:     id,
			AssetInfos: infos,
			Precisions: precisions,
			InitParams: msg.InitParams,
			BlockTime:  env.BlockTime,
		})
		if err != nil {
			return failWith(ErrInvalidParams, err)
		}

		assets := make([]types.Asset, len(infos))
		for i, info := range infos {
			assets[i] = types.ZeroAsset(info)
		}
		info := types.PoolInfo{
			PoolID:        id,
			PoolType:      pc.PoolType,
			Engine:        pc.Engine,
			PoolAddr:      poolAddress(cfg.VaultAddress, id),
			LpTokenAddr:   lpTokenAddress(cfg.VaultAddress, id),
			LpPrecision:   res.LpPrecision,
			Assets:        assets,
			Precisions:    precisions,
			FeeInfo:       feeInfo,
			BlockTimeLast: env.BlockTime,
			Twap: types.Twap{
				CumulativePrices: pool.InitialCumulativePrices(infos),
				BlockTimeLast:    env.BlockTime,
			},
			Math: res.Math,
		}
		tx.SetPool(types.PoolRecord{
			Pool:       info,
			TotalShare: sdkmath.ZeroInt(),
			LpToken: types.TokenInfo{
				Address:  info.LpTokenAddr,
				Name:     types.LpTokenName(id),
				Symbol:   types.LpTokenSymbol,
				Decimals: res.LpPrecision,
			},
		})
		cfg.NextPoolID++
		tx.SetConfig(cfg)

		poolID = id
		tx.attr("pool_id", strconv.FormatUint(id, 10))
		tx.attr("pool_type", pc.PoolType)
		tx.attr("lp_token_addr", info.LpTokenAddr)
		if s := funds.surplus(); !s.IsZero() {
			tx.attr("unused_funds", s.String())
		}
		vaultLogger.Info().Uint64("pool_id", id).Str("pool_type", pc.PoolType).
			Int("assets", len(infos)).Msg("Pool instance staged")
		return nil
	})
	if err != nil {
		return 0, err
	}
	return poolID, nil
}

// validateAssetInfos checks a pool's asset list and returns it in canonical order.
func validateAssetInfos(in []types.AssetInfo) ([]types.AssetInfo, error) {
	if len(in) < 2 {
		return nil, fail(ErrInvalidNumberOfAssets, "a pool needs at least 2 assets, got %d", len(in))
	}
	for _, info := range in {
		if err := info.Validate(); err != nil {
			return nil, failWith(ErrInvalidAssets, err)
		}
	}
	if err := types.CheckUniqueInfos(in); err != nil {
		return nil, failWith(ErrRepeatedAssets, err)
	}
	out := append([]types.AssetInfo(nil), in...)
	types.SortAssetInfos(out)
	return out, nil
}

// resolvePrecisions takes native precisions from the message, falling back to the host defaults,
// and token precisions from the bank.
func (v *Vault) resolvePrecisions(ctx context.Context, infos []types.AssetInfo, native []types.AssetPrecision) ([]types.AssetPrecision, error) {
	out := make([]types.AssetPrecision, 0, len(infos))
	for _, info := range infos {
		var precision uint8
		if info.IsNative() {
			found := false
			for _, p := range native {
				if p.Info.Equal(info) {
					precision, found = p.Precision, true
					break
				}
			}
			if !found {
				precision, found = v.nativePrecisions[info.Denom]
			}
			if !found {
				return nil, fail(ErrMissingNativeAssetPrecision, "%s", info.Denom)
			}
		} else {
			ti, err := v.bank.TokenInfo(ctx, info.ContractAddr)
			if err != nil {
				return nil, failWith(ErrInvalidAssets, err)
			}
			precision = ti.Decimals
		}
		if precision > types.MaxPrecision {
			return nil, fail(ErrInvalidAssets, "precision %d of %s exceeds %d", precision, info.ID(), types.MaxPrecision)
		}
		out = append(out, types.AssetPrecision{Info: info, Precision: precision})
	}
	return out, nil
}
