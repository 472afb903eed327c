package vault

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/dexter-zone/dexvault/internal/pool"
	"github.com/dexter-zone/dexvault/internal/types"
)

// UpdateConfigMsg changes global settings. Nil fields are left alone.
type UpdateConfigMsg struct {
	FeeCollector    *string                `json:"fee_collector,omitempty"`
	PoolCreationFee *types.PoolCreationFee `json:"pool_creation_fee,omitempty"`
	AutoStakeImpl   *types.AutoStakeImpl   `json:"auto_stake_impl,omitempty"`
	Paused          *types.PauseInfo       `json:"paused,omitempty"`
}

// UpdatePoolTypeConfigMsg changes a registry entry. Nil fields are left alone.
type UpdatePoolTypeConfigMsg struct {
	PoolType           string                        `json:"pool_type"`
	AllowInstantiation *types.AllowPoolInstantiation `json:"allow_instantiation,omitempty"`
	NewFeeInfo         *types.FeeInfo                `json:"new_fee_info,omitempty"`
	IsDisabled         *bool                         `json:"is_disabled,omitempty"`
	Paused             *types.PauseInfo              `json:"paused,omitempty"`
}

// UpdatePoolInstanceConfigMsg changes the fee or pause flags of one pool.
type UpdatePoolInstanceConfigMsg struct {
	PoolID  uint64           `json:"pool_id"`
	FeeInfo *types.FeeInfo   `json:"fee_info,omitempty"`
	Paused  *types.PauseInfo `json:"paused,omitempty"`
}

func (v *Vault) requireOwner(tx *txn, sender string) error {
	if sender != tx.Config().Owner {
		return fail(ErrUnauthorized, "")
	}
	return nil
}

// UpdateConfig changes global settings. Owner only.
func (v *Vault) UpdateConfig(ctx context.Context, env Env, msg UpdateConfigMsg) error {
	return v.execute(ctx, types.MsgUpdateConfig, env, 0, func(tx *txn) error {
		if err := v.requireOwner(tx, env.Sender); err != nil {
			return err
		}
		cfg := tx.Config()
		if msg.FeeCollector != nil {
			cfg.FeeCollector = *msg.FeeCollector
			tx.attr("fee_collector", cfg.FeeCollector)
		}
		if msg.PoolCreationFee != nil {
			cfg.PoolCreationFee = *msg.PoolCreationFee
		}
		if err := validateCreationFee(cfg.PoolCreationFee, cfg.FeeCollector); err != nil {
			return err
		}
		if msg.AutoStakeImpl != nil {
			cfg.AutoStakeImpl = *msg.AutoStakeImpl
		}
		if msg.Paused != nil {
			cfg.Paused = *msg.Paused
		}
		tx.SetConfig(cfg)
		vaultLogger.Info().Str("fee_collector", cfg.FeeCollector).Bool("creation_fee", cfg.PoolCreationFee.Enabled).
			Interface("paused", cfg.Paused).Msg("Config updated")
		return nil
	})
}

// UpdatePoolTypeConfig changes a registry entry. Owner only.
func (v *Vault) UpdatePoolTypeConfig(ctx context.Context, env Env, msg UpdatePoolTypeConfigMsg) error {
	return v.execute(ctx, types.MsgUpdatePoolTypeConfig, env, 0, func(tx *txn) error {
		if err := v.requireOwner(tx, env.Sender); err != nil {
			return err
		}
		pc, err := tx.PoolType(msg.PoolType)
		if err != nil {
			return err
		}
		if msg.AllowInstantiation != nil {
			if !msg.AllowInstantiation.Valid() {
				return fail(ErrInvalidParams, "allow_instantiation %q", *msg.AllowInstantiation)
			}
			pc.AllowInstantiation = *msg.AllowInstantiation
		}
		if msg.NewFeeInfo != nil {
			if err := msg.NewFeeInfo.Validate(); err != nil {
				return failWith(ErrInvalidFeeInfo, err)
			}
			pc.DefaultFeeInfo = *msg.NewFeeInfo
		}
		if msg.IsDisabled != nil {
			pc.IsDisabled = *msg.IsDisabled
		}
		if msg.Paused != nil {
			pc.Paused = *msg.Paused
		}
		tx.SetPoolType(pc)
		tx.attr("pool_type", pc.PoolType)
		vaultLogger.Info().Str("pool_type", pc.PoolType).Bool("disabled", pc.IsDisabled).Msg("Pool type updated")
		return nil
	})
}

// UpdatePoolInstanceConfig changes the fee info or pause flags of one pool. Owner only.
func (v *Vault) UpdatePoolInstanceConfig(ctx context.Context, env Env, msg UpdatePoolInstanceConfigMsg) error {
	return v.execute(ctx, types.MsgUpdatePoolInstanceConfig, env, msg.PoolID, func(tx *txn) error {
		if err := v.requireOwner(tx, env.Sender); err != nil {
			return err
		}
		rec, err := tx.Pool(msg.PoolID)
		if err != nil {
			return err
		}
		if msg.FeeInfo != nil {
			if err := msg.FeeInfo.Validate(); err != nil {
				return failWith(ErrInvalidFeeInfo, err)
			}
			rec.Pool.FeeInfo = *msg.FeeInfo
		}
		if msg.Paused != nil {
			rec.Pool.Paused = *msg.Paused
		}
		tx.SetPool(rec)
		return nil
	})
}

// UpdateFee sets the total commission of one pool. Owner only.
func (v *Vault) UpdateFee(ctx context.Context, env Env, poolID uint64, totalFeeBps uint16) error {
	return v.execute(ctx, types.MsgUpdateFee, env, poolID, func(tx *txn) error {
		if err := v.requireOwner(tx, env.Sender); err != nil {
			return err
		}
		rec, err := tx.Pool(poolID)
		if err != nil {
			return err
		}
		fee := rec.Pool.FeeInfo
		fee.TotalFeeBps = totalFeeBps
		if err := fee.Validate(); err != nil {
			return failWith(ErrInvalidFeeInfo, err)
		}
		rec.Pool.FeeInfo = fee
		tx.SetPool(rec)
		tx.attr("total_fee_bps", strconv.FormatUint(uint64(totalFeeBps), 10))
		return nil
	})
}

// UpdatePoolParams forwards an engine parameter change. The engine decides who may make it.
func (v *Vault) UpdatePoolParams(ctx context.Context, env Env, poolID uint64, params json.RawMessage) error {
	return v.execute(ctx, types.MsgUpdatePoolParams, env, poolID, func(tx *txn) error {
		rec, err := tx.Pool(poolID)
		if err != nil {
			return err
		}
		engine, err := engineFor(rec.Pool)
		if err != nil {
			return err
		}
		snap := pool.NewSnapshot(rec.Pool, rec.TotalShare, env.BlockTime)
		next, err := engine.UpdateParams(snap, pool.UpdateRequest{
			Sender:  env.Sender,
			IsOwner: env.Sender == tx.Config().Owner,
			Params:  params,
		})
		if err != nil {
			if errors.Is(err, pool.ErrUnauthorized) {
				return fail(ErrUnauthorized, "%s", err)
			}
			return failWith(ErrInvalidParams, err)
		}
		rec.Pool.Math = next
		tx.SetPool(rec)
		vaultLogger.Info().Uint64("pool_id", poolID).Str("engine", string(rec.Pool.Engine)).Msg("Pool params updated")
		return nil
	})
}

// UpdatePauseInfo sets the pause flags of a pool type or a pool. Owner or whitelisted.
func (v *Vault) UpdatePauseInfo(ctx context.Context, env Env, target types.PauseTarget, paused types.PauseInfo) error {
	var poolID uint64
	if target.PoolID != nil {
		poolID = *target.PoolID
	}
	return v.execute(ctx, types.MsgUpdatePauseInfo, env, poolID, func(tx *txn) error {
		cfg := tx.Config()
		if env.Sender != cfg.Owner && !cfg.IsWhitelisted(env.Sender) {
			return fail(ErrUnauthorized, "")
		}
		switch {
		case target.PoolID != nil && target.PoolType == nil:
			rec, err := tx.Pool(*target.PoolID)
			if err != nil {
				return err
			}
			rec.Pool.Paused = paused
			tx.SetPool(rec)
		case target.PoolType != nil && target.PoolID == nil:
			pc, err := tx.PoolType(*target.PoolType)
			if err != nil {
				return err
			}
			pc.Paused = paused
			tx.SetPoolType(pc)
			tx.attr("pool_type", pc.PoolType)
		default:
			return fail(ErrInvalidPauseTarget, "")
		}
		vaultLogger.Info().Interface("target", target).Interface("paused", paused).Str("sender", env.Sender).
			Msg("Pause info updated")
		return nil
	})
}

// AddToWhitelist makes addr a manager. Owner only.
func (v *Vault) AddToWhitelist(ctx context.Context, env Env, addr string) error {
	return v.execute(ctx, types.MsgAddToWhitelist, env, 0, func(tx *txn) error {
		if err := v.requireOwner(tx, env.Sender); err != nil {
			return err
		}
		cfg := tx.Config()
		if addr == "" {
			return fail(ErrInvalidParams, "empty address")
		}
		if addr == cfg.Owner {
			return fail(ErrOwnerCannotBeWhitelisted, "")
		}
		if cfg.IsWhitelisted(addr) {
			return fail(ErrAddressAlreadyWhitelisted, "%s", addr)
		}
		cfg.WhitelistedAddresses = append(cfg.WhitelistedAddresses, addr)
		tx.SetConfig(cfg)
		tx.attr("address", addr)
		return nil
	})
}

// RemoveFromWhitelist drops addr from the managers. Owner only.
func (v *Vault) RemoveFromWhitelist(ctx context.Context, env Env, addr string) error {
	return v.execute(ctx, types.MsgRemoveFromWhitelist, env, 0, func(tx *txn) error {
		if err := v.requireOwner(tx, env.Sender); err != nil {
			return err
		}
		cfg := tx.Config()
		kept := cfg.WhitelistedAddresses[:0]
		found := false
		for _, a := range cfg.WhitelistedAddresses {
			if a == addr {
				found = true
				continue
			}
			kept = append(kept, a)
		}
		if !found {
			return fail(ErrAddressNotWhitelisted, "%s", addr)
		}
		cfg.WhitelistedAddresses = kept
		tx.SetConfig(cfg)
		tx.attr("address", addr)
		return nil
	})
}

// ProposeNewOwner starts a two-step ownership transfer that newOwner must claim within expiresIn seconds.
// A new proposal replaces the pending one.
func (v *Vault) ProposeNewOwner(ctx context.Context, env Env, newOwner string, expiresIn uint64) error {
	return v.execute(ctx, types.MsgProposeNewOwner, env, 0, func(tx *txn) error {
		if err := v.requireOwner(tx, env.Sender); err != nil {
			return err
		}
		if newOwner == "" {
			return fail(ErrInvalidParams, "empty owner")
		}
		if newOwner == tx.Config().Owner {
			return fail(ErrSameOwner, "")
		}
		tx.SetProposal(&types.OwnershipProposal{ProposedOwner: newOwner, TTL: env.BlockTime + expiresIn})
		tx.attr("proposed_owner", newOwner)
		tx.attr("ttl", strconv.FormatUint(env.BlockTime+expiresIn, 10))
		return nil
	})
}

// DropOwnershipProposal cancels the pending transfer. Owner only.
func (v *Vault) DropOwnershipProposal(ctx context.Context, env Env) error {
	return v.execute(ctx, types.MsgDropOwnershipProposal, env, 0, func(tx *txn) error {
		if err := v.requireOwner(tx, env.Sender); err != nil {
			return err
		}
		if tx.Proposal() == nil {
			return fail(ErrNoOwnershipProposal, "")
		}
		tx.SetProposal(nil)
		return nil
	})
}

// ClaimOwnership completes the transfer. Only the proposed owner may call it, and only until the TTL.
func (v *Vault) ClaimOwnership(ctx context.Context, env Env) error {
	return v.execute(ctx, types.MsgClaimOwnership, env, 0, func(tx *txn) error {
		p := tx.Proposal()
		if p == nil {
			return fail(ErrNoOwnershipProposal, "")
		}
		if env.Sender != p.ProposedOwner {
			return fail(ErrUnauthorized, "")
		}
		if env.BlockTime > p.TTL {
			return fail(ErrProposalExpired, "ttl %d, now %d", p.TTL, env.BlockTime)
		}
		cfg := tx.Config()
		previous := cfg.Owner
		cfg.Owner = p.ProposedOwner
		kept := cfg.WhitelistedAddresses[:0]
		for _, a := range cfg.WhitelistedAddresses {
			if a != cfg.Owner {
				kept = append(kept, a)
			}
		}
		cfg.WhitelistedAddresses = kept
		tx.SetConfig(cfg)
		tx.SetProposal(nil)
		tx.attr("previous_owner", previous)
		tx.attr("new_owner", cfg.Owner)
		vaultLogger.Info().Str("previous_owner", previous).Str("new_owner", cfg.Owner).Msg("Ownership claimed")
		return nil
	})
}
