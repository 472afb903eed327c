/*

Package vault is the central ledger of the exchange. It owns the pool type registry and the authoritative
balances of every pool, asks the pool engines for amounts and settles the resulting token movements through
the TokenBank collaborator.

Every message runs inside one unit of work: the engine is queried against a snapshot, the ledger validates
the outcome, token movements and state writes are staged, the token batch executes, and only then the
staged writes become visible. Any error before that point leaves both the ledger and the bank untouched.

*/

package vault

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"

	"github.com/dexter-zone/dexvault/internal/logger"
	"github.com/dexter-zone/dexvault/internal/pool"
	"github.com/dexter-zone/dexvault/internal/types"
)

var vaultLogger = logger.GetForComponent("vault_ledger")

// Env is what the host supplies with every message.
type Env struct {
	Sender    string    `json:"sender"`
	Funds     sdk.Coins `json:"funds,omitempty"`
	BlockTime uint64    `json:"block_time"`
}

// InstantiateMsg configures a new ledger.
type InstantiateMsg struct {
	Owner           string                 `json:"owner"`
	VaultAddress    string                 `json:"vault_address"`
	PoolConfigs     []types.PoolTypeConfig `json:"pool_configs"`
	FeeCollector    string                 `json:"fee_collector,omitempty"`
	PoolCreationFee types.PoolCreationFee  `json:"pool_creation_fee"`
	AutoStakeImpl   types.AutoStakeImpl    `json:"auto_stake_impl"`
}

// Vault is the ledger. All methods are safe for concurrent use; messages are serialized.
type Vault struct {
	mu sync.Mutex
	st *ledger

	bank     TokenBank
	staking  Staking
	receipts ReceiptSink
	metrics  *Metrics
	now      func() time.Time

	nativePrecisions map[string]uint8
}

// Option configures optional collaborators.
type Option func(*Vault)

// WithStaking sets the multi-staking collaborator used for auto-stake and refunds.
func WithStaking(s Staking) Option {
	return func(v *Vault) { v.staking = s }
}

// WithReceiptSink records a receipt for every committed message.
func WithReceiptSink(r ReceiptSink) Option {
	return func(v *Vault) { v.receipts = r }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(v *Vault) { v.metrics = m }
}

// WithNativePrecisions supplies host-known denom precisions used when a create message omits one.
func WithNativePrecisions(p map[string]uint8) Option {
	return func(v *Vault) {
		v.nativePrecisions = make(map[string]uint8, len(p))
		for denom, prec := range p {
			v.nativePrecisions[denom] = prec
		}
	}
}

// New validates msg and returns an empty ledger.
func New(msg InstantiateMsg, bank TokenBank, opts ...Option) (*Vault, error) {
	if bank == nil {
		return nil, fail(ErrInvalidParams, "token bank is required")
	}
	if msg.Owner == "" || msg.VaultAddress == "" {
		return nil, fail(ErrInvalidParams, "owner and vault address are required")
	}
	if err := validateCreationFee(msg.PoolCreationFee, msg.FeeCollector); err != nil {
		return nil, err
	}

	cfg := types.Config{
		Owner:           msg.Owner,
		VaultAddress:    msg.VaultAddress,
		PoolCreationFee: msg.PoolCreationFee,
		FeeCollector:    msg.FeeCollector,
		AutoStakeImpl:   msg.AutoStakeImpl,
		NextPoolID:      1,
	}
	st := newLedger(cfg)
	for _, pc := range msg.PoolConfigs {
		if _, ok := st.registry[pc.PoolType]; ok {
			return nil, fail(ErrPoolTypeAlreadyExists, "duplicate pool config %q", pc.PoolType)
		}
		if err := validatePoolTypeConfig(pc); err != nil {
			return nil, err
		}
		st.registry[pc.PoolType] = pc
	}

	v := &Vault{st: st, bank: bank, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}

	vaultLogger.Info().
		Str("owner", cfg.Owner).
		Str("vault_address", cfg.VaultAddress).
		Int("pool_types", len(st.registry)).
		Msg("Vault ledger instantiated")
	return v, nil
}

// Restore replaces the ledger state with snap.
func (v *Vault) Restore(snap types.LedgerSnapshot) {
	st := newLedger(snap.Config.Clone())
	for _, pc := range snap.Registry {
		st.registry[pc.PoolType] = pc
	}
	for _, rec := range snap.Pools {
		st.pools[rec.Pool.PoolID] = rec.Clone()
		st.byAddr[rec.Pool.PoolAddr] = rec.Pool.PoolID
		st.byLpToken[rec.Pool.LpTokenAddr] = rec.Pool.PoolID
	}
	for _, d := range snap.Defunct {
		st.defunct[d.Info.PoolID] = d.Info.Clone()
		set := map[string]struct{}{}
		for _, u := range d.RefundedUsers {
			set[u] = struct{}{}
		}
		st.refunded[d.Info.PoolID] = set
	}
	if snap.OwnershipProposal != nil {
		p := *snap.OwnershipProposal
		st.proposal = &p
	}
	st.blockTime = snap.BlockTime

	v.mu.Lock()
	v.st = st
	v.mu.Unlock()
	v.metrics.setPools(len(st.pools), len(st.defunct))

	vaultLogger.Info().Int("pools", len(st.pools)).Int("defunct", len(st.defunct)).
		Uint64("block_time", st.blockTime).Msg("Ledger restored from snapshot")
}

// Snapshot returns a deep copy of the ledger state, ordered by pool id and pool type.
func (v *Vault) Snapshot() types.LedgerSnapshot {
	return v.SnapshotWith(nil)
}

// SnapshotWith is Snapshot with capture run under the same lock, so collaborator state
// attached by capture matches the ledger state exactly.
func (v *Vault) SnapshotWith(capture func(*types.LedgerSnapshot)) types.LedgerSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := v.st

	out := types.LedgerSnapshot{
		Config:    st.config.Clone(),
		BlockTime: st.blockTime,
		TakenAt:   v.now().UTC(),
	}
	for _, pc := range st.registry {
		out.Registry = append(out.Registry, pc)
	}
	sort.Slice(out.Registry, func(i, j int) bool { return out.Registry[i].PoolType < out.Registry[j].PoolType })
	for _, rec := range st.pools {
		out.Pools = append(out.Pools, rec.Clone())
	}
	sort.Slice(out.Pools, func(i, j int) bool { return out.Pools[i].Pool.PoolID < out.Pools[j].Pool.PoolID })
	for id, d := range st.defunct {
		rec := types.DefunctRecord{Info: d.Clone()}
		for u := range st.refunded[id] {
			rec.RefundedUsers = append(rec.RefundedUsers, u)
		}
		sort.Strings(rec.RefundedUsers)
		out.Defunct = append(out.Defunct, rec)
	}
	sort.Slice(out.Defunct, func(i, j int) bool { return out.Defunct[i].Info.PoolID < out.Defunct[j].Info.PoolID })
	if st.proposal != nil {
		p := *st.proposal
		out.OwnershipProposal = &p
	}
	if capture != nil {
		capture(&out)
	}
	return out
}

// execute runs fn in a fresh unit of work and commits it.
func (v *Vault) execute(ctx context.Context, kind types.MsgKind, env Env, poolID uint64, fn func(tx *txn) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	start := v.now()
	tx := newTxn(v.st)
	if err := fn(tx); err != nil {
		v.metrics.observe(kind, err, v.now().Sub(start))
		vaultLogger.Warn().Err(err).Str("msg", string(kind)).Str("sender", env.Sender).
			Uint64("pool_id", poolID).Msg("Message rejected")
		return err
	}
	if err := v.commit(ctx, tx); err != nil {
		v.metrics.observe(kind, err, v.now().Sub(start))
		vaultLogger.Error().Err(err).Str("msg", string(kind)).Uint64("pool_id", poolID).Msg("Settlement failed")
		return err
	}
	if env.BlockTime > v.st.blockTime {
		v.st.blockTime = env.BlockTime
	}
	for _, fn := range tx.afterCommit {
		fn()
	}
	v.metrics.observe(kind, nil, v.now().Sub(start))
	v.metrics.setPools(len(v.st.pools), len(v.st.defunct))

	vaultLogger.Debug().Str("msg", string(kind)).Str("sender", env.Sender).Uint64("pool_id", poolID).
		Int("token_ops", len(tx.ops)).Msg("Message committed")
	v.record(ctx, types.Receipt{
		ID:          uuid.New(),
		Kind:        kind,
		PoolID:      poolID,
		Sender:      env.Sender,
		BlockTime:   env.BlockTime,
		CommittedAt: v.now().UTC(),
		TokenOps:    tx.ops,
		Bonds:       tx.bonds,
		Attributes:  tx.attrs,
	})
	return nil
}

// commit settles the token batch, then the bonds, then publishes the staged writes.
func (v *Vault) commit(ctx context.Context, tx *txn) error {
	if len(tx.ops) > 0 {
		if err := v.bank.Execute(ctx, tx.ops); err != nil {
			return failWith(ErrSettlementFailed, err)
		}
	}
	for i, b := range tx.bonds {
		if err := v.staking.Bond(ctx, b); err != nil {
			var errs []error
			for j := i - 1; j >= 0; j-- {
				errs = append(errs, v.staking.Unbond(ctx, tx.bonds[j]))
			}
			if len(tx.ops) > 0 {
				errs = append(errs, v.bank.Execute(ctx, invertOps(tx.ops)))
			}
			if rollbackErr := errors.Join(errs...); rollbackErr != nil {
				vaultLogger.Error().Err(rollbackErr).Msg("Failed to revert settled tokens after bond failure")
			}
			return failWith(ErrSettlementFailed, fmt.Errorf("bond: %w", err))
		}
	}
	tx.apply()
	return nil
}

func (v *Vault) record(ctx context.Context, r types.Receipt) {
	if v.receipts == nil {
		return
	}
	if err := v.receipts.Record(ctx, r); err != nil {
		vaultLogger.Error().Err(err).Str("receipt_id", r.ID.String()).Msg("Failed to record receipt")
	}
}

// engineFor returns the engine of a pool.
func engineFor(p types.PoolInfo) (pool.Engine, error) {
	e, err := pool.ForKind(p.Engine)
	if err != nil {
		return nil, failWith(ErrUnknownEngine, err)
	}
	return e, nil
}

// effectivePause resolves the pause flags of a pool: global OR pool type OR pool.
func effectivePause(tx *txn, p types.PoolInfo) (types.PauseInfo, error) {
	pc, err := tx.PoolType(p.PoolType)
	if err != nil {
		return types.PauseInfo{}, err
	}
	return tx.Config().Paused.Or(pc.Paused).Or(p.Paused), nil
}

// pull stages the transfer of asset from sender into the vault, consuming attached funds for natives.
func pull(tx *txn, funds *fundsTracker, sender string, asset types.Asset, reason string) error {
	if !asset.AmountOrZero().IsPositive() {
		return nil
	}
	if asset.Info.IsNative() {
		if err := funds.take(asset.Info.Denom, asset.Amount); err != nil {
			return err
		}
	}
	tx.transfer(sender, tx.Config().VaultAddress, asset, reason)
	return nil
}

// payFees stages the protocol and developer fee transfers of one asset.
func payFees(tx *txn, fee types.FeeInfo, info types.AssetInfo, protocolFee, devFee sdkmath.Int) {
	cfg := tx.Config()
	tx.transfer(cfg.VaultAddress, cfg.FeeCollector, types.NewAsset(info, protocolFee), "protocol_fee")
	tx.transfer(cfg.VaultAddress, fee.DeveloperAddr, types.NewAsset(info, devFee), "dev_fee")
}

func poolAddress(vaultAddr string, id uint64) string {
	return vaultAddr + "/pool/" + strconv.FormatUint(id, 10)
}

func lpTokenAddress(vaultAddr string, id uint64) string {
	return vaultAddr + "/lp/" + strconv.FormatUint(id, 10)
}
