package vault

import (
	"sort"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexter-zone/dexvault/internal/types"
)

// ledger is the committed state. It is only read through a txn and only written by txn.apply.
type ledger struct {
	config    types.Config
	registry  map[string]types.PoolTypeConfig
	pools     map[uint64]types.PoolRecord
	byAddr    map[string]uint64
	byLpToken map[string]uint64
	defunct   map[uint64]types.DefunctInfo
	refunded  map[uint64]map[string]struct{}
	proposal  *types.OwnershipProposal
	blockTime uint64
}

func newLedger(cfg types.Config) *ledger {
	return &ledger{
		config:    cfg,
		registry:  map[string]types.PoolTypeConfig{},
		pools:     map[uint64]types.PoolRecord{},
		byAddr:    map[string]uint64{},
		byLpToken: map[string]uint64{},
		defunct:   map[uint64]types.DefunctInfo{},
		refunded:  map[uint64]map[string]struct{}{},
	}
}

// txn is the unit of work of one message. Reads fall through to the ledger, writes are staged and only
// reach the ledger in apply, after the token batch has settled.
type txn struct {
	base *ledger

	config      *types.Config
	registry    map[string]types.PoolTypeConfig
	pools       map[uint64]types.PoolRecord
	removed     map[uint64]struct{}
	defunct     map[uint64]types.DefunctInfo
	refunded    map[uint64][]string
	proposal    *types.OwnershipProposal
	proposalSet bool

	ops         []types.TokenOp
	bonds       []types.Bond
	attrs       map[string]string
	afterCommit []func()
}

func newTxn(base *ledger) *txn {
	return &txn{
		base:     base,
		registry: map[string]types.PoolTypeConfig{},
		pools:    map[uint64]types.PoolRecord{},
		removed:  map[uint64]struct{}{},
		defunct:  map[uint64]types.DefunctInfo{},
		refunded: map[uint64][]string{},
		attrs:    map[string]string{},
	}
}

func (t *txn) Config() types.Config {
	if t.config != nil {
		return t.config.Clone()
	}
	return t.base.config.Clone()
}

func (t *txn) SetConfig(cfg types.Config) {
	t.config = &cfg
}

func (t *txn) PoolType(name string) (types.PoolTypeConfig, error) {
	if cfg, ok := t.registry[name]; ok {
		return cfg, nil
	}
	cfg, ok := t.base.registry[name]
	if !ok {
		return types.PoolTypeConfig{}, fail(ErrPoolTypeNotFound, "%q", name)
	}
	return cfg, nil
}

func (t *txn) HasPoolType(name string) bool {
	_, err := t.PoolType(name)
	return err == nil
}

func (t *txn) SetPoolType(cfg types.PoolTypeConfig) {
	t.registry[cfg.PoolType] = cfg
}

// Pool returns a copy of an active pool. Defunct pools report ErrPoolDefunct.
func (t *txn) Pool(id uint64) (types.PoolRecord, error) {
	if _, ok := t.removed[id]; ok {
		return types.PoolRecord{}, fail(ErrPoolDefunct, "pool %d", id)
	}
	if rec, ok := t.pools[id]; ok {
		return rec.Clone(), nil
	}
	if rec, ok := t.base.pools[id]; ok {
		return rec.Clone(), nil
	}
	if _, ok := t.base.defunct[id]; ok {
		return types.PoolRecord{}, fail(ErrPoolDefunct, "pool %d", id)
	}
	return types.PoolRecord{}, fail(ErrPoolNotFound, "pool %d", id)
}

func (t *txn) SetPool(rec types.PoolRecord) {
	t.pools[rec.Pool.PoolID] = rec
}

// RemovePool takes a pool out of the active set for good.
func (t *txn) RemovePool(id uint64) {
	delete(t.pools, id)
	t.removed[id] = struct{}{}
}

func (t *txn) Defunct(id uint64) (types.DefunctInfo, bool) {
	if d, ok := t.defunct[id]; ok {
		return d.Clone(), true
	}
	d, ok := t.base.defunct[id]
	if !ok {
		return types.DefunctInfo{}, false
	}
	return d.Clone(), true
}

func (t *txn) SetDefunct(d types.DefunctInfo) {
	t.defunct[d.PoolID] = d
}

func (t *txn) IsRefunded(id uint64, user string) bool {
	for _, u := range t.refunded[id] {
		if u == user {
			return true
		}
	}
	_, ok := t.base.refunded[id][user]
	return ok
}

func (t *txn) MarkRefunded(id uint64, user string) {
	t.refunded[id] = append(t.refunded[id], user)
}

func (t *txn) Proposal() *types.OwnershipProposal {
	p := t.base.proposal
	if t.proposalSet {
		p = t.proposal
	}
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

func (t *txn) SetProposal(p *types.OwnershipProposal) {
	t.proposal = p
	t.proposalSet = true
}

// transfer stages a token movement. Zero amounts are dropped.
func (t *txn) transfer(from, to string, asset types.Asset, reason string) {
	if !asset.AmountOrZero().IsPositive() {
		return
	}
	t.ops = append(t.ops, types.TokenOp{Type: types.TokenOpTransfer, From: from, To: to, Asset: asset, Reason: reason})
}

func (t *txn) mint(to string, asset types.Asset, reason string) {
	if !asset.AmountOrZero().IsPositive() {
		return
	}
	t.ops = append(t.ops, types.TokenOp{Type: types.TokenOpMint, To: to, Asset: asset, Reason: reason})
}

func (t *txn) burn(from string, asset types.Asset, reason string) {
	if !asset.AmountOrZero().IsPositive() {
		return
	}
	t.ops = append(t.ops, types.TokenOp{Type: types.TokenOpBurn, From: from, Asset: asset, Reason: reason})
}

func (t *txn) bond(b types.Bond) {
	t.bonds = append(t.bonds, b)
}

func (t *txn) attr(key, value string) {
	t.attrs[key] = value
}

// onCommit defers fn until the unit of work has been applied.
func (t *txn) onCommit(fn func()) {
	t.afterCommit = append(t.afterCommit, fn)
}

// apply publishes the staged writes to the ledger.
func (t *txn) apply() {
	l := t.base
	if t.config != nil {
		l.config = *t.config
	}
	for name, cfg := range t.registry {
		l.registry[name] = cfg
	}
	for id, rec := range t.pools {
		l.pools[id] = rec
		l.byAddr[rec.Pool.PoolAddr] = id
		l.byLpToken[rec.Pool.LpTokenAddr] = id
	}
	for id := range t.removed {
		if rec, ok := l.pools[id]; ok {
			delete(l.byAddr, rec.Pool.PoolAddr)
			delete(l.byLpToken, rec.Pool.LpTokenAddr)
		}
		delete(l.pools, id)
	}
	for id, d := range t.defunct {
		l.defunct[id] = d
	}
	for id, users := range t.refunded {
		set, ok := l.refunded[id]
		if !ok {
			set = map[string]struct{}{}
			l.refunded[id] = set
		}
		for _, u := range users {
			set[u] = struct{}{}
		}
	}
	if t.proposalSet {
		l.proposal = t.proposal
	}
}

// invertOps returns the operations that undo ops, in reverse order.
func invertOps(ops []types.TokenOp) []types.TokenOp {
	out := make([]types.TokenOp, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		switch op.Type {
		case types.TokenOpTransfer:
			op.From, op.To = op.To, op.From
		case types.TokenOpMint:
			op.Type, op.From, op.To = types.TokenOpBurn, op.To, ""
		case types.TokenOpBurn:
			op.Type, op.From, op.To = types.TokenOpMint, "", op.From
		}
		op.Reason = "revert:" + op.Reason
		out = append(out, op)
	}
	return out
}

// fundsTracker consumes native funds attached to a message. Only consumed amounts are pulled from the
// sender, so whatever is left over never leaves the sender's account.
type fundsTracker struct {
	sent sdk.Coins
	used map[string]sdkmath.Int
}

func newFundsTracker(funds sdk.Coins) (*fundsTracker, error) {
	if err := funds.Validate(); err != nil {
		return nil, fail(ErrInvalidAssets, "attached funds: %s", err)
	}
	return &fundsTracker{sent: funds, used: map[string]sdkmath.Int{}}, nil
}

// take reserves amount of denom or fails with ErrInsufficientNativeTokensSent.
func (f *fundsTracker) take(denom string, amount sdkmath.Int) error {
	used, ok := f.used[denom]
	if !ok {
		used = sdkmath.ZeroInt()
	}
	need := used.Add(amount)
	sent := f.sent.AmountOf(denom)
	if sent.LT(need) {
		return fail(ErrInsufficientNativeTokensSent, "%s: sent %s, needed %s", denom, sent, need)
	}
	f.used[denom] = need
	return nil
}

// surplus returns the attached funds that were not consumed, sorted by denom.
func (f *fundsTracker) surplus() sdk.Coins {
	out := sdk.NewCoins()
	for _, c := range f.sent {
		used, ok := f.used[c.Denom]
		if !ok {
			used = sdkmath.ZeroInt()
		}
		if c.Amount.GT(used) {
			out = out.Add(sdk.NewCoin(c.Denom, c.Amount.Sub(used)))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	return out
}
