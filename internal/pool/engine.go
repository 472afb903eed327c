/*

Package pool holds the pool math engines. Engines are stateless strategies: every call receives an immutable
snapshot of the pool the ledger owns and returns amounts plus an outcome. They never move tokens and never
write ledger state; parameter changes are returned to the ledger, which decides whether to persist them.

*/

package pool

import (
	"encoding/json"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/logger"
	"github.com/dexter-zone/dexvault/internal/types"
)

// Error definitions for engine configuration problems. Computation problems are reported as
// types.Failure responses instead.
var (
	ErrUnknownEngine         = errors.New("unknown pool engine")
	ErrInvalidNumberOfAssets = errors.New("invalid number of assets")
	ErrInvalidParams         = errors.New("invalid pool parameters")
	ErrIncorrectAmp          = errors.New("amp must be positive and at most 1000000")
	ErrMaxAmpChange          = errors.New("amp change exceeds the allowed factor")
	ErrMinAmpChangingTime    = errors.New("amp changing time is too short")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrUnsupported           = errors.New("operation not supported by this engine")
	ErrInvalidAsset          = errors.New("asset does not belong to the pool")
)

const (
	// TwapPrecision is the number of decimals of cumulative price counters.
	TwapPrecision uint8 = 9
	// DefaultLpPrecision is the decimals of LP tokens whose engine does not derive one.
	DefaultLpPrecision uint8 = 6
)

var (
	// DefaultSpread is used when a swap does not carry max_spread.
	DefaultSpread = sdkmath.LegacyNewDecWithPrec(5, 3)
	// MaxAllowedSpread caps caller supplied max_spread and slippage tolerance.
	MaxAllowedSpread = sdkmath.LegacyNewDecWithPrec(5, 1)
)

var engineLogger = logger.GetForComponent("pool_engine")

// Snapshot is the read-only view an engine computes against.
type Snapshot struct {
	Pool       types.PoolInfo
	TotalShare sdkmath.Int
	BlockTime  uint64
}

// NewSnapshot copies pool so the engine cannot alias ledger state.
func NewSnapshot(pool types.PoolInfo, totalShare sdkmath.Int, blockTime uint64) Snapshot {
	if totalShare.IsNil() {
		totalShare = sdkmath.ZeroInt()
	}
	return Snapshot{Pool: pool.Clone(), TotalShare: totalShare, BlockTime: blockTime}
}

// InstantiateRequest carries everything an engine needs to validate a new pool.
type InstantiateRequest struct {
	PoolID     uint64
	AssetInfos []types.AssetInfo // canonical order
	Precisions []types.AssetPrecision
	InitParams json.RawMessage
	BlockTime  uint64
}

// InstantiateResult is the engine state the ledger stores with the new pool.
type InstantiateResult struct {
	Math        types.MathParams
	LpPrecision uint8
}

// JoinRequest is the engine side of JoinPool.
type JoinRequest struct {
	AssetsIn          []types.Asset
	MintAmount        *sdkmath.Int // advisory; no engine here reads it
	SlippageTolerance *sdkmath.LegacyDec
}

// SwapRequest is the engine side of Swap.
type SwapRequest struct {
	SwapType    types.SwapType
	OfferAsset  types.AssetInfo
	AskAsset    types.AssetInfo
	Amount      sdkmath.Int
	MaxSpread   *sdkmath.LegacyDec
	BeliefPrice *sdkmath.LegacyDec
}

// UpdateRequest asks an engine to validate a parameter change.
type UpdateRequest struct {
	Sender  string
	IsOwner bool
	Params  json.RawMessage
}

// Engine is the capability set shared by all pool types.
type Engine interface {
	// Kind returns the engine tag stored with pool types.
	Kind() types.EngineKind

	// Instantiate validates init params and returns the initial engine state.
	Instantiate(req InstantiateRequest) (InstantiateResult, error)

	// OnJoin computes the LP minted for a deposit. It never errors; see Response.
	OnJoin(s Snapshot, req JoinRequest) types.AfterJoinResponse

	// OnExit computes the assets returned for an exit. It never errors; see Response.
	OnExit(s Snapshot, exit types.ExitType) types.AfterExitResponse

	// OnSwap prices a swap. It never errors; see Response.
	OnSwap(s Snapshot, req SwapRequest) types.SwapResponse

	// SpotPrice returns ask raw units per offer raw unit at the current balances.
	SpotPrice(s Snapshot, offer, ask types.AssetInfo) (sdkmath.LegacyDec, error)

	// UpdateParams validates a parameter change and returns the new engine state.
	UpdateParams(s Snapshot, req UpdateRequest) (types.MathParams, error)
}

var engines = map[types.EngineKind]Engine{
	types.EngineXYK:      XYK{},
	types.EngineStable:   Stable{},
	types.EngineWeighted: Weighted{},
}

// ForKind returns the engine registered for kind.
func ForKind(kind types.EngineKind) (Engine, error) {
	e, ok := engines[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, kind)
	}
	return e, nil
}

// Kinds lists the registered engines.
func Kinds() []types.EngineKind {
	return []types.EngineKind{types.EngineXYK, types.EngineStable, types.EngineWeighted}
}

// greatestPrecision returns the largest precision among precisions.
func greatestPrecision(precisions []types.AssetPrecision) uint8 {
	var out uint8
	for _, p := range precisions {
		if p.Precision > out {
			out = p.Precision
		}
	}
	return out
}

// checkPrecisions makes sure every asset has a precision within bounds.
func checkPrecisions(infos []types.AssetInfo, precisions []types.AssetPrecision) error {
	for _, info := range infos {
		found := false
		for _, p := range precisions {
			if p.Info.Equal(info) {
				if p.Precision > types.MaxPrecision {
					return fmt.Errorf("%w: precision %d of %s exceeds %d", ErrInvalidParams, p.Precision, info.ID(), types.MaxPrecision)
				}
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: missing precision for %s", ErrInvalidParams, info.ID())
		}
	}
	return nil
}

// normalizeAssetsIn sorts the request, rejects repeats and unknown assets and fills missing pool assets
// with zero amounts so the result lines up with pool order.
func normalizeAssetsIn(pool types.PoolInfo, in []types.Asset) ([]types.Asset, string) {
	if err := types.CheckUniqueAssets(in); err != nil {
		return nil, "Repeated assets in assets_in"
	}
	out := make([]types.Asset, len(pool.Assets))
	for i, pa := range pool.Assets {
		out[i] = types.ZeroAsset(pa.Info)
	}
	for _, a := range in {
		idx := types.FindAsset(pool.Assets, a.Info)
		if idx < 0 {
			return nil, fmt.Sprintf("Asset %s does not belong to pool %d", a.Info.ID(), pool.PoolID)
		}
		amt := a.AmountOrZero()
		if amt.IsNegative() {
			return nil, fmt.Sprintf("Negative amount for %s", a.Info.ID())
		}
		out[idx] = types.NewAsset(a.Info, amt)
	}
	return out, ""
}

// selectPools returns the indices of offer and ask within the pool.
func selectPools(pool types.PoolInfo, offer, ask types.AssetInfo) (int, int, string) {
	if offer.Equal(ask) {
		return -1, -1, "offer and ask assets are the same"
	}
	oi := types.FindAsset(pool.Assets, offer)
	ai := types.FindAsset(pool.Assets, ask)
	if oi < 0 || ai < 0 {
		return -1, -1, "assets mismatch"
	}
	return oi, ai, ""
}

// shareInAssets returns floor(asset_i * share / total) for every pool asset.
func shareInAssets(assets []types.Asset, share, total sdkmath.Int) []types.Asset {
	out := make([]types.Asset, len(assets))
	for i, a := range assets {
		amount := sdkmath.ZeroInt()
		if total.IsPositive() {
			amount = a.AmountOrZero().Mul(share).Quo(total)
		}
		out[i] = types.NewAsset(a.Info, amount)
	}
	return out
}

// exactLpBurn is the proportional exit shared by the engines.
func exactLpBurn(s Snapshot, burn sdkmath.Int) types.AfterExitResponse {
	if burn.IsNil() || !burn.IsPositive() {
		return types.ExitFailure("Burn amount is zero")
	}
	if burn.GT(s.TotalShare) {
		return types.ExitFailure("Burn amount is greater than total share")
	}
	return types.AfterExitResponse{
		AssetsOut:  shareInAssets(s.Pool.Assets, burn, s.TotalShare),
		BurnShares: burn,
		Response:   types.Success(),
	}
}

// zeroFees returns a zero fee entry per pool asset.
func zeroFees(pool types.PoolInfo) []types.Asset {
	out := make([]types.Asset, len(pool.Assets))
	for i, a := range pool.Assets {
		out[i] = types.ZeroAsset(a.Info)
	}
	return out
}
