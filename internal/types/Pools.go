 /*

Pool registry and per-pool state held by the ledger. Engine parameters live here too so the ledger stays the
single source of truth; engines only ever see copies.

*/

package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// EngineKind selects the math engine of a pool type.
type EngineKind string

const (
	EngineXYK      EngineKind = "xyk"
	EngineStable   EngineKind = "stable"
	EngineWeighted EngineKind = "weighted"
)

// AllowPoolInstantiation is the creation policy of a pool type.
type AllowPoolInstantiation string

const (
	AllowOnlyOwner         AllowPoolInstantiation = "only_owner"
	AllowOwnerAndWhitelist AllowPoolInstantiation = "owner_and_whitelist"
	AllowAnyone            AllowPoolInstantiation = "anyone"
)

func (a AllowPoolInstantiation) Valid() bool {
	switch a {
	case AllowOnlyOwner, AllowOwnerAndWhitelist, AllowAnyone:
		return true
	}
	return false
}

// PauseInfo holds the pause flags of one scope.
type PauseInfo struct {
	Swap               bool `json:"swap"`
	Deposit            bool `json:"deposit"`
	ImbalancedWithdraw bool `json:"imbalanced_withdraw"`
}

// Or merges two scopes; a flag set anywhere stays set.
func (p PauseInfo) Or(o PauseInfo) PauseInfo {
	return PauseInfo{
		Swap:               p.Swap || o.Swap,
		Deposit:            p.Deposit || o.Deposit,
		ImbalancedWithdraw: p.ImbalancedWithdraw || o.ImbalancedWithdraw,
	}
}

// PoolTypeConfig is a registry entry.
type PoolTypeConfig struct {
	PoolType           string                 `json:"pool_type"`
	Engine             EngineKind             `json:"engine"`
	DefaultFeeInfo     FeeInfo                `json:"default_fee_info"`
	AllowInstantiation AllowPoolInstantiation `json:"allow_instantiation"`
	IsDisabled         bool                   `json:"is_disabled"`
	Paused             PauseInfo              `json:"paused"`
}

// AssetPrecision records the decimals of one pool asset.
type AssetPrecision struct {
	Info      AssetInfo `json:"info"`
	Precision uint8     `json:"precision"`
}

// CumulativePrice is the TWAP accumulator of one ordered asset pair, scaled by 10^TwapPrecision.
type CumulativePrice struct {
	Offer AssetInfo   `json:"offer"`
	Ask   AssetInfo   `json:"ask"`
	Value sdkmath.Int `json:"value"`
}

// Twap is the accumulator state of a pool.
type Twap struct {
	CumulativePrices []CumulativePrice `json:"cumulative_prices"`
	BlockTimeLast    uint64            `json:"block_time_last"`
}

// AssetScalingFactor multiplies a stableswap balance before it enters the invariant.
type AssetScalingFactor struct {
	Info          AssetInfo         `json:"info"`
	ScalingFactor sdkmath.LegacyDec `json:"scaling_factor"`
}

// StableMathParams is the stableswap engine state. Amp values carry AmpPrecision.
type StableMathParams struct {
	InitAmp                      uint64               `json:"init_amp"`
	InitAmpTime                  uint64               `json:"init_amp_time"`
	NextAmp                      uint64               `json:"next_amp"`
	NextAmpTime                  uint64               `json:"next_amp_time"`
	GreatestPrecision            uint8                `json:"greatest_precision"`
	ScalingFactors               []AssetScalingFactor `json:"scaling_factors"`
	ScalingFactorManager         string               `json:"scaling_factor_manager,omitempty"`
	SupportsScalingFactorsUpdate bool                 `json:"supports_scaling_factors_update"`
	MaxAllowedSpread             sdkmath.LegacyDec    `json:"max_allowed_spread"`
}

// AssetWeight is a normalized weighted-pool weight.
type AssetWeight struct {
	Info   AssetInfo         `json:"info"`
	Weight sdkmath.LegacyDec `json:"weight"`
}

// WeightedMathParams is the weighted engine state.
type WeightedMathParams struct {
	Weights           []AssetWeight     `json:"weights"`
	ExitFee           sdkmath.LegacyDec `json:"exit_fee"`
	GreatestPrecision uint8             `json:"greatest_precision"`
}

// MathParams is a tagged union; exactly one field is set for stable and weighted pools, none for xyk.
type MathParams struct {
	Stable   *StableMathParams   `json:"stable,omitempty"`
	Weighted *WeightedMathParams `json:"weighted,omitempty"`
}

func (m MathParams) Clone() MathParams {
	var out MathParams
	if m.Stable != nil {
		s := *m.Stable
		s.ScalingFactors = append([]AssetScalingFactor(nil), m.Stable.ScalingFactors...)
		out.Stable = &s
	}
	if m.Weighted != nil {
		w := *m.Weighted
		w.Weights = append([]AssetWeight(nil), m.Weighted.Weights...)
		out.Weighted = &w
	}
	return out
}

// PoolInfo is the authoritative state of one pool instance.
type PoolInfo struct {
	PoolID        uint64           `json:"pool_id"`
	PoolType      string           `json:"pool_type"`
	Engine        EngineKind       `json:"engine"`
	PoolAddr      string           `json:"pool_addr"`
	LpTokenAddr   string           `json:"lp_token_addr"`
	LpPrecision   uint8            `json:"lp_precision"`
	Assets        []Asset          `json:"assets"`
	Precisions    []AssetPrecision `json:"precisions"`
	FeeInfo       FeeInfo          `json:"fee_info"`
	Paused        PauseInfo        `json:"paused"`
	BlockTimeLast uint64           `json:"block_time_last"`
	Twap          Twap             `json:"twap"`
	Math          MathParams       `json:"math"`
}

// Clone deep-copies the pool so engines and pending transactions never alias ledger state.
func (p PoolInfo) Clone() PoolInfo {
	out := p
	out.Assets = CloneAssets(p.Assets)
	out.Precisions = append([]AssetPrecision(nil), p.Precisions...)
	out.Twap.CumulativePrices = append([]CumulativePrice(nil), p.Twap.CumulativePrices...)
	out.Math = p.Math.Clone()
	return out
}

// AssetInfos returns the pool's asset identities in pool order.
func (p PoolInfo) AssetInfos() []AssetInfo {
	return Infos(p.Assets)
}

// PrecisionOf returns the decimals recorded for info.
func (p PoolInfo) PrecisionOf(info AssetInfo) (uint8, error) {
	for _, ap := range p.Precisions {
		if ap.Info.Equal(info) {
			return ap.Precision, nil
		}
	}
	return 0, fmt.Errorf("%w: no precision for %s in pool %d", ErrInvalidAssetInfo, info.ID(), p.PoolID)
}

// DefunctInfo is the frozen state of a defunct pool.
type DefunctInfo struct {
	PoolID                 uint64      `json:"pool_id"`
	PoolType               string      `json:"pool_type"`
	LpTokenAddr            string      `json:"lp_token_addr"`
	SnapshotAssets         []Asset     `json:"snapshot_assets"`
	TotalLpSupplyAtDefunct sdkmath.Int `json:"total_lp_supply_at_defunct"`
	TotalLpRefunded        sdkmath.Int `json:"total_lp_refunded"`
	DefunctedAt            uint64      `json:"defuncted_at"`
}

func (d DefunctInfo) Clone() DefunctInfo {
	out := d
	out.SnapshotAssets = CloneAssets(d.SnapshotAssets)
	return out
}
