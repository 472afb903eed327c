/*

Asset primitives shared by the ledger and the pool engines. An asset is either a native bank denom or a
token contract address, always paired with an unsigned integer amount.

*/

package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexter-zone/dexvault/internal/utils"
)

var (
	ErrInvalidAssetInfo = errors.New("asset info is invalid")
	ErrRepeatedAssets   = errors.New("repeated assets in asset list")
	ErrNegativeAmount   = errors.New("asset amount is negative")
	ErrAmountTooLarge   = errors.New("asset amount exceeds the 128-bit range")
)

// ValidateAmount rejects negative amounts and amounts above utils.MaxUint128. A nil amount counts as zero.
func ValidateAmount(amount sdkmath.Int) error {
	if amount.IsNil() {
		return nil
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeAmount, amount)
	}
	if amount.GT(utils.MaxUint128) {
		return fmt.Errorf("%w: %s", ErrAmountTooLarge, amount)
	}
	return nil
}

// AssetKind tags the two supported token families.
type AssetKind string

const (
	AssetKindNative AssetKind = "native"
	AssetKindToken  AssetKind = "token"
)

// AssetInfo identifies a fungible token without an amount.
type AssetInfo struct {
	Kind         AssetKind `json:"kind"`
	Denom        string    `json:"denom,omitempty"`
	ContractAddr string    `json:"contract_addr,omitempty"`
}

// NativeAsset returns the info for a bank denom.
func NativeAsset(denom string) AssetInfo {
	return AssetInfo{Kind: AssetKindNative, Denom: denom}
}

// TokenAsset returns the info for a token contract.
func TokenAsset(contractAddr string) AssetInfo {
	return AssetInfo{Kind: AssetKindToken, ContractAddr: contractAddr}
}

func (a AssetInfo) IsNative() bool {
	return a.Kind == AssetKindNative
}

// ID returns the denom or contract address.
func (a AssetInfo) ID() string {
	if a.IsNative() {
		return a.Denom
	}
	return a.ContractAddr
}

func (a AssetInfo) String() string {
	return a.ID()
}

// Key is the canonical map key for an asset. Native and token assets never collide.
func (a AssetInfo) Key() string {
	return string(a.Kind) + ":" + a.ID()
}

// ParseAssetKey reverses Key.
func ParseAssetKey(key string) (AssetInfo, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok {
		return AssetInfo{}, fmt.Errorf("%w: malformed key %q", ErrInvalidAssetInfo, key)
	}
	var info AssetInfo
	switch AssetKind(kind) {
	case AssetKindNative:
		info = NativeAsset(id)
	case AssetKindToken:
		info = TokenAsset(id)
	default:
		return AssetInfo{}, fmt.Errorf("%w: unknown kind in key %q", ErrInvalidAssetInfo, key)
	}
	return info, info.Validate()
}

func (a AssetInfo) Equal(b AssetInfo) bool {
	return a.Kind == b.Kind && a.ID() == b.ID()
}

// Less orders natives before tokens, then by lowercase identifier.
func (a AssetInfo) Less(b AssetInfo) bool {
	if a.Kind != b.Kind {
		return a.IsNative()
	}
	la, lb := strings.ToLower(a.ID()), strings.ToLower(b.ID())
	if la != lb {
		return la < lb
	}
	return a.ID() < b.ID()
}

// Validate checks the denom format for native assets and presence of an address for tokens.
func (a AssetInfo) Validate() error {
	switch a.Kind {
	case AssetKindNative:
		if err := sdk.ValidateDenom(a.Denom); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidAssetInfo, err)
		}
		if a.ContractAddr != "" {
			return fmt.Errorf("%w: native asset %s carries a contract address", ErrInvalidAssetInfo, a.Denom)
		}
	case AssetKindToken:
		if strings.TrimSpace(a.ContractAddr) == "" {
			return fmt.Errorf("%w: token asset without contract address", ErrInvalidAssetInfo)
		}
		if a.Denom != "" {
			return fmt.Errorf("%w: token asset %s carries a denom", ErrInvalidAssetInfo, a.ContractAddr)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAssetInfo, a.Kind)
	}
	return nil
}

// Asset is an AssetInfo with an amount.
type Asset struct {
	Info   AssetInfo   `json:"info"`
	Amount sdkmath.Int `json:"amount"`
}

func NewAsset(info AssetInfo, amount sdkmath.Int) Asset {
	return Asset{Info: info, Amount: amount}
}

// ZeroAsset returns info with a zero amount.
func ZeroAsset(info AssetInfo) Asset {
	return Asset{Info: info, Amount: sdkmath.ZeroInt()}
}

func (a Asset) String() string {
	return a.AmountOrZero().String() + a.Info.ID()
}

// AmountOrZero guards against nil amounts coming from JSON or zero-value structs.
func (a Asset) AmountOrZero() sdkmath.Int {
	if a.Amount.IsNil() {
		return sdkmath.ZeroInt()
	}
	return a.Amount
}

// Validate checks the info and the amount range.
func (a Asset) Validate() error {
	if err := a.Info.Validate(); err != nil {
		return err
	}
	if err := ValidateAmount(a.Amount); err != nil {
		return fmt.Errorf("%w (%s)", err, a.Info.ID())
	}
	return nil
}

// ToCoin converts a native asset to an sdk.Coin.
func (a Asset) ToCoin() (sdk.Coin, error) {
	if !a.Info.IsNative() {
		return sdk.Coin{}, fmt.Errorf("%w: %s is not a native asset", ErrInvalidAssetInfo, a.Info.ID())
	}
	return sdk.NewCoin(a.Info.Denom, a.AmountOrZero()), nil
}

// SortAssetInfos sorts infos in place using the canonical order.
func SortAssetInfos(infos []AssetInfo) {
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].Less(infos[j]) })
}

// SortAssets sorts assets in place using the canonical order.
func SortAssets(assets []Asset) {
	sort.SliceStable(assets, func(i, j int) bool { return assets[i].Info.Less(assets[j].Info) })
}

// CheckUniqueInfos returns ErrRepeatedAssets when the list contains the same asset twice.
func CheckUniqueInfos(infos []AssetInfo) error {
	seen := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		if _, ok := seen[info.Key()]; ok {
			return fmt.Errorf("%w: %s", ErrRepeatedAssets, info.ID())
		}
		seen[info.Key()] = struct{}{}
	}
	return nil
}

// CheckUniqueAssets is CheckUniqueInfos for assets.
func CheckUniqueAssets(assets []Asset) error {
	return CheckUniqueInfos(Infos(assets))
}

// Infos strips amounts from assets.
func Infos(assets []Asset) []AssetInfo {
	out := make([]AssetInfo, len(assets))
	for i, a := range assets {
		out[i] = a.Info
	}
	return out
}

// CloneAssets deep-copies an asset list. sdkmath.Int is immutable so a slice copy suffices.
func CloneAssets(assets []Asset) []Asset {
	if assets == nil {
		return nil
	}
	out := make([]Asset, len(assets))
	copy(out, assets)
	return out
}

// FindAsset returns the index of info within assets or -1.
func FindAsset(assets []Asset, info AssetInfo) int {
	for i, a := range assets {
		if a.Info.Equal(info) {
			return i
		}
	}
	return -1
}

// AmountOf returns the amount for info within assets, zero if absent.
func AmountOf(assets []Asset, info AssetInfo) sdkmath.Int {
	if i := FindAsset(assets, info); i >= 0 {
		return assets[i].AmountOrZero()
	}
	return sdkmath.ZeroInt()
}

// CoinsToAssets converts attached native funds into native assets.
func CoinsToAssets(coins sdk.Coins) []Asset {
	out := make([]Asset, 0, len(coins))
	for _, c := range coins {
		out = append(out, Asset{Info: NativeAsset(c.Denom), Amount: c.Amount})
	}
	return out
}
