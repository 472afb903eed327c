package pool

import (
	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/types"
)

// assertMaxSpread checks a priced swap against the caller's spread limit. Without a belief price the spread
// ratio is spread/(return+spread); with one it is the shortfall of return against offer/belief_price.
func assertMaxSpread(
	beliefPrice, maxSpread *sdkmath.LegacyDec,
	maxAllowed sdkmath.LegacyDec,
	offerAmount, returnAmount, spreadAmount sdkmath.Int,
) types.Response {
	limit := DefaultSpread
	if maxSpread != nil && !maxSpread.IsNil() {
		limit = *maxSpread
	}
	if limit.GT(maxAllowed) {
		return types.Failure("Operation exceeds max allowed spread limit")
	}

	if beliefPrice != nil && !beliefPrice.IsNil() {
		if !beliefPrice.IsPositive() {
			return types.Failure("belief_price must be positive")
		}
		expected := sdkmath.LegacyNewDecFromInt(offerAmount).Quo(*beliefPrice).TruncateInt()
		if returnAmount.LT(expected) && expected.IsPositive() {
			shortfall := expected.Sub(returnAmount)
			calc := sdkmath.LegacyNewDecFromInt(shortfall).QuoInt(expected)
			if calc.GT(limit) {
				return types.Failuref("Operation exceeds max spread limit. Current spread = %s", calc)
			}
		}
		return types.Success()
	}

	denom := returnAmount.Add(spreadAmount)
	if !denom.IsPositive() {
		return types.Success()
	}
	calc := sdkmath.LegacyNewDecFromInt(spreadAmount).QuoInt(denom)
	if calc.GT(limit) {
		return types.Failuref("Operation exceeds max spread limit. Current spread = %s", calc)
	}
	return types.Success()
}
