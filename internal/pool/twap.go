package pool

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/dexter-zone/dexvault/internal/types"
	"github.com/dexter-zone/dexvault/internal/utils"
)

// InitialCumulativePrices returns a zero counter for every ordered pair of distinct assets.
func InitialCumulativePrices(infos []types.AssetInfo) []types.CumulativePrice {
	out := make([]types.CumulativePrice, 0, len(infos)*(len(infos)-1))
	for _, offer := range infos {
		for _, ask := range infos {
			if offer.Equal(ask) {
				continue
			}
			out = append(out, types.CumulativePrice{Offer: offer, Ask: ask, Value: sdkmath.ZeroInt()})
		}
	}
	return out
}

// AccumulatePrices advances the TWAP counters of the snapshot's pool to its block time. Prices are taken
// from the balances before the operation that triggers the update. Counters saturate instead of wrapping.
// The returned bool is false when nothing changed.
func AccumulatePrices(engine Engine, s Snapshot) (types.Twap, bool) {
	twap := types.Twap{
		CumulativePrices: append([]types.CumulativePrice(nil), s.Pool.Twap.CumulativePrices...),
		BlockTimeLast:    s.Pool.Twap.BlockTimeLast,
	}
	if s.BlockTime <= twap.BlockTimeLast {
		return twap, false
	}
	for _, a := range s.Pool.Assets {
		if !a.AmountOrZero().IsPositive() {
			twap.BlockTimeLast = s.BlockTime
			return twap, true
		}
	}

	elapsed := sdkmath.NewIntFromUint64(s.BlockTime - twap.BlockTimeLast)
	scale := utils.Pow10(TwapPrecision)
	for i, cp := range twap.CumulativePrices {
		price, err := engine.SpotPrice(s, cp.Offer, cp.Ask)
		if err != nil {
			engineLogger.Warn().Err(err).Uint64("pool_id", s.Pool.PoolID).
				Str("offer", cp.Offer.ID()).Str("ask", cp.Ask.ID()).Msg("Skipping cumulative price update")
			continue
		}
		delta := price.MulInt(elapsed).MulInt(scale).TruncateInt()
		value := cp.Value
		if value.IsNil() {
			value = sdkmath.ZeroInt()
		}
		twap.CumulativePrices[i].Value = utils.SaturatingAdd(value, delta)
	}
	twap.BlockTimeLast = s.BlockTime
	return twap, true
}

// CumulativePrice returns the counter of one ordered pair.
func CumulativePrice(pool types.PoolInfo, offer, ask types.AssetInfo) (types.AssetExchangeRate, error) {
	for _, cp := range pool.Twap.CumulativePrices {
		if cp.Offer.Equal(offer) && cp.Ask.Equal(ask) {
			return types.AssetExchangeRate{OfferInfo: cp.Offer, AskInfo: cp.Ask, Rate: cp.Value}, nil
		}
	}
	return types.AssetExchangeRate{}, fmt.Errorf("%w: no cumulative price for %s/%s", ErrInvalidAsset, offer.ID(), ask.ID())
}

// CumulativePrices returns every counter of the pool.
func CumulativePrices(pool types.PoolInfo) []types.AssetExchangeRate {
	out := make([]types.AssetExchangeRate, 0, len(pool.Twap.CumulativePrices))
	for _, cp := range pool.Twap.CumulativePrices {
		out = append(out, types.AssetExchangeRate{OfferInfo: cp.Offer, AskInfo: cp.Ask, Rate: cp.Value})
	}
	return out
}
