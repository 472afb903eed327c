package analyzer

import (
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"

	"github.com/dexter-zone/dexvault/internal/logger"
	"github.com/dexter-zone/dexvault/internal/types"
)

var analyzerLogger = logger.GetForComponent("price_analyzer")

// Observation is the cumulative price counter of one ordered pair as of BlockTime.
type Observation struct {
	BlockTime uint64      `json:"block_time"`
	Value     sdkmath.Int `json:"value"`
}

// PricePoint is the time-weighted average price of the ask asset per offer asset over [From, To],
// in raw units of both assets.
type PricePoint struct {
	From  uint64          `json:"from"`
	To    uint64          `json:"to"`
	Price decimal.Decimal `json:"price"`
}

// PriceHistory is the TWAP series of one pair with its annualized volatility, when enough points exist.
type PriceHistory struct {
	Offer      types.AssetInfo `json:"offer"`
	Ask        types.AssetInfo `json:"ask"`
	Points     []PricePoint    `json:"points"`
	Volatility *float64        `json:"volatility,omitempty"`
}

// ObservationsFor extracts the counter of offer/ask from each TWAP state. States without that pair are skipped.
func ObservationsFor(twaps []types.Twap, offer, ask types.AssetInfo) []Observation {
	out := make([]Observation, 0, len(twaps))
	for _, t := range twaps {
		for _, cp := range t.CumulativePrices {
			if cp.Offer.Equal(offer) && cp.Ask.Equal(ask) && !cp.Value.IsNil() {
				out = append(out, Observation{BlockTime: t.BlockTimeLast, Value: cp.Value})
				break
			}
		}
	}
	return out
}

// AveragePrices turns consecutive observations into TWAP points. Observations sharing a block time are
// collapsed, and windows where the counter did not grow (a saturated counter) are dropped.
func AveragePrices(obs []Observation, twapPrecision uint8) ([]PricePoint, error) {
	if twapPrecision > types.MaxPrecision {
		return nil, fmt.Errorf("twap precision %d exceeds %d", twapPrecision, types.MaxPrecision)
	}
	sorted := append([]Observation(nil), obs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].BlockTime < sorted[j].BlockTime })

	scale := decimal.New(1, int32(twapPrecision))
	var points []PricePoint
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if cur.BlockTime == prev.BlockTime {
			continue
		}
		delta := cur.Value.Sub(prev.Value)
		if !delta.IsPositive() {
			analyzerLogger.Debug().Uint64("from", prev.BlockTime).Uint64("to", cur.BlockTime).
				Msg("Skipping window without counter growth")
			continue
		}
		elapsed := decimal.NewFromInt(int64(cur.BlockTime - prev.BlockTime))
		price := decimal.NewFromBigInt(delta.BigInt(), 0).Div(elapsed.Mul(scale))
		points = append(points, PricePoint{From: prev.BlockTime, To: cur.BlockTime, Price: price})
	}
	return points, nil
}

// BuildPriceHistory combines AveragePrices and CalculateVolatility for one pair.
func BuildPriceHistory(twaps []types.Twap, offer, ask types.AssetInfo, twapPrecision uint8) (PriceHistory, error) {
	out := PriceHistory{Offer: offer, Ask: ask}
	points, err := AveragePrices(ObservationsFor(twaps, offer, ask), twapPrecision)
	if err != nil {
		return out, err
	}
	out.Points = points
	vol, err := CalculateVolatility(append([]PricePoint(nil), points...), AnnualizationFactor(points))
	if err == nil {
		out.Volatility = &vol
	}
	return out, nil
}
