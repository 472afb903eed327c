package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

const (
	// FeePrecision is the denominator of all bps values: 30 bps = 30 / FeePrecision = 0.3%.
	FeePrecision uint64 = 10_000
	// MaxTotalFeeBps caps the commission of any pool at 10%.
	MaxTotalFeeBps uint16 = 1_000
	// MaxFeePercent caps protocol + dev share of the commission.
	MaxFeePercent uint16 = 100
)

var ErrInvalidFeeInfo = errors.New("invalid fee info")

// FeeInfo is the commission configuration of a pool or pool type.
type FeeInfo struct {
	TotalFeeBps        uint16 `json:"total_fee_bps"`
	ProtocolFeePercent uint16 `json:"protocol_fee_percent"`
	DevFeePercent      uint16 `json:"dev_fee_percent"`
	DeveloperAddr      string `json:"developer_addr,omitempty"`
}

func (f FeeInfo) Validate() error {
	if f.TotalFeeBps > MaxTotalFeeBps {
		return fmt.Errorf("%w: total_fee_bps %d exceeds %d", ErrInvalidFeeInfo, f.TotalFeeBps, MaxTotalFeeBps)
	}
	if uint32(f.ProtocolFeePercent)+uint32(f.DevFeePercent) > uint32(MaxFeePercent) {
		return fmt.Errorf("%w: protocol %d%% + dev %d%% exceeds %d%%",
			ErrInvalidFeeInfo, f.ProtocolFeePercent, f.DevFeePercent, MaxFeePercent)
	}
	return nil
}

// Rate returns total_fee_bps as a decimal fraction.
func (f FeeInfo) Rate() sdkmath.LegacyDec {
	return sdkmath.LegacyNewDec(int64(f.TotalFeeBps)).QuoInt64(int64(FeePrecision))
}

// TotalFee is floor(amount * total_fee_bps / 10000).
func (f FeeInfo) TotalFee(amount sdkmath.Int) sdkmath.Int {
	return CalculateUnderlyingFees(amount, f.TotalFeeBps)
}

// Breakup splits a charged commission into the protocol and developer portions. The rest stays with LPs.
// Without a developer address the dev share goes to the protocol; without a fee collector the protocol share
// is not carved out at all.
func (f FeeInfo) Breakup(totalFee sdkmath.Int, hasFeeCollector bool) (protocolFee, devFee sdkmath.Int) {
	if totalFee.IsNil() || !totalFee.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt()
	}
	protocolFee = totalFee.MulRaw(int64(f.ProtocolFeePercent)).QuoRaw(100)
	devFee = totalFee.MulRaw(int64(f.DevFeePercent)).QuoRaw(100)
	if f.DeveloperAddr == "" {
		protocolFee = protocolFee.Add(devFee)
		devFee = sdkmath.ZeroInt()
	}
	if !hasFeeCollector {
		protocolFee = sdkmath.ZeroInt()
	}
	return protocolFee, devFee
}

// CalculateUnderlyingFees returns floor(amount * bps / FeePrecision).
func CalculateUnderlyingFees(amount sdkmath.Int, bps uint16) sdkmath.Int {
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt()
	}
	return amount.MulRaw(int64(bps)).QuoRaw(int64(FeePrecision))
}
