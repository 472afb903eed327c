/*
This file contains common utility functions for converting between different types,
particularly for SDK math operations and precision handling.
*/

package utils

import (
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrDivisionByZero   = errors.New("division by zero")
	ErrOverflow         = errors.New("arithmetic overflow")
	ErrConversionFailed = errors.New("conversion failed")
)

// MaxPrecision mirrors the 18 decimals of sdkmath.LegacyDec.
const MaxPrecision = 18

// MaxUint128 is the largest amount a single counter may hold.
var MaxUint128 = sdkmath.NewIntFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)))

// Pow10 returns 10^n as an Int.
func Pow10(n uint8) sdkmath.Int {
	return sdkmath.NewIntFromBigInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil))
}

// AdjustPrecision rescales value from one number of decimals to another, rounding down.
func AdjustPrecision(value sdkmath.Int, from, to uint8) (sdkmath.Int, error) {
	if value.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if from > 2*MaxPrecision || to > 2*MaxPrecision {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d -> %d", ErrInvalidPrecision, from, to)
	}
	switch {
	case from == to:
		return value, nil
	case from < to:
		out, err := value.SafeMul(Pow10(to - from))
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrOverflow, err)
		}
		return out, nil
	default:
		return value.Quo(Pow10(from - to)), nil
	}
}

// MulRatio returns floor(value * numerator / denominator) with checked intermediate math.
func MulRatio(value, numerator, denominator sdkmath.Int) (sdkmath.Int, error) {
	if denominator.IsNil() || denominator.IsZero() {
		return sdkmath.ZeroInt(), ErrDivisionByZero
	}
	product, err := value.SafeMul(numerator)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %w", ErrOverflow, err)
	}
	return product.Quo(denominator), nil
}

// IntegerSqrt returns floor(sqrt(value)).
func IntegerSqrt(value sdkmath.Int) sdkmath.Int {
	if value.IsNil() || !value.IsPositive() {
		return sdkmath.ZeroInt()
	}
	return sdkmath.NewIntFromBigInt(new(big.Int).Sqrt(value.BigInt()))
}

// SaturatingAdd adds two non-negative amounts and clamps the result at MaxUint128.
func SaturatingAdd(a, b sdkmath.Int) sdkmath.Int {
	sum, err := a.SafeAdd(b)
	if err != nil || sum.GT(MaxUint128) {
		return MaxUint128
	}
	return sum
}

// MinInt returns the smaller of two amounts.
func MinInt(a, b sdkmath.Int) sdkmath.Int {
	if a.LT(b) {
		return a
	}
	return b
}

// SubOrZero returns a - b, floored at zero.
func SubOrZero(a, b sdkmath.Int) sdkmath.Int {
	if a.LTE(b) {
		return sdkmath.ZeroInt()
	}
	return a.Sub(b)
}

// ToDisplayAmount converts a raw amount into whole-token units for human consumption.
func ToDisplayAmount(amount sdkmath.Int, precision uint8) (decimal.Decimal, error) {
	if precision > MaxPrecision {
		return decimal.Zero, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return decimal.Zero, ErrAmountNil
	}
	return decimal.NewFromBigInt(amount.BigInt(), -int32(precision)), nil
}

// DecToDisplay converts an sdk decimal to a shopspring decimal without going through float64.
func DecToDisplay(value sdkmath.LegacyDec) (decimal.Decimal, error) {
	if value.IsNil() {
		return decimal.Zero, ErrAmountNil
	}
	out, err := decimal.NewFromString(value.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return out, nil
}
