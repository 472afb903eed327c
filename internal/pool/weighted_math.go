package pool

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

var (
	// PowPrecision is where the binomial series of the fractional power stops.
	PowPrecision = sdkmath.LegacyNewDecWithPrec(1, 8)

	powBaseLimit = sdkmath.LegacyNewDec(2)

	errPowBase = errors.New("pow: base must be less than 2")
)

// maxSeriesTerms bounds the binomial series in case the terms stop shrinking near the base limit.
const maxSeriesTerms = 300

// pow computes base^exp for 0 <= base < 2. The exponent is split into an integer part computed exactly and a
// fractional part approximated by the binomial series of (1 + x)^a with x = base - 1.
func pow(base, exp sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if base.IsNegative() || exp.IsNegative() {
		return sdkmath.LegacyZeroDec(), errors.New("pow: negative operand")
	}
	if exp.IsZero() {
		return sdkmath.LegacyOneDec(), nil
	}
	if base.IsZero() {
		return sdkmath.LegacyZeroDec(), nil
	}
	if base.GTE(powBaseLimit) {
		return sdkmath.LegacyZeroDec(), errPowBase
	}

	integer := exp.TruncateInt()
	fractional := exp.Sub(sdkmath.LegacyNewDecFromInt(integer))
	integerPow := base.Power(integer.Uint64())
	if fractional.IsZero() {
		return integerPow, nil
	}
	return integerPow.Mul(powApprox(base, fractional, PowPrecision)), nil
}

// powApprox sums binom(a, k) * x^k until a term drops below precision. Requires 0 < base < 2 and 0 <= a < 1.
func powApprox(base, a, precision sdkmath.LegacyDec) sdkmath.LegacyDec {
	one := sdkmath.LegacyOneDec()
	x, xneg := subSign(base, one)

	term := one
	sum := one
	negative := false
	k := sdkmath.LegacyZeroDec()

	for i := int64(1); term.GTE(precision) && i <= maxSeriesTerms; i++ {
		c, cneg := subSign(a, k)
		k = sdkmath.LegacyNewDec(i)
		term = term.Mul(c).Mul(x).Quo(k)
		if term.IsZero() {
			break
		}
		if xneg {
			negative = !negative
		}
		if cneg {
			negative = !negative
		}
		if negative {
			sum = sum.Sub(term)
		} else {
			sum = sum.Add(term)
		}
	}
	return sum
}

// subSign returns |a - b| and whether a - b is negative.
func subSign(a, b sdkmath.LegacyDec) (sdkmath.LegacyDec, bool) {
	if a.GTE(b) {
		return a.Sub(b), false
	}
	return b.Sub(a), true
}

// solveConstantFunctionInvariant returns the change of the unknown balance when the fixed balance moves from
// before to after:
//
//	delta = balance_unknown * |1 - (before/after)^(weight_fixed/weight_unknown)|
func solveConstantFunctionInvariant(
	fixedBefore, fixedAfter, weightFixed, unknownBefore, weightUnknown sdkmath.LegacyDec,
) (sdkmath.LegacyDec, error) {
	if fixedAfter.IsZero() || weightUnknown.IsZero() {
		return sdkmath.LegacyZeroDec(), errors.New("division by zero in invariant")
	}
	y, err := pow(fixedBefore.Quo(fixedAfter), weightFixed.Quo(weightUnknown))
	if err != nil {
		return sdkmath.LegacyZeroDec(), err
	}
	one := sdkmath.LegacyOneDec()
	paren, _ := subSign(one, y)
	return unknownBefore.Mul(paren), nil
}

// feeRatio is 1 - (1 - w) * fee: the part of a single asset deposit that is not treated as swapped.
func feeRatio(weight, fee sdkmath.LegacyDec) sdkmath.LegacyDec {
	one := sdkmath.LegacyOneDec()
	return one.Sub(one.Sub(weight).Mul(fee))
}
